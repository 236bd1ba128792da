// Package kmz parses KMZ archives (zipped KML documents) into scene data.
package kmz

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/james226/scene-relay/scene"
)

// maxDocumentSize caps the decompressed KML document.
const maxDocumentSize = 32 << 20

var (
	errNoDocument = errors.New("archive contains no .kml document")
	errNoGeometry = errors.New("document contains no coordinates")
)

// Parser is the default scene.Parser. The zero value is ready to use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, archive []byte) (*scene.SceneData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(archive) == 0 {
		return nil, &scene.ParseError{Err: errors.New("empty archive")}
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, &scene.ParseError{Err: fmt.Errorf("open zip: %w", err)}
	}

	doc, err := findDocument(zr)
	if err != nil {
		return nil, &scene.ParseError{Err: err}
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, &scene.ParseError{Err: fmt.Errorf("open %s: %w", doc.Name, err)}
	}
	defer rc.Close()

	data, err := decodeKML(io.LimitReader(rc, maxDocumentSize))
	if err != nil {
		return nil, &scene.ParseError{Err: fmt.Errorf("%s: %w", doc.Name, err)}
	}
	return data, nil
}

// findDocument prefers doc.kml at the archive root, then the first .kml entry.
func findDocument(zr *zip.Reader) (*zip.File, error) {
	var first *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".kml") {
			continue
		}
		if strings.EqualFold(f.Name, "doc.kml") {
			return f, nil
		}
		if first == nil {
			first = f
		}
	}
	if first == nil {
		return nil, errNoDocument
	}
	return first, nil
}

// geometries maps KML geometry elements to the geometry type reported in
// scene data. LinearRing only occurs as a polygon boundary.
var geometries = map[string]string{
	"Point":      "Point",
	"LineString": "LineString",
	"LinearRing": "Polygon",
}

func decodeKML(r io.Reader) (*scene.SceneData, error) {
	dec := xml.NewDecoder(r)
	data := &scene.SceneData{}

	var (
		stack    []string
		text     strings.Builder
		geometry string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode kml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			text.Reset()
			if g, ok := geometries[t.Name.Local]; ok && geometry == "" {
				geometry = g
			}

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			name := t.Name.Local
			parent := ""
			if len(stack) > 1 {
				parent = stack[len(stack)-2]
			}
			switch {
			case name == "name" && data.Name == "" && (parent == "Placemark" || parent == "Document"):
				data.Name = strings.TrimSpace(text.String())
			case name == "description" && data.Description == "" && (parent == "Placemark" || parent == "Document"):
				data.Description = strings.TrimSpace(text.String())
			case name == "coordinates" && geometry != "" && data.Geometry == "":
				coords, err := parseCoordinates(text.String())
				if err != nil {
					return nil, err
				}
				data.Geometry = geometry
				data.Coordinates = coords
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			text.Reset()
		}
	}

	if len(data.Coordinates) == 0 {
		return nil, errNoGeometry
	}
	data.Altitude = maxAltitude(data.Coordinates)
	return data, nil
}

// parseCoordinates reads whitespace separated lon,lat[,alt] tuples.
func parseCoordinates(s string) ([]scene.Coordinate, error) {
	fields := strings.Fields(s)
	coords := make([]scene.Coordinate, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid coordinate tuple %q", field)
		}

		var values [3]float64
		for i, part := range parts {
			v, err := strconv.ParseFloat(part, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("invalid coordinate tuple %q", field)
			}
			values[i] = v
		}
		coords = append(coords, scene.Coordinate{Lon: values[0], Lat: values[1], Alt: values[2]})
	}
	if len(coords) == 0 {
		return nil, errNoGeometry
	}
	return coords, nil
}

func maxAltitude(coords []scene.Coordinate) float64 {
	alt := coords[0].Alt
	for _, c := range coords[1:] {
		if c.Alt > alt {
			alt = c.Alt
		}
	}
	return alt
}
