package render

import (
	"archive/zip"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/james226/scene-relay/scene"
)

const (
	kmlNamespace     = "http://www.opengis.net/kml/2.2"
	defaultPathName  = "Flight Path"
	kmzDocumentEntry = "doc.kml"
)

var csvHeader = []string{"lon", "lat", "alt_m", "speed_mps"}

type geoJSONFeature struct {
	Type       string            `json:"type"`
	Geometry   geoJSONGeometry   `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// WriteGeoJSON writes data as a single GeoJSON Feature. Positions are
// [lon, lat, alt].
func WriteGeoJSON(w io.Writer, data *scene.SceneData) error {
	if data == nil || len(data.Coordinates) == 0 {
		return ErrNoScene
	}

	positions := make([][3]float64, len(data.Coordinates))
	for i, c := range data.Coordinates {
		positions[i] = [3]float64{c.Lon, c.Lat, c.Alt}
	}

	geom := geoJSONGeometry{Type: data.Geometry}
	switch data.Geometry {
	case "Point":
		geom.Coordinates = positions[0]
	case "Polygon":
		geom.Coordinates = [][][3]float64{positions}
	default:
		geom.Type = "LineString"
		geom.Coordinates = positions
	}

	props := map[string]string{}
	if data.Name != "" {
		props["name"] = data.Name
	}
	if data.Description != "" {
		props["description"] = data.Description
	}

	return json.NewEncoder(w).Encode(geoJSONFeature{Type: "Feature", Geometry: geom, Properties: props})
}

// WriteCSV writes one row per waypoint for flight controllers. Speed is not
// tracked and is always written as 0.
func WriteCSV(w io.Writer, data *scene.SceneData) error {
	if data == nil || len(data.Coordinates) == 0 {
		return ErrNoScene
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range data.Coordinates {
		if err := cw.Write([]string{formatFloat(c.Lon), formatFloat(c.Lat), formatFloat(c.Alt), "0"}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Placemark kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name        string       `xml:"name"`
	Description string       `xml:"description,omitempty"`
	Point       *kmlGeometry `xml:"Point,omitempty"`
	LineString  *kmlGeometry `xml:"LineString,omitempty"`
	Polygon     *kmlPolygon  `xml:"Polygon,omitempty"`
}

type kmlGeometry struct {
	AltitudeMode string `xml:"altitudeMode,omitempty"`
	Coordinates  string `xml:"coordinates"`
}

type kmlPolygon struct {
	AltitudeMode string `xml:"altitudeMode"`
	Outer        struct {
		Ring kmlGeometry `xml:"LinearRing"`
	} `xml:"outerBoundaryIs"`
}

// WriteKMZ writes data as a KMZ archive holding a single doc.kml placemark.
func WriteKMZ(w io.Writer, data *scene.SceneData) error {
	if data == nil || len(data.Coordinates) == 0 {
		return ErrNoScene
	}

	pm := kmlPlacemark{Name: data.Name, Description: data.Description}
	if pm.Name == "" {
		pm.Name = defaultPathName
	}
	coords := kmlCoordinates(data.Coordinates)
	switch data.Geometry {
	case "Point":
		pm.Point = &kmlGeometry{AltitudeMode: "absolute", Coordinates: coords}
	case "Polygon":
		pm.Polygon = &kmlPolygon{AltitudeMode: "absolute"}
		pm.Polygon.Outer.Ring.Coordinates = coords
	default:
		pm.LineString = &kmlGeometry{AltitudeMode: "absolute", Coordinates: coords}
	}

	doc, err := xml.MarshalIndent(kmlRoot{Xmlns: kmlNamespace, Document: kmlDocument{Placemark: pm}}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}

	zw := zip.NewWriter(w)
	f, err := zw.Create(kmzDocumentEntry)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, xml.Header); err != nil {
		return err
	}
	if _, err := f.Write(doc); err != nil {
		return err
	}
	return zw.Close()
}

func kmlCoordinates(coords []scene.Coordinate) string {
	tuples := make([]string, len(coords))
	for i, c := range coords {
		tuples[i] = formatFloat(c.Lon) + "," + formatFloat(c.Lat) + "," + formatFloat(c.Alt)
	}
	return strings.Join(tuples, " ")
}
