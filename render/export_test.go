package render

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/james226/scene-relay/kmz"
	"github.com/james226/scene-relay/scene"
)

func TestExporters_NoScene(t *testing.T) {
	writers := map[string]func(io.Writer, *scene.SceneData) error{
		"geojson": WriteGeoJSON,
		"csv":     WriteCSV,
		"kmz":     WriteKMZ,
	}
	for name, write := range writers {
		if err := write(io.Discard, nil); !errors.Is(err, ErrNoScene) {
			t.Errorf("%s: error = %v, want ErrNoScene", name, err)
		}
		if err := write(io.Discard, &scene.SceneData{Geometry: "LineString"}); !errors.Is(err, ErrNoScene) {
			t.Errorf("%s without coordinates: error = %v, want ErrNoScene", name, err)
		}
	}
}

func TestWriteGeoJSON(t *testing.T) {
	tests := []struct {
		geometry string
		wantType string
		wantJSON string
	}{
		{"LineString", "LineString", `[[-122.42,37.77,100],[-122.41,37.77,100],[-122.41,37.78,100]]`},
		{"Polygon", "Polygon", `[[[-122.42,37.77,100],[-122.41,37.77,100],[-122.41,37.78,100]]]`},
		{"Point", "Point", `[-122.42,37.77,100]`},
	}
	for _, tt := range tests {
		t.Run(tt.geometry, func(t *testing.T) {
			data := sample()
			data.Geometry = tt.geometry

			var buf bytes.Buffer
			if err := WriteGeoJSON(&buf, data); err != nil {
				t.Fatal(err)
			}

			var got struct {
				Type     string `json:"type"`
				Geometry struct {
					Type        string          `json:"type"`
					Coordinates json.RawMessage `json:"coordinates"`
				} `json:"geometry"`
				Properties map[string]string `json:"properties"`
			}
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("invalid JSON %q: %v", buf.String(), err)
			}
			if got.Type != "Feature" || got.Geometry.Type != tt.wantType {
				t.Errorf("type = %q/%q, want Feature/%s", got.Type, got.Geometry.Type, tt.wantType)
			}
			if string(got.Geometry.Coordinates) != tt.wantJSON {
				t.Errorf("coordinates = %s, want %s", got.Geometry.Coordinates, tt.wantJSON)
			}
			if got.Properties["name"] != "path" {
				t.Errorf("properties = %v", got.Properties)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"lon,lat,alt_m,speed_mps",
		"-122.42,37.77,100,0",
		"-122.41,37.77,100,0",
		"-122.41,37.78,100,0",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteKMZ_ParsesBack(t *testing.T) {
	for _, geometry := range []string{"LineString", "Polygon", "Point"} {
		t.Run(geometry, func(t *testing.T) {
			data := sample()
			data.Geometry = geometry
			if geometry == "Point" {
				data.Coordinates = data.Coordinates[:1]
			}

			var buf bytes.Buffer
			if err := WriteKMZ(&buf, data); err != nil {
				t.Fatal(err)
			}

			zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			if err != nil {
				t.Fatalf("not a zip archive: %v", err)
			}
			if len(zr.File) != 1 || zr.File[0].Name != "doc.kml" {
				t.Fatalf("archive entries = %v", zr.File)
			}

			got, err := kmz.NewParser().Parse(context.Background(), buf.Bytes())
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got.Name != "path" || got.Geometry != geometry {
				t.Errorf("parsed %q/%q, want path/%s", got.Name, got.Geometry, geometry)
			}
			if len(got.Coordinates) != len(data.Coordinates) {
				t.Fatalf("parsed %d coordinates, want %d", len(got.Coordinates), len(data.Coordinates))
			}
			for i := range data.Coordinates {
				if got.Coordinates[i] != data.Coordinates[i] {
					t.Errorf("coordinate %d = %+v, want %+v", i, got.Coordinates[i], data.Coordinates[i])
				}
			}
		})
	}
}

func TestWriteKMZ_DefaultName(t *testing.T) {
	data := sample()
	data.Name = ""

	var buf bytes.Buffer
	if err := WriteKMZ(&buf, data); err != nil {
		t.Fatal(err)
	}
	got, err := kmz.NewParser().Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Flight Path" {
		t.Errorf("name = %q, want Flight Path", got.Name)
	}
}
