package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/scene"
)

func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

func sample() *scene.SceneData {
	return &scene.SceneData{
		Name:     "path",
		Geometry: "LineString",
		Coordinates: []scene.Coordinate{
			{Lon: -122.42, Lat: 37.77, Alt: 100},
			{Lon: -122.41, Lat: 37.77, Alt: 100},
			{Lon: -122.41, Lat: 37.78, Alt: 100},
		},
		Altitude: 100,
	}
}

func TestScene_RenderAndCurrent(t *testing.T) {
	s := NewScene()
	if st := s.Current(); st.Scene != nil || st.Edits != 0 {
		t.Fatalf("new scene should be empty, got %+v", st)
	}

	data := sample()
	if err := s.Render(context.Background(), data); err != nil {
		t.Fatalf("Render: %v", err)
	}
	data.Coordinates[0].Lon = 0

	st := s.Current()
	if st.Scene == nil || st.Scene.Coordinates[0].Lon != -122.42 {
		t.Errorf("rendered scene should be a copy, got %+v", st.Scene)
	}
	if st.RenderedAt.IsZero() {
		t.Error("RenderedAt should be set")
	}
}

func TestScene_RenderNil(t *testing.T) {
	if err := NewScene().Render(context.Background(), nil); !errors.Is(err, ErrNoScene) {
		t.Errorf("error = %v, want ErrNoScene", err)
	}
}

func TestScene_UpdateKeepsLatestTransform(t *testing.T) {
	s := NewScene()
	first := scene.EditEvent{Target: "cube1", Scale: scene.Vector3{X: 1, Y: 1, Z: 1}}
	second := scene.EditEvent{Target: "cube1", Scale: scene.Vector3{X: 3, Y: 3, Z: 3}}

	_ = s.Update(first)
	_ = s.Update(second)

	st := s.Current()
	if st.Edits != 2 {
		t.Errorf("Edits = %d, want 2", st.Edits)
	}
	if st.Transforms["cube1"] != second {
		t.Errorf("transform = %+v, want %+v", st.Transforms["cube1"], second)
	}
}

func TestScene_ConcurrentUse(t *testing.T) {
	s := NewScene()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Render(context.Background(), sample())
		}()
		go func() {
			defer wg.Done()
			_ = s.Update(scene.EditEvent{Target: "cube1"})
			_ = s.Current()
		}()
	}
	wg.Wait()

	if got := s.Current().Edits; got != 20 {
		t.Errorf("Edits = %d, want 20", got)
	}
}

func TestWriteOBJ_Polyline(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOBJ(&buf, sample(), 0); err != nil {
		t.Fatalf("WriteOBJ: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "v -122.42 37.77 100\n") {
		t.Errorf("missing first vertex:\n%s", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "l 1 2 3") {
		t.Errorf("expected trailing polyline:\n%s", out)
	}
}

func TestWriteOBJ_WithThickness(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOBJ(&buf, sample(), 1); err != nil {
		t.Fatalf("WriteOBJ: %v", err)
	}

	out := buf.String()
	if got := strings.Count(out, "v "); got != 6 {
		t.Errorf("got %d vertices, want 6", got)
	}
	if !strings.Contains(out, "v -122.42 37.77 99.5\n") || !strings.Contains(out, "v -122.42 37.77 100.5\n") {
		t.Errorf("vertices should be offset by half the thickness:\n%s", out)
	}
	for _, face := range []string{"f 1 3 4 2", "f 3 5 6 4"} {
		if !strings.Contains(out, face) {
			t.Errorf("missing face %q:\n%s", face, out)
		}
	}
	if strings.Contains(out, "l ") {
		t.Errorf("thick model should have no polyline:\n%s", out)
	}
}

func TestWriteOBJ_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOBJ(&buf, nil, 0); !errors.Is(err, ErrNoScene) {
		t.Errorf("nil scene error = %v", err)
	}
	if err := WriteOBJ(&buf, sample(), -1); err == nil {
		t.Error("expected error for negative thickness")
	}
}
