package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/render"
	"github.com/james226/scene-relay/scene"
)

type snapshotter interface {
	Snapshot(ctx context.Context) ([]scene.EditEvent, error)
}

// sceneController reports what the renderer currently shows together with
// the relay's last-write-wins snapshot.
type sceneController struct {
	relay    snapshotter
	renderer *render.Scene
}

func (c sceneController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	snapshot, err := c.relay.Snapshot(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "relay unavailable"})
		return
	}
	if snapshot == nil {
		snapshot = []scene.EditEvent{}
	}

	current := c.renderer.Current()
	body := map[string]interface{}{
		"rendered": current,
		"snapshot": snapshot,
	}
	if current.Scene != nil {
		body["stats"] = render.Stats(current.Scene.Coordinates)
	}
	writeJSON(w, http.StatusOK, body)
}

// serveOBJ exports the rendered scene as a Wavefront OBJ model. The optional
// thickness query parameter extrudes the path into quads.
func (c sceneController) serveOBJ(w http.ResponseWriter, r *http.Request) {
	thickness := 0.0
	if v := r.URL.Query().Get("thickness"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "thickness must be a number"})
			return
		}
		thickness = t
	}

	c.export(w, r, "model/obj", "", func(out io.Writer, data *scene.SceneData) error {
		return render.WriteOBJ(out, data, thickness)
	})
}

func (c sceneController) serveGeoJSON(w http.ResponseWriter, r *http.Request) {
	c.export(w, r, "application/geo+json", "", render.WriteGeoJSON)
}

func (c sceneController) serveCSV(w http.ResponseWriter, r *http.Request) {
	c.export(w, r, "text/csv", "waypoints.csv", render.WriteCSV)
}

func (c sceneController) serveKMZ(w http.ResponseWriter, r *http.Request) {
	c.export(w, r, "application/vnd.google-earth.kmz", "flight_path.kmz", render.WriteKMZ)
}

// export renders the current scene into memory first so a failed export can
// still be reported as JSON.
func (c sceneController) export(w http.ResponseWriter, r *http.Request, contentType, filename string, write func(io.Writer, *scene.SceneData) error) {
	var buf bytes.Buffer
	err := write(&buf, c.renderer.Current().Scene)
	switch {
	case errors.Is(err, render.ErrNoScene):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	if _, err := buf.WriteTo(w); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Str("content_type", contentType).Msg("failed to write export")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
