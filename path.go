package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/render"
	"github.com/james226/scene-relay/scene"
)

const (
	maxPathRequestBytes = 1 << 20

	defaultSimplifyTolerance = 50.0
)

// pathController edits the waypoints of the rendered scene.
type pathController struct {
	renderer *render.Scene
}

type pathResponse struct {
	Waypoints []scene.Coordinate `json:"waypoints"`
	Stats     render.PathStats   `json:"stats"`
}

type insertRequest struct {
	// Index defaults to the end of the path.
	Index *int `json:"index"`
	scene.Coordinate
}

type moveRequest struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type altitudeRequest struct {
	Alt float64 `json:"alt"`
}

type simplifyRequest struct {
	ToleranceMeters float64 `json:"toleranceMeters"`
}

func (p pathController) get(w http.ResponseWriter, r *http.Request) {
	p.respond(w, r, "get")(p.renderer.Path())
}

func (p pathController) insert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Index == nil {
		p.respond(w, r, "append")(p.renderer.AppendWaypoint(req.Coordinate))
		return
	}
	p.respond(w, r, "insert")(p.renderer.InsertWaypoint(*req.Index, req.Coordinate))
}

func (p pathController) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	p.respond(w, r, "move")(p.renderer.MoveWaypoint(waypointIndex(r), req.Lon, req.Lat))
}

func (p pathController) setAltitude(w http.ResponseWriter, r *http.Request) {
	var req altitudeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	p.respond(w, r, "altitude")(p.renderer.SetAltitude(waypointIndex(r), req.Alt))
}

func (p pathController) remove(w http.ResponseWriter, r *http.Request) {
	p.respond(w, r, "remove")(p.renderer.RemoveWaypoint(waypointIndex(r)))
}

func (p pathController) reverse(w http.ResponseWriter, r *http.Request) {
	p.respond(w, r, "reverse")(p.renderer.ReversePath())
}

// simplify accepts an empty body and then uses the default tolerance.
func (p pathController) simplify(w http.ResponseWriter, r *http.Request) {
	req := simplifyRequest{ToleranceMeters: defaultSimplifyTolerance}
	if r.ContentLength != 0 && !decodeRequest(w, r, &req) {
		return
	}
	p.respond(w, r, "simplify")(p.renderer.SimplifyPath(req.ToleranceMeters))
}

// respond maps the outcome of a path operation onto the response.
func (p pathController) respond(w http.ResponseWriter, r *http.Request, op string) func([]scene.Coordinate, error) {
	return func(path []scene.Coordinate, err error) {
		var invalid *scene.InvalidCoordinateError
		switch {
		case err == nil:
			if path == nil {
				path = []scene.Coordinate{}
			}
			writeJSON(w, http.StatusOK, pathResponse{Waypoints: path, Stats: render.Stats(path)})
		case errors.Is(err, render.ErrNoScene), errors.Is(err, render.ErrWaypointIndex):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		default:
			logging.Ctx(r.Context()).Debug().Err(err).Str("op", op).Msg("path edit rejected")
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxPathRequestBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

// waypointIndex reads the route's index variable. The route pattern only
// matches digits, so overflow is the only parse failure and maps to an index
// that never exists.
func waypointIndex(r *http.Request) int {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return -1
	}
	return i
}
