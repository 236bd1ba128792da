package main

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/james226/scene-relay/config"
	"github.com/james226/scene-relay/middleware"
	"github.com/james226/scene-relay/relay"
	"github.com/james226/scene-relay/render"
	"github.com/james226/scene-relay/scene"
	"github.com/james226/scene-relay/transport"
	"github.com/james226/scene-relay/upload"
)

type routerDeps struct {
	cfg      *config.Config
	relay    *relay.Relay
	renderer *render.Scene
	parser   scene.Parser
	verifier transport.TokenVerifier
}

func newRouter(d routerDeps) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Metrics)

	topts := transport.Options{
		SendBuffer:     d.cfg.Relay.SendBuffer,
		Verifier:       d.verifier,
		Strict:         d.cfg.Relay.Strict,
		AllowedOrigins: d.cfg.Server.CORSOrigins,
	}
	stream := transport.NewEventStream(d.relay, topts)
	scenes := sceneController{relay: d.relay, renderer: d.renderer}

	var uploads http.Handler = upload.NewHandler(d.parser, d.renderer, d.cfg.Server.UploadMaxBytes)
	if d.cfg.Server.UploadRateLimit > 0 {
		uploads = httprate.LimitByIP(d.cfg.Server.UploadRateLimit, d.cfg.Server.UploadRateWindow)(uploads)
	}

	router.Handle("/health", healthController{relay: d.relay}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Handle("/upload", uploads).Methods(http.MethodPost)
	router.Handle("/ws", transport.NewWebSocket(d.relay, topts)).Methods(http.MethodGet)
	router.Handle("/events", stream).Methods(http.MethodGet)
	router.HandleFunc("/edits", stream.ServeEdit).Methods(http.MethodPost)
	router.Handle("/scene", scenes).Methods(http.MethodGet)
	router.HandleFunc("/scene.obj", scenes.serveOBJ).Methods(http.MethodGet)
	router.HandleFunc("/scene.geojson", scenes.serveGeoJSON).Methods(http.MethodGet)
	router.HandleFunc("/scene.csv", scenes.serveCSV).Methods(http.MethodGet)
	router.HandleFunc("/scene.kmz", scenes.serveKMZ).Methods(http.MethodGet)

	path := pathController{renderer: d.renderer}
	waypoint := "/scene/path/waypoints/{index:[0-9]+}"
	router.HandleFunc("/scene/path", path.get).Methods(http.MethodGet)
	router.HandleFunc("/scene/path/waypoints", path.insert).Methods(http.MethodPost)
	router.HandleFunc(waypoint, path.move).Methods(http.MethodPut)
	router.HandleFunc(waypoint, path.remove).Methods(http.MethodDelete)
	router.HandleFunc(waypoint+"/altitude", path.setAltitude).Methods(http.MethodPut)
	router.HandleFunc("/scene/path/reverse", path.reverse).Methods(http.MethodPost)
	router.HandleFunc("/scene/path/simplify", path.simplify).Methods(http.MethodPost)

	if dir := d.cfg.Server.StaticDir; dir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(dir))).Methods(http.MethodGet, http.MethodHead)
	}

	return cors.New(cors.Options{
		AllowedOrigins: d.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         86400,
	}).Handler(router)
}
