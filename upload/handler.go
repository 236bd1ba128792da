// Package upload accepts KMZ archives over HTTP and hands them to the parser
// and renderer collaborators.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/metrics"
	"github.com/james226/scene-relay/scene"
)

const (
	// DefaultMaxBytes bounds an upload when no limit is configured.
	DefaultMaxBytes = 32 << 20

	formField      = "file"
	successMessage = "KMZ file processed and rendered."
)

var errMissingArchive = errors.New("no archive in request body")

type Handler struct {
	parser   scene.Parser
	renderer scene.Renderer
	maxBytes int64
}

func NewHandler(parser scene.Parser, renderer scene.Renderer, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Handler{
		parser:   parser,
		renderer: renderer,
		maxBytes: maxBytes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.Ctx(r.Context())

	archive, err := h.readArchive(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.UploadsTotal.WithLabelValues("too_large").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("archive exceeds %d bytes", h.maxBytes))
			return
		}
		metrics.UploadsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.parser.Parse(r.Context(), archive)
	if err != nil {
		var parseErr *scene.ParseError
		if errors.As(err, &parseErr) {
			metrics.UploadsTotal.WithLabelValues("parse_error").Inc()
			logger.Info().Err(err).Int("bytes", len(archive)).Msg("rejected upload")
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		metrics.UploadsTotal.WithLabelValues("parser_failed").Inc()
		logger.Error().Err(err).Msg("parser failed")
		writeError(w, http.StatusInternalServerError, "failed to parse archive")
		return
	}

	if err := h.renderer.Render(r.Context(), data); err != nil {
		metrics.UploadsTotal.WithLabelValues("render_error").Inc()
		logger.Error().Err(err).Str("name", data.Name).Msg("render failed")
		writeError(w, http.StatusBadGateway, "render failed: "+err.Error())
		return
	}

	metrics.UploadsTotal.WithLabelValues("rendered").Inc()
	logger.Info().
		Str("name", data.Name).
		Str("geometry", data.Geometry).
		Int("coordinates", len(data.Coordinates)).
		Msg("archive rendered")
	writeJSON(w, http.StatusOK, map[string]string{"message": successMessage})
}

// readArchive returns the raw request body, or the "file" part of a
// multipart form.
func (h *Handler) readArchive(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		archive, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		if len(archive) == 0 {
			return nil, errMissingArchive
		}
		return archive, nil
	}

	r.Body = body
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("read multipart form: %w", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, _, err := r.FormFile(formField)
	if err != nil {
		return nil, fmt.Errorf("missing %q form field", formField)
	}
	defer file.Close()

	archive, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(archive) == 0 {
		return nil, errMissingArchive
	}
	return archive, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
