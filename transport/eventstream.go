package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/relay"
	"github.com/james226/scene-relay/scene"
)

const maxEditBody = 64 * 1024

// EventStream serves the relay's outbound messages as server-sent events and
// accepts edits from stream clients over plain HTTP.
type EventStream struct {
	hub     Hub
	opts    Options
	clients sync.Map // client id -> *relay.Client
	log     zerolog.Logger
}

func NewEventStream(hub Hub, opts Options) *EventStream {
	return &EventStream{
		hub:  hub,
		opts: opts,
		log:  logging.WithComponent("eventstream"),
	}
}

func (s *EventStream) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		http.Error(rw, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	name, err := identify(req, s.opts.Verifier)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusUnauthorized)
		return
	}

	c := newConn(s.opts.SendBuffer)
	client := relay.NewClient(name, c)
	if err := s.hub.Connect(req.Context(), client); err != nil {
		_ = disconnect(s.hub, client)
		c.Close()
		http.Error(rw, "relay unavailable", http.StatusServiceUnavailable)
		return
	}
	s.clients.Store(client.ID(), client)

	defer func() {
		s.clients.Delete(client.ID())
		if err := disconnect(s.hub, client); err != nil {
			s.log.Warn().Err(err).Str("client_id", client.ID()).Msg("disconnect not processed")
		}
	}()

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.WriteHeader(http.StatusOK)
	flusher.Flush()

	notify := req.Context().Done()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				s.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
				continue
			}
			if _, err := fmt.Fprintf(rw, "event: %s\ndata: %s\n\n", msg.Type, payload); err != nil {
				return
			}
			flusher.Flush()

		case <-notify:
			return
		}
	}
}

// ServeEdit accepts one edit as a JSON body. The optional client query
// parameter names the stream client that sent it, which is then excluded
// from the broadcast.
func (s *EventStream) ServeEdit(rw http.ResponseWriter, req *http.Request) {
	var src *relay.Client
	if id := req.URL.Query().Get("client"); id != "" {
		v, ok := s.clients.Load(id)
		if !ok {
			writeJSON(rw, http.StatusNotFound, map[string]string{"error": "unknown client"})
			return
		}
		src = v.(*relay.Client)
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, req.Body, maxEditBody))
	if err != nil {
		writeJSON(rw, http.StatusRequestEntityTooLarge, map[string]string{"error": "edit too large"})
		return
	}

	var ev scene.EditEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "malformed edit payload"})
		return
	}

	err = s.hub.Edit(req.Context(), src, ev)
	var invalid *scene.InvalidEventError
	switch {
	case err == nil:
	case errors.As(err, &invalid):
		if s.opts.Strict {
			writeJSON(rw, http.StatusUnprocessableEntity, map[string]string{"error": invalid.Error()})
			return
		}
	default:
		logging.Ctx(req.Context()).Warn().Err(err).Msg("edit not processed")
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "relay unavailable"})
		return
	}

	writeJSON(rw, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
