package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/relay"
	"github.com/james226/scene-relay/scene"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebSocket serves the bidirectional edit channel.
type WebSocket struct {
	hub      Hub
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWebSocket(hub Hub, opts Options) *WebSocket {
	return &WebSocket{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		log: logging.WithComponent("websocket"),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (h *WebSocket) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	name, err := identify(req, h.opts.Verifier)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(h.opts.SendBuffer)
	client := relay.NewClient(name, c)
	if err := h.hub.Connect(req.Context(), client); err != nil {
		h.log.Warn().Err(err).Msg("relay refused connection")
		// The event may still have been queued; make sure it is undone.
		_ = disconnect(h.hub, client)
		c.Close()
		_ = ws.Close()
		return
	}

	go h.writePump(ws, c)
	h.readPump(req, ws, c, client)
}

// readPump feeds inbound messages to the relay until the connection fails.
func (h *WebSocket) readPump(req *http.Request, ws *websocket.Conn, c *conn, client *relay.Client) {
	defer func() {
		if err := disconnect(h.hub, client); err != nil {
			h.log.Warn().Err(err).Str("client_id", client.ID()).Msg("disconnect not processed")
		}
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := req.Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("client_id", client.ID()).Msg("websocket read error")
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			msg.Type = relay.MessageTypeEdit
			msg.Data = nil
		}

		switch msg.Type {
		case relay.MessageTypeEdit:
			err := h.hub.EditJSON(ctx, client, msg.Data)
			var invalid *scene.InvalidEventError
			if err != nil && !errors.As(err, &invalid) {
				h.log.Warn().Err(err).Str("client_id", client.ID()).Msg("edit not processed")
				return
			}
		case relay.MessageTypePing:
			_ = c.Send(relay.Message{Type: relay.MessageTypePong})
		default:
			h.log.Debug().Str("type", msg.Type).Str("client_id", client.ID()).Msg("ignoring unknown message type")
		}
	}
}

// writePump is the only writer on ws.
func (h *WebSocket) writePump(ws *websocket.Conn, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				h.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
