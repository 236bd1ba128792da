// Package transport connects clients to the edit relay over WebSocket and
// server-sent events.
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/james226/scene-relay/relay"
	"github.com/james226/scene-relay/scene"
)

// Hub is the part of the relay a transport drives.
type Hub interface {
	Connect(ctx context.Context, c *relay.Client) error
	Disconnect(ctx context.Context, c *relay.Client) error
	Edit(ctx context.Context, src *relay.Client, ev scene.EditEvent) error
	EditJSON(ctx context.Context, src *relay.Client, data []byte) error
}

// TokenVerifier resolves a bearer token to a display name.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Options struct {
	// SendBuffer is the per-client outbound queue length. Default: 256
	SendBuffer int

	// Verifier, when set, makes a valid token mandatory.
	Verifier TokenVerifier

	// Strict reports rejected HTTP edits with 422 instead of accepting them silently.
	Strict bool

	// AllowedOrigins limits WebSocket upgrades by Origin header. Empty or "*" allows all.
	AllowedOrigins []string
}

var errUnauthorized = errors.New("authentication required")

const disconnectTimeout = 5 * time.Second

// identify returns the display name for a connecting client.
func identify(r *http.Request, verifier TokenVerifier) (string, error) {
	if verifier == nil {
		return r.URL.Query().Get("name"), nil
	}

	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		return "", errUnauthorized
	}
	name, err := verifier.Verify(token)
	if err != nil {
		return "", errUnauthorized
	}
	return name, nil
}

// disconnect unregisters c without depending on the request context, which
// may already be done.
func disconnect(hub Hub, c *relay.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return hub.Disconnect(ctx, c)
}
