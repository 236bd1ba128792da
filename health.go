package main

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

type clientCounter interface {
	ClientCount(ctx context.Context) (int, error)
}

type healthController struct {
	relay clientCounter
}

func (c healthController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	n, err := c.relay.ClientCount(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"clients": n,
	})
}
