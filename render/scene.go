// Package render holds the default in-memory renderer. It keeps the most
// recently rendered scene and the transforms applied to it so the HTTP
// surface can report what is on screen.
package render

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/scene"
)

// State is a point-in-time copy of the rendered scene.
type State struct {
	Scene      *scene.SceneData           `json:"scene"`
	Transforms map[string]scene.EditEvent `json:"transforms"`
	Edits      int                        `json:"edits"`
	RenderedAt time.Time                  `json:"renderedAt"`
}

// Scene is safe for concurrent use.
type Scene struct {
	mu         sync.RWMutex
	current    *scene.SceneData
	transforms map[string]scene.EditEvent
	edits      int
	renderedAt time.Time
	log        zerolog.Logger
}

func NewScene() *Scene {
	return &Scene{
		transforms: make(map[string]scene.EditEvent),
		log:        logging.WithComponent("renderer"),
	}
}

// Render replaces the displayed scene. Transforms from earlier edits are kept.
func (s *Scene) Render(ctx context.Context, data *scene.SceneData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data == nil {
		return ErrNoScene
	}

	cp := *data
	cp.Coordinates = append([]scene.Coordinate(nil), data.Coordinates...)

	s.mu.Lock()
	s.current = &cp
	s.renderedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("name", cp.Name).
		Str("geometry", cp.Geometry).
		Int("coordinates", len(cp.Coordinates)).
		Msg("scene rendered")
	return nil
}

func (s *Scene) Update(ev scene.EditEvent) error {
	s.mu.Lock()
	s.transforms[ev.Target] = ev
	s.edits++
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the rendered state.
func (s *Scene) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Transforms: make(map[string]scene.EditEvent, len(s.transforms)),
		Edits:      s.edits,
		RenderedAt: s.renderedAt,
	}
	for k, v := range s.transforms {
		st.Transforms[k] = v
	}
	if s.current != nil {
		cp := *s.current
		cp.Coordinates = append([]scene.Coordinate(nil), s.current.Coordinates...)
		st.Scene = &cp
	}
	return st
}
