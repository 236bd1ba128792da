// Package scene holds the shared 3D scene model: edit events, the
// last-write-wins snapshot the relay keeps, and the parser and renderer
// collaborators the upload path hands archives to.
package scene

import "context"

type Vector3 struct {
	X float64 `json:"x" validate:"finite"`
	Y float64 `json:"y" validate:"finite"`
	Z float64 `json:"z" validate:"finite"`
}

// EditEvent is an incremental transform applied to one named scene object.
type EditEvent struct {
	Target      string  `json:"target" validate:"required"`
	Scale       Vector3 `json:"scale"`
	Rotation    Vector3 `json:"rotation"`
	Translation Vector3 `json:"translation"`
}

type Coordinate struct {
	Lon float64 `json:"lon" validate:"finite,gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"finite,gte=-90,lte=90"`
	Alt float64 `json:"alt" validate:"finite"`
}

// SceneData is what a parser extracts from an uploaded archive.
type SceneData struct {
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Geometry    string       `json:"geometry"`
	Coordinates []Coordinate `json:"coordinates"`
	Altitude    float64      `json:"altitude"`
}

// Parser turns an uploaded archive into scene data.
// Failures caused by the archive itself are returned as *ParseError.
type Parser interface {
	Parse(ctx context.Context, archive []byte) (*SceneData, error)
}

// Renderer is the rendering collaborator. Render replaces the displayed
// scene; Update applies a single accepted edit to it. Implementations are
// called from both the relay loop and HTTP handlers.
type Renderer interface {
	Render(ctx context.Context, data *SceneData) error
	Update(ev EditEvent) error
}
