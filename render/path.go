package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/james226/scene-relay/scene"
)

// ErrWaypointIndex is returned when a path edit names a waypoint that does
// not exist.
var ErrWaypointIndex = errors.New("waypoint index out of range")

const (
	earthRadiusMeters = 6371000.0

	// metersPerDegree converts a simplification tolerance into degrees.
	metersPerDegree = 111000.0
)

// Bounds is the bounding box of a path in degrees.
type Bounds struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// PathStats summarises the rendered path.
type PathStats struct {
	Waypoints      int     `json:"waypoints"`
	DistanceMeters float64 `json:"distanceMeters"`
	DistanceKm     float64 `json:"distanceKm"`
	MinAltitude    float64 `json:"minAltitude"`
	MaxAltitude    float64 `json:"maxAltitude"`
	Bounds         Bounds  `json:"bounds"`
}

// Stats measures coords as a path. Distance is the sum of great-circle
// distances between consecutive waypoints.
func Stats(coords []scene.Coordinate) PathStats {
	st := PathStats{Waypoints: len(coords)}
	if len(coords) == 0 {
		return st
	}

	first := coords[0]
	st.MinAltitude, st.MaxAltitude = first.Alt, first.Alt
	st.Bounds = Bounds{MinLon: first.Lon, MinLat: first.Lat, MaxLon: first.Lon, MaxLat: first.Lat}

	for i, c := range coords {
		st.MinAltitude = math.Min(st.MinAltitude, c.Alt)
		st.MaxAltitude = math.Max(st.MaxAltitude, c.Alt)
		st.Bounds.MinLon = math.Min(st.Bounds.MinLon, c.Lon)
		st.Bounds.MinLat = math.Min(st.Bounds.MinLat, c.Lat)
		st.Bounds.MaxLon = math.Max(st.Bounds.MaxLon, c.Lon)
		st.Bounds.MaxLat = math.Max(st.Bounds.MaxLat, c.Lat)
		if i > 0 {
			st.DistanceMeters += haversineMeters(coords[i-1], c)
		}
	}
	st.DistanceKm = st.DistanceMeters / 1000
	return st
}

func haversineMeters(a, b scene.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Simplify drops waypoints that lie within toleranceMeters of the line
// between their neighbours (Ramer-Douglas-Peucker over lon/lat). The first
// and last waypoints are always kept.
func Simplify(coords []scene.Coordinate, toleranceMeters float64) []scene.Coordinate {
	if len(coords) < 3 {
		return append([]scene.Coordinate(nil), coords...)
	}
	epsilon := toleranceMeters / metersPerDegree

	keep := make([]bool, len(coords))
	keep[0], keep[len(coords)-1] = true, true
	markRDP(coords, 0, len(coords)-1, epsilon, keep)

	out := make([]scene.Coordinate, 0, len(coords))
	for i, c := range coords {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func markRDP(coords []scene.Coordinate, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}
	dmax, index := 0.0, first
	for i := first + 1; i < last; i++ {
		if d := lineDistance(coords[i], coords[first], coords[last]); d > dmax {
			dmax, index = d, i
		}
	}
	if dmax <= epsilon {
		return
	}
	keep[index] = true
	markRDP(coords, first, index, epsilon, keep)
	markRDP(coords, index, last, epsilon, keep)
}

// lineDistance is the planar distance in degrees from p to the line through
// a and b.
func lineDistance(p, a, b scene.Coordinate) float64 {
	dx, dy := b.Lon-a.Lon, b.Lat-a.Lat
	if dx == 0 && dy == 0 {
		return math.Hypot(p.Lon-a.Lon, p.Lat-a.Lat)
	}
	return math.Abs(dy*p.Lon-dx*p.Lat+b.Lon*a.Lat-b.Lat*a.Lon) / math.Hypot(dx, dy)
}

// Path returns a copy of the rendered waypoints.
func (s *Scene) Path() ([]scene.Coordinate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoScene
	}
	return append([]scene.Coordinate(nil), s.current.Coordinates...), nil
}

// InsertWaypoint inserts c before index. index may equal the path length to
// append.
func (s *Scene) InsertWaypoint(index int, c scene.Coordinate) ([]scene.Coordinate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return s.editPath("insert", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		if index < 0 || index > len(path) {
			return nil, fmt.Errorf("%w: %d", ErrWaypointIndex, index)
		}
		path = append(path, scene.Coordinate{})
		copy(path[index+1:], path[index:])
		path[index] = c
		return path, nil
	})
}

// AppendWaypoint adds c after the last waypoint.
func (s *Scene) AppendWaypoint(c scene.Coordinate) ([]scene.Coordinate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return s.editPath("append", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		return append(path, c), nil
	})
}

func (s *Scene) RemoveWaypoint(index int) ([]scene.Coordinate, error) {
	return s.editPath("remove", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		if err := checkIndex(path, index); err != nil {
			return nil, err
		}
		return append(path[:index], path[index+1:]...), nil
	})
}

// MoveWaypoint relocates a waypoint and keeps its altitude.
func (s *Scene) MoveWaypoint(index int, lon, lat float64) ([]scene.Coordinate, error) {
	return s.editPath("move", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		if err := checkIndex(path, index); err != nil {
			return nil, err
		}
		moved := scene.Coordinate{Lon: lon, Lat: lat, Alt: path[index].Alt}
		if err := moved.Validate(); err != nil {
			return nil, err
		}
		path[index] = moved
		return path, nil
	})
}

func (s *Scene) SetAltitude(index int, alt float64) ([]scene.Coordinate, error) {
	return s.editPath("altitude", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		if err := checkIndex(path, index); err != nil {
			return nil, err
		}
		c := path[index]
		c.Alt = alt
		if err := c.Validate(); err != nil {
			return nil, err
		}
		path[index] = c
		return path, nil
	})
}

func (s *Scene) ReversePath() ([]scene.Coordinate, error) {
	return s.editPath("reverse", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		return path, nil
	})
}

// SimplifyPath applies Simplify to the rendered path.
func (s *Scene) SimplifyPath(toleranceMeters float64) ([]scene.Coordinate, error) {
	if toleranceMeters <= 0 || math.IsNaN(toleranceMeters) || math.IsInf(toleranceMeters, 0) {
		return nil, fmt.Errorf("tolerance must be a positive number, got %v", toleranceMeters)
	}
	return s.editPath("simplify", func(path []scene.Coordinate) ([]scene.Coordinate, error) {
		return Simplify(path, toleranceMeters), nil
	})
}

// editPath runs fn on a copy of the rendered path and stores the result.
func (s *Scene) editPath(op string, fn func([]scene.Coordinate) ([]scene.Coordinate, error)) ([]scene.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoScene
	}

	before := len(s.current.Coordinates)
	path, err := fn(append([]scene.Coordinate(nil), s.current.Coordinates...))
	if err != nil {
		return nil, err
	}
	s.current.Coordinates = path
	s.current.Altitude = Stats(path).MaxAltitude
	if s.current.Geometry == "Point" && len(path) > 1 {
		s.current.Geometry = "LineString"
	}

	s.log.Info().
		Str("op", op).
		Int("before", before).
		Int("after", len(path)).
		Msg("path edited")
	return append([]scene.Coordinate(nil), path...), nil
}

func checkIndex(path []scene.Coordinate, index int) error {
	if index < 0 || index >= len(path) {
		return fmt.Errorf("%w: %d", ErrWaypointIndex, index)
	}
	return nil
}
