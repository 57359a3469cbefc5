package geom

import (
	"fmt"
	"math"
)

// ValidateCoordinate validates a single geographic coordinate pair.
func ValidateCoordinate(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return fmt.Errorf("coordinate (%v, %v) is not a number", lon, lat)
	}
	if lat < -90.0 || lat > 90.0 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	if lon < -180.0 || lon > 180.0 {
		return fmt.Errorf("longitude %v out of range", lon)
	}
	return nil
}

// Validate checks the structural rules of a geometry: vertex counts per type,
// ring closure and finite ordinates. Empty geometries are valid.
func Validate(g *Geometry) error {
	if g == nil {
		return &ErrInvalidGeometry{Reason: "geometry is nil"}
	}
	if g.IsEmpty() {
		return nil
	}

	switch g.Flat() {
	case Point:
		if len(g.Coords) != 1 {
			return &ErrInvalidGeometry{Type: g.Type, Reason: fmt.Sprintf("point has %d coordinates", len(g.Coords))}
		}
	case LineString:
		if len(g.Coords) < 2 {
			return &ErrInvalidGeometry{Type: g.Type, Reason: "line string needs at least 2 coordinates"}
		}
	case CircularString:
		if len(g.Coords) < 3 || len(g.Coords)%2 == 0 {
			return &ErrInvalidGeometry{Type: g.Type, Reason: "circular string needs an odd count of at least 3 coordinates"}
		}
	case Polygon:
		for i, r := range g.Parts {
			if len(r.Coords) < 4 {
				return &ErrInvalidGeometry{Type: g.Type, Reason: fmt.Sprintf("ring %d has fewer than 4 coordinates", i)}
			}
			if !isClosed(r.Coords) {
				return &ErrInvalidGeometry{Type: g.Type, Reason: fmt.Sprintf("ring %d is not closed", i)}
			}
		}
	}

	for i, c := range g.Coords {
		if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
			return &ErrInvalidGeometry{Type: g.Type, Reason: fmt.Sprintf("coordinate %d is not finite", i)}
		}
	}

	if g.Flat() == Polygon {
		return nil
	}
	for _, p := range g.Parts {
		if err := Validate(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateGeographic checks that every coordinate is a valid longitude and
// latitude pair.
func ValidateGeographic(g *Geometry) error {
	var err error
	i := 0
	g.walkCoords(func(c *Coord) {
		if err == nil {
			if e := ValidateCoordinate(c.X, c.Y); e != nil {
				err = &ErrInvalidGeometry{Type: g.Type, Reason: fmt.Sprintf("coordinate %d invalid: %v", i, e)}
			}
		}
		i++
	})
	return err
}
