package geom

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned bounding box in the coordinate space of the
// geometry it was computed from.
//
// The zero value is a degenerate box at the origin; use EmptyEnvelope for an
// envelope that contains nothing.
type Envelope struct {
	MinX float64 // Western edge
	MinY float64 // Southern edge
	MaxX float64 // Eastern edge
	MaxY float64 // Northern edge
}

// EmptyEnvelope returns an envelope that intersects nothing and becomes the
// first extended point when extended.
func EmptyEnvelope() Envelope {
	return Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether the envelope contains no point.
func (e Envelope) IsEmpty() bool {
	return e.MinX > e.MaxX || e.MinY > e.MaxY
}

// Contains returns true if the point (x, y) is within the envelope.
func (e Envelope) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX &&
		y >= e.MinY && y <= e.MaxY
}

// ContainsEnvelope returns true if other lies entirely inside e.
func (e Envelope) ContainsEnvelope(other Envelope) bool {
	if e.IsEmpty() || other.IsEmpty() {
		return false
	}
	return other.MinX >= e.MinX && other.MaxX <= e.MaxX &&
		other.MinY >= e.MinY && other.MaxY <= e.MaxY
}

// Intersects returns true if the given envelope intersects with this envelope.
func (e Envelope) Intersects(other Envelope) bool {
	if e.IsEmpty() || other.IsEmpty() {
		return false
	}
	return !(other.MaxX < e.MinX ||
		other.MinX > e.MaxX ||
		other.MaxY < e.MinY ||
		other.MinY > e.MaxY)
}

// Expand returns a new Envelope expanded by the given margin in all directions.
func (e Envelope) Expand(margin float64) Envelope {
	return Envelope{
		MinX: e.MinX - margin,
		MaxX: e.MaxX + margin,
		MinY: e.MinY - margin,
		MaxY: e.MaxY + margin,
	}
}

// Extend returns the envelope grown to include (x, y).
func (e Envelope) Extend(x, y float64) Envelope {
	return Envelope{
		MinX: math.Min(e.MinX, x),
		MinY: math.Min(e.MinY, y),
		MaxX: math.Max(e.MaxX, x),
		MaxY: math.Max(e.MaxY, y),
	}
}

// Merge returns the union of two envelopes.
func (e Envelope) Merge(other Envelope) Envelope {
	if other.IsEmpty() {
		return e
	}
	if e.IsEmpty() {
		return other
	}
	return e.Extend(other.MinX, other.MinY).Extend(other.MaxX, other.MaxY)
}

// Polygon returns the envelope as a rectangular polygon.
func (e Envelope) Polygon() *Geometry {
	return NewPolygon([]Coord{
		{X: e.MinX, Y: e.MinY},
		{X: e.MaxX, Y: e.MinY},
		{X: e.MaxX, Y: e.MaxY},
		{X: e.MinX, Y: e.MaxY},
		{X: e.MinX, Y: e.MinY},
	})
}

// Bound converts the envelope to an orb bound.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// rectEpsilon pads zero-extent boxes: R-tree rectangles need positive lengths.
const rectEpsilon = 1e-9

// Rect converts the envelope to an R-tree rectangle.
func (e Envelope) Rect() rtreego.Rect {
	// Create point at southwest corner
	point := rtreego.Point{e.MinX, e.MinY}

	// Create lengths (width, height)
	lengths := []float64{
		math.Max(e.MaxX-e.MinX, rectEpsilon),
		math.Max(e.MaxY-e.MinY, rectEpsilon),
	}

	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}
