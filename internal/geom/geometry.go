// Package geom implements the geometry value type moved through translation,
// together with the operations applied to it on the way: part extraction,
// dimension forcing, densification, simplification, clipping, reprojection
// and type coercion.
//
// Geometries are trees. Point, LineString and CircularString hold coordinates;
// every other type holds child geometries in Parts:
//
//	Polygon                  rings (LineString), exterior first
//	CurvePolygon             rings (LineString, CircularString or CompoundCurve)
//	CompoundCurve            LineString and CircularString sections
//	Multi*, Collection       member geometries
//
// Children always share the Z/M layout of their parent.
package geom

import (
	"math"

	"github.com/beetlebugorg/ogrtranslate/internal/srs"
)

// Coord is a single position. Z and M are meaningful only when the owning
// geometry's type carries them.
type Coord struct {
	X, Y, Z, M float64
}

// Geometry is a geometry value.
//
// A Geometry is owned by exactly one record at a time. Operations in this
// package either mutate the receiver in place or return a new value and leave
// the input to be discarded; they never share subtrees between results.
type Geometry struct {
	Type   Type
	Coords []Coord
	Parts  []*Geometry

	// CRS is the coordinate system attached to this value, if any.
	CRS *srs.CRS
}

// NewPoint returns a 2D point.
func NewPoint(x, y float64) *Geometry {
	return &Geometry{Type: Point, Coords: []Coord{{X: x, Y: y}}}
}

// NewPointZ returns a 3D point.
func NewPointZ(x, y, z float64) *Geometry {
	return &Geometry{Type: Point.WithZ(true), Coords: []Coord{{X: x, Y: y, Z: z}}}
}

// NewEmpty returns an empty geometry of type t.
func NewEmpty(t Type) *Geometry {
	return &Geometry{Type: t}
}

// NewLineString returns a 2D line string.
func NewLineString(coords ...Coord) *Geometry {
	return &Geometry{Type: LineString, Coords: coords}
}

// NewPolygon returns a 2D polygon from rings, exterior first.
func NewPolygon(rings ...[]Coord) *Geometry {
	g := &Geometry{Type: Polygon, Parts: make([]*Geometry, 0, len(rings))}
	for _, r := range rings {
		g.Parts = append(g.Parts, &Geometry{Type: LineString, Coords: r})
	}
	return g
}

// NewCollection returns a container of type t holding parts. The Z/M layout of
// t is propagated to every part.
func NewCollection(t Type, parts ...*Geometry) *Geometry {
	g := &Geometry{Type: t, Parts: parts}
	g.setLayout(t.HasZ(), t.HasM())
	return g
}

// Flat returns the flat type.
func (g *Geometry) Flat() Type { return g.Type.Flat() }

// HasZ reports whether coordinates carry Z.
func (g *Geometry) HasZ() bool { return g.Type.HasZ() }

// HasM reports whether coordinates carry M.
func (g *Geometry) HasM() bool { return g.Type.HasM() }

// IsEmpty reports whether the geometry contains no coordinates.
func (g *Geometry) IsEmpty() bool {
	if g == nil {
		return true
	}
	switch g.Flat() {
	case Point, LineString, CircularString:
		return len(g.Coords) == 0
	}
	for _, p := range g.Parts {
		if !p.IsEmpty() {
			return false
		}
	}
	return true
}

// Dimension returns the topological dimension of the value: 0 for points,
// 1 for curves, 2 for surfaces. For collections it is the highest dimension
// of a member; an empty collection has dimension 0.
func (g *Geometry) Dimension() int {
	if d := g.Type.Dimension(); d >= 0 {
		return d
	}
	dim := 0
	for _, p := range g.Parts {
		if d := p.Dimension(); d > dim {
			dim = d
		}
	}
	return dim
}

// NumCoords returns the number of coordinates in the tree.
func (g *Geometry) NumCoords() int {
	n := len(g.Coords)
	for _, p := range g.Parts {
		n += p.NumCoords()
	}
	return n
}

// Clone returns a deep copy. The CRS descriptor is shared, not copied.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	c := &Geometry{Type: g.Type, CRS: g.CRS}
	if g.Coords != nil {
		c.Coords = append([]Coord(nil), g.Coords...)
	}
	if g.Parts != nil {
		c.Parts = make([]*Geometry, len(g.Parts))
		for i, p := range g.Parts {
			c.Parts[i] = p.Clone()
		}
	}
	return c
}

// Envelope returns the 2D bounding box, or EmptyEnvelope for empty geometries.
func (g *Geometry) Envelope() Envelope {
	env := EmptyEnvelope()
	if g == nil {
		return env
	}
	g.walkCoords(func(c *Coord) {
		env = env.Extend(c.X, c.Y)
	})
	return env
}

// walkCoords calls fn for every coordinate in the tree.
func (g *Geometry) walkCoords(fn func(c *Coord)) {
	for i := range g.Coords {
		fn(&g.Coords[i])
	}
	for _, p := range g.Parts {
		p.walkCoords(fn)
	}
}

// Set3D adds or removes the Z dimension. Removed values are zeroed.
func (g *Geometry) Set3D(z bool) {
	if !z {
		g.walkCoords(func(c *Coord) { c.Z = 0 })
	}
	g.setLayout(z, g.HasM())
}

// SetMeasured adds or removes the M dimension. Removed values are zeroed.
func (g *Geometry) SetMeasured(m bool) {
	if !m {
		g.walkCoords(func(c *Coord) { c.M = 0 })
	}
	g.setLayout(g.HasZ(), m)
}

// SetCoordinateDimension forces the geometry to 2 (XY) or 3 (XYZ) dimensions.
// M values are dropped either way.
func (g *Geometry) SetCoordinateDimension(n int) {
	g.SetMeasured(false)
	g.Set3D(n == 3)
}

func (g *Geometry) setLayout(z, m bool) {
	g.Type = compose(g.Type.Flat(), z, m)
	for _, p := range g.Parts {
		p.setLayout(z, m)
	}
}

// AssignCRS attaches crs to the geometry and all of its parts.
func (g *Geometry) AssignCRS(crs *srs.CRS) {
	g.CRS = crs
	for _, p := range g.Parts {
		p.AssignCRS(crs)
	}
}

// TakeParts removes and returns the members of a collection, leaving it empty.
// For a non-collection it returns nil.
func (g *Geometry) TakeParts() []*Geometry {
	if !g.Type.IsCollection() {
		return nil
	}
	parts := g.Parts
	g.Parts = nil
	for _, p := range parts {
		if p.CRS == nil {
			p.CRS = g.CRS
		}
	}
	return parts
}

// Equal reports whether two geometries have the same type and coordinates
// within tolerance.
func Equal(a, b *Geometry, tolerance float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || len(a.Coords) != len(b.Coords) || len(a.Parts) != len(b.Parts) {
		return false
	}
	for i := range a.Coords {
		ca, cb := a.Coords[i], b.Coords[i]
		if math.Abs(ca.X-cb.X) > tolerance || math.Abs(ca.Y-cb.Y) > tolerance ||
			math.Abs(ca.Z-cb.Z) > tolerance || math.Abs(ca.M-cb.M) > tolerance {
			return false
		}
	}
	for i := range a.Parts {
		if !Equal(a.Parts[i], b.Parts[i], tolerance) {
			return false
		}
	}
	return true
}
