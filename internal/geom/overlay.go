package geom

import (
	"fmt"
	"math"

	sf "github.com/peterstace/simplefeatures/geom"
)

// Overlay operations run on XY geometries through simplefeatures. Z and M
// are dropped on the way in and restored on the way out from the subject.

// toOverlay converts g to a simplefeatures geometry. Curves are linearized.
// With validate set, invalid polygons are rejected.
func toOverlay(g *Geometry, validate bool) (sf.Geometry, error) {
	flat := g
	if g.Type.IsCurve() {
		flat = Linearize(g)
	}
	flat = flat.Clone()
	flat.setLayout(false, false)

	b, err := MarshalWKB(flat)
	if err != nil {
		return sf.Geometry{}, err
	}
	if validate {
		return sf.UnmarshalWKB(b)
	}
	return sf.UnmarshalWKB(b, sf.NoValidate{})
}

// fromOverlay converts an overlay result back to a Geometry.
func fromOverlay(g sf.Geometry) (*Geometry, error) {
	out, err := UnmarshalWKB(g.AsBinary())
	if err != nil {
		return nil, fmt.Errorf("overlay result: %w", err)
	}
	return out, nil
}

// IsValidArea reports whether the polygons of g are valid in the OGC sense:
// closed simple rings, holes inside their shell, no overlapping members.
// Geometries without polygons are always valid.
func IsValidArea(g *Geometry) bool {
	if g == nil || g.IsEmpty() || g.Dimension() != 2 {
		return true
	}
	_, err := toOverlay(g, true)
	return err == nil
}

// UnaryUnion dissolves the members of g into a single geometry with
// non-overlapping parts.
func UnaryUnion(g *Geometry) (*Geometry, error) {
	in, err := toOverlay(asCollection(g), true)
	if err != nil {
		return nil, err
	}
	u, err := sf.UnaryUnion(in)
	if err != nil {
		return nil, err
	}
	out, err := fromOverlay(u)
	if err != nil {
		return nil, err
	}
	out.AssignCRS(g.CRS)
	return out, nil
}

// asCollection re-types a multipolygon as a geometry collection, which may
// hold overlapping members without being invalid.
func asCollection(g *Geometry) *Geometry {
	if g.Flat() != MultiPolygon && g.Flat() != MultiSurface {
		return g
	}
	return &Geometry{Type: GeometryCollection.WithLayout(g.Type), Parts: g.Parts, CRS: g.CRS}
}

// keepHighestDimension drops the lower dimensional members of a mixed
// overlay result, such as the shared edge of two touching polygons.
func keepHighestDimension(prims []*Geometry) []*Geometry {
	dim := 0
	for _, p := range prims {
		dim = max(dim, p.Dimension())
	}
	out := prims[:0]
	for _, p := range prims {
		if p.Dimension() == dim {
			out = append(out, p)
		}
	}
	return out
}

// restoreLayout gives an overlay result the Z and M layout of subject.
// Ordinates are copied from a subject vertex at the same position, or
// interpolated along the nearest subject segment.
func restoreLayout(g, subject *Geometry) {
	z, m := subject.HasZ(), subject.HasM()
	if !z && !m {
		return
	}
	var segs [][2]Coord
	var pts []Coord
	collectSegments(subject, &segs, &pts)
	g.walkCoords(func(c *Coord) {
		c.Z, c.M = nearestOrdinates(c.X, c.Y, segs, pts)
	})
	g.setLayout(z, m)
}

func collectSegments(g *Geometry, segs *[][2]Coord, pts *[]Coord) {
	switch {
	case len(g.Coords) == 1:
		*pts = append(*pts, g.Coords[0])
	case len(g.Coords) > 1:
		for i := 0; i+1 < len(g.Coords); i++ {
			*segs = append(*segs, [2]Coord{g.Coords[i], g.Coords[i+1]})
		}
	}
	for _, p := range g.Parts {
		collectSegments(p, segs, pts)
	}
}

func nearestOrdinates(x, y float64, segs [][2]Coord, pts []Coord) (float64, float64) {
	best := math.Inf(1)
	var z, m float64
	for _, p := range pts {
		if d := math.Hypot(p.X-x, p.Y-y); d < best {
			best, z, m = d, p.Z, p.M
		}
	}
	for _, s := range segs {
		a, b := s[0], s[1]
		dx, dy := b.X-a.X, b.Y-a.Y
		t := 0.0
		if l2 := dx*dx + dy*dy; l2 > 0 {
			t = math.Max(0, math.Min(1, ((x-a.X)*dx+(y-a.Y)*dy)/l2))
		}
		c := lerp(a, b, t)
		if d := math.Hypot(c.X-x, c.Y-y); d < best {
			best, z, m = d, c.Z, c.M
			if d == 0 {
				break
			}
		}
	}
	return z, m
}
