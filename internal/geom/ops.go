package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// SetZ overwrites the Z value of every coordinate and makes the geometry 3D.
func SetZ(g *Geometry, z float64) {
	g.walkCoords(func(c *Coord) { c.Z = z })
	g.Set3D(true)
}

// Segmentize inserts vertices so that no straight segment is longer than
// maxLength. Z and M are interpolated. Circular arcs are left untouched.
func Segmentize(g *Geometry, maxLength float64) {
	if maxLength <= 0 || g == nil {
		return
	}
	if g.Flat() == LineString {
		g.Coords = densify(g.Coords, maxLength)
		return
	}
	for _, p := range g.Parts {
		Segmentize(p, maxLength)
	}
}

func densify(coords []Coord, maxLength float64) []Coord {
	if len(coords) < 2 {
		return coords
	}
	out := make([]Coord, 0, len(coords))
	for i := 0; i < len(coords)-1; i++ {
		a, b := coords[i], coords[i+1]
		out = append(out, a)

		length := math.Hypot(b.X-a.X, b.Y-a.Y)
		if length <= maxLength {
			continue
		}
		n := int(math.Ceil(length / maxLength))
		for k := 1; k < n; k++ {
			out = append(out, lerp(a, b, float64(k)/float64(n)))
		}
	}
	return append(out, coords[len(coords)-1])
}

// lerp interpolates all four ordinates between a and b.
func lerp(a, b Coord, t float64) Coord {
	return Coord{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
		M: a.M + (b.M-a.M)*t,
	}
}

// SimplifyPreserveTopology returns a simplified copy of g using the
// Douglas-Peucker algorithm with the given tolerance, without breaking the
// validity of its polygons.
//
// Line endpoints are always kept. Rings are simplified one at a time, shells
// before holes, and a simplified ring is only kept when its polygon stays
// valid: no self-intersection, no hole leaving its shell, no overlap with
// the other members of a multipolygon. A ring that would collapse below four
// vertices keeps its original shape, so polygons never lose rings and points
// are never removed. Z and M of kept vertices are preserved.
func SimplifyPreserveTopology(g *Geometry, tolerance float64) *Geometry {
	if g == nil || tolerance <= 0 {
		return g
	}
	s := simplify.DouglasPeucker(tolerance)
	if g.Dimension() != 2 || !IsValidArea(g) {
		return simplifyTree(s, g, false)
	}
	return simplifyArea(s, g)
}

// simplifyArea simplifies the polygons of g ring by ring, reverting every
// ring whose simplification makes the whole geometry invalid.
func simplifyArea(s *simplify.DouglasPeuckerSimplifier, g *Geometry) *Geometry {
	out := g.Clone()
	var rings []*Geometry
	collectRings(s, out, &rings)
	for _, r := range rings {
		orig := r.Coords
		r.Coords = simplifyCoords(s, orig, true)
		if len(r.Coords) == len(orig) {
			continue
		}
		if !IsValidArea(out) {
			r.Coords = orig
		}
	}
	return out
}

// collectRings lists the linear rings of every polygon in g, shells first
// within each polygon. Lines of a mixed collection are not part of the area
// and are simplified on the spot.
func collectRings(s *simplify.DouglasPeuckerSimplifier, g *Geometry, rings *[]*Geometry) {
	switch g.Flat() {
	case Polygon, CurvePolygon:
		for _, r := range g.Parts {
			if r.Flat() == LineString {
				*rings = append(*rings, r)
			}
		}
	case LineString:
		g.Coords = simplifyCoords(s, g.Coords, false)
	case Point, MultiPoint, CircularString, CompoundCurve:
	default:
		for _, p := range g.Parts {
			collectRings(s, p, rings)
		}
	}
}

func simplifyTree(s *simplify.DouglasPeuckerSimplifier, g *Geometry, ring bool) *Geometry {
	out := &Geometry{Type: g.Type, CRS: g.CRS}
	switch g.Flat() {
	case LineString:
		out.Coords = simplifyCoords(s, g.Coords, ring)
		return out
	case Point, MultiPoint, CircularString:
		return g.Clone()
	}

	isPolygon := g.Flat() == Polygon || g.Flat() == CurvePolygon
	out.Parts = make([]*Geometry, len(g.Parts))
	for i, p := range g.Parts {
		out.Parts[i] = simplifyTree(s, p, isPolygon)
	}
	return out
}

func simplifyCoords(s *simplify.DouglasPeuckerSimplifier, coords []Coord, ring bool) []Coord {
	if len(coords) < 3 {
		return append([]Coord(nil), coords...)
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.X, c.Y}
	}
	simplified := s.LineString(ls)

	if ring && len(simplified) < 4 {
		return append([]Coord(nil), coords...)
	}

	// The result is a subsequence of the input; walk both to recover the
	// original vertices with their Z and M.
	out := make([]Coord, 0, len(simplified))
	j := 0
	for _, p := range simplified {
		for j < len(coords) && (coords[j].X != p[0] || coords[j].Y != p[1]) {
			j++
		}
		if j == len(coords) {
			break
		}
		out = append(out, coords[j])
		j++
	}
	return out
}
