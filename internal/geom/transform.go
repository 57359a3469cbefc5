package geom

import (
	"math"

	"github.com/beetlebugorg/ogrtranslate/internal/srs"
)

// Transform reprojects g in place with ct and attaches ct's target CRS.
// On failure the coordinates of g are unspecified and g must be discarded.
func Transform(g *Geometry, ct srs.Transformer) error {
	n := g.NumCoords()
	if n > 0 {
		xs := make([]float64, 0, n)
		ys := make([]float64, 0, n)
		var zs []float64
		if g.HasZ() {
			zs = make([]float64, 0, n)
		}
		g.walkCoords(func(c *Coord) {
			xs = append(xs, c.X)
			ys = append(ys, c.Y)
			if zs != nil {
				zs = append(zs, c.Z)
			}
		})

		if err := ct.Transform(xs, ys, zs); err != nil {
			return &ErrTransformFailed{Points: n, Err: err}
		}

		i := 0
		g.walkCoords(func(c *Coord) {
			c.X, c.Y = xs[i], ys[i]
			if zs != nil {
				c.Z = zs[i]
			}
			i++
		})
	}
	if t := ct.Target(); t != nil {
		g.AssignCRS(t)
	}
	return nil
}

// WrapOptions controls splitting of geometries at the antimeridian.
type WrapOptions struct {
	Enabled bool
	// Offset in degrees: a segment whose ends lie within Offset of +180 and
	// -180 respectively is taken to cross the antimeridian.
	Offset float64
}

// DefaultDatelineOffset is the crossing detection offset in degrees.
const DefaultDatelineOffset = 10

// WrapDateline returns g with every part crossing the antimeridian split into
// pieces within [-180, 180] longitude. Points outside that range are
// normalized. g is returned unchanged when nothing crosses.
func WrapDateline(g *Geometry, opts WrapOptions) *Geometry {
	if g == nil || g.IsEmpty() || !opts.Enabled {
		return g
	}
	offset := opts.Offset
	if offset <= 0 {
		offset = DefaultDatelineOffset
	}

	if g.Type.IsCurve() {
		g = Linearize(g)
	}

	switch g.Flat() {
	case Point:
		out := g.Clone()
		out.Coords[0].X = normalizeLon(out.Coords[0].X)
		return out
	case LineString, Polygon:
		if !needsWrap(g, offset) {
			return g
		}
		out := collect(g.Type, splitAtDateline(g, offset))
		if out == nil {
			return g
		}
		out.AssignCRS(g.CRS)
		return out
	}

	var pieces []*Geometry
	changed := false
	for _, p := range g.Parts {
		w := WrapDateline(p, opts)
		if w != p {
			changed = true
		}
		pieces = append(pieces, w)
	}
	if !changed {
		return g
	}
	out := collect(g.Type, pieces)
	if out == nil {
		return g
	}
	out.AssignCRS(g.CRS)
	return out
}

func normalizeLon(x float64) float64 {
	for x > 180 {
		x -= 360
	}
	for x < -180 {
		x += 360
	}
	return x
}

func needsWrap(g *Geometry, offset float64) bool {
	found := false
	check := func(coords []Coord) {
		for i, c := range coords {
			if c.X > 180 || c.X < -180 {
				found = true
				return
			}
			if i > 0 && crossesDateline(coords[i-1].X, c.X, offset) {
				found = true
				return
			}
		}
	}
	if g.Flat() == LineString {
		check(g.Coords)
		return found
	}
	for _, r := range g.Parts {
		check(r.Coords)
		if found {
			break
		}
	}
	return found
}

func crossesDateline(a, b, offset float64) bool {
	return (a > 180-offset && b < -180+offset) || (a < -180+offset && b > 180-offset)
}

// unwrapLon makes a coordinate sequence continuous in longitude by shifting
// points after a dateline jump by a multiple of 360 degrees.
func unwrapLon(coords []Coord, offset float64) []Coord {
	out := append([]Coord(nil), coords...)
	shift := 0.0
	for i := 1; i < len(coords); i++ {
		a, b := coords[i-1].X, coords[i].X
		if crossesDateline(a, b, offset) {
			if a > b {
				shift += 360
			} else {
				shift -= 360
			}
		}
		out[i].X = b + shift
	}
	return out
}

// splitAtDateline unwraps a line or polygon and cuts it into the 360 degree
// wide bands it covers, shifting each piece back into [-180, 180].
func splitAtDateline(g *Geometry, offset float64) []*Geometry {
	var u *Geometry
	if g.Flat() == LineString {
		u = &Geometry{Type: g.Type, Coords: unwrapLon(g.Coords, offset)}
	} else {
		u = &Geometry{Type: g.Type}
		var ref float64
		for i, r := range g.Parts {
			coords := unwrapLon(r.Coords, offset)
			if i == 0 && len(coords) > 0 {
				ref = coords[0].X
			} else if len(coords) > 0 {
				// holes follow the exterior's band
				d := math.Round((ref-coords[0].X)/360) * 360
				for k := range coords {
					coords[k].X += d
				}
			}
			u.Parts = append(u.Parts, &Geometry{Type: r.Type, Coords: coords})
		}
	}

	env := u.Envelope()
	lo := int(math.Floor((env.MinX + 180) / 360))
	hi := int(math.Floor((env.MaxX + 180) / 360))
	minY, maxY := env.MinY-1, env.MaxY+1

	var pieces []*Geometry
	for k := lo; k <= hi; k++ {
		band := Envelope{MinX: -180 + 360*float64(k), MinY: minY, MaxX: 180 + 360*float64(k), MaxY: maxY}
		part := &clipPart{ring: band.Polygon().Parts[0].Coords, env: band}
		if r := clipToPart(u, part); r != nil {
			shift := -360 * float64(k)
			r.walkCoords(func(c *Coord) { c.X += shift })
			pieces = append(pieces, r)
		}
	}
	return pieces
}
