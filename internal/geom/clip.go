package geom

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb/clip"
	sf "github.com/peterstace/simplefeatures/geom"
)

// Clipper intersects geometries with a fixed clip area.
//
// The clip area is any valid Polygon or MultiPolygon, holes and concave
// shells included. Overlapping members are dissolved when the clipper is
// built, so a subject is never clipped twice. Intersections are computed
// in XY; Z and M of the result are taken from the subject.
//
// The polygons of the dissolved area are kept in an R-tree of envelopes so
// a subject is only overlaid with the polygons it can touch.
type Clipper struct {
	geom  *Geometry
	env   Envelope
	area  sf.Geometry
	parts []*clipPart
	index *rtreego.Rtree
}

type clipPart struct {
	idx  int
	poly sf.Geometry
	env  Envelope
	rect bool
}

// Bounds method for rtreego.Spatial interface.
func (p *clipPart) Bounds() rtreego.Rect {
	return p.env.Rect()
}

// NewClipper prepares g as a clip area.
func NewClipper(g *Geometry) (*Clipper, error) {
	if g == nil || g.IsEmpty() {
		return nil, &ErrInvalidGeometry{Reason: "empty clip geometry"}
	}
	if g.Type.IsCurve() {
		g = Linearize(g)
	}
	switch g.Flat() {
	case Polygon, MultiPolygon:
	default:
		return nil, &ErrInvalidGeometry{Type: g.Type, Reason: "clip geometry must be a polygon"}
	}

	dissolved, err := UnaryUnion(g)
	if err != nil {
		return nil, &ErrInvalidGeometry{Type: g.Type, Reason: "unusable clip geometry: " + err.Error()}
	}
	var polys []*Geometry
	for _, p := range appendPrimitives(nil, dissolved) {
		if p.Flat() == Polygon {
			polys = append(polys, p)
		}
	}
	if len(polys) == 0 {
		return nil, &ErrInvalidGeometry{Reason: "empty clip geometry"}
	}

	c := &Clipper{geom: g, env: dissolved.Envelope()}
	if c.area, err = toOverlay(dissolved, false); err != nil {
		return nil, err
	}
	for _, p := range polys {
		part := &clipPart{idx: len(c.parts), env: p.Envelope()}
		part.rect = len(p.Parts) == 1 && isRectangle(p.Parts[0].Coords)
		if part.poly, err = toOverlay(p, false); err != nil {
			return nil, err
		}
		c.parts = append(c.parts, part)
	}

	if len(c.parts) > 1 {
		c.index = rtreego.NewTree(2, 2, 8)
		for _, p := range c.parts {
			c.index.Insert(p)
		}
	}
	return c, nil
}

// Geometry returns the clip area as given.
func (c *Clipper) Geometry() *Geometry {
	return c.geom
}

// Envelope returns the envelope of the clip area.
func (c *Clipper) Envelope() Envelope {
	return c.env
}

// Intersects reports whether g has any point in common with the clip area.
func (c *Clipper) Intersects(g *Geometry) bool {
	if g == nil || g.IsEmpty() {
		return false
	}
	cands := c.candidates(g.Envelope())
	if len(cands) == 0 {
		return false
	}
	subject, err := toOverlay(g, false)
	if err != nil {
		return false
	}
	for _, p := range cands {
		if sf.Intersects(subject, p.poly) {
			return true
		}
	}
	return false
}

// Intersection returns the part of g inside the clip area, or nil when the
// intersection is empty. g is not modified.
//
// A single-part subject split by the clip comes back as the matching multi
// type. Members of a lower dimension than the rest of the result, such as
// edges shared with the clip boundary, are left out.
func (c *Clipper) Intersection(g *Geometry) (*Geometry, error) {
	if g == nil || g.IsEmpty() {
		return nil, nil
	}
	cands := c.candidates(g.Envelope())
	if len(cands) == 0 {
		return nil, nil
	}

	// 2D points and lines against a single rectangle go through orb
	if len(cands) == 1 && cands[0].rect && g.Dimension() < 2 &&
		!g.HasZ() && !g.HasM() && !g.Type.IsCurve() && g.Flat() != GeometryCollection {
		return c.clipRect(g, cands[0]), nil
	}

	subject, err := toOverlay(g, false)
	if err != nil {
		return nil, err
	}
	clipArea := c.area
	if len(cands) == 1 {
		clipArea = cands[0].poly
	}
	res, err := sf.Intersection(subject, clipArea)
	if err != nil {
		return nil, err
	}
	if res.IsEmpty() {
		return nil, nil
	}
	out, err := fromOverlay(res)
	if err != nil {
		return nil, err
	}

	prims := keepHighestDimension(appendPrimitives(nil, out))
	for _, p := range prims {
		restoreLayout(p, g)
	}
	orig := g.Type
	if orig.IsCurve() {
		orig = orig.Linear()
	}
	clipped := collect(orig, prims)
	if clipped == nil {
		return nil, nil
	}
	clipped.AssignCRS(g.CRS)
	return clipped, nil
}

func (c *Clipper) candidates(env Envelope) []*clipPart {
	if env.IsEmpty() || !c.env.Intersects(env) {
		return nil
	}
	if c.index == nil {
		if c.parts[0].env.Intersects(env) {
			return c.parts
		}
		return nil
	}
	found := c.index.SearchIntersect(env.Rect())
	out := make([]*clipPart, 0, len(found))
	for _, s := range found {
		out = append(out, s.(*clipPart))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].idx < out[j].idx })
	return out
}

func (c *Clipper) clipRect(g *Geometry, part *clipPart) *Geometry {
	res := clip.Geometry(part.env.Bound(), ToOrb(g))
	if res == nil {
		return nil
	}
	out, err := FromOrb(res)
	if err != nil || out == nil || out.IsEmpty() {
		return nil
	}
	// orb returns multi types for split lines; keep single parts single
	out = collect(g.Type, []*Geometry{out})
	if out == nil {
		return nil
	}
	out.AssignCRS(g.CRS)
	return out
}

func isRectangle(ring []Coord) bool {
	if len(ring) != 5 {
		return false
	}
	for i := 0; i < 4; i++ {
		a, b := ring[i], ring[i+1]
		if a.X != b.X && a.Y != b.Y {
			return false
		}
	}
	return true
}

// collect assembles clipped pieces. A single primitive is returned as is when
// the input was single-part; otherwise primitives of one kind form the
// matching multi type and mixed kinds form a collection.
func collect(orig Type, pieces []*Geometry) *Geometry {
	var prims []*Geometry
	for _, p := range pieces {
		prims = appendPrimitives(prims, p)
	}
	if len(prims) == 0 {
		return nil
	}
	if len(prims) == 1 && !orig.IsCollection() {
		return prims[0]
	}

	kind := prims[0].Flat()
	for _, p := range prims[1:] {
		if p.Flat() != kind {
			kind = Unknown
			break
		}
	}
	t := GeometryCollection
	if kind != Unknown && orig.Flat() != GeometryCollection {
		t = kind.Collection().Flat()
	}
	return &Geometry{Type: t.WithLayout(orig), Parts: prims}
}

func appendPrimitives(dst []*Geometry, g *Geometry) []*Geometry {
	if g == nil || g.IsEmpty() {
		return dst
	}
	if g.Type.IsCollection() {
		for _, p := range g.Parts {
			dst = appendPrimitives(dst, p)
		}
		return dst
	}
	return append(dst, g)
}
