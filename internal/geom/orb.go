package geom

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// ToOrb converts g to an orb geometry. Z and M are dropped and curves are
// linearized. Empty geometries convert to nil.
func ToOrb(g *Geometry) orb.Geometry {
	if g == nil || g.IsEmpty() {
		return nil
	}
	if g.Type.IsCurve() {
		g = Linearize(g)
	}

	switch g.Flat() {
	case Point:
		return orb.Point{g.Coords[0].X, g.Coords[0].Y}
	case LineString:
		return toOrbLine(g.Coords)
	case Polygon:
		return toOrbPolygon(g)
	case MultiPoint:
		mp := make(orb.MultiPoint, 0, len(g.Parts))
		for _, p := range g.Parts {
			if len(p.Coords) > 0 {
				mp = append(mp, orb.Point{p.Coords[0].X, p.Coords[0].Y})
			}
		}
		return mp
	case MultiLineString:
		mls := make(orb.MultiLineString, 0, len(g.Parts))
		for _, p := range g.Parts {
			mls = append(mls, toOrbLine(p.Coords))
		}
		return mls
	case MultiPolygon:
		mp := make(orb.MultiPolygon, 0, len(g.Parts))
		for _, p := range g.Parts {
			mp = append(mp, toOrbPolygon(p))
		}
		return mp
	case GeometryCollection:
		c := make(orb.Collection, 0, len(g.Parts))
		for _, p := range g.Parts {
			if og := ToOrb(p); og != nil {
				c = append(c, og)
			}
		}
		return c
	}
	return nil
}

func toOrbLine(coords []Coord) orb.LineString {
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.X, c.Y}
	}
	return ls
}

func toOrbRing(coords []Coord) orb.Ring {
	return orb.Ring(toOrbLine(coords))
}

func toOrbPolygon(g *Geometry) orb.Polygon {
	p := make(orb.Polygon, 0, len(g.Parts))
	for _, r := range g.Parts {
		p = append(p, toOrbRing(r.Coords))
	}
	return p
}

// FromOrb converts an orb geometry to a 2D Geometry.
func FromOrb(og orb.Geometry) (*Geometry, error) {
	switch v := og.(type) {
	case nil:
		return nil, nil
	case orb.Point:
		return NewPoint(v[0], v[1]), nil
	case orb.MultiPoint:
		g := &Geometry{Type: MultiPoint}
		for _, p := range v {
			g.Parts = append(g.Parts, NewPoint(p[0], p[1]))
		}
		return g, nil
	case orb.LineString:
		return &Geometry{Type: LineString, Coords: fromOrbPoints(v)}, nil
	case orb.Ring:
		return &Geometry{Type: LineString, Coords: fromOrbPoints(v)}, nil
	case orb.MultiLineString:
		g := &Geometry{Type: MultiLineString}
		for _, ls := range v {
			g.Parts = append(g.Parts, &Geometry{Type: LineString, Coords: fromOrbPoints(ls)})
		}
		return g, nil
	case orb.Polygon:
		return fromOrbPolygon(v), nil
	case orb.MultiPolygon:
		g := &Geometry{Type: MultiPolygon}
		for _, p := range v {
			g.Parts = append(g.Parts, fromOrbPolygon(p))
		}
		return g, nil
	case orb.Collection:
		g := &Geometry{Type: GeometryCollection}
		for _, m := range v {
			part, err := FromOrb(m)
			if err != nil {
				return nil, err
			}
			if part != nil {
				g.Parts = append(g.Parts, part)
			}
		}
		return g, nil
	case orb.Bound:
		env := Envelope{MinX: v.Min[0], MinY: v.Min[1], MaxX: v.Max[0], MaxY: v.Max[1]}
		return env.Polygon(), nil
	}
	return nil, fmt.Errorf("%w: orb %T", ErrUnsupportedType, og)
}

func fromOrbPoints(pts []orb.Point) []Coord {
	coords := make([]Coord, len(pts))
	for i, p := range pts {
		coords[i] = Coord{X: p[0], Y: p[1]}
	}
	return coords
}

func fromOrbPolygon(p orb.Polygon) *Geometry {
	g := &Geometry{Type: Polygon}
	for _, r := range p {
		g.Parts = append(g.Parts, &Geometry{Type: LineString, Coords: fromOrbPoints(r)})
	}
	return g
}

// ParseWKT parses a 2D Well-Known Text geometry.
func ParseWKT(s string) (*Geometry, error) {
	og, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("parse WKT: %w", err)
	}
	return FromOrb(og)
}
