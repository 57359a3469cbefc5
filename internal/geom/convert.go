package geom

import (
	"fmt"
	"math"
	"strings"
)

// Conversion is a collection-conversion mode applied to output geometry types.
type Conversion int

const (
	ConversionNone Conversion = iota
	PromoteToMulti
	ConvertToLinear
	ConvertToCurve
	PromoteToMultiAndConvertToLinear
)

// String returns the option spelling of the mode.
func (c Conversion) String() string {
	switch c {
	case PromoteToMulti:
		return "PROMOTE_TO_MULTI"
	case ConvertToLinear:
		return "CONVERT_TO_LINEAR"
	case ConvertToCurve:
		return "CONVERT_TO_CURVE"
	case PromoteToMultiAndConvertToLinear:
		return "PROMOTE_TO_MULTI_AND_CONVERT_TO_LINEAR"
	default:
		return ""
	}
}

// ParseConversion parses the option spelling of a conversion mode.
func ParseConversion(s string) (Conversion, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range []Conversion{PromoteToMulti, ConvertToLinear, ConvertToCurve, PromoteToMultiAndConvertToLinear} {
		if c.String() == u {
			return c, nil
		}
	}
	return ConversionNone, fmt.Errorf("unknown geometry conversion %q", s)
}

// ConvertType applies a conversion mode to a type.
func ConvertType(mode Conversion, t Type) Type {
	if mode == PromoteToMulti || mode == PromoteToMultiAndConvertToLinear {
		if !t.IsCollection() {
			t = t.Collection()
		}
	}
	switch mode {
	case ConvertToLinear, PromoteToMultiAndConvertToLinear:
		t = t.Linear()
	case ConvertToCurve:
		t = t.Curve()
	}
	return t
}

// ForceTo coerces g to the target type where a lossless or conventional
// conversion exists, and otherwise returns g with only its Z/M layout
// adjusted. The returned value may be g itself. An Unknown target leaves g
// untouched.
//
// Supported conversions:
//   - single part to its multi type, or to GeometryCollection
//   - multi or collection with one part to that part's type
//   - collection whose members are all of one kind to the matching multi type
//   - polygon to line string (exterior ring of a ring-only polygon)
//   - polygons to multi line strings (every ring)
//   - closed line string to polygon
//   - curve types to linear types and back
func ForceTo(g *Geometry, target Type) *Geometry {
	if g == nil || target.Flat() == Unknown || target.Flat() == None {
		return g
	}
	out := forceFlat(g, target.Flat())
	out.Set3D(target.HasZ())
	out.SetMeasured(target.HasM())
	return out
}

func forceFlat(g *Geometry, target Type) *Geometry {
	src := g.Flat()
	if target == src || target == Unknown || target == None {
		return g
	}

	// Curves are linearized first when a linear type is requested
	if src.IsCurve() && !target.IsCurve() {
		g = Linearize(g)
		src = g.Flat()
		if src == target {
			return g
		}
	}

	switch target {
	case GeometryCollection:
		if src.IsCollection() {
			return retype(g, GeometryCollection)
		}
		return wrap(g, GeometryCollection)

	case MultiPoint, MultiLineString, MultiPolygon, MultiCurve, MultiSurface:
		part := target.Single()
		switch {
		case src == part.Flat():
			return wrap(g, target)
		case src == GeometryCollection && allPartsOf(g, part.Flat()):
			return retype(g, target)
		case target == MultiLineString && (src == Polygon || src == MultiPolygon):
			return ringsToLines(g)
		case target == MultiPolygon && src == Polygon:
			return wrap(g, target)
		case target == MultiCurve && (src == LineString || src == CircularString):
			return wrap(g, target)
		case target == MultiCurve && src == MultiLineString:
			return retype(g, target)
		case target == MultiSurface && (src == Polygon || src == CurvePolygon):
			return wrap(g, target)
		case target == MultiSurface && src == MultiPolygon:
			return retype(g, target)
		}

	case Point, LineString, Polygon, CompoundCurve, CurvePolygon:
		if src.IsCollection() && len(g.Parts) == 1 {
			return forceFlat(unwrap(g), target)
		}
		switch {
		case target == LineString && src == Polygon && len(g.Parts) == 1:
			ring := g.Parts[0]
			ring.CRS = g.CRS
			return ring
		case target == Polygon && src == LineString && isClosed(g.Coords) && len(g.Coords) >= 4:
			return &Geometry{Type: Polygon.WithLayout(g.Type), Parts: []*Geometry{g}, CRS: g.CRS}
		case target == CompoundCurve && (src == LineString || src == CircularString):
			return &Geometry{Type: CompoundCurve.WithLayout(g.Type), Parts: []*Geometry{g}, CRS: g.CRS}
		case target == CurvePolygon && src == Polygon:
			return retype(g, CurvePolygon)
		}
	}

	return g
}

func wrap(g *Geometry, t Type) *Geometry {
	out := &Geometry{Type: t.WithLayout(g.Type), Parts: []*Geometry{g}, CRS: g.CRS}
	if g.IsEmpty() && g.Flat() != GeometryCollection {
		out.Parts = nil
	}
	return out
}

func unwrap(g *Geometry) *Geometry {
	p := g.Parts[0]
	if p.CRS == nil {
		p.CRS = g.CRS
	}
	return p
}

func retype(g *Geometry, t Type) *Geometry {
	g.Type = t.WithLayout(g.Type)
	return g
}

func allPartsOf(g *Geometry, t Type) bool {
	for _, p := range g.Parts {
		if p.Flat() != t {
			return false
		}
	}
	return true
}

func ringsToLines(g *Geometry) *Geometry {
	out := &Geometry{Type: MultiLineString.WithLayout(g.Type), CRS: g.CRS}
	polys := []*Geometry{g}
	if g.Flat() == MultiPolygon {
		polys = g.Parts
	}
	for _, p := range polys {
		out.Parts = append(out.Parts, p.Parts...)
	}
	return out
}

func isClosed(c []Coord) bool {
	if len(c) < 2 {
		return false
	}
	a, b := c[0], c[len(c)-1]
	return a.X == b.X && a.Y == b.Y
}

// arcStepDegrees is the maximum angle subtended by one stroked arc segment.
const arcStepDegrees = 4.0

// Linearize returns g with every curve replaced by its linear approximation.
func Linearize(g *Geometry) *Geometry {
	switch g.Flat() {
	case CircularString:
		return &Geometry{Type: LineString.WithLayout(g.Type), Coords: strokeArcs(g.Coords), CRS: g.CRS}
	case CompoundCurve:
		var coords []Coord
		for _, sec := range g.Parts {
			sc := Linearize(sec).Coords
			if len(coords) > 0 && len(sc) > 0 {
				sc = sc[1:]
			}
			coords = append(coords, sc...)
		}
		return &Geometry{Type: LineString.WithLayout(g.Type), Coords: coords, CRS: g.CRS}
	}

	if len(g.Parts) == 0 {
		return g
	}
	out := &Geometry{Type: g.Type.Linear(), CRS: g.CRS, Parts: make([]*Geometry, len(g.Parts))}
	for i, p := range g.Parts {
		out.Parts[i] = Linearize(p)
	}
	return out
}

// strokeArcs approximates a sequence of circular arcs (triples sharing end
// points) with line segments.
func strokeArcs(c []Coord) []Coord {
	if len(c) < 3 {
		return append([]Coord(nil), c...)
	}
	out := []Coord{c[0]}
	for i := 0; i+2 < len(c); i += 2 {
		out = append(out, strokeArc(c[i], c[i+1], c[i+2])...)
	}
	return out
}

// strokeArc returns the points after a along the arc a-b-c, ending at c.
func strokeArc(a, b, c Coord) []Coord {
	// Circle center from the perpendicular bisectors
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-12 {
		return []Coord{b, c} // collinear
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	cx := (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d
	cy := (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d
	r := math.Hypot(a.X-cx, a.Y-cy)

	angA := math.Atan2(a.Y-cy, a.X-cx)
	angC := math.Atan2(c.Y-cy, c.X-cx)

	// Counter-clockwise when the middle point lies on the ccw sweep from a to c
	ccw := d > 0
	sweep := normalizeAngle(angC - angA)
	if !ccw {
		sweep -= 2 * math.Pi
	}

	steps := int(math.Ceil(math.Abs(sweep) / (arcStepDegrees * math.Pi / 180)))
	if steps < 2 {
		steps = 2
	}
	out := make([]Coord, 0, steps)
	for k := 1; k < steps; k++ {
		t := float64(k) / float64(steps)
		ang := angA + sweep*t
		p := Coord{X: cx + r*math.Cos(ang), Y: cy + r*math.Sin(ang)}
		p.Z = a.Z + (c.Z-a.Z)*t
		p.M = a.M + (c.M-a.M)*t
		out = append(out, p)
	}
	return append(out, c)
}

// normalizeAngle maps an angle into [0, 2π).
func normalizeAngle(a float64) float64 {
	for a < 0 {
		a += 2 * math.Pi
	}
	for a >= 2*math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
