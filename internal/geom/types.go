package geom

import (
	"fmt"
	"strings"
)

// Type is a geometry type code. Values follow ISO WKB numbering: the flat
// type plus 1000 for Z, 2000 for M and 3000 for ZM.
type Type uint32

const (
	Unknown            Type = 0
	Point              Type = 1
	LineString         Type = 2
	Polygon            Type = 3
	MultiPoint         Type = 4
	MultiLineString    Type = 5
	MultiPolygon       Type = 6
	GeometryCollection Type = 7
	CircularString     Type = 8
	CompoundCurve      Type = 9
	CurvePolygon       Type = 10
	MultiCurve         Type = 11
	MultiSurface       Type = 12

	// None marks a layer without geometry.
	None Type = 100
)

const (
	zOffset = 1000
	mOffset = 2000
)

// Flat returns the type without Z/M flags.
func (t Type) Flat() Type {
	if t == None {
		return None
	}
	return t % 1000
}

// HasZ reports whether the type carries Z coordinates.
func (t Type) HasZ() bool {
	k := t / 1000
	return k == 1 || k == 3
}

// HasM reports whether the type carries M values.
func (t Type) HasM() bool {
	k := t / 1000
	return k == 2 || k == 3
}

// WithZ returns the type with the Z flag set or cleared.
func (t Type) WithZ(z bool) Type {
	if t == None {
		return None
	}
	return compose(t.Flat(), z, t.HasM())
}

// WithM returns the type with the M flag set or cleared.
func (t Type) WithM(m bool) Type {
	if t == None {
		return None
	}
	return compose(t.Flat(), t.HasZ(), m)
}

// WithLayout returns the flat type of t combined with the Z/M flags of other.
func (t Type) WithLayout(other Type) Type {
	if t == None {
		return None
	}
	return compose(t.Flat(), other.HasZ(), other.HasM())
}

func compose(flat Type, z, m bool) Type {
	switch {
	case z && m:
		return flat + zOffset + mOffset
	case z:
		return flat + zOffset
	case m:
		return flat + mOffset
	}
	return flat
}

// IsCollection reports whether the flat type is a multi-part type.
func (t Type) IsCollection() bool {
	switch t.Flat() {
	case MultiPoint, MultiLineString, MultiPolygon, GeometryCollection, MultiCurve, MultiSurface:
		return true
	}
	return false
}

// IsCurve reports whether the flat type is a curve-bearing type.
func (t Type) IsCurve() bool {
	switch t.Flat() {
	case CircularString, CompoundCurve, CurvePolygon, MultiCurve, MultiSurface:
		return true
	}
	return false
}

// Dimension returns the topological dimension of the type: 0 for points,
// 1 for curves, 2 for surfaces and -1 when unknown.
func (t Type) Dimension() int {
	switch t.Flat() {
	case Point, MultiPoint:
		return 0
	case LineString, MultiLineString, CircularString, CompoundCurve, MultiCurve:
		return 1
	case Polygon, MultiPolygon, CurvePolygon, MultiSurface:
		return 2
	}
	return -1
}

// Collection returns the multi-part type holding parts of type t.
func (t Type) Collection() Type {
	var flat Type
	switch t.Flat() {
	case Point:
		flat = MultiPoint
	case LineString:
		flat = MultiLineString
	case Polygon:
		flat = MultiPolygon
	case CircularString, CompoundCurve:
		flat = MultiCurve
	case CurvePolygon:
		flat = MultiSurface
	case Unknown:
		return t
	default:
		if t.IsCollection() {
			return t
		}
		flat = GeometryCollection
	}
	return flat.WithLayout(t)
}

// Single returns the part type of a multi-part type. GeometryCollection maps to
// Unknown. Single-part types are returned unchanged.
func (t Type) Single() Type {
	var flat Type
	switch t.Flat() {
	case MultiPoint:
		flat = Point
	case MultiLineString:
		flat = LineString
	case MultiPolygon:
		flat = Polygon
	case MultiCurve:
		flat = CompoundCurve
	case MultiSurface:
		flat = CurvePolygon
	case GeometryCollection:
		flat = Unknown
	default:
		return t
	}
	return flat.WithLayout(t)
}

// Linear returns the linear equivalent of a curve type.
func (t Type) Linear() Type {
	var flat Type
	switch t.Flat() {
	case CircularString, CompoundCurve:
		flat = LineString
	case CurvePolygon:
		flat = Polygon
	case MultiCurve:
		flat = MultiLineString
	case MultiSurface:
		flat = MultiPolygon
	default:
		return t
	}
	return flat.WithLayout(t)
}

// Curve returns the curve equivalent of a linear type.
func (t Type) Curve() Type {
	var flat Type
	switch t.Flat() {
	case LineString:
		flat = CompoundCurve
	case Polygon:
		flat = CurvePolygon
	case MultiLineString:
		flat = MultiCurve
	case MultiPolygon:
		flat = MultiSurface
	default:
		return t
	}
	return flat.WithLayout(t)
}

var typeNames = map[Type]string{
	Unknown:            "GEOMETRY",
	Point:              "POINT",
	LineString:         "LINESTRING",
	Polygon:            "POLYGON",
	MultiPoint:         "MULTIPOINT",
	MultiLineString:    "MULTILINESTRING",
	MultiPolygon:       "MULTIPOLYGON",
	GeometryCollection: "GEOMETRYCOLLECTION",
	CircularString:     "CIRCULARSTRING",
	CompoundCurve:      "COMPOUNDCURVE",
	CurvePolygon:       "CURVEPOLYGON",
	MultiCurve:         "MULTICURVE",
	MultiSurface:       "MULTISURFACE",
	None:               "NONE",
}

// String returns the OGC name of the type, e.g. "MULTIPOLYGON Z".
func (t Type) String() string {
	name, ok := typeNames[t.Flat()]
	if !ok {
		return fmt.Sprintf("TYPE(%d)", uint32(t))
	}
	switch {
	case t.HasZ() && t.HasM():
		return name + " ZM"
	case t.HasZ():
		return name + " Z"
	case t.HasM():
		return name + " M"
	}
	return name
}

// ParseType parses an OGC geometry type name.
//
// Accepted suffixes are Z, M, ZM and the legacy 25D, with or without a space:
// "POINT", "MultiPolygon Z", "LINESTRING25D", "GEOMETRY", "NONE".
func ParseType(s string) (Type, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, " ", "")

	var z, m bool
	switch {
	case strings.HasSuffix(name, "25D"):
		name, z = strings.TrimSuffix(name, "25D"), true
	case strings.HasSuffix(name, "ZM") && !isTypeName(name):
		name, z, m = strings.TrimSuffix(name, "ZM"), true, true
	case strings.HasSuffix(name, "Z") && !isTypeName(name):
		name, z = strings.TrimSuffix(name, "Z"), true
	case strings.HasSuffix(name, "M") && !isTypeName(name):
		name, m = strings.TrimSuffix(name, "M"), true
	}

	for t, n := range typeNames {
		if n == name {
			if t == None {
				return None, nil
			}
			return compose(t, z, m), nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

func isTypeName(name string) bool {
	for _, n := range typeNames {
		if n == name {
			return true
		}
	}
	return false
}
