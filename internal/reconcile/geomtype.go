package reconcile

import "github.com/beetlebugorg/ogrtranslate/internal/geom"

// GeomTypeOptions are the inputs of DeriveGeomType.
type GeomTypeOptions struct {
	// Force replaces the source type with Forced.
	Force      bool
	Forced     geom.Type
	Conversion geom.Conversion
	Explode    bool
	// ZField is set when a source column supplies Z values.
	ZField   bool
	CoordDim CoordDim
}

// DeriveGeomType returns the declared type of a new geometry column fed by
// a source column of type src.
//
// Without a forced type the source type is converted by the collection
// mode, reduced to its single part type when exploding, and given Z when
// the source had Z or a Z column is set. The coordinate dimension is then
// forced in every case.
func DeriveGeomType(src geom.Type, o GeomTypeOptions) geom.Type {
	t := src
	if o.Force {
		t = o.Forced
	} else {
		hasZ := t.HasZ()
		t = geom.ConvertType(o.Conversion, t)
		if o.Explode {
			t = explodedType(t)
		}
		if hasZ || (o.ZField && t != geom.None) {
			t = t.WithZ(true)
		}
	}
	return ForceCoordDim(t, o.CoordDim)
}

// explodedType drops the layout flags of the multi types, as a part of a
// collection is declared flat.
func explodedType(t geom.Type) geom.Type {
	switch t.Flat() {
	case geom.MultiPoint:
		return geom.Point
	case geom.MultiLineString:
		return geom.LineString
	case geom.MultiPolygon:
		return geom.Polygon
	case geom.GeometryCollection, geom.MultiCurve, geom.MultiSurface:
		return geom.Unknown
	}
	return t
}

// ForceCoordDim sets the Z and M layout of t. None and CoordDimLayer leave
// it unchanged.
func ForceCoordDim(t geom.Type, d CoordDim) geom.Type {
	if t == geom.None {
		return t
	}
	switch d {
	case CoordDim2:
		return t.Flat()
	case CoordDim3:
		return t.Flat().WithZ(true)
	case CoordDimXYM:
		return t.Flat().WithM(true)
	case CoordDimXYZM:
		return t.Flat().WithZ(true).WithM(true)
	}
	return t
}
