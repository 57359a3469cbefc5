package vector

import (
	"fmt"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
)

// NullFID marks a feature without identifier; drivers assign one on write.
const NullFID int64 = -1

// Feature is one record: identifier, one value per column and one geometry
// per geometry column.
//
// A feature owns its geometries. TakeGeometry moves one out, leaving the
// slot empty, so a geometry is never referenced by two features.
type Feature struct {
	FID    int64
	Fields []Value
	Geoms  []*geom.Geometry
	Style  string

	schema *Schema
}

// NewFeature returns an empty feature laid out for s.
func NewFeature(s *Schema) *Feature {
	return &Feature{
		FID:    NullFID,
		Fields: make([]Value, len(s.Fields)),
		Geoms:  make([]*geom.Geometry, len(s.GeomFields)),
		schema: s,
	}
}

// Schema returns the schema the feature was created for.
func (f *Feature) Schema() *Schema { return f.schema }

// SetSchema rebinds f to s. s must have the same column layout as the
// schema f was created for.
func (f *Feature) SetSchema(s *Schema) { f.schema = s }

// Field returns the value of column i.
func (f *Feature) Field(i int) Value { return f.Fields[i] }

// FieldByName returns the value of the named column, or an unset value.
func (f *Feature) FieldByName(name string) Value {
	if f.schema == nil {
		return Value{}
	}
	if i := f.schema.FieldIndex(name); i >= 0 {
		return f.Fields[i]
	}
	return Value{}
}

// Set assigns column i.
func (f *Feature) Set(i int, v Value) { f.Fields[i] = v }

// Geometry returns geometry i without transferring ownership.
func (f *Feature) Geometry(i int) *geom.Geometry {
	if i < 0 || i >= len(f.Geoms) {
		return nil
	}
	return f.Geoms[i]
}

// TakeGeometry moves geometry i out of the feature.
func (f *Feature) TakeGeometry(i int) *geom.Geometry {
	if i < 0 || i >= len(f.Geoms) {
		return nil
	}
	g := f.Geoms[i]
	f.Geoms[i] = nil
	return g
}

// SetGeometry moves g into slot i, replacing any previous geometry.
func (f *Feature) SetGeometry(i int, g *geom.Geometry) {
	f.Geoms[i] = g
}

// Clone returns a deep copy.
func (f *Feature) Clone() *Feature {
	c := &Feature{
		FID:    f.FID,
		Fields: append([]Value(nil), f.Fields...),
		Geoms:  make([]*geom.Geometry, len(f.Geoms)),
		Style:  f.Style,
		schema: f.schema,
	}
	for i, g := range f.Geoms {
		c.Geoms[i] = g.Clone()
	}
	return c
}

// SetFrom copies the values of src into f following fieldMap, which maps
// each source column to a column of f or to a negative value to drop it.
// Values are converted to the destination column type. With forgiving set,
// conversion failures leave the column unset instead of failing.
//
// Geometries, FID and style are not touched.
func (f *Feature) SetFrom(src *Feature, fieldMap []int, forgiving bool) error {
	if len(fieldMap) != len(src.Fields) {
		return fmt.Errorf("field map has %d entries for %d source fields", len(fieldMap), len(src.Fields))
	}
	for i, dst := range fieldMap {
		if dst < 0 {
			continue
		}
		if dst >= len(f.Fields) {
			return fmt.Errorf("field map entry %d targets column %d of %d", i, dst, len(f.Fields))
		}
		v := src.Fields[i]
		if f.schema != nil {
			cv, err := v.Convert(f.schema.Fields[dst].Type)
			if err != nil {
				if forgiving {
					continue
				}
				return fmt.Errorf("field %q: %w", f.schema.Fields[dst].Name, err)
			}
			v = cv
		}
		f.Fields[dst] = v
	}
	return nil
}
