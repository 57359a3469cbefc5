// Package vector defines the collection model the translation engine works
// on: schemas, field values, features, and the layer and dataset interfaces
// implemented by drivers.
package vector

import (
	"fmt"
	"strings"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
)

// FieldType is the type of a scalar or list column.
type FieldType int

const (
	Integer FieldType = iota
	Integer64
	Real
	String
	Date
	Time
	DateTime
	Binary
	IntegerList
	Integer64List
	RealList
	StringList
)

var fieldTypeNames = [...]string{
	Integer:       "Integer",
	Integer64:     "Integer64",
	Real:          "Real",
	String:        "String",
	Date:          "Date",
	Time:          "Time",
	DateTime:      "DateTime",
	Binary:        "Binary",
	IntegerList:   "IntegerList",
	Integer64List: "Integer64List",
	RealList:      "RealList",
	StringList:    "StringList",
}

func (t FieldType) String() string {
	if t < 0 || int(t) >= len(fieldTypeNames) {
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
	return fieldTypeNames[t]
}

// ParseFieldType parses a type name as returned by String. Matching is case
// insensitive.
func ParseFieldType(s string) (FieldType, error) {
	for i, n := range fieldTypeNames {
		if strings.EqualFold(n, s) {
			return FieldType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// IsList reports whether values of the type hold several elements.
func (t FieldType) IsList() bool {
	return t >= IntegerList && t <= StringList
}

// Elem returns the element type of a list type, or t itself.
func (t FieldType) Elem() FieldType {
	switch t {
	case IntegerList:
		return Integer
	case Integer64List:
		return Integer64
	case RealList:
		return Real
	case StringList:
		return String
	}
	return t
}

// FieldDefn describes a scalar or list column.
type FieldDefn struct {
	Name      string
	Type      FieldType
	Width     int
	Precision int
	Nullable  bool

	// Default is the column default expression; nil means none.
	Default *string
}

// NewFieldDefn returns a nullable column without width or default.
func NewFieldDefn(name string, t FieldType) FieldDefn {
	return FieldDefn{Name: name, Type: t, Nullable: true}
}

// GeomFieldDefn describes a geometry column.
type GeomFieldDefn struct {
	Name     string
	Type     geom.Type
	Nullable bool
	CRS      *srs.CRS
}

// Schema is the ordered column layout of a layer.
type Schema struct {
	Fields     []FieldDefn
	GeomFields []GeomFieldDefn
}

// FieldIndex returns the index of the named column, matching case
// insensitively, or -1.
func (s *Schema) FieldIndex(name string) int {
	if i := s.FieldIndexExact(name); i >= 0 {
		return i
	}
	for i, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// FieldIndexExact returns the index of the column with exactly this name, or -1.
func (s *Schema) FieldIndexExact(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// GeomFieldIndex returns the index of the named geometry column, matching
// case insensitively, or -1.
func (s *Schema) GeomFieldIndex(name string) int {
	for i, f := range s.GeomFields {
		if f.Name == name {
			return i
		}
	}
	for i, f := range s.GeomFields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no slices with s.
func (s *Schema) Clone() *Schema {
	return &Schema{
		Fields:     append([]FieldDefn(nil), s.Fields...),
		GeomFields: append([]GeomFieldDefn(nil), s.GeomFields...),
	}
}

// Equal reports whether both schemas have the same column names and types in
// the same order. CRS descriptors are compared with srs.CRS.IsSame.
func (s *Schema) Equal(o *Schema) bool {
	if len(s.Fields) != len(o.Fields) || len(s.GeomFields) != len(o.GeomFields) {
		return false
	}
	for i, f := range s.Fields {
		g := o.Fields[i]
		if f.Name != g.Name || f.Type != g.Type {
			return false
		}
	}
	for i, f := range s.GeomFields {
		g := o.GeomFields[i]
		if f.Name != g.Name || f.Type != g.Type {
			return false
		}
		if (f.CRS == nil) != (g.CRS == nil) || (f.CRS != nil && !f.CRS.IsSame(g.CRS)) {
			return false
		}
	}
	return true
}
