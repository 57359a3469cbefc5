package geojson

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// schemaBuilder infers a layer schema from a sequence of features. Fields
// appear in order of first use; conflicting value types widen to Real or
// String.
type schemaBuilder struct {
	fields   []vector.FieldDefn
	index    map[string]int
	typed    []bool
	geomType geom.Type
	geoms    int
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{index: map[string]int{}, geomType: geom.Unknown}
}

// add records the properties of f, visiting them in keys order.
func (b *schemaBuilder) add(f *geojson.Feature, keys []string) {
	for _, k := range keys {
		b.addValue(k, f.Properties[k])
	}

	if f.Geometry == nil {
		return
	}
	gt := orbType(f.Geometry.GeoJSONType())
	switch {
	case b.geoms == 0:
		b.geomType = gt
	case b.geomType != gt:
		b.geomType = geom.Unknown
	}
	b.geoms++
}

func (b *schemaBuilder) addValue(name string, raw any) {
	i, ok := b.index[name]
	if !ok {
		i = len(b.fields)
		b.index[name] = i
		b.fields = append(b.fields, vector.NewFieldDefn(name, vector.String))
		b.typed = append(b.typed, false)
	}
	if raw == nil {
		return
	}
	t := jsonType(raw)
	if !b.typed[i] {
		b.fields[i].Type = t
		b.typed[i] = true
		return
	}
	b.fields[i].Type = widen(b.fields[i].Type, t)
}

func (b *schemaBuilder) schema(crs *srs.CRS) *vector.Schema {
	s := &vector.Schema{Fields: append([]vector.FieldDefn(nil), b.fields...)}
	s.GeomFields = []vector.GeomFieldDefn{{Name: "geometry", Type: b.geomType, Nullable: true, CRS: crs}}
	return s
}

// jsonType returns the field type of a decoded JSON value.
func jsonType(raw any) vector.FieldType {
	switch v := raw.(type) {
	case bool:
		return vector.Integer
	case float64:
		return numberType(v)
	case string:
		return stringType(v)
	case []any:
		return listType(v)
	}
	return vector.String
}

func numberType(v float64) vector.FieldType {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return vector.Real
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return vector.Integer
	}
	return vector.Integer64
}

// stringType recognizes ISO 8601 dates and times.
func stringType(s string) vector.FieldType {
	if len(s) < 8 || len(s) > 35 {
		return vector.String
	}
	if _, _, err := vector.ParseDateTime(s); err != nil {
		return vector.String
	}
	hasDate := strings.Count(s, "-") >= 2 || strings.Count(s, "/") >= 2
	hasTime := strings.Contains(s, ":")
	switch {
	case hasDate && hasTime:
		return vector.DateTime
	case hasDate:
		return vector.Date
	case hasTime:
		return vector.Time
	}
	return vector.String
}

func listType(items []any) vector.FieldType {
	t := vector.IntegerList
	for _, it := range items {
		switch v := it.(type) {
		case float64:
			if t == vector.StringList {
				continue
			}
			switch numberType(v) {
			case vector.Real:
				t = vector.RealList
			case vector.Integer64:
				if t == vector.IntegerList {
					t = vector.Integer64List
				}
			}
		case string:
			t = vector.StringList
		default:
			return vector.String
		}
	}
	return t
}

func widen(a, b vector.FieldType) vector.FieldType {
	if a == b {
		return a
	}
	rank := map[vector.FieldType]int{vector.Integer: 1, vector.Integer64: 2, vector.Real: 3}
	ra, rb := rank[a], rank[b]
	if ra > 0 && rb > 0 {
		if ra > rb {
			return a
		}
		return b
	}
	lrank := map[vector.FieldType]int{vector.IntegerList: 1, vector.Integer64List: 2, vector.RealList: 3}
	la, lb := lrank[a], lrank[b]
	if la > 0 && lb > 0 {
		if la > lb {
			return a
		}
		return b
	}
	if (a == vector.Date && b == vector.DateTime) || (a == vector.DateTime && b == vector.Date) {
		return vector.DateTime
	}
	return vector.String
}

func orbType(name string) geom.Type {
	t, err := geom.ParseType(name)
	if err != nil {
		return geom.Unknown
	}
	return t
}

// decodeProperty converts a JSON property to a value of type ft.
func decodeProperty(ft vector.FieldType, raw any) (vector.Value, error) {
	if raw == nil {
		return vector.Null(), nil
	}
	switch v := raw.(type) {
	case bool:
		n := int64(0)
		if v {
			n = 1
		}
		return vector.IntValue(n).Convert(ft)
	case float64:
		if ft == vector.Real || (ft == vector.String && v != math.Trunc(v)) {
			return vector.RealValue(v).Convert(ft)
		}
		return vector.IntValue(int64(v)).Convert(ft)
	case string:
		switch ft {
		case vector.Date, vector.Time, vector.DateTime:
			t, tz, err := vector.ParseDateTime(v)
			if err != nil {
				return vector.Value{}, err
			}
			return vector.TimeValue(ft, t, tz), nil
		case vector.String:
			return vector.StringValue(v), nil
		}
		return vector.StringValue(v).Convert(ft)
	case []any:
		return decodeList(ft, v)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return vector.Value{}, err
	}
	return vector.StringValue(string(b)), nil
}

func decodeList(ft vector.FieldType, items []any) (vector.Value, error) {
	switch ft {
	case vector.IntegerList, vector.Integer64List:
		out := make([]int64, len(items))
		for i, it := range items {
			f, ok := it.(float64)
			if !ok {
				return vector.Value{}, fmt.Errorf("list element %v is not a number", it)
			}
			out[i] = int64(f)
		}
		return vector.IntListValue(out).Convert(ft)
	case vector.RealList:
		out := make([]float64, len(items))
		for i, it := range items {
			f, ok := it.(float64)
			if !ok {
				return vector.Value{}, fmt.Errorf("list element %v is not a number", it)
			}
			out[i] = f
		}
		return vector.RealListValue(out), nil
	case vector.StringList:
		out := make([]string, len(items))
		for i, it := range items {
			if s, ok := it.(string); ok {
				out[i] = s
			} else {
				out[i] = fmt.Sprint(it)
			}
		}
		return vector.StringListValue(out), nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return vector.Value{}, err
	}
	return vector.StringValue(string(b)), nil
}

// encodeProperty converts a value to its JSON form. The second result is
// false for unset values, which are left out.
func encodeProperty(v vector.Value) (any, bool) {
	if !v.IsSet() {
		return nil, false
	}
	if v.IsNull() {
		return nil, true
	}
	switch v.Kind() {
	case vector.Integer, vector.Integer64:
		return v.Int(), true
	case vector.Real:
		return v.Real(), true
	case vector.Date:
		t, _ := v.Time()
		return t.Format("2006-01-02"), true
	case vector.Time:
		t, _ := v.Time()
		return t.Format("15:04:05"), true
	case vector.DateTime:
		t, tz := v.Time()
		if tz == vector.TZFixed {
			return t.Format(time.RFC3339), true
		}
		return t.Format("2006-01-02T15:04:05"), true
	case vector.Binary:
		return hex.EncodeToString(v.Bytes()), true
	case vector.IntegerList, vector.Integer64List:
		return v.IntList(), true
	case vector.RealList:
		return v.RealList(), true
	case vector.StringList:
		return v.StringList(), true
	}
	return v.String(), true
}

// crsMember returns the legacy "crs" member naming c, or nil for WGS 84.
func crsMember(c *srs.CRS) map[string]any {
	if c == nil || c.IsSame(srs.WGS84()) || c.Authority == "" {
		return nil
	}
	return map[string]any{
		"type": "name",
		"properties": map[string]any{
			"name": fmt.Sprintf("urn:ogc:def:crs:%s::%d", c.Authority, c.Code),
		},
	}
}

// parseCRSMember reads a legacy "crs" member. RFC 7946 data has none and is
// WGS 84 longitude/latitude.
func parseCRSMember(raw any) *srs.CRS {
	m, ok := raw.(map[string]any)
	if !ok {
		return srs.WGS84()
	}
	props, _ := m["properties"].(map[string]any)
	name, _ := props["name"].(string)
	c, err := srs.Parse(name)
	if err != nil {
		return srs.WGS84()
	}
	return c
}
