package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

const (
	kindField    = "field"
	kindGeometry = "geometry"
)

// loadSchema reads a layer's field and geometry definitions from ogr_columns.
func (d *Dataset) loadSchema(table string) (*vector.Schema, error) {
	schema := &vector.Schema{}
	err := d.query(func(rows *sql.Rows) error {
		var (
			name, kind, typeName string
			width, prec, nullable int
			dflt, crsDef          sql.NullString
		)
		if err := rows.Scan(&name, &kind, &typeName, &width, &prec, &nullable, &dflt, &crsDef); err != nil {
			return err
		}
		switch kind {
		case kindGeometry:
			gt, err := geom.ParseType(typeName)
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			gf := vector.GeomFieldDefn{Name: name, Type: gt, Nullable: nullable != 0}
			if crsDef.Valid && crsDef.String != "" {
				// unknown codes stay nil rather than failing the open
				if c, err := srs.Parse(crsDef.String); err == nil {
					gf.CRS = c
				}
			}
			schema.GeomFields = append(schema.GeomFields, gf)
		default:
			ft, err := vector.ParseFieldType(typeName)
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			f := vector.FieldDefn{Name: name, Type: ft, Width: width, Precision: prec, Nullable: nullable != 0}
			if dflt.Valid {
				v := dflt.String
				f.Default = &v
			}
			schema.Fields = append(schema.Fields, f)
		}
		return nil
	}, "SELECT name, kind, type_name, width, prec, nullable, default_value, srs FROM ogr_columns WHERE table_name = "+
		d.dialect.Placeholder(1)+" ORDER BY position", table)
	if err != nil {
		return nil, fmt.Errorf("sqldb: schema of %q: %w", table, err)
	}
	return schema, nil
}

func (d *Dataset) registerField(table string, pos int, f vector.FieldDefn) error {
	var dflt any
	if f.Default != nil {
		dflt = *f.Default
	}
	_, err := d.exec(insertColumnSQL(d.dialect), table, pos, f.Name, kindField, f.Type.String(),
		f.Width, f.Precision, boolInt(f.Nullable), dflt, nil)
	return err
}

func (d *Dataset) registerGeomField(table string, pos int, f vector.GeomFieldDefn) error {
	var crsDef any
	if f.CRS != nil && f.CRS.Authority != "" {
		crsDef = f.CRS.String()
	}
	_, err := d.exec(insertColumnSQL(d.dialect), table, pos, f.Name, kindGeometry, f.Type.String(),
		0, 0, boolInt(f.Nullable), nil, crsDef)
	return err
}

func insertColumnSQL(d *Dialect) string {
	return "INSERT INTO ogr_columns (table_name, position, name, kind, type_name, width, prec, nullable, default_value, srs) VALUES (" +
		d.placeholders(1, 10) + ")"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeValue converts a field value to a database/sql argument.
func encodeValue(v vector.Value) any {
	if !v.Valid() {
		return nil
	}
	switch v.Kind() {
	case vector.Integer, vector.Integer64:
		return v.Int()
	case vector.Real:
		return v.Real()
	case vector.Binary:
		return v.Bytes()
	}
	return v.String()
}

// decodeValue converts a scanned column to a value of type ft.
func decodeValue(ft vector.FieldType, raw any) (vector.Value, error) {
	if raw == nil {
		return vector.Null(), nil
	}
	switch ft {
	case vector.Integer, vector.Integer64:
		n, err := toInt64(raw)
		if err != nil {
			return vector.Value{}, err
		}
		return vector.IntValue(n).Convert(ft)
	case vector.Real:
		switch r := raw.(type) {
		case float64:
			return vector.RealValue(r), nil
		case int64:
			return vector.RealValue(float64(r)), nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(toString(raw)), 64)
		if err != nil {
			return vector.Value{}, err
		}
		return vector.RealValue(f), nil
	case vector.Date, vector.Time, vector.DateTime:
		if t, ok := raw.(time.Time); ok {
			return vector.TimeValue(ft, t, vector.TZUnknown), nil
		}
		t, tz, err := vector.ParseDateTime(toString(raw))
		if err != nil {
			return vector.Value{}, err
		}
		return vector.TimeValue(ft, t, tz), nil
	case vector.Binary:
		if b, ok := raw.([]byte); ok {
			return vector.BinaryValue(append([]byte(nil), b...)), nil
		}
		return vector.BinaryValue([]byte(toString(raw))), nil
	}
	return vector.StringValue(toString(raw)), nil
}

func toInt64(raw any) (int64, error) {
	switch r := raw.(type) {
	case int64:
		return r, nil
	case float64:
		return int64(r), nil
	case bool:
		if r {
			return 1, nil
		}
		return 0, nil
	}
	return strconv.ParseInt(strings.TrimSpace(toString(raw)), 10, 64)
}

func toString(raw any) string {
	switch r := raw.(type) {
	case []byte:
		return string(r)
	case string:
		return r
	case time.Time:
		return r.Format("2006/01/02 15:04:05")
	}
	return fmt.Sprint(raw)
}

// encodeGeometry returns WKB for g, or nil for a missing geometry.
func encodeGeometry(g *geom.Geometry) (any, error) {
	if g == nil {
		return nil, nil
	}
	return geom.MarshalWKB(g)
}

func decodeGeometry(raw any, crs *srs.CRS) (*geom.Geometry, error) {
	if raw == nil {
		return nil, nil
	}
	var b []byte
	switch r := raw.(type) {
	case []byte:
		b = r
	case string:
		b = []byte(r)
	default:
		return nil, fmt.Errorf("unexpected geometry value %T", raw)
	}
	g, err := geom.UnmarshalWKB(b)
	if err != nil {
		return nil, err
	}
	g.AssignCRS(crs)
	return g, nil
}
