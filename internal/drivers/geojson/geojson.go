// Package geojson reads and writes GeoJSON FeatureCollections and
// newline-delimited GeoJSON sequences.
//
// A GeoJSON file holds exactly one layer. Files opened for update, and all
// FeatureCollections, are held in memory and written back on Close. A
// sequence opened read-only is streamed line by line instead.
//
// Coordinates pass through github.com/paulmach/orb and are 2D.
package geojson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/ogrtranslate/internal/drivers/memory"
	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// Registered format names.
const (
	DriverName    = "GeoJSON"
	SeqDriverName = "GeoJSONSeq"
)

func init() {
	vector.Register(driver{})
	vector.Register(driver{seq: true})
}

type driver struct{ seq bool }

func (d driver) Name() string {
	if d.seq {
		return SeqDriverName
	}
	return DriverName
}

func (d driver) Extensions() []string {
	if d.seq {
		return []string{"geojsons", "geojsonl"}
	}
	return []string{"geojson", "json"}
}

func (d driver) Open(path string, update bool) (vector.Dataset, error) {
	if d.seq && !update {
		return OpenSeq(path)
	}
	return Open(path, d.seq, update)
}

func (d driver) Create(path string, options map[string]string) (vector.Dataset, error) {
	return Create(path, d.seq), nil
}

// creatableTypes excludes Binary, which has no JSON form.
var creatableTypes = []vector.FieldType{
	vector.Integer, vector.Integer64, vector.Real, vector.String,
	vector.Date, vector.Time, vector.DateTime,
	vector.IntegerList, vector.Integer64List, vector.RealList, vector.StringList,
}

func memoryOptions(update bool) memory.Options {
	return memory.Options{
		Dataset: vector.DatasetCapabilities{
			CreateLayer:         update,
			DeleteLayer:         update,
			CreatableFieldTypes: creatableTypes,
		},
		Layer: vector.LayerCapabilities{
			FastFeatureCount: true,
			RandomRead:       true,
			CreateField:      update,
			IgnoreFields:     true,
		},
		CreationOptions: []string{"FID"},
	}
}

// Dataset is a GeoJSON file held in memory.
type Dataset struct {
	*memory.Dataset

	path   string
	seq    bool
	update bool
}

// Create returns an empty dataset that is written to path on Close.
func Create(path string, seq bool) *Dataset {
	return &Dataset{Dataset: memory.New(path, memoryOptions(true)), path: path, seq: seq, update: true}
}

// Open loads a FeatureCollection, or a sequence when seq is set.
func Open(path string, seq, update bool) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	d := &Dataset{Dataset: memory.New(path, memoryOptions(update)), path: path, seq: seq, update: update}

	var (
		name  = layerName(path)
		crs   = srs.WGS84()
		items [][]byte
	)
	if seq {
		items = splitSeq(data)
	} else {
		var doc struct {
			Type     string            `json:"type"`
			Name     string            `json:"name"`
			CRS      any               `json:"crs"`
			Features []json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("geojson: %s: %w", path, err)
		}
		switch doc.Type {
		case "FeatureCollection":
			for _, raw := range doc.Features {
				items = append(items, raw)
			}
		case "Feature":
			items = [][]byte{data}
		default:
			return nil, fmt.Errorf("geojson: %s: unsupported top-level type %q", path, doc.Type)
		}
		if doc.Name != "" {
			name = doc.Name
		}
		if doc.CRS != nil {
			crs = parseCRSMember(doc.CRS)
		}
	}

	feats := make([]*geojson.Feature, len(items))
	b := newSchemaBuilder()
	for i, raw := range items {
		f, keys, err := decodeFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("geojson: %s: feature %d: %w", path, i, err)
		}
		feats[i] = f
		b.add(f, keys)
	}

	l := d.AddLayer(name, b.schema(crs))
	for i, src := range feats {
		f, err := toFeature(l.Schema(), src, int64(i))
		if err != nil {
			return nil, fmt.Errorf("geojson: %s: feature %d: %w", path, i, err)
		}
		if err := l.CreateFeature(f); err != nil {
			return nil, fmt.Errorf("geojson: %s: %w", path, err)
		}
	}
	return d, nil
}

// CreateLayer creates the single layer of the file.
func (d *Dataset) CreateLayer(name string, geomField *vector.GeomFieldDefn, options map[string]string) (vector.WritableLayer, error) {
	if !d.update {
		return nil, fmt.Errorf("geojson: %s opened read-only: %w", d.path, vector.ErrNotSupported)
	}
	if d.LayerCount() > 0 {
		return nil, fmt.Errorf("geojson: %s already holds layer %q: %w", d.path, d.Dataset.Layer(0).Name(), vector.ErrNotSupported)
	}
	return d.Dataset.CreateLayer(name, geomField, options)
}

// Close writes the dataset back when it was opened for update.
func (d *Dataset) Close() error {
	if !d.update {
		return nil
	}
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return fmt.Errorf("geojson: %s: %w", d.path, err)
	}
	if err := os.WriteFile(d.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("geojson: %w", err)
	}
	return nil
}

func (d *Dataset) encode(buf *bytes.Buffer) error {
	var l *memory.Layer
	if d.LayerCount() > 0 {
		l = d.Dataset.Layer(0).(*memory.Layer)
	}

	if d.seq {
		if l == nil {
			return nil
		}
		for _, f := range l.Features() {
			line, err := encodeFeature(l.Schema(), f)
			if err != nil {
				return err
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		return nil
	}

	buf.WriteString(`{"type":"FeatureCollection"`)
	if l == nil {
		buf.WriteString(`,"features":[]}` + "\n")
		return nil
	}
	name, _ := json.Marshal(l.Name())
	buf.WriteString(`,"name":`)
	buf.Write(name)
	if gf := l.Schema().GeomFields; len(gf) > 0 {
		if member := crsMember(gf[0].CRS); member != nil {
			b, err := json.Marshal(member)
			if err != nil {
				return err
			}
			buf.WriteString(`,"crs":`)
			buf.Write(b)
		}
	}
	buf.WriteString(`,"features":[`)
	for i, f := range l.Features() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n")
		line, err := encodeFeature(l.Schema(), f)
		if err != nil {
			return err
		}
		buf.Write(line)
	}
	buf.WriteString("\n]}\n")
	return nil
}

// encodeFeature renders f with its properties in schema order.
func encodeFeature(schema *vector.Schema, f *vector.Feature) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"Feature"`)
	if f.FID != vector.NullFID {
		fmt.Fprintf(&buf, `,"id":%d`, f.FID)
	}
	buf.WriteString(`,"properties":{`)
	n := 0
	for i, fd := range schema.Fields {
		v, ok := encodeProperty(f.Fields[i])
		if !ok {
			continue
		}
		key, err := json.Marshal(fd.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.Name, err)
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		n++
	}
	buf.WriteString(`},"geometry":`)

	var og orb.Geometry
	if len(f.Geoms) > 0 {
		og = geom.ToOrb(f.Geoms[0])
	}
	if og == nil {
		buf.WriteString("null")
	} else {
		b, err := json.Marshal(geojson.NewGeometry(og))
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeFeature parses one Feature object and returns its property names in
// document order.
func decodeFeature(raw []byte) (*geojson.Feature, []string, error) {
	f, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return nil, nil, err
	}
	keys, err := propertyOrder(raw)
	if err != nil {
		return nil, nil, err
	}
	return f, keys, nil
}

func propertyOrder(raw []byte) ([]string, error) {
	var doc struct {
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Properties) == 0 || string(doc.Properties) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(doc.Properties))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected property key %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// toFeature builds a feature for schema. The FID is the integral "id"
// member when present, otherwise index.
func toFeature(schema *vector.Schema, src *geojson.Feature, index int64) (*vector.Feature, error) {
	f := vector.NewFeature(schema)
	f.FID = index
	if id, ok := src.ID.(float64); ok && id == math.Trunc(id) && id >= 0 {
		f.FID = int64(id)
	}
	for k, raw := range src.Properties {
		i := schema.FieldIndexExact(k)
		if i < 0 {
			continue
		}
		v, err := decodeProperty(schema.Fields[i].Type, raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		f.Fields[i] = v
	}
	if len(f.Geoms) == 0 {
		return f, nil
	}
	g, err := geom.FromOrb(src.Geometry)
	if err != nil {
		return nil, err
	}
	if g != nil {
		g.AssignCRS(schema.GeomFields[0].CRS)
	}
	f.Geoms[0] = g
	return f, nil
}

// splitSeq splits a sequence into its non-empty records. RFC 8142 record
// separators are accepted.
func splitSeq(data []byte) [][]byte {
	var out [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		if line := trimRecord(sc.Bytes()); len(line) > 0 {
			out = append(out, append([]byte(nil), line...))
		}
	}
	return out
}

func trimRecord(line []byte) []byte {
	return bytes.TrimSpace(bytes.Trim(line, "\x1e"))
}

func layerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
