package memory

import (
	"fmt"
	"io"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

type storedFeature struct {
	feat *vector.Feature
	seq  int64
}

// Layer is a layer of a memory dataset. Features are stored as private
// copies; readers receive copies they own.
type Layer struct {
	ds        *Dataset
	name      string
	schema    *vector.Schema
	fidColumn string
	metadata  map[string]string

	features []storedFeature
	byFID    map[int64]int
	nextFID  int64

	// read state
	cursor      int
	filter      *vector.Filter
	spatial     *spatialFilter
	ignored     map[int]bool
	transaction *layerState

	// WriteHook, when set, is called before a feature is stored. A non-nil
	// error fails the write.
	WriteHook func(f *vector.Feature) error
}

type layerState struct {
	features []storedFeature
	byFID    map[int64]int
	nextFID  int64
	metadata map[string]string
}

func newLayer(d *Dataset, name string, schema *vector.Schema) *Layer {
	return &Layer{
		ds:       d,
		name:     name,
		schema:   schema,
		metadata: map[string]string{},
		byFID:    map[int64]int{},
		nextFID:  1,
	}
}

func (l *Layer) Name() string { return l.name }

func (l *Layer) Schema() *vector.Schema { return l.schema }

func (l *Layer) FIDColumn() string { return l.fidColumn }

func (l *Layer) Capabilities() vector.LayerCapabilities { return l.ds.opts.Layer }

func (l *Layer) Metadata() map[string]string { return copyMap(l.metadata) }

func (l *Layer) SetMetadata(md map[string]string) error {
	for k, v := range md {
		l.metadata[k] = v
	}
	return nil
}

func (l *Layer) ResetReading() { l.cursor = 0 }

func (l *Layer) NextFeature() (*vector.Feature, error) {
	pos := l.peek()
	if pos < 0 {
		l.cursor = len(l.features)
		return nil, io.EOF
	}
	l.cursor = pos + 1
	return l.output(l.features[pos]), nil
}

// peek returns the position of the next feature matching the filters, or -1.
func (l *Layer) peek() int {
	for pos := l.cursor; pos < len(l.features); pos++ {
		if l.matches(pos) {
			return pos
		}
	}
	return -1
}

func (l *Layer) matches(pos int) bool {
	f := l.features[pos].feat
	if l.spatial != nil && !l.spatial.match(pos, f) {
		return false
	}
	if l.filter != nil && !l.filter.Match(f) {
		return false
	}
	return true
}

func (l *Layer) output(sf storedFeature) *vector.Feature {
	f := sf.feat.Clone()
	for i := range l.ignored {
		if i < len(f.Fields) {
			f.Fields[i] = vector.Value{}
		}
	}
	return f
}

func (l *Layer) GetFeature(fid int64) (*vector.Feature, error) {
	pos, ok := l.byFID[fid]
	if !ok {
		return nil, fmt.Errorf("memory: layer %q fid %d: %w", l.name, fid, vector.ErrNoSuchFeature)
	}
	return l.output(l.features[pos]), nil
}

func (l *Layer) FeatureCount(force bool) int64 {
	if l.filter == nil && l.spatial == nil {
		return int64(len(l.features))
	}
	if !force && !l.ds.opts.Layer.FastFeatureCount {
		return -1
	}
	var n int64
	for pos := range l.features {
		if l.matches(pos) {
			n++
		}
	}
	return n
}

func (l *Layer) SetAttributeFilter(where string) error {
	if where == "" {
		l.filter = nil
		return nil
	}
	f, err := vector.CompileFilter(where, l.schema)
	if err != nil {
		return fmt.Errorf("memory: layer %q: %w", l.name, err)
	}
	l.filter = f
	return nil
}

func (l *Layer) SetSpatialFilter(geomField int, g *geom.Geometry) error {
	if g == nil {
		l.spatial = nil
		return nil
	}
	if geomField < 0 || geomField >= len(l.schema.GeomFields) {
		return fmt.Errorf("memory: layer %q has no geometry field %d", l.name, geomField)
	}
	sf, err := newSpatialFilter(l, geomField, g)
	if err != nil {
		return err
	}
	l.spatial = sf
	return nil
}

func (l *Layer) SetIgnoredFields(names []string) error {
	if !l.ds.opts.Layer.IgnoreFields {
		return vector.ErrNotSupported
	}
	l.ignored = map[int]bool{}
	for _, n := range names {
		if i := l.schema.FieldIndex(n); i >= 0 {
			l.ignored[i] = true
		}
	}
	return nil
}

func (l *Layer) CreateField(f vector.FieldDefn, approxOK bool) error {
	if !l.ds.opts.Layer.CreateField {
		return fmt.Errorf("memory: create field %q: %w", f.Name, vector.ErrNotSupported)
	}
	if !l.ds.opts.Dataset.CanCreateFieldType(f.Type) {
		if !approxOK {
			return fmt.Errorf("memory: field type %s: %w", f.Type, vector.ErrNotSupported)
		}
		f.Type = vector.String
	}
	if l.schema.FieldIndexExact(f.Name) >= 0 {
		return fmt.Errorf("memory: layer %q already has field %q", l.name, f.Name)
	}
	l.schema.Fields = append(l.schema.Fields, f)
	for _, sf := range l.features {
		sf.feat.Fields = append(sf.feat.Fields, vector.Value{})
	}
	return nil
}

func (l *Layer) CreateGeomField(f vector.GeomFieldDefn) error {
	if !l.ds.opts.Layer.CreateGeomField {
		return fmt.Errorf("memory: create geometry field %q: %w", f.Name, vector.ErrNotSupported)
	}
	if len(l.schema.GeomFields) > 0 && !l.ds.opts.Dataset.MultipleGeomFields {
		return fmt.Errorf("memory: multiple geometry fields: %w", vector.ErrNotSupported)
	}
	l.schema.GeomFields = append(l.schema.GeomFields, f)
	for _, sf := range l.features {
		sf.feat.Geoms = append(sf.feat.Geoms, nil)
	}
	return nil
}

// CreateFeature stores a copy of f. An FID that is unset or already taken
// is replaced by a fresh one.
func (l *Layer) CreateFeature(f *vector.Feature) error {
	if err := l.check(f); err != nil {
		return err
	}
	if f.FID == vector.NullFID {
		f.FID = l.nextFID
	} else if _, taken := l.byFID[f.FID]; taken {
		f.FID = l.nextFID
	}
	l.insert(f)
	return nil
}

// UpsertFeature replaces the feature with the same FID, or inserts f.
func (l *Layer) UpsertFeature(f *vector.Feature) error {
	if !l.ds.opts.Layer.Upsert {
		return fmt.Errorf("memory: upsert: %w", vector.ErrNotSupported)
	}
	if err := l.check(f); err != nil {
		return err
	}
	if pos, ok := l.byFID[f.FID]; ok && f.FID != vector.NullFID {
		l.features[pos].feat = f.Clone()
		l.invalidateIndex()
		return nil
	}
	if f.FID == vector.NullFID {
		f.FID = l.nextFID
	}
	l.insert(f)
	return nil
}

func (l *Layer) check(f *vector.Feature) error {
	if len(f.Fields) != len(l.schema.Fields) || len(f.Geoms) != len(l.schema.GeomFields) {
		return fmt.Errorf("memory: layer %q: feature has %d fields and %d geometries, layer has %d and %d",
			l.name, len(f.Fields), len(f.Geoms), len(l.schema.Fields), len(l.schema.GeomFields))
	}
	for i, gf := range l.schema.GeomFields {
		if !gf.Nullable && f.Geoms[i] == nil {
			return fmt.Errorf("memory: layer %q: geometry field %q is not nullable", l.name, gf.Name)
		}
	}
	if l.WriteHook != nil {
		if err := l.WriteHook(f); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) insert(f *vector.Feature) {
	c := f.Clone()
	l.byFID[c.FID] = len(l.features)
	l.features = append(l.features, storedFeature{feat: c, seq: l.ds.nextSeq()})
	if c.FID >= l.nextFID {
		l.nextFID = c.FID + 1
	}
	l.invalidateIndex()
}

func (l *Layer) StartTransaction() error {
	if !l.ds.opts.Layer.Transactions {
		return fmt.Errorf("memory: %w", vector.ErrNotSupported)
	}
	if l.transaction != nil {
		return vector.ErrTransactionSet
	}
	st := l.state()
	l.transaction = &st
	return nil
}

func (l *Layer) CommitTransaction() error {
	if l.transaction == nil {
		return vector.ErrNoTransaction
	}
	l.transaction = nil
	return nil
}

func (l *Layer) RollbackTransaction() error {
	if l.transaction == nil {
		return vector.ErrNoTransaction
	}
	l.restore(*l.transaction)
	l.transaction = nil
	return nil
}

// state captures the feature list. Stored features are never mutated in
// place after insertion except for added columns, so a shallow copy is
// enough.
func (l *Layer) state() layerState {
	byFID := make(map[int64]int, len(l.byFID))
	for k, v := range l.byFID {
		byFID[k] = v
	}
	return layerState{
		features: append([]storedFeature(nil), l.features...),
		byFID:    byFID,
		nextFID:  l.nextFID,
		metadata: copyMap(l.metadata),
	}
}

func (l *Layer) restore(st layerState) {
	l.features = st.features
	l.byFID = st.byFID
	l.nextFID = st.nextFID
	l.metadata = st.metadata
	l.invalidateIndex()
	if l.cursor > len(l.features) {
		l.cursor = len(l.features)
	}
}

// Features returns copies of all stored features in insertion order,
// ignoring filters.
func (l *Layer) Features() []*vector.Feature {
	out := make([]*vector.Feature, len(l.features))
	for i, sf := range l.features {
		out[i] = sf.feat.Clone()
	}
	return out
}
