// Package memory implements an in-memory dataset.
//
// It backs unit tests and in-process pipelines. Capabilities are
// configurable so tests can model drivers that lack transactions, fast
// counts, multiple geometry columns or some field types.
package memory

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// DriverName is the registered format name.
const DriverName = "Memory"

func init() {
	vector.Register(driver{})
}

type driver struct{}

func (driver) Name() string         { return DriverName }
func (driver) Extensions() []string { return nil }

func (driver) Open(path string, update bool) (vector.Dataset, error) {
	return nil, fmt.Errorf("memory: cannot open %q: %w", path, vector.ErrNotSupported)
}

func (driver) Create(path string, options map[string]string) (vector.Dataset, error) {
	return New(path, DefaultOptions()), nil
}

// Options configures a memory dataset.
type Options struct {
	Dataset vector.DatasetCapabilities
	Layer   vector.LayerCapabilities

	// CreationOptions is returned by LayerCreationOptionList.
	CreationOptions []string

	// Interleaved makes NextFeature return features across layers in
	// insertion order.
	Interleaved bool
}

// DefaultOptions returns a dataset that supports everything.
func DefaultOptions() Options {
	return Options{
		Dataset: vector.DatasetCapabilities{
			CreateLayer:               true,
			DeleteLayer:               true,
			Transactions:              true,
			MultipleGeomFields:        true,
			CreateGeomFieldAfterLayer: true,
			RandomLayerRead:           false,
		},
		Layer: vector.LayerCapabilities{
			FastFeatureCount:   true,
			FastSpatialFilter:  true,
			RandomRead:         true,
			Transactions:       true,
			CreateField:        true,
			CreateGeomField:    true,
			Upsert:             true,
			IgnoreFields:       true,
			CurveGeometries:    true,
			ZGeometries:        true,
			MeasuredGeometries: true,
		},
		CreationOptions: []string{"FID", "FID64", "GEOMETRY_NULLABLE"},
	}
}

// Dataset is an in-memory dataset.
type Dataset struct {
	mu       sync.RWMutex
	name     string
	opts     Options
	layers   []*Layer
	metadata map[string]string
	seq      int64

	// snapshot holds the state at StartTransaction; nil outside a transaction
	snapshot *datasetSnapshot
}

type datasetSnapshot struct {
	states map[*Layer]layerState
	meta   map[string]string
}

// New returns an empty dataset.
func New(name string, opts Options) *Dataset {
	return &Dataset{name: name, opts: opts, metadata: map[string]string{}}
}

// Interleaved wraps a dataset whose features are read across layers in
// insertion order.
type Interleaved struct {
	*Dataset
}

// NewInterleaved returns an empty dataset implementing vector.InterleavedReader.
func NewInterleaved(name string, opts Options) *Interleaved {
	opts.Interleaved = true
	opts.Dataset.RandomLayerRead = true
	return &Interleaved{Dataset: New(name, opts)}
}

// NextFeature returns the feature inserted earliest among the unread
// features of all layers.
func (d *Interleaved) NextFeature() (*vector.Feature, vector.Layer, error) {
	var best *Layer
	bestPos := -1
	for _, l := range d.layers {
		pos := l.peek()
		if pos < 0 {
			continue
		}
		if best == nil || l.features[pos].seq < best.features[bestPos].seq {
			best, bestPos = l, pos
		}
	}
	if best == nil {
		return nil, nil, io.EOF
	}
	best.cursor = bestPos + 1
	return best.output(best.features[bestPos]), best, nil
}

func (d *Dataset) Name() string { return d.name }

func (d *Dataset) LayerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.layers)
}

func (d *Dataset) Layer(i int) vector.Layer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.layers) {
		return nil
	}
	return d.layers[i]
}

func (d *Dataset) LayerByName(name string) vector.Layer {
	if l := d.layerByName(name); l != nil {
		return l
	}
	return nil
}

func (d *Dataset) layerByName(name string) *Layer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, l := range d.layers {
		if l.name == name {
			return l
		}
	}
	for _, l := range d.layers {
		if strings.EqualFold(l.name, name) {
			return l
		}
	}
	return nil
}

// AddLayer creates a layer with a complete schema. It is the convenience
// used to build source datasets.
func (d *Dataset) AddLayer(name string, schema *vector.Schema) *Layer {
	l := newLayer(d, name, schema.Clone())
	d.mu.Lock()
	d.layers = append(d.layers, l)
	d.mu.Unlock()
	return l
}

// CreateLayer understands the options FID (FID column name) and
// GEOMETRY_NULLABLE=NO.
func (d *Dataset) CreateLayer(name string, geomField *vector.GeomFieldDefn, options map[string]string) (vector.WritableLayer, error) {
	if !d.opts.Dataset.CreateLayer {
		return nil, fmt.Errorf("memory: create layer %q: %w", name, vector.ErrNotSupported)
	}
	if l := d.layerByName(name); l != nil && l.name == name {
		return nil, fmt.Errorf("memory: layer %q already exists", name)
	}

	schema := &vector.Schema{}
	if geomField != nil && geomField.Type != geom.None {
		gf := *geomField
		if gf.Name == "" {
			gf.Name = "geometry"
		}
		gf.Nullable = !strings.EqualFold(options["GEOMETRY_NULLABLE"], "NO")
		schema.GeomFields = append(schema.GeomFields, gf)
	}

	l := newLayer(d, name, schema)
	l.fidColumn = options["FID"]
	if strings.EqualFold(options["FID64"], "YES") {
		l.metadata["FID64"] = "YES"
	}
	d.mu.Lock()
	d.layers = append(d.layers, l)
	d.mu.Unlock()
	return l, nil
}

func (d *Dataset) DeleteLayer(i int) error {
	if !d.opts.Dataset.DeleteLayer {
		return fmt.Errorf("memory: delete layer: %w", vector.ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.layers) {
		return fmt.Errorf("memory: delete layer %d: %w", i, vector.ErrNoSuchLayer)
	}
	d.layers = append(d.layers[:i], d.layers[i+1:]...)
	return nil
}

func (d *Dataset) Capabilities() vector.DatasetCapabilities { return d.opts.Dataset }

func (d *Dataset) LayerCreationOptionList() []string { return d.opts.CreationOptions }

// StartTransaction snapshots every layer. Without native transactions the
// dataset still honors force. Rollback restores features and metadata;
// layer creation and deletion are not undone.
func (d *Dataset) StartTransaction(force bool) error {
	if !d.opts.Dataset.Transactions && !force {
		return fmt.Errorf("memory: %w", vector.ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot != nil {
		return vector.ErrTransactionSet
	}
	snap := &datasetSnapshot{
		states: map[*Layer]layerState{},
		meta:   copyMap(d.metadata),
	}
	for _, l := range d.layers {
		snap.states[l] = l.state()
	}
	d.snapshot = snap
	return nil
}

func (d *Dataset) CommitTransaction() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot == nil {
		return vector.ErrNoTransaction
	}
	d.snapshot = nil
	return nil
}

func (d *Dataset) RollbackTransaction() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot == nil {
		return vector.ErrNoTransaction
	}
	// layers created inside the transaction survive, empty
	for _, l := range d.layers {
		st, ok := d.snapshot.states[l]
		if !ok {
			st = layerState{byFID: map[int64]int{}, nextFID: 1, metadata: copyMap(l.metadata)}
		}
		l.restore(st)
	}
	d.metadata = d.snapshot.meta
	d.snapshot = nil
	return nil
}

func (d *Dataset) Metadata() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyMap(d.metadata)
}

func (d *Dataset) SetMetadata(md map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range md {
		d.metadata[k] = v
	}
	return nil
}

func (d *Dataset) Close() error { return nil }

func (d *Dataset) nextSeq() int64 {
	d.seq++
	return d.seq
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
