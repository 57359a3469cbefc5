package vector

import (
	"errors"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
)

// Common errors returned by drivers.
var (
	ErrNotSupported   = errors.New("vector: operation not supported")
	ErrNoSuchLayer    = errors.New("vector: no such layer")
	ErrNoSuchFeature  = errors.New("vector: no such feature")
	ErrNoTransaction  = errors.New("vector: no transaction in progress")
	ErrTransactionSet = errors.New("vector: transaction already in progress")
)

// LayerCapabilities describes what a layer supports.
type LayerCapabilities struct {
	FastFeatureCount   bool
	FastSpatialFilter  bool
	RandomRead         bool
	Transactions       bool
	CreateField        bool
	CreateGeomField    bool
	Upsert             bool
	IgnoreFields       bool
	CurveGeometries    bool
	ZGeometries        bool
	MeasuredGeometries bool
}

// DatasetCapabilities describes what a dataset supports.
type DatasetCapabilities struct {
	CreateLayer               bool
	DeleteLayer               bool
	Transactions              bool
	MultipleGeomFields        bool
	CreateGeomFieldAfterLayer bool
	RandomLayerRead           bool

	// CreatableFieldTypes lists the column types CreateField accepts. An
	// empty list means every type.
	CreatableFieldTypes []FieldType
}

// CanCreateFieldType reports whether t is in CreatableFieldTypes.
func (c DatasetCapabilities) CanCreateFieldType(t FieldType) bool {
	if len(c.CreatableFieldTypes) == 0 {
		return true
	}
	for _, ct := range c.CreatableFieldTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Layer is a readable sequence of features sharing a schema.
type Layer interface {
	Name() string
	Schema() *Schema

	// NextFeature returns the next feature matching the active filters, or
	// io.EOF when the layer is exhausted.
	NextFeature() (*Feature, error)
	ResetReading()

	// GetFeature fetches one feature by FID, ignoring filters.
	GetFeature(fid int64) (*Feature, error)

	// FeatureCount returns the number of features matching the filters, or
	// -1 when it is unknown and force is false.
	FeatureCount(force bool) int64

	SetAttributeFilter(where string) error
	SetSpatialFilter(geomField int, g *geom.Geometry) error

	// SetIgnoredFields is a hint; drivers may still return the columns.
	SetIgnoredFields(names []string) error

	Metadata() map[string]string
	FIDColumn() string
	Capabilities() LayerCapabilities
}

// WritableLayer is a layer of a dataset opened for update.
type WritableLayer interface {
	Layer

	CreateField(f FieldDefn, approxOK bool) error
	CreateGeomField(f GeomFieldDefn) error

	// CreateFeature writes f and stores the assigned identifier in f.FID.
	CreateFeature(f *Feature) error
	// UpsertFeature replaces the feature with f.FID or inserts it.
	UpsertFeature(f *Feature) error

	SetMetadata(md map[string]string) error

	StartTransaction() error
	CommitTransaction() error
	RollbackTransaction() error
}

// Dataset is a collection of layers.
type Dataset interface {
	Name() string
	LayerCount() int
	Layer(i int) Layer

	// LayerByName matches exactly first and then case insensitively. It
	// returns nil when no layer matches.
	LayerByName(name string) Layer

	CreateLayer(name string, geomField *GeomFieldDefn, options map[string]string) (WritableLayer, error)
	DeleteLayer(i int) error

	Capabilities() DatasetCapabilities

	// LayerCreationOptionList returns the creation option names understood
	// by CreateLayer.
	LayerCreationOptionList() []string

	// StartTransaction opens a dataset wide transaction. With force set,
	// drivers without native transactions may emulate one.
	StartTransaction(force bool) error
	CommitTransaction() error
	RollbackTransaction() error

	Metadata() map[string]string
	SetMetadata(md map[string]string) error

	Close() error
}

// InterleavedReader is implemented by datasets whose features must be read
// in file order across layers.
type InterleavedReader interface {
	// NextFeature returns the next feature and the layer it belongs to, or
	// io.EOF once every layer is exhausted.
	NextFeature() (*Feature, Layer, error)
}

// ByteOffsetReporter is implemented by streaming layers that can report how
// far into their input they have read.
type ByteOffsetReporter interface {
	ByteOffset() int64
	ByteSize() int64
}

// LayerIndex returns the position of l in ds, or -1.
func LayerIndex(ds Dataset, l Layer) int {
	for i := 0; i < ds.LayerCount(); i++ {
		if ds.Layer(i) == l {
			return i
		}
	}
	return -1
}
