package geojson

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// SeqDataset is a read-only GeoJSON sequence streamed from disk.
type SeqDataset struct {
	path  string
	layer *SeqLayer
}

// SeqLayer streams the features of a sequence. It reports its byte offset
// so callers can show progress without counting features first.
type SeqLayer struct {
	path   string
	name   string
	schema *vector.Schema

	file   *os.File
	r      *bufio.Reader
	offset int64
	size   int64
	index  int64

	filter  *vector.Filter
	spatial *vector.SpatialFilter
}

// OpenSeq opens a sequence for streaming. The file is read once up front to
// infer the schema.
func OpenSeq(path string) (*SeqDataset, error) {
	b := newSchemaBuilder()
	err := scanSeq(path, func(line []byte) error {
		f, keys, err := decodeFeature(line)
		if err != nil {
			return err
		}
		b.add(f, keys)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("geojson: %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("geojson: %w", err)
	}
	l := &SeqLayer{
		path:   path,
		name:   layerName(path),
		schema: b.schema(srs.WGS84()),
		file:   file,
		r:      bufio.NewReader(file),
		size:   st.Size(),
	}
	return &SeqDataset{path: path, layer: l}, nil
}

// scanSeq calls fn for each record of the file at path.
func scanSeq(path string, fn func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	r := bufio.NewReader(file)
	for {
		line, err := r.ReadBytes('\n')
		if rec := trimRecord(line); len(rec) > 0 {
			if ferr := fn(rec); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *SeqDataset) Name() string   { return d.path }
func (d *SeqDataset) LayerCount() int { return 1 }

func (d *SeqDataset) Layer(i int) vector.Layer {
	if i != 0 {
		return nil
	}
	return d.layer
}

func (d *SeqDataset) LayerByName(name string) vector.Layer {
	if strings.EqualFold(name, d.layer.name) {
		return d.layer
	}
	return nil
}

func (d *SeqDataset) CreateLayer(name string, _ *vector.GeomFieldDefn, _ map[string]string) (vector.WritableLayer, error) {
	return nil, fmt.Errorf("geojson: %s opened read-only: %w", d.path, vector.ErrNotSupported)
}

func (d *SeqDataset) DeleteLayer(int) error {
	return fmt.Errorf("geojson: %s opened read-only: %w", d.path, vector.ErrNotSupported)
}

func (d *SeqDataset) Capabilities() vector.DatasetCapabilities { return vector.DatasetCapabilities{} }
func (d *SeqDataset) LayerCreationOptionList() []string          { return nil }

func (d *SeqDataset) StartTransaction(bool) error {
	return fmt.Errorf("geojson: %w", vector.ErrNotSupported)
}
func (d *SeqDataset) CommitTransaction() error   { return vector.ErrNoTransaction }
func (d *SeqDataset) RollbackTransaction() error { return vector.ErrNoTransaction }

func (d *SeqDataset) Metadata() map[string]string { return map[string]string{} }

func (d *SeqDataset) SetMetadata(map[string]string) error {
	return fmt.Errorf("geojson: %w", vector.ErrNotSupported)
}

func (d *SeqDataset) Close() error { return d.layer.file.Close() }

func (l *SeqLayer) Name() string                { return l.name }
func (l *SeqLayer) Schema() *vector.Schema      { return l.schema }
func (l *SeqLayer) FIDColumn() string           { return "" }
func (l *SeqLayer) Metadata() map[string]string { return map[string]string{} }

func (l *SeqLayer) Capabilities() vector.LayerCapabilities {
	return vector.LayerCapabilities{}
}

// ByteOffset returns how many bytes of the file have been consumed.
func (l *SeqLayer) ByteOffset() int64 { return l.offset }

// ByteSize returns the file size at open.
func (l *SeqLayer) ByteSize() int64 { return l.size }

func (l *SeqLayer) ResetReading() {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	l.r.Reset(l.file)
	l.offset, l.index = 0, 0
}

func (l *SeqLayer) NextFeature() (*vector.Feature, error) {
	for {
		line, err := l.r.ReadBytes('\n')
		l.offset += int64(len(line))
		if rec := trimRecord(line); len(rec) > 0 {
			f, derr := l.decode(rec, l.index)
			l.index++
			if derr != nil {
				return nil, derr
			}
			if l.matches(f) {
				return f, nil
			}
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("geojson: %s: %w", l.path, err)
		}
	}
}

func (l *SeqLayer) decode(rec []byte, index int64) (*vector.Feature, error) {
	src, _, err := decodeFeature(rec)
	if err != nil {
		return nil, fmt.Errorf("geojson: %s: feature %d: %w", l.path, index, err)
	}
	f, err := toFeature(l.schema, src, index)
	if err != nil {
		return nil, fmt.Errorf("geojson: %s: feature %d: %w", l.path, index, err)
	}
	return f, nil
}

func (l *SeqLayer) matches(f *vector.Feature) bool {
	if l.filter != nil && !l.filter.Match(f) {
		return false
	}
	return l.spatial == nil || l.spatial.Match(f)
}

// GetFeature scans the file for the feature with the given FID.
func (l *SeqLayer) GetFeature(fid int64) (*vector.Feature, error) {
	var (
		found *vector.Feature
		index int64
	)
	err := scanSeq(l.path, func(rec []byte) error {
		if found != nil {
			return nil
		}
		f, err := l.decode(rec, index)
		index++
		if err != nil {
			return err
		}
		if f.FID == fid {
			found = f
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("geojson: feature %d: %w", fid, vector.ErrNoSuchFeature)
	}
	return found, nil
}

// FeatureCount needs a full scan, so it returns -1 unless force is set.
func (l *SeqLayer) FeatureCount(force bool) int64 {
	if !force {
		return -1
	}
	var n, index int64
	err := scanSeq(l.path, func(rec []byte) error {
		f, err := l.decode(rec, index)
		index++
		if err != nil {
			return err
		}
		if l.matches(f) {
			n++
		}
		return nil
	})
	if err != nil {
		return -1
	}
	return n
}

func (l *SeqLayer) SetAttributeFilter(where string) error {
	if where == "" {
		l.filter = nil
		return nil
	}
	f, err := vector.CompileFilter(where, l.schema)
	if err != nil {
		return err
	}
	l.filter = f
	return nil
}

func (l *SeqLayer) SetSpatialFilter(geomField int, g *geom.Geometry) error {
	if g == nil {
		l.spatial = nil
		return nil
	}
	if geomField < 0 || geomField >= len(l.schema.GeomFields) {
		return fmt.Errorf("geojson: geometry field %d out of range", geomField)
	}
	l.spatial = vector.NewSpatialFilter(geomField, g)
	return nil
}

func (l *SeqLayer) SetIgnoredFields([]string) error {
	return fmt.Errorf("geojson: ignored fields: %w", vector.ErrNotSupported)
}
