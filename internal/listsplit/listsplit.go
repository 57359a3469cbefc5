// Package listsplit wraps a layer so that list columns appear as scalar
// columns.
//
// A list column "depths" whose records hold at most three elements becomes
// "depths1", "depths2" and "depths3". With a cap of one it becomes a single
// column still named "depths" that holds the first element.
package listsplit

import (
	"errors"
	"fmt"
	"io"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// ErrInterrupted is returned by New when the progress callback stops the
// pre-scan.
var ErrInterrupted = errors.New("listsplit: scan interrupted")

// Descriptor describes one list column of the source.
type Descriptor struct {
	SrcIndex int
	ElemType vector.FieldType
	// MaxCount is the number of output columns.
	MaxCount int
	// MaxWidth is the longest string element seen, 0 for numeric lists.
	MaxWidth int
}

// Layer is a read-only layer that presents the list columns of its source
// as scalar columns.
type Layer struct {
	src    vector.Layer
	schema *vector.Schema
	lists  []Descriptor
	// listAt maps a source column index to its position in lists, or -1.
	listAt []int
}

// New scans src and returns the decorator. maxSplit caps the number of
// columns per list; values <= 0 mean no cap. With maxSplit == 1 no scan is
// made.
//
// progress, when not nil, receives the fraction of the scan done. It is only
// called when the source can count its features cheaply. Returning false
// stops the scan with ErrInterrupted.
func New(src vector.Layer, maxSplit int, progress func(float64) bool) (*Layer, error) {
	srcSchema := src.Schema()
	l := &Layer{src: src, listAt: make([]int, len(srcSchema.Fields))}
	for i, f := range srcSchema.Fields {
		l.listAt[i] = -1
		if !f.Type.IsList() {
			continue
		}
		d := Descriptor{SrcIndex: i, ElemType: f.Type.Elem()}
		if maxSplit == 1 {
			d.MaxCount = 1
		}
		l.listAt[i] = len(l.lists)
		l.lists = append(l.lists, d)
	}

	if len(l.lists) == 0 {
		l.schema = srcSchema
		return l, nil
	}

	if maxSplit != 1 {
		if err := l.scan(maxSplit, progress); err != nil {
			return nil, err
		}
	}
	l.schema = l.buildSchema(srcSchema)
	return l, nil
}

func (l *Layer) scan(maxSplit int, progress func(float64) bool) error {
	l.src.ResetReading()
	defer l.src.ResetReading()

	var total int64
	if progress != nil && l.src.Capabilities().FastFeatureCount {
		total = l.src.FeatureCount(false)
	}

	var n int64
	for {
		f, err := l.src.NextFeature()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("listsplit: scanning %q: %w", l.src.Name(), err)
		}
		for i := range l.lists {
			d := &l.lists[i]
			v := f.Field(d.SrcIndex)
			count := v.Len()
			if d.ElemType == vector.String {
				for _, s := range v.StringList() {
					if len(s) > d.MaxWidth {
						d.MaxWidth = len(s)
					}
				}
			}
			if maxSplit > 0 && count > maxSplit {
				count = maxSplit
			}
			if count > d.MaxCount {
				d.MaxCount = count
			}
		}
		n++
		if total > 0 && !progress(float64(n)/float64(total)) {
			return ErrInterrupted
		}
	}
	return nil
}

func (l *Layer) buildSchema(src *vector.Schema) *vector.Schema {
	out := &vector.Schema{GeomFields: append([]vector.GeomFieldDefn(nil), src.GeomFields...)}
	for i, f := range src.Fields {
		li := l.listAt[i]
		if li < 0 {
			out.Fields = append(out.Fields, f)
			continue
		}
		d := l.lists[li]
		if d.MaxCount == 1 {
			out.Fields = append(out.Fields, vector.NewFieldDefn(f.Name, d.ElemType))
			continue
		}
		for j := 1; j <= d.MaxCount; j++ {
			fd := vector.NewFieldDefn(fmt.Sprintf("%s%d", f.Name, j), d.ElemType)
			fd.Width = d.MaxWidth
			out.Fields = append(out.Fields, fd)
		}
	}
	return out
}

// Lists returns the list column descriptors.
func (l *Layer) Lists() []Descriptor { return append([]Descriptor(nil), l.lists...) }

// Source returns the wrapped layer.
func (l *Layer) Source() vector.Layer { return l.src }

func (l *Layer) Name() string                           { return l.src.Name() }
func (l *Layer) Schema() *vector.Schema                 { return l.schema }
func (l *Layer) ResetReading()                          { l.src.ResetReading() }
func (l *Layer) FeatureCount(force bool) int64          { return l.src.FeatureCount(force) }
func (l *Layer) SetAttributeFilter(where string) error  { return l.src.SetAttributeFilter(where) }
func (l *Layer) Metadata() map[string]string            { return l.src.Metadata() }
func (l *Layer) FIDColumn() string                      { return l.src.FIDColumn() }
func (l *Layer) Capabilities() vector.LayerCapabilities { return l.src.Capabilities() }

func (l *Layer) SetSpatialFilter(geomField int, g *geom.Geometry) error {
	return l.src.SetSpatialFilter(geomField, g)
}

// SetIgnoredFields forwards the names of unsplit columns. Split columns are
// always read.
func (l *Layer) SetIgnoredFields(names []string) error {
	if len(l.lists) == 0 {
		return l.src.SetIgnoredFields(names)
	}
	srcSchema := l.src.Schema()
	var keep []string
	for _, n := range names {
		if i := srcSchema.FieldIndex(n); i >= 0 && l.listAt[i] < 0 {
			keep = append(keep, n)
		}
	}
	return l.src.SetIgnoredFields(keep)
}

func (l *Layer) NextFeature() (*vector.Feature, error) {
	f, err := l.src.NextFeature()
	if err != nil {
		return nil, err
	}
	return l.Translate(f)
}

func (l *Layer) GetFeature(fid int64) (*vector.Feature, error) {
	f, err := l.src.GetFeature(fid)
	if err != nil {
		return nil, err
	}
	return l.Translate(f)
}

// Translate converts a source feature. Geometries are moved out of src.
// Without list columns src itself is returned. An element that does not
// convert to the column type fails the feature.
func (l *Layer) Translate(src *vector.Feature) (*vector.Feature, error) {
	if len(l.lists) == 0 {
		return src, nil
	}
	out := vector.NewFeature(l.schema)
	out.FID = src.FID
	out.Style = src.Style
	for i := range out.Geoms {
		out.SetGeometry(i, src.TakeGeometry(i))
	}

	dst := 0
	for i, v := range src.Fields {
		li := l.listAt[i]
		if li < 0 {
			out.Fields[dst] = v
			dst++
			continue
		}
		d := l.lists[li]
		n := v.Len()
		if n > d.MaxCount {
			n = d.MaxCount
		}
		for j := 0; j < n; j++ {
			e, err := v.Elem(j).Convert(d.ElemType)
			if err != nil {
				return nil, fmt.Errorf("listsplit: feature %d, column %q element %d: %w",
					src.FID, l.src.Schema().Fields[i].Name, j+1, err)
			}
			out.Fields[dst+j] = e
		}
		dst += d.MaxCount
	}
	return out, nil
}
