package memory

import (
	"github.com/dhconnelly/rtreego"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// indexEntry is a stored feature envelope in the spatial index.
type indexEntry struct {
	pos int
	env geom.Envelope
}

// Bounds implements rtreego.Spatial.
func (e indexEntry) Bounds() rtreego.Rect {
	return e.env.Rect()
}

// spatialFilter selects features whose geometry intersects a filter
// geometry. Candidates come from an R-tree of feature envelopes that is
// rebuilt lazily after the layer changes.
type spatialFilter struct {
	layer  *Layer
	filter *vector.SpatialFilter

	rtree *rtreego.Rtree
	hits  map[int]bool
}

func newSpatialFilter(l *Layer, geomField int, g *geom.Geometry) (*spatialFilter, error) {
	return &spatialFilter{layer: l, filter: vector.NewSpatialFilter(geomField, g)}, nil
}

// invalidateIndex drops the spatial index so the next read rebuilds it.
func (l *Layer) invalidateIndex() {
	if l.spatial != nil {
		l.spatial.rtree = nil
		l.spatial.hits = nil
	}
}

func (s *spatialFilter) build() {
	// Create R-tree (2D, min=25 children, max=50 children)
	s.rtree = rtreego.NewTree(2, 25, 50)
	for pos, sf := range s.layer.features {
		g := featureGeom(sf.feat, s.filter.GeomField)
		if g == nil || g.IsEmpty() {
			continue
		}
		s.rtree.Insert(indexEntry{pos: pos, env: g.Envelope()})
	}

	s.hits = map[int]bool{}
	env := s.filter.Envelope()
	if env.IsEmpty() {
		return
	}
	for _, spatial := range s.rtree.SearchIntersect(env.Rect()) {
		s.hits[spatial.(indexEntry).pos] = true
	}
}

func (s *spatialFilter) match(pos int, f *vector.Feature) bool {
	if s.rtree == nil {
		s.build()
	}
	return s.hits[pos] && s.filter.Match(f)
}

func featureGeom(f *vector.Feature, i int) *geom.Geometry {
	if i < 0 || i >= len(f.Geoms) {
		return nil
	}
	return f.Geoms[i]
}
