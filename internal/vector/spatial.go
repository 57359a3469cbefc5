package vector

import "github.com/beetlebugorg/ogrtranslate/internal/geom"

// SpatialFilter tests feature geometries against a filter geometry. The
// envelope test is exact for rectangles; polygonal filters are refined with
// a geom.Clipper, other shapes stop at the envelope test.
type SpatialFilter struct {
	GeomField int
	env       geom.Envelope
	clipper   *geom.Clipper
}

// NewSpatialFilter returns a filter on geometry column geomField.
func NewSpatialFilter(geomField int, g *geom.Geometry) *SpatialFilter {
	sf := &SpatialFilter{GeomField: geomField, env: g.Envelope()}
	if c, err := geom.NewClipper(g); err == nil {
		sf.clipper = c
	}
	return sf
}

// Envelope returns the envelope of the filter geometry.
func (s *SpatialFilter) Envelope() geom.Envelope { return s.env }

// Match reports whether the filtered geometry of f intersects the filter.
func (s *SpatialFilter) Match(f *Feature) bool {
	if s.GeomField < 0 || s.GeomField >= len(f.Geoms) {
		return false
	}
	return s.MatchGeometry(f.Geoms[s.GeomField])
}

// MatchGeometry reports whether g intersects the filter.
func (s *SpatialFilter) MatchGeometry(g *geom.Geometry) bool {
	if g == nil || !s.env.Intersects(g.Envelope()) {
		return false
	}
	return s.clipper == nil || s.clipper.Intersects(g)
}
