package translate

import (
	"errors"
	"fmt"
	"io"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// clipCache holds a clip area and its reprojections, keyed by the CRS
// pointer of the geometries it is applied to.
type clipCache struct {
	orig   *geom.Geometry
	cache  *srs.TransformCache
	log    *logger
	which  string
	byCRS  map[*srs.CRS]*geom.Clipper
	warned bool
}

func newClipCache(g *geom.Geometry, cache *srs.TransformCache, log *logger, which string) (*clipCache, error) {
	// fail early on clip areas the clipper cannot use
	if _, err := geom.NewClipper(g); err != nil {
		return nil, &SetupError{Kind: ClipGeometry, Msg: "cannot use " + which + " clip geometry", Err: err}
	}
	return &clipCache{orig: g, cache: cache, log: log, which: which, byCRS: map[*srs.CRS]*geom.Clipper{}}, nil
}

// forCRS returns the clipper for geometries in c, or nil when the clip area
// cannot be expressed in c.
func (cc *clipCache) forCRS(c *srs.CRS) *geom.Clipper {
	if cl, ok := cc.byCRS[c]; ok {
		return cl
	}
	g := cc.orig
	switch {
	case g.CRS != nil && c != nil && !g.CRS.IsSame(c):
		g = g.Clone()
		ct, err := cc.cache.Get(g.CRS, c)
		if err == nil {
			err = geom.Transform(g, ct)
		}
		if err != nil {
			cc.log.errorf("cannot reproject the %s clip geometry from %s to %s: %v", cc.which, cc.orig.CRS, c, err)
			cc.byCRS[c] = nil
			return nil
		}
	case g.CRS == nil && c != nil && !cc.warned:
		cc.log.warnf("the %s clip geometry has no CRS, assuming it is in %s", cc.which, c)
		cc.warned = true
	}
	cl, err := geom.NewClipper(g)
	if err != nil {
		cc.log.errorf("cannot use the %s clip geometry in %s: %v", cc.which, c, err)
		cl = nil
	}
	cc.byCRS[c] = cl
	return cl
}

// loadClip resolves a ClipSpec into a geometry.
func loadClip(spec *ClipSpec, o *Options) (*geom.Geometry, error) {
	switch {
	case spec.Geometry != nil:
		return spec.Geometry.Clone(), nil
	case spec.WKT != "":
		return geom.ParseWKT(spec.WKT)
	case spec.File != "":
		return loadClipFile(spec)
	case spec.SpatExtent && o.SpatialFilter != nil:
		g := o.SpatialFilter.Clone()
		if o.SpatSRS != nil {
			g.AssignCRS(o.SpatSRS)
		}
		return g, nil
	}
	return nil, errors.New("no clip geometry given")
}

// loadClipFile collects the polygons of a dataset layer into one
// multipolygon in the CRS of the layer.
func loadClipFile(spec *ClipSpec) (*geom.Geometry, error) {
	ds, err := vector.Open(spec.File, "", false)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	var l vector.Layer
	if spec.Layer != "" {
		l = ds.LayerByName(spec.Layer)
	} else if ds.LayerCount() > 0 {
		l = ds.Layer(0)
	}
	if l == nil {
		return nil, fmt.Errorf("failed to identify source layer from %s: %w", spec.File, vector.ErrNoSuchLayer)
	}
	if spec.Where != "" {
		if err := l.SetAttributeFilter(spec.Where); err != nil {
			return nil, err
		}
	}

	var crs *srs.CRS
	if gf := l.Schema().GeomFields; len(gf) > 0 {
		crs = gf[0].CRS
	}
	out := geom.NewCollection(geom.MultiPolygon)
	l.ResetReading()
	for {
		f, err := l.NextFeature()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		g := f.TakeGeometry(0)
		if g == nil || g.Dimension() != 2 {
			continue
		}
		if g.Type.IsCurve() {
			g = geom.Linearize(g)
		}
		switch g.Flat() {
		case geom.Polygon:
			out.Parts = append(out.Parts, g)
		case geom.MultiPolygon, geom.GeometryCollection:
			for _, p := range g.TakeParts() {
				if p.Flat() == geom.Polygon {
					out.Parts = append(out.Parts, p)
				}
			}
		}
	}
	if out.IsEmpty() {
		return nil, fmt.Errorf("no polygon found in %s", spec.File)
	}
	out.AssignCRS(crs)
	return out, nil
}
