package translate

import (
	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// Resolver attaches coordinate transforms to the geometry columns of a
// TargetLayerInfo. One Resolver serves every layer of a run.
type Resolver struct {
	// SourceSRS overrides the CRS of every source geometry column.
	SourceSRS *srs.CRS
	// OutputSRS is the reprojection target. Reprojection is off when nil.
	OutputSRS *srs.CRS
	// GCP, when set, runs before the CRS transform.
	GCP  srs.Transformer
	Wrap geom.WrapOptions

	cache      *srs.TransformCache
	log        *logger
	warnedWrap bool
}

// newResolver returns a resolver whose transforms come from cache.
func newResolver(cache *srs.TransformCache, l *logger) *Resolver {
	if l == nil {
		l = newLogger(&Options{})
	}
	return &Resolver{cache: cache, log: l}
}

func (r *Resolver) reprojecting() bool { return r.OutputSRS != nil }

// ResolveTransforms fills the transform of every destination geometry
// column of info that is not resolved yet, or that is resolved per record.
//
// The source CRS is SourceSRS, else the CRS declared by the source column,
// else the CRS of the sample geometry. The last case marks the column per
// record. With a nil sample such columns stay unresolved and no error is
// returned, so the caller can retry once a record has been read.
func (r *Resolver) ResolveTransforms(info *reconcile.TargetLayerInfo, sample *vector.Feature) error {
	srcGeoms := info.Src.Schema().GeomFields
	for i := range info.Geoms {
		gt := &info.Geoms[i]
		if gt.SrcIndex < 0 || gt.SrcIndex >= len(srcGeoms) {
			gt.Resolved = true
			continue
		}
		if gt.Resolved && !gt.PerRecord {
			continue
		}

		src := r.SourceSRS
		if src == nil {
			src = srcGeoms[gt.SrcIndex].CRS
		}
		perRecord := false
		if src == nil {
			if sample == nil {
				continue
			}
			if g := sample.Geometry(gt.SrcIndex); g != nil {
				src = g.CRS
			}
			perRecord = r.reprojecting() || r.Wrap.Enabled
		}

		if err := r.resolveColumn(info, gt, src); err != nil {
			return err
		}
		gt.PerRecord = perRecord
		if perRecord {
			info.PerRecordCT = true
		}
	}
	return nil
}

func (r *Resolver) resolveColumn(info *reconcile.TargetLayerInfo, gt *reconcile.GeomTarget, src *srs.CRS) error {
	if gt.Resolved && gt.SrcCRS == src {
		return nil
	}

	var ct srs.Transformer
	switch {
	case r.reprojecting():
		if src == nil {
			return &SetupError{Kind: NoSourceCRS, Layer: info.Src.Name(),
				Msg: "can't transform coordinates, source layer has no coordinate system; set a source CRS"}
		}
		crsCT, err := r.cache.Get(src, r.OutputSRS)
		if err != nil {
			return &SetupError{Kind: TransformConstruction, Layer: info.Src.Name(),
				Msg: "cannot create a transformation from " + src.String() + " to " + r.OutputSRS.String(), Err: err}
		}
		ct = crsCT
		if r.GCP != nil {
			ct = srs.NewComposite(r.GCP, crsCT)
		}
	case src != nil && gt.CRS != nil && src.IsSame(gt.CRS) && src.SwapsAxes() != gt.CRS.SwapsAxes():
		ct = srs.NewAxisSwap(src, gt.CRS)
		if r.GCP != nil {
			ct = srs.NewComposite(r.GCP, ct)
		}
	case r.GCP != nil:
		ct = r.GCP
	}

	gt.Transform = ct
	gt.SrcCRS = src
	gt.Wrap = geom.WrapOptions{}
	if r.Wrap.Enabled {
		switch {
		case ct != nil && r.reprojecting() && r.OutputSRS.IsGeographic():
			gt.Wrap = r.Wrap
		case !r.reprojecting() && src.IsGeographic():
			gt.Wrap = r.Wrap
		case !r.warnedWrap:
			r.log.warnf("dateline wrapping only works when reprojecting to a geographic CRS")
			r.warnedWrap = true
		}
	}
	gt.Resolved = true
	return nil
}
