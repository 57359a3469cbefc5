package translate

import (
	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// geomOp is one stage of the per geometry column operations. Stages run in
// declaration order.
type geomOp int

const (
	opZ geomOp = iota
	opCoordDim
	opSegmentize
	opSimplify
	opClipSrc
	opReproject
	opClipDst
	opForceType
	opConvertType
)

func (op geomOp) String() string {
	switch op {
	case opZ:
		return "z"
	case opCoordDim:
		return "coordinate dimension"
	case opSegmentize:
		return "segmentize"
	case opSimplify:
		return "simplify"
	case opClipSrc:
		return "source clip"
	case opReproject:
		return "reproject"
	case opClipDst:
		return "destination clip"
	case opForceType:
		return "force type"
	case opConvertType:
		return "convert type"
	}
	return "unknown"
}

// planOps returns the stages a layer needs. Reprojection is always present
// because it also assigns the output CRS.
func planOps(o *Options, info *reconcile.TargetLayerInfo, clipSrc, clipDst *clipCache) []geomOp {
	var ops []geomOp
	if info.ZField >= 0 {
		ops = append(ops, opZ)
	}
	if o.CoordDim != reconcile.CoordDimUnchanged {
		ops = append(ops, opCoordDim)
	}
	if o.Segmentize > 0 {
		ops = append(ops, opSegmentize)
	} else if o.Simplify > 0 {
		ops = append(ops, opSimplify)
	}
	if clipSrc != nil {
		ops = append(ops, opClipSrc)
	}
	ops = append(ops, opReproject)
	if clipDst != nil {
		ops = append(ops, opClipDst)
	}
	if o.ForceGeomType {
		ops = append(ops, opForceType)
	} else if o.GeomConversion != geom.ConversionNone {
		ops = append(ops, opConvertType)
	}
	return ops
}

// geomJob is one destination geometry of one record going through the
// stages.
type geomJob struct {
	col    int
	g      *geom.Geometry
	src    *vector.Feature
	srcFID int64
}

// apply runs op on job.g. It returns outcomeDropped when the record must be
// discarded silently.
func (lt *layerTranslator) apply(op geomOp, job *geomJob) (outcome, error) {
	o := lt.t.opts
	gt := &lt.info.Geoms[job.col]
	switch op {
	case opZ:
		if job.src != nil {
			geom.SetZ(job.g, job.src.Field(lt.info.ZField).Real())
		}

	case opCoordDim:
		switch o.CoordDim {
		case reconcile.CoordDim2:
			job.g.SetCoordinateDimension(2)
		case reconcile.CoordDim3:
			job.g.SetCoordinateDimension(3)
		case reconcile.CoordDimXYM:
			job.g.Set3D(false)
			job.g.SetMeasured(true)
		case reconcile.CoordDimXYZM:
			job.g.Set3D(true)
			job.g.SetMeasured(true)
		case reconcile.CoordDimLayer:
			job.g.Set3D(gt.Type.HasZ())
			job.g.SetMeasured(gt.Type.HasM())
		}

	case opSegmentize:
		geom.Segmentize(job.g, o.Segmentize)

	case opSimplify:
		job.g = geom.SimplifyPreserveTopology(job.g, o.Simplify)

	case opClipSrc:
		return lt.clip(lt.t.clipSrc, job, "source")

	case opReproject:
		if gt.Transform == nil && !gt.Wrap.Enabled {
			if lt.outCRS != nil {
				job.g.AssignCRS(lt.outCRS)
			}
			break
		}
		if gt.Transform != nil {
			if err := geom.Transform(job.g, gt.Transform); err != nil {
				return outcomeFatal, &RecordError{FID: job.srcFID, Layer: lt.info.Src.Name(), Op: "reproject", Err: err}
			}
		}
		if gt.Wrap.Enabled {
			job.g = geom.WrapDateline(job.g, gt.Wrap)
		}

	case opClipDst:
		return lt.clip(lt.t.clipDst, job, "destination")

	case opForceType:
		t := o.GeomType
		if o.CoordDim != reconcile.CoordDimLayer {
			t = reconcile.ForceCoordDim(t, o.CoordDim)
		}
		job.g = geom.ForceTo(job.g, t)

	case opConvertType:
		job.g = geom.ForceTo(job.g, geom.ConvertType(o.GeomConversion, job.g.Type))
	}
	return outcomeOK, nil
}

// clip intersects job.g with the clip area expressed in the CRS of the
// geometry. A record whose intersection is empty or cannot be computed, or
// is of lower dimension than the input when the destination column has a
// definite type, is dropped.
func (lt *layerTranslator) clip(cc *clipCache, job *geomJob, which string) (outcome, error) {
	c := cc.forCRS(job.g.CRS)
	if c == nil {
		return outcomeDropped, nil
	}
	clipped, err := c.Intersection(job.g)
	if err != nil {
		lt.t.log.warnf("discarding feature %d of layer %s, as its intersection with the %s clip failed: %v",
			job.srcFID, lt.info.Src.Name(), which, err)
		return outcomeDropped, nil
	}
	if clipped == nil || clipped.IsEmpty() {
		return outcomeDropped, nil
	}
	if clipped.Dimension() < job.g.Dimension() && lt.info.Geoms[job.col].Type.Flat() != geom.Unknown {
		lt.t.log.debugf("discarding feature %d of layer %s, as its intersection with the %s clip is a %s whereas the input is a %s",
			job.srcFID, lt.info.Src.Name(), which, clipped.Type, job.g.Type)
		return outcomeDropped, nil
	}
	job.g = clipped
	return outcomeOK, nil
}
