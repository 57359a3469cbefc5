package translate

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// outcome is the fate of one record, or of one part of an exploded record.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeSkip
	outcomeDropped
	outcomeFatal
)

// LayerStats counts the records of one source layer.
type LayerStats struct {
	Source      string
	Destination string

	// Read counts source records, Written destination records. An exploded
	// record counts once in Read and once per part in Written.
	Read    int64
	Written int64
	// Skipped counts records lost to a failure under SkipFailures.
	Skipped int64
	// Dropped counts records discarded by clipping.
	Dropped int64
}

// layerTranslator moves the records of one source layer into its
// destination layer.
type layerTranslator struct {
	t     *translator
	info  *reconcile.TargetLayerInfo
	stats *LayerStats

	dstSchema *vector.Schema
	outCRS    *srs.CRS
	explode   bool
	// shared marks source geometry columns feeding more than one
	// destination column; they are copied instead of moved.
	shared   map[int]bool
	ops      []geomOp
	progress progress

	inTx  bool
	nInTx int
}

func newLayerTranslator(t *translator, info *reconcile.TargetLayerInfo, stats *LayerStats) *layerTranslator {
	o := t.opts
	lt := &layerTranslator{
		t:         t,
		info:      info,
		stats:     stats,
		dstSchema: info.Dst.Schema(),
		shared:    map[int]bool{},
		progress:  noProgress{},
	}
	lt.explode = o.ExplodeCollections && len(lt.dstSchema.GeomFields) <= 1
	lt.ops = planOps(o, info, t.clipSrc, t.clipDst)

	srcGeoms := info.Src.Schema().GeomFields
	switch {
	case o.NullifyOutputSRS:
	case o.OutputSRS != nil:
		lt.outCRS = o.OutputSRS
	case o.SourceSRS != nil:
		lt.outCRS = o.SourceSRS
	case info.RequestedSrcGeomField >= 0 && info.RequestedSrcGeomField < len(srcGeoms):
		lt.outCRS = srcGeoms[info.RequestedSrcGeomField].CRS
	case len(srcGeoms) == 1:
		lt.outCRS = srcGeoms[0].CRS
	}

	seen := map[int]bool{}
	for _, g := range info.Geoms {
		if g.SrcIndex < 0 {
			continue
		}
		if seen[g.SrcIndex] {
			lt.shared[g.SrcIndex] = true
		}
		seen[g.SrcIndex] = true
	}
	return lt
}

// run translates records until the source layer is exhausted, the limit is
// reached or a fatal error occurs. With in set, only that record is
// translated; this is how interleaved sources feed their layers.
func (lt *layerTranslator) run(in *vector.Feature) error {
	t := lt.t
	o := t.opts
	info := lt.info

	if err := lt.beginLayerTx(); err != nil {
		return err
	}
	fed := in != nil
	single := fed || o.FIDToFetch != vector.NullFID
	for {
		if o.Limit >= 0 && info.FeaturesRead >= o.Limit {
			break
		}
		if err := t.ctx.Err(); err != nil {
			lt.abort()
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}

		f, err := lt.next(&in)
		if err == io.EOF {
			break
		}
		if err != nil {
			lt.abort()
			return fmt.Errorf("reading layer %s: %w", info.Src.Name(), err)
		}

		if info.PerRecordCT || unresolved(info) {
			if err := t.resolver.ResolveTransforms(info, f); err != nil {
				lt.abort()
				return err
			}
		}
		info.FeaturesRead++
		lt.stats.Read++

		if err := lt.translate(f); err != nil {
			lt.abort()
			return err
		}
		if !lt.progress.record(lt.stats.Read) {
			lt.abort()
			return ErrInterrupted
		}
		if single {
			break
		}
	}
	if !fed && !lt.progress.done() {
		lt.abort()
		return ErrInterrupted
	}
	return lt.endLayerTx()
}

func (lt *layerTranslator) next(in **vector.Feature) (*vector.Feature, error) {
	if *in != nil {
		f := *in
		*in = nil
		return f, nil
	}
	if lt.info.FeaturesRead > 0 && lt.t.opts.FIDToFetch != vector.NullFID {
		return nil, io.EOF
	}
	if fid := lt.t.opts.FIDToFetch; fid != vector.NullFID {
		f, err := lt.info.Src.GetFeature(fid)
		if errors.Is(err, vector.ErrNoSuchFeature) {
			return nil, io.EOF
		}
		return f, err
	}
	return lt.info.Src.NextFeature()
}

func unresolved(info *reconcile.TargetLayerInfo) bool {
	for _, g := range info.Geoms {
		if !g.Resolved {
			return true
		}
	}
	return false
}

// translate maps one source record to one destination record, or to one per
// part when exploding collections, and writes them.
func (lt *layerTranslator) translate(f *vector.Feature) error {
	o := lt.t.opts
	info := lt.info
	srcFID := f.FID

	if len(info.Geoms) == 0 && lt.t.clipSrc != nil {
		if g := f.Geometry(max(info.RequestedSrcGeomField, 0)); g != nil {
			c := lt.t.clipSrc.forCRS(g.CRS)
			if c == nil || !c.Intersects(g) {
				lt.stats.Dropped++
				return nil
			}
		}
	}

	iters := 1
	explodeCol := -1
	var parts []*geom.Geometry
	if lt.explode {
		si := max(info.RequestedSrcGeomField, 0)
		if g := f.Geometry(si); g != nil && g.Type.IsCollection() && len(g.Parts) > 0 {
			parts = f.TakeGeometry(si).TakeParts()
			iters = len(parts)
			explodeCol = si
		}
	}

	desired := vector.NullFID
	switch {
	case info.PreserveFID:
		desired = srcFID
	case info.SrcFIDField >= 0:
		if v := f.Field(info.SrcFIDField); v.Valid() {
			desired = v.Int()
		}
	}

	for part := 0; part < iters; part++ {
		if err := lt.batchBoundary(); err != nil {
			return err
		}

		out, err := lt.mapRecord(f, explodeCol, parts, part)
		if err != nil {
			rerr := &RecordError{FID: srcFID, Layer: info.Src.Name(), Op: "map", Err: err}
			if !o.SkipFailures {
				return rerr
			}
			lt.t.log.errorf("%v", rerr)
			lt.stats.Skipped++
			return nil
		}
		out.FID = desired
		lt.convertValues(out)

		switch oc, err := lt.geometries(out, f, srcFID); oc {
		case outcomeDropped:
			lt.stats.Dropped++
			continue
		case outcomeFatal, outcomeSkip:
			if !o.SkipFailures {
				return err
			}
			lt.t.log.errorf("%v", err)
			lt.stats.Skipped++
			continue
		}

		if err := lt.write(out, desired, srcFID); err != nil {
			return err
		}
	}
	return nil
}

// mapRecord builds the destination record for one part. The source record
// is reused as is when the schemas line up.
func (lt *layerTranslator) mapRecord(f *vector.Feature, explodeCol int, parts []*geom.Geometry, part int) (*vector.Feature, error) {
	info := lt.info
	if info.CanAvoidCopy && explodeCol < 0 {
		f.SetSchema(lt.dstSchema)
		return f, nil
	}

	out := vector.NewFeature(lt.dstSchema)
	if err := out.SetFrom(f, info.FieldMap, true); err != nil {
		return nil, err
	}
	out.Style = f.Style
	for i, gt := range info.Geoms {
		si := gt.SrcIndex
		switch {
		case si < 0:
		case si == explodeCol:
			out.SetGeometry(i, parts[part])
			parts[part] = nil
		case explodeCol >= 0 || lt.shared[si]:
			out.SetGeometry(i, f.Geometry(si).Clone())
		default:
			out.SetGeometry(i, f.TakeGeometry(si))
		}
	}
	return out, nil
}

// convertValues applies the empty string and time zone rewrites.
func (lt *layerTranslator) convertValues(out *vector.Feature) {
	o := lt.t.opts
	if o.EmptyStrAsNull {
		for i, fd := range lt.dstSchema.Fields {
			if fd.Type != vector.String {
				continue
			}
			if v := out.Field(i); v.Valid() && v.String() == "" {
				out.Set(i, vector.Null())
			}
		}
	}
	if lt.t.tz == nil {
		return
	}
	loc := time.FixedZone("", *lt.t.tz)
	for _, i := range lt.info.DateTimeFields {
		v := out.Field(i)
		if !v.Valid() {
			continue
		}
		tm, flag := v.Time()
		if flag != vector.TZFixed {
			continue
		}
		out.Set(i, vector.TimeValue(vector.DateTime, tm.In(loc), vector.TZFixed))
	}
}

// geometries runs the planned operations on every destination geometry.
// Missing geometries are left alone.
func (lt *layerTranslator) geometries(out, src *vector.Feature, srcFID int64) (outcome, error) {
	for i := range out.Geoms {
		g := out.TakeGeometry(i)
		if g == nil {
			continue
		}
		job := geomJob{col: i, g: g, src: src, srcFID: srcFID}
		for _, op := range lt.ops {
			oc, err := lt.apply(op, &job)
			if oc != outcomeOK {
				return oc, err
			}
		}
		out.SetGeometry(i, job.g)
	}
	return outcomeOK, nil
}

func (lt *layerTranslator) write(out *vector.Feature, desired, srcFID int64) error {
	o := lt.t.opts
	var err error
	if o.Upsert {
		err = lt.info.Dst.UpsertFeature(out)
	} else {
		err = lt.info.Dst.CreateFeature(out)
	}
	if err == nil {
		lt.stats.Written++
		if desired != vector.NullFID && out.FID != desired {
			lt.t.log.warnf("Feature id %d not preserved", desired)
		}
		return nil
	}

	rerr := &RecordError{FID: srcFID, Layer: lt.info.Src.Name(), Op: "write", Err: err}
	if !o.SkipFailures {
		lt.abort()
		return rerr
	}
	lt.t.log.errorf("%v", rerr)
	lt.stats.Skipped++
	return lt.restartTx()
}

func (lt *layerTranslator) beginLayerTx() error {
	if !lt.t.layerTx || lt.t.group == 0 || !lt.info.DstCaps.Transactions {
		return nil
	}
	if err := lt.info.Dst.StartTransaction(); err != nil {
		if errors.Is(err, vector.ErrNotSupported) {
			return nil
		}
		return fmt.Errorf("starting transaction on layer %s: %w", lt.info.Dst.Name(), err)
	}
	lt.inTx = true
	lt.nInTx = 0
	return nil
}

func (lt *layerTranslator) endLayerTx() error {
	if !lt.inTx {
		return nil
	}
	lt.inTx = false
	if err := lt.info.Dst.CommitTransaction(); err != nil {
		return fmt.Errorf("committing layer %s: %w", lt.info.Dst.Name(), err)
	}
	return nil
}

// abort rolls back the open layer transaction. The dataset transaction is
// the caller's.
func (lt *layerTranslator) abort() {
	if !lt.inTx {
		return
	}
	lt.inTx = false
	if err := lt.info.Dst.RollbackTransaction(); err != nil {
		lt.t.log.errorf("rolling back layer %s: %v", lt.info.Dst.Name(), err)
	}
}

// batchBoundary commits and reopens the current transaction once it holds
// a full group of records.
func (lt *layerTranslator) batchBoundary() error {
	t := lt.t
	if t.group <= 0 {
		return nil
	}
	if t.layerTx {
		if !lt.inTx {
			return nil
		}
		lt.nInTx++
		if lt.nInTx < t.group {
			return nil
		}
		if err := lt.endLayerTx(); err != nil {
			return err
		}
		return lt.beginLayerTx()
	}
	t.totalEvents++
	if t.totalEvents < t.group {
		return nil
	}
	t.totalEvents = 0
	if err := t.commitDataset(); err != nil {
		return err
	}
	return t.beginDataset()
}

// restartTx discards the failed record by rolling back the open
// transaction, then opens a new one.
func (lt *layerTranslator) restartTx() error {
	t := lt.t
	if t.group == 0 {
		return nil
	}
	if t.layerTx {
		if !lt.inTx {
			return nil
		}
		lt.abort()
		return lt.beginLayerTx()
	}
	if !t.dsTx {
		return nil
	}
	t.rollbackDataset()
	t.totalEvents = 0
	return t.beginDataset()
}
