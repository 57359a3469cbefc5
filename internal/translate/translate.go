// Package translate copies the layers of a vector dataset into another,
// reshaping schemas, reprojecting and filtering geometries on the way.
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"

	"github.com/google/uuid"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/listsplit"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// Destination names where a run writes.
type Destination struct {
	Path   string
	Format string
	// Dataset, when set, is written to directly; Path and Format are
	// ignored and the dataset is never closed by Translate.
	Dataset vector.Dataset
}

// Result summarizes a run.
type Result struct {
	// RunID identifies the run in log lines.
	RunID  string
	Layers []*LayerStats

	Read    int64
	Written int64
	Skipped int64
	Dropped int64
}

// translator is the state shared by the layers of one run.
type translator struct {
	ctx      context.Context
	opts     *Options
	log      *logger
	cache    *srs.TransformCache
	resolver *Resolver
	clipSrc  *clipCache
	clipDst  *clipCache
	tz       *int

	dst     vector.Dataset
	created bool

	layerTx     bool
	group       int
	dsTx        bool
	totalEvents int

	result *Result
}

// Translate copies src into dst following opts. A nil opts uses
// DefaultOptions.
//
// The returned dataset is open and owned by the caller, unless it was
// passed in through dst.Dataset. On error nothing is returned but the
// partial Result.
func Translate(ctx context.Context, dst Destination, src vector.Dataset, opts *Options) (vector.Dataset, *Result, error) {
	if opts == nil {
		d := DefaultOptions()
		opts = &d
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	o := opts
	log := newLogger(o)
	res := &Result{RunID: uuid.NewString()}
	log.debugf("run %s: translating %s", res.RunID, src.Name())

	ds, created, err := openDestination(dst, o)
	if err != nil {
		return nil, res, err
	}
	fail := func(err error) (vector.Dataset, *Result, error) {
		if dst.Dataset == nil {
			ds.Close()
		}
		return nil, res, err
	}

	t := &translator{ctx: ctx, opts: o, log: log, dst: ds, created: created, result: res}
	if t.tz, err = parseTZ(o.DateTimeTZ); err != nil {
		return fail(usagef("%v", err))
	}
	if created {
		t.copyMetadata(src)
	}

	factory := o.Factory
	if factory == nil {
		factory = srs.DefaultFactory
	}
	t.cache = srs.NewTransformCache(factory, 16)
	t.resolver = newResolver(t.cache, log)
	t.resolver.SourceSRS = o.SourceSRS
	if o.Reproject {
		t.resolver.OutputSRS = o.OutputSRS
	}
	t.resolver.Wrap = geom.WrapOptions{Enabled: o.WrapDateline, Offset: o.DatelineOffset}
	if len(o.GCPs) > 0 {
		target := o.SourceSRS
		if target == nil {
			target = o.OutputSRS
		}
		gcp, err := srs.NewGCPTransformer(o.GCPs, o.GCPOrder, target)
		if err != nil {
			return fail(&SetupError{Kind: TransformConstruction, Msg: "failed to compute GCP transform", Err: err})
		}
		t.resolver.GCP = gcp
	}

	if o.ClipSrc != nil {
		if t.clipSrc, err = t.loadClip(o.ClipSrc, "source"); err != nil {
			return fail(err)
		}
	}
	if o.ClipDst != nil {
		if t.clipDst, err = t.loadClip(o.ClipDst, "destination"); err != nil {
			return fail(err)
		}
	}

	ir, interleaved := src.(vector.InterleavedReader)
	interleaved = interleaved && src.Capabilities().RandomLayerRead

	t.group = o.groupSize()
	switch {
	case interleaved, o.ForceTransaction:
		t.layerTx = false
	case o.LayerTransaction != nil:
		t.layerTx = *o.LayerTransaction
	default:
		t.layerTx = !ds.Capabilities().Transactions
	}
	log.debugf("run %s: group=%d layer transactions=%t interleaved=%t", res.RunID, t.group, t.layerTx, interleaved)
	if t.group != 0 && !t.layerTx {
		if err := t.beginDataset(); err != nil {
			return fail(err)
		}
	}

	if interleaved {
		err = t.interleaved(src, ir)
	} else {
		err = t.sequential(src)
	}
	t.summarize()
	if err != nil {
		t.rollbackDataset()
		return fail(err)
	}
	if err := t.commitDataset(); err != nil {
		return fail(err)
	}
	log.debugf("run %s: read %d, wrote %d, skipped %d, dropped %d", res.RunID, res.Read, res.Written, res.Skipped, res.Dropped)
	return ds, res, nil
}

func openDestination(dst Destination, o *Options) (vector.Dataset, bool, error) {
	if dst.Dataset != nil {
		return dst.Dataset, false, nil
	}
	if o.AccessMode != Create {
		ds, err := vector.Open(dst.Path, o.Format, true)
		if err == nil {
			return ds, false, nil
		}
		if o.AccessMode == Update {
			return nil, false, &SetupError{Kind: DestinationOpen, Msg: "unable to open existing output datasource " + dst.Path, Err: err}
		}
	}
	ds, err := vector.Create(dst.Path, o.Format, o.DatasetCreationOptions)
	if err != nil {
		return nil, false, &SetupError{Kind: DestinationOpen, Msg: "unable to create datasource " + dst.Path, Err: err}
	}
	return ds, true, nil
}

func (t *translator) copyMetadata(src vector.Dataset) {
	md := map[string]string{}
	if t.opts.CopyMetadata {
		maps.Copy(md, src.Metadata())
	}
	maps.Copy(md, t.opts.Metadata)
	if len(md) == 0 {
		return
	}
	if err := t.dst.SetMetadata(md); err != nil && !errors.Is(err, vector.ErrNotSupported) {
		t.log.warnf("cannot set dataset metadata: %v", err)
	}
}

func (t *translator) loadClip(spec *ClipSpec, which string) (*clipCache, error) {
	g, err := loadClip(spec, t.opts)
	if err != nil {
		return nil, &SetupError{Kind: ClipGeometry, Msg: "cannot load " + which + " clip geometry", Err: err}
	}
	return newClipCache(g, t.cache, t.log, which)
}

func (t *translator) request() reconcile.Request {
	o := t.opts
	sel := o.SelectFields
	if len(o.SelectGeomFields) > 0 {
		sel = append(append([]string(nil), o.SelectFields...), o.SelectGeomFields...)
	}
	return reconcile.Request{
		NewLayerName:         o.NewLayerName,
		Mode:                 o.AccessMode,
		NewDataset:           t.created,
		SkipFailures:         o.SkipFailures,
		LayerCreationOptions: o.LayerCreationOptions,
		SelectFields:         sel,
		FieldMap:             o.FieldMap,
		FieldMapIdentity:     o.FieldMapIdentity,
		FieldTypesToString:   o.FieldTypesToString,
		MapFieldType:         o.MapFieldType,
		UnsetFieldWidth:      o.UnsetFieldWidth,
		ForceNullable:        o.ForceNullable,
		UnsetDefault:         o.UnsetDefault,
		AddMissingFields:     o.AddMissingFields,
		ExactFieldNameMatch:  o.ExactFieldNameMatch,
		ForceGeomType:        o.ForceGeomType,
		GeomType:             o.GeomType,
		GeomConversion:       o.GeomConversion,
		ExplodeCollections:   o.ExplodeCollections,
		ZField:               o.ZField,
		CoordDim:             o.CoordDim,
		OutputSRS:            o.OutputSRS,
		NullifyOutputSRS:     o.NullifyOutputSRS,
		PreserveFID:          o.PreserveFID,
		UnsetFID:             o.UnsetFID,
		CopyMetadata:         o.CopyMetadata,
		Where:                o.Where,
		Logger:               t.log.Logger,
		Debug:                o.Debug,
	}
}

// selectLayers returns the source layers to translate, in order.
func (t *translator) selectLayers(src vector.Dataset) ([]vector.Layer, error) {
	o := t.opts
	var layers []vector.Layer
	if len(o.Layers) == 0 {
		for i := 0; i < src.LayerCount(); i++ {
			layers = append(layers, src.Layer(i))
		}
		return layers, nil
	}
	for _, name := range o.Layers {
		l := src.LayerByName(name)
		if l == nil {
			err := &SetupError{Kind: LayerNotFound, Layer: name, Msg: "couldn't fetch requested layer", Err: vector.ErrNoSuchLayer}
			if !o.SkipFailures {
				return nil, err
			}
			t.log.errorf("%v", err)
			continue
		}
		layers = append(layers, l)
	}
	return layers, nil
}

// applyFilters installs the attribute and spatial filters on l.
func (t *translator) applyFilters(l vector.Layer) error {
	o := t.opts
	if o.Where != "" {
		if err := l.SetAttributeFilter(o.Where); err != nil {
			serr := &SetupError{Kind: AttributeFilter, Layer: l.Name(), Msg: fmt.Sprintf("attribute filter %q failed", o.Where), Err: err}
			if !o.SkipFailures {
				return serr
			}
			t.log.errorf("%v", serr)
		}
	}
	if o.SpatialFilter != nil {
		t.applySpatialFilter(l)
	}
	return nil
}

// applySpatialFilter installs the spatial filter on l, reprojected from
// SpatSRS to the CRS of the filtered column. The filter is densified first
// so its edges follow the reprojection.
func (t *translator) applySpatialFilter(l vector.Layer) {
	o := t.opts
	g := o.SpatialFilter.Clone()
	if o.SpatSRS != nil {
		g.AssignCRS(o.SpatSRS)
	}

	s := l.Schema()
	idx := 0
	if o.GeomField != "" {
		if idx = s.GeomFieldIndex(o.GeomField); idx < 0 {
			t.log.warnf("cannot find geometry field %s in layer %s, the spatial filter is not applied", o.GeomField, l.Name())
			return
		}
	}

	target := o.SourceSRS
	if target == nil && idx < len(s.GeomFields) {
		target = s.GeomFields[idx].CRS
	}
	switch {
	case g.CRS == nil:
	case target == nil:
		t.log.warnf("cannot determine layer SRS for %s, the spatial filter is used as is", l.Name())
	case !g.CRS.IsSame(target):
		step := 10000.0
		if g.CRS.IsGeographic() {
			step = 10000 / (6378137 * math.Pi / 180)
		}
		geom.Segmentize(g, step)
		ct, err := t.cache.Get(g.CRS, target)
		if err == nil {
			err = geom.Transform(g, ct)
		}
		if err != nil {
			t.log.warnf("cannot reproject the spatial filter to the CRS of layer %s: %v", l.Name(), err)
		}
	}
	if err := l.SetSpatialFilter(idx, g); err != nil {
		t.log.warnf("cannot set the spatial filter on layer %s: %v", l.Name(), err)
	}
}

func (t *translator) newStats(src, dst string) *LayerStats {
	s := &LayerStats{Source: src, Destination: dst}
	t.result.Layers = append(t.result.Layers, s)
	return s
}

func (t *translator) summarize() {
	r := t.result
	r.Read, r.Written, r.Skipped, r.Dropped = 0, 0, 0, 0
	for _, s := range r.Layers {
		r.Read += s.Read
		r.Written += s.Written
		r.Skipped += s.Skipped
		r.Dropped += s.Dropped
	}
}

// sequential translates the selected layers one after the other.
func (t *translator) sequential(src vector.Dataset) error {
	o := t.opts
	layers, err := t.selectLayers(src)
	if err != nil {
		return err
	}
	for _, l := range layers {
		if err := t.applyFilters(l); err != nil {
			return err
		}
	}

	plan := newProgressPlan(o, layers, t.log)
	for i, l := range layers {
		err := t.translateLayer(i, l, plan)
		plan.advance(i)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrInterrupted) || !o.SkipFailures {
			return err
		}
		t.log.errorf("%v", err)
	}
	return nil
}

func (t *translator) translateLayer(i int, l vector.Layer, plan *progressPlan) error {
	o := t.opts
	src := l
	if o.SplitListFields {
		sl, err := listsplit.New(l, o.MaxSplitListSubfields, plan.scan(i))
		if errors.Is(err, listsplit.ErrInterrupted) {
			return ErrInterrupted
		}
		if err != nil {
			return &SetupError{Kind: ListSplit, Layer: l.Name(), Msg: "cannot split list fields", Err: err}
		}
		src = sl
	}

	info, err := reconcile.Reconcile(src, t.dst, t.request())
	if err != nil {
		return err
	}
	lt := newLayerTranslator(t, info, t.newStats(l.Name(), info.Dst.Name()))
	lt.progress = plan.layer(i, l, o.SplitListFields)
	src.ResetReading()
	t.log.debugf("translating layer %s into %s", l.Name(), info.Dst.Name())
	return lt.run(nil)
}

// interleaved reads a dataset whose records come in file order across
// layers. Layers are set up once the first record is read, when the reader
// knows every layer.
func (t *translator) interleaved(src vector.Dataset, ir vector.InterleavedReader) error {
	o := t.opts
	if o.SplitListFields {
		return &SetupError{Kind: ListSplit, Msg: "splitting list fields is not supported with interleaved layer reading"}
	}
	layers, err := t.selectLayers(src)
	if err != nil {
		return err
	}
	for _, l := range layers {
		if err := t.applyFilters(l); err != nil {
			return err
		}
	}

	var p progress = noProgress{}
	if o.Progress != nil {
		var total int64
		for _, l := range layers {
			if !l.Capabilities().FastFeatureCount {
				t.log.warnf("Progress turned off as fast feature count is not available.")
				total = -1
				break
			}
			total += max(l.FeatureCount(false), 0)
		}
		if total >= 0 {
			p = &countProgress{fn: o.Progress, start: 0, end: 1, total: total}
		}
	}

	var translators map[vector.Layer]*layerTranslator
	setup := func() error {
		translators = map[vector.Layer]*layerTranslator{}
		for _, l := range layers {
			info, err := reconcile.Reconcile(l, t.dst, t.request())
			if err != nil {
				if !o.SkipFailures {
					return err
				}
				t.log.errorf("%v", err)
				translators[l] = nil
				continue
			}
			translators[l] = newLayerTranslator(t, info, t.newStats(l.Name(), info.Dst.Name()))
		}
		return nil
	}

	var read int64
	for {
		if err := t.ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		f, l, err := ir.NextFeature()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", src.Name(), err)
		}
		if translators == nil {
			if err := setup(); err != nil {
				return err
			}
		}
		read++
		if lt := translators[l]; lt != nil {
			if err := lt.run(f); err != nil {
				if errors.Is(err, ErrInterrupted) || !o.SkipFailures {
					return err
				}
				t.log.errorf("%v", err)
			}
		}
		if !p.record(read) {
			return ErrInterrupted
		}
	}
	if translators == nil {
		if err := setup(); err != nil {
			return err
		}
	}
	if !p.done() {
		return ErrInterrupted
	}
	return nil
}

func (t *translator) beginDataset() error {
	err := t.dst.StartTransaction(t.opts.ForceTransaction)
	switch {
	case err == nil:
		t.dsTx = true
	case errors.Is(err, vector.ErrNotSupported) && !t.opts.ForceTransaction:
		t.dsTx = false
	default:
		return &SetupError{Kind: DestinationOpen, Msg: "cannot start a transaction on " + t.dst.Name(), Err: err}
	}
	return nil
}

func (t *translator) commitDataset() error {
	if !t.dsTx {
		return nil
	}
	t.dsTx = false
	if err := t.dst.CommitTransaction(); err != nil {
		return fmt.Errorf("committing %s: %w", t.dst.Name(), err)
	}
	return nil
}

func (t *translator) rollbackDataset() {
	if !t.dsTx {
		return
	}
	t.dsTx = false
	if err := t.dst.RollbackTransaction(); err != nil {
		t.log.errorf("rolling back %s: %v", t.dst.Name(), err)
	}
}
