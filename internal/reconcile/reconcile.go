// Package reconcile prepares a destination layer for a source layer: it
// finds, creates or replaces the layer, derives its geometry columns and
// builds the map from source columns to destination columns.
package reconcile

import (
	"fmt"
	"io"
	"log"
	"slices"
	"strconv"
	"strings"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

type reconciler struct {
	src vector.Layer
	ds  vector.Dataset
	req Request
	log *log.Logger

	name      string
	appending bool

	dst      vector.WritableLayer
	fieldMap []int
	claimed  map[int]bool
	srcFID   int
}

// Reconcile locates or creates the destination layer for src in ds and
// returns the state the pipeline needs.
//
// Under req.SkipFailures, problems that only lose part of the output
// (unknown selected columns, extra geometry columns, columns the driver
// refuses) are logged instead of returned.
func Reconcile(src vector.Layer, ds vector.Dataset, req Request) (*TargetLayerInfo, error) {
	r := &reconciler{src: src, ds: ds, req: req, log: req.Logger, srcFID: -1}
	if r.log == nil {
		r.log = log.New(io.Discard, "", 0)
	}
	r.name = req.NewLayerName
	if r.name == "" {
		r.name = src.Name()
	}
	r.appending = req.Mode == Append || req.AddMissingFields
	return r.run()
}

func (r *reconciler) run() (*TargetLayerInfo, error) {
	srcSchema := r.src.Schema()

	geomReq, err := r.requestedGeoms(srcSchema)
	if err != nil {
		return nil, err
	}

	var outCRS *srs.CRS
	switch {
	case r.req.NullifyOutputSRS:
	case r.req.OutputSRS != nil:
		outCRS = r.req.OutputSRS
	case len(srcSchema.GeomFields) == 1 || len(geomReq) == 0:
		if len(srcSchema.GeomFields) > 0 {
			outCRS = srcSchema.GeomFields[0].CRS
		}
	case len(geomReq) == 1:
		outCRS = srcSchema.GeomFields[geomReq[0]].CRS
	}

	zField := -1
	if r.req.ZField != "" {
		if zField = srcSchema.FieldIndex(r.req.ZField); zField < 0 {
			r.warnf("zfield %q does not exist in layer %s", r.req.ZField, r.src.Name())
		}
	}

	existing := r.ds.LayerByName(r.name)
	if existing != nil && r.req.Mode == Overwrite {
		if err := r.ds.DeleteLayer(vector.LayerIndex(r.ds, existing)); err != nil {
			return nil, &SetupError{Kind: LayerExists, Layer: r.name, Msg: "cannot delete layer for overwrite", Err: err}
		}
		existing = nil
	}

	created := false
	preserveFID := r.req.PreserveFID
	switch {
	case existing == nil:
		l, fidHint, err := r.create(srcSchema, geomReq, outCRS, zField >= 0)
		if err != nil {
			return nil, err
		}
		r.dst, created = l, true
		preserveFID = preserveFID || fidHint
		r.appending = false
	case !r.appending && !r.req.NewDataset:
		return nil, r.fail(LayerExists, "layer already exists, and append was not requested; consider append or overwrite")
	default:
		w, ok := existing.(vector.WritableLayer)
		if !ok {
			return nil, r.fail(LayerExists, "layer exists but is not writable")
		}
		if len(r.req.LayerCreationOptions) > 0 {
			r.warnf("layer creation options ignored since an existing layer is being appended to")
		}
		r.dst = w
	}

	r.fieldMap = make([]int, len(srcSchema.Fields))
	for i := range r.fieldMap {
		r.fieldMap[i] = Dropped
	}
	r.claimed = map[int]bool{}

	switch {
	case r.appending && (r.req.FieldMap != nil || r.req.FieldMapIdentity):
		err = r.explicitMap(srcSchema)
	case r.req.SelectFields != nil && !r.appending:
		err = r.selectedMap(srcSchema)
	case !r.appending || r.req.AddMissingFields:
		err = r.defaultMap(srcSchema)
	default:
		r.nameMap(srcSchema)
	}
	if err != nil {
		return nil, err
	}

	info := &TargetLayerInfo{
		Src:                   r.src,
		Dst:                   r.dst,
		Created:               created,
		FieldMap:              r.fieldMap,
		ZField:                zField,
		SrcFIDField:           r.srcFID,
		RequestedSrcGeomField: -1,
		PreserveFID:           preserveFID,
		SrcCaps:               r.src.Capabilities(),
		DstCaps:               r.dst.Capabilities(),
		DatasetCaps:           r.ds.Capabilities(),
	}
	if len(geomReq) == 1 {
		info.RequestedSrcGeomField = geomReq[0]
	}

	dstSchema := r.dst.Schema()
	for _, gd := range dstSchema.GeomFields {
		si := info.RequestedSrcGeomField
		if si < 0 {
			si = srcSchema.GeomFieldIndex(gd.Name)
			if si < 0 && len(dstSchema.GeomFields) == 1 && len(srcSchema.GeomFields) > 0 {
				si = 0
			}
		}
		info.Geoms = append(info.Geoms, GeomTarget{SrcIndex: si, Type: gd.Type, CRS: gd.CRS})
	}
	for i, f := range dstSchema.Fields {
		if f.Type == vector.DateTime {
			info.DateTimeFields = append(info.DateTimeFields, i)
		}
	}
	info.CanAvoidCopy = r.canAvoidCopy(srcSchema, dstSchema, info)
	return info, nil
}

// requestedGeoms returns the source geometry columns named in
// SelectFields, and checks that every selected name exists.
func (r *reconciler) requestedGeoms(s *vector.Schema) ([]int, error) {
	if r.req.SelectFields == nil || r.appending {
		return nil, nil
	}
	var out []int
	for _, name := range r.req.SelectFields {
		if s.FieldIndex(name) >= 0 {
			continue
		}
		if gi := s.GeomFieldIndex(name); gi >= 0 {
			out = append(out, gi)
			continue
		}
		err := r.fail(FieldMissing, fmt.Sprintf("field %q not found in source layer", name))
		if !r.req.SkipFailures {
			return nil, err
		}
		r.warnf("%v", err)
	}
	if len(out) > 1 && !r.ds.Capabilities().CreateGeomFieldAfterLayer {
		err := r.fail(MultiGeomUnsupported, "several geometry fields requested, but the destination does not support multiple geometry fields")
		if !r.req.SkipFailures {
			return nil, err
		}
		r.warnf("%v", err)
		out = nil
	}
	return out, nil
}

// create makes the destination layer. The returned flag is set when the
// source FID column name was passed on, which implies FID preservation.
func (r *reconciler) create(s *vector.Schema, geomReq []int, outCRS *srs.CRS, hasZField bool) (vector.WritableLayer, bool, error) {
	caps := r.ds.Capabilities()
	if !caps.CreateLayer {
		return nil, false, r.fail(NoLayerCreation, "layer does not exist in the destination, and the destination cannot create layers")
	}

	carried := geomReq
	if len(carried) == 0 {
		switch {
		case len(s.GeomFields) > 1 && caps.CreateGeomFieldAfterLayer:
			for i := range s.GeomFields {
				carried = append(carried, i)
			}
		case len(s.GeomFields) > 0:
			carried = []int{0}
		}
	}

	typeOpts := GeomTypeOptions{
		Force:      r.req.ForceGeomType,
		Forced:     r.req.GeomType,
		Conversion: r.req.GeomConversion,
		Explode:    r.req.ExplodeCollections,
		ZField:     hasZField,
		CoordDim:   r.req.CoordDim,
	}
	var defns []vector.GeomFieldDefn
	for _, gi := range carried {
		sg := s.GeomFields[gi]
		gd := vector.GeomFieldDefn{
			Name:     sg.Name,
			Type:     DeriveGeomType(sg.Type, typeOpts),
			Nullable: sg.Nullable || r.req.ForceNullable,
			CRS:      sg.CRS,
		}
		switch {
		case len(carried) == 1:
			gd.CRS = outCRS
		case r.req.NullifyOutputSRS:
			gd.CRS = nil
		case r.req.OutputSRS != nil:
			gd.CRS = r.req.OutputSRS
		}
		if gd.Type != geom.None {
			defns = append(defns, gd)
		}
	}
	if len(carried) == 0 && r.req.ForceGeomType {
		if t := DeriveGeomType(geom.None, typeOpts); t != geom.None {
			defns = append(defns, vector.GeomFieldDefn{Type: t, Nullable: true, CRS: outCRS})
		}
	}

	options := make(map[string]string, len(r.req.LayerCreationOptions))
	for k, v := range r.req.LayerCreationOptions {
		options[k] = v
	}
	advertised := r.ds.LayerCreationOptionList()
	hint := func(key, value string) bool {
		if !containsFold(advertised, key) {
			return false
		}
		if _, set := lookupFold(r.req.LayerCreationOptions, key); set {
			return false
		}
		options[key] = value
		r.debugf("using %s=%s", key, value)
		return true
	}
	if len(defns) > 0 && len(geomReq) == 0 && !defns[0].Nullable {
		hint("GEOMETRY_NULLABLE", "NO")
	}
	if strings.EqualFold(r.src.Metadata()["FID64"], "YES") {
		hint("FID64", "YES")
	}
	fidHint := false
	if col := r.src.FIDColumn(); col != "" && !r.req.UnsetFID && r.req.Mode != Append {
		fidHint = hint("FID", col)
	}

	var first *vector.GeomFieldDefn
	if len(defns) > 0 {
		first = &defns[0]
	}
	l, err := r.ds.CreateLayer(r.name, first, options)
	if err != nil {
		return nil, false, &SetupError{Kind: NoLayerCreation, Layer: r.name, Msg: "cannot create layer", Err: err}
	}
	for _, gd := range defns[min(1, len(defns)):] {
		if err := l.CreateGeomField(gd); err != nil {
			r.warnf("cannot create geometry field %q: %v", gd.Name, err)
		}
	}

	if r.req.CopyMetadata {
		if md := r.src.Metadata(); len(md) > 0 {
			if err := l.SetMetadata(md); err != nil {
				r.debugf("metadata not copied: %v", err)
			}
		}
	}
	return l, fidHint, nil
}

func (r *reconciler) explicitMap(s *vector.Schema) error {
	n := len(s.Fields)
	if !r.req.FieldMapIdentity && len(r.req.FieldMap) != n {
		return r.fail(RemapInvalid, fmt.Sprintf(
			"field map should be identity or hold one index per source field (%d), got %d", n, len(r.req.FieldMap)))
	}
	dstCount := len(r.dst.Schema().Fields)
	for i := 0; i < n; i++ {
		di := i
		if !r.req.FieldMapIdentity {
			di = r.req.FieldMap[i]
		}
		if di < 0 {
			continue
		}
		if di >= dstCount {
			return r.fail(RemapInvalid, fmt.Sprintf("invalid destination field index %d", di))
		}
		if r.claimed[di] {
			return r.fail(RemapInvalid, fmt.Sprintf("destination field index %d is the target of more than one source field", di))
		}
		r.claim(i, di)
	}
	return nil
}

func (r *reconciler) selectedMap(s *vector.Schema) error {
	for _, name := range r.req.SelectFields {
		si := s.FieldIndex(name)
		if si < 0 {
			continue
		}
		fd := r.convertField(s.Fields[si])
		if di := r.dst.Schema().FieldIndex(fd.Name); di >= 0 {
			r.claim(si, di)
			continue
		}
		di, err := r.createField(fd)
		if err != nil {
			return err
		}
		r.claim(si, di)
	}
	r.ignoreUnselected(s)
	return nil
}

// ignoreUnselected tells the source not to decode columns that are neither
// selected nor read by the filter or the Z option.
func (r *reconciler) ignoreUnselected(s *vector.Schema) {
	if !r.src.Capabilities().IgnoreFields {
		return
	}
	keep := map[int]bool{}
	for _, name := range r.req.SelectFields {
		if i := s.FieldIndex(name); i >= 0 {
			keep[i] = true
		}
	}
	if r.req.Where != "" {
		f, err := vector.CompileFilter(r.req.Where, s)
		if err != nil {
			return
		}
		for _, c := range f.Columns() {
			keep[c] = true
		}
	}
	if r.req.ZField != "" {
		if i := s.FieldIndex(r.req.ZField); i >= 0 {
			keep[i] = true
		}
	}
	var ignored []string
	for i, f := range s.Fields {
		if !keep[i] {
			ignored = append(ignored, f.Name)
		}
	}
	if err := r.src.SetIgnoredFields(ignored); err != nil {
		r.debugf("ignored fields not set: %v", err)
	}
}

// defaultMap creates every source column the destination lacks. Columns
// matching a destination column by name, ignoring case, are mapped to it.
// A name taken by a column created earlier in the same call is suffixed
// with the first free number from 2.
func (r *reconciler) defaultMap(s *vector.Schema) error {
	dstSchema := r.dst.Schema()
	preExisting := map[string]int{}
	dstNames := map[string]bool{}
	for i, f := range dstSchema.Fields {
		k := strings.ToUpper(f.Name)
		dstNames[k] = true
		if _, ok := preExisting[k]; !ok {
			preExisting[k] = i
		}
	}
	srcNames := map[string]bool{}
	for _, f := range s.Fields {
		srcNames[strings.ToUpper(f.Name)] = true
	}

	var indices []int
	if r.req.SelectFields != nil {
		for _, name := range r.req.SelectFields {
			if i := s.FieldIndex(name); i >= 0 {
				indices = append(indices, i)
			}
		}
	} else {
		for i := range s.Fields {
			indices = append(indices, i)
		}
	}

	fidColumn := r.dst.FIDColumn()
	lastSuffix := map[string]int{}
	for _, si := range indices {
		sf := s.Fields[si]
		if fidColumn != "" && strings.EqualFold(fidColumn, sf.Name) &&
			(sf.Type == vector.Integer || sf.Type == vector.Integer64) {
			r.srcFID = si
			continue
		}

		fd := r.convertField(sf)
		if di, ok := preExisting[strings.ToUpper(fd.Name)]; ok {
			r.claim(si, di)
			continue
		}

		renamed := false
		if base := strings.ToUpper(fd.Name); dstNames[base] {
			try := max(lastSuffix[base], 1)
			for {
				try++
				suffix := strconv.Itoa(try)
				if cand := base + suffix; !dstNames[cand] && !srcNames[cand] {
					fd.Name += suffix
					lastSuffix[base] = try
					renamed = true
					break
				}
			}
		}

		di, err := r.createField(fd)
		if err != nil {
			return err
		}
		if di == Dropped {
			continue
		}
		newName := r.dst.Schema().Fields[di].Name
		if renamed {
			r.warnf("field %q already exists, renaming it as %q", sf.Name, newName)
		}
		dstNames[strings.ToUpper(newName)] = true
		r.claim(si, di)
	}
	return nil
}

// nameMap maps source columns onto the columns of an existing layer by
// name. Columns without a match are dropped.
func (r *reconciler) nameMap(s *vector.Schema) {
	dstSchema := r.dst.Schema()
	for i, sf := range s.Fields {
		if r.req.SelectFields != nil && !containsFold(r.req.SelectFields, sf.Name) {
			continue
		}
		var di int
		if r.req.ExactFieldNameMatch {
			di = dstSchema.FieldIndexExact(sf.Name)
		} else {
			di = dstSchema.FieldIndex(sf.Name)
		}
		if di < 0 {
			r.debugf("skipping field %q not found in destination layer", sf.Name)
			continue
		}
		r.claim(i, di)
	}
}

// createField creates fd and returns its index. A refused column is
// Dropped under SkipFailures.
func (r *reconciler) createField(fd vector.FieldDefn) (int, error) {
	before := len(r.dst.Schema().Fields)
	if err := r.dst.CreateField(fd, true); err != nil {
		serr := &SetupError{Kind: FieldCreation, Layer: r.name, Msg: fmt.Sprintf("cannot create field %q", fd.Name), Err: err}
		if r.req.SkipFailures {
			r.warnf("%v", serr)
			return Dropped, nil
		}
		return Dropped, serr
	}
	if len(r.dst.Schema().Fields) != before+1 {
		return Dropped, r.fail(FieldCreation, fmt.Sprintf("the destination claimed to have added field %q, but it did not", fd.Name))
	}
	return before, nil
}

// claim maps si to di unless another source column already targets di.
func (r *reconciler) claim(si, di int) {
	if di < 0 {
		return
	}
	if r.claimed[di] {
		r.debugf("source field %q dropped: destination field %d is already mapped", r.src.Schema().Fields[si].Name, di)
		return
	}
	r.claimed[di] = true
	r.fieldMap[si] = di
}

func (r *reconciler) canAvoidCopy(src, dst *vector.Schema, info *TargetLayerInfo) bool {
	if r.req.ExplodeCollections || info.ZField >= 0 || info.SrcFIDField >= 0 {
		return false
	}
	if len(src.Fields) != len(dst.Fields) || len(src.GeomFields) != len(dst.GeomFields) {
		return false
	}
	for i := range src.Fields {
		if info.FieldMap[i] != i || src.Fields[i].Type != dst.Fields[i].Type {
			return false
		}
	}
	for i, g := range info.Geoms {
		if g.SrcIndex != i {
			return false
		}
	}
	return true
}

func (r *reconciler) fail(kind Kind, msg string) *SetupError {
	return &SetupError{Kind: kind, Layer: r.name, Msg: msg}
}

func (r *reconciler) warnf(format string, args ...any) {
	r.log.Printf("[warn] layer %s: "+format, append([]any{r.name}, args...)...)
}

func (r *reconciler) debugf(format string, args ...any) {
	if r.req.Debug {
		r.log.Printf("[debug] layer %s: "+format, append([]any{r.name}, args...)...)
	}
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
