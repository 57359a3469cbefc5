package ogrtranslate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/translate"
)

// JobFile is a set of translations read from YAML.
type JobFile struct {
	Version string `yaml:"version"`
	Jobs    []Job  `yaml:"jobs"`
}

// Job is one translation: a source, a destination and the options between
// them. Options are spelled as strings the way they are on the command
// line; Job.Build turns them into Options.
type Job struct {
	Name         string     `yaml:"name"`
	Source       string     `yaml:"source"`
	SourceFormat string     `yaml:"source_format,omitempty"`
	Destination  string     `yaml:"destination"`
	Options      JobOptions `yaml:"options"`
}

// JobOptions is the textual form of Options shared by job files and the
// command line.
type JobOptions struct {
	// AccessMode is create, update, append or overwrite.
	AccessMode string            `yaml:"access_mode,omitempty"`
	Format     string            `yaml:"format,omitempty"`
	DSCO       map[string]string `yaml:"dsco,omitempty"`
	LCO        map[string]string `yaml:"lco,omitempty"`

	SkipFailures bool `yaml:"skip_failures,omitempty"`
	// GroupTransactions is a record count or "unlimited".
	GroupTransactions string `yaml:"gt,omitempty"`
	LayerTransaction  *bool  `yaml:"layer_transaction,omitempty"`
	ForceTransaction  bool   `yaml:"force_transaction,omitempty"`

	Layers       []string `yaml:"layers,omitempty"`
	NewLayerName string   `yaml:"nln,omitempty"`
	Where        string   `yaml:"where,omitempty"`
	FID          *int64   `yaml:"fid,omitempty"`
	Limit        *int64   `yaml:"limit,omitempty"`

	Select []string `yaml:"select,omitempty"`
	// FieldMap is "identity" or a comma separated list of destination
	// indexes, -1 dropping a column.
	FieldMap            string            `yaml:"field_map,omitempty"`
	FieldTypesToString  []string          `yaml:"field_types_to_string,omitempty"`
	MapFieldType        map[string]string `yaml:"map_field_type,omitempty"`
	UnsetFieldWidth     bool              `yaml:"unset_field_width,omitempty"`
	ForceNullable       bool              `yaml:"force_nullable,omitempty"`
	UnsetDefault        bool              `yaml:"unset_default,omitempty"`
	AddMissingFields    bool              `yaml:"add_fields,omitempty"`
	ExactFieldNameMatch bool              `yaml:"exact_field_name_match,omitempty"`
	EmptyStrAsNull      bool              `yaml:"empty_str_as_null,omitempty"`
	DateTimeTZ          string            `yaml:"dt_tz,omitempty"`

	GeomField        string   `yaml:"geom_field,omitempty"`
	SelectGeomFields []string `yaml:"select_geom_fields,omitempty"`
	// GeomType holds a geometry type name, conversion names such as
	// PROMOTE_TO_MULTI, or both, comma separated.
	GeomType   string  `yaml:"nlt,omitempty"`
	Dim        string  `yaml:"dim,omitempty"`
	Explode    bool    `yaml:"explode_collections,omitempty"`
	ZField     string  `yaml:"zfield,omitempty"`
	Segmentize float64 `yaml:"segmentize,omitempty"`
	Simplify   float64 `yaml:"simplify,omitempty"`

	SourceSRS string `yaml:"s_srs,omitempty"`
	// TargetSRS reprojects into the CRS; AssignSRS only tags geometries
	// with it, "NULL" removing the CRS.
	TargetSRS      string    `yaml:"t_srs,omitempty"`
	AssignSRS      string    `yaml:"a_srs,omitempty"`
	SpatSRS        string    `yaml:"spat_srs,omitempty"`
	GCPs           []srs.GCP `yaml:"gcps,omitempty"`
	Order          int       `yaml:"order,omitempty"`
	TPS            bool      `yaml:"tps,omitempty"`
	WrapDateline   bool      `yaml:"wrapdateline,omitempty"`
	DatelineOffset *float64  `yaml:"datelineoffset,omitempty"`

	// Spat is a bounding box: xmin, ymin, xmax, ymax. SpatWKT takes
	// precedence.
	Spat    []float64   `yaml:"spat,omitempty"`
	SpatWKT string      `yaml:"spat_wkt,omitempty"`
	ClipSrc *ClipConfig `yaml:"clipsrc,omitempty"`
	ClipDst *ClipConfig `yaml:"clipdst,omitempty"`

	PreserveFID bool `yaml:"preserve_fid,omitempty"`
	UnsetFID    bool `yaml:"unset_fid,omitempty"`

	SplitListFields bool `yaml:"split_list_fields,omitempty"`
	MaxSubfields    *int `yaml:"max_subfields,omitempty"`

	NoMetadata bool              `yaml:"nomd,omitempty"`
	Metadata   map[string]string `yaml:"mo,omitempty"`

	Upsert bool `yaml:"upsert,omitempty"`
	Debug  bool `yaml:"debug,omitempty"`
}

// ClipConfig is the textual form of ClipSpec.
type ClipConfig struct {
	Bounds     []float64 `yaml:"bounds,omitempty"`
	WKT        string    `yaml:"wkt,omitempty"`
	File       string    `yaml:"file,omitempty"`
	Layer      string    `yaml:"layer,omitempty"`
	Where      string    `yaml:"where,omitempty"`
	SpatExtent bool      `yaml:"spat_extent,omitempty"`
}

// LoadJobFile loads and parses a YAML job file. Relative source and
// destination paths are resolved against the directory of the file.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
	}
	jf, err := ParseJobFile(data)
	if err != nil {
		return nil, err
	}
	resolvePaths(jf, filepath.Dir(path))
	return jf, nil
}

// ParseJobFile parses YAML data into a JobFile.
func ParseJobFile(data []byte) (*JobFile, error) {
	var jf JobFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("failed to parse job YAML: %w", err)
	}
	applyDefaults(&jf)
	for i := range jf.Jobs {
		j := &jf.Jobs[i]
		if j.Source == "" || j.Destination == "" {
			return nil, fmt.Errorf("job %s: source and destination are required", j.Name)
		}
	}
	return &jf, nil
}

// MarshalJobFile serializes a JobFile to YAML.
func MarshalJobFile(jf *JobFile) ([]byte, error) {
	return yaml.Marshal(jf)
}

func applyDefaults(jf *JobFile) {
	if jf.Version == "" {
		jf.Version = "1"
	}
	for i := range jf.Jobs {
		j := &jf.Jobs[i]
		if j.Name == "" {
			j.Name = strings.TrimSuffix(filepath.Base(j.Destination), filepath.Ext(j.Destination))
		}
		if j.Name == "" {
			j.Name = strconv.Itoa(i + 1)
		}
	}
}

func resolvePaths(jf *JobFile, dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range jf.Jobs {
		j := &jf.Jobs[i]
		j.Source = abs(j.Source)
		j.Destination = abs(j.Destination)
		for _, c := range []*ClipConfig{j.Options.ClipSrc, j.Options.ClipDst} {
			if c != nil {
				c.File = abs(c.File)
			}
		}
	}
}

// Build converts the textual options into Options, starting from
// DefaultOptions. Errors are *UsageError.
func (jo *JobOptions) Build() (Options, error) {
	o := DefaultOptions()

	switch strings.ToLower(jo.AccessMode) {
	case "", "create":
	case "update":
		o.AccessMode = Update
	case "append":
		o.AccessMode = Append
	case "overwrite":
		o.AccessMode = Overwrite
	default:
		return o, usagef("unknown access mode %q", jo.AccessMode)
	}
	o.Format = jo.Format
	o.DatasetCreationOptions = jo.DSCO
	o.LayerCreationOptions = jo.LCO

	o.SkipFailures = jo.SkipFailures
	if jo.GroupTransactions != "" {
		if strings.EqualFold(jo.GroupTransactions, "unlimited") {
			o.GroupTransactions = Unlimited
		} else {
			n, err := strconv.Atoi(jo.GroupTransactions)
			if err != nil {
				return o, usagef("invalid transaction group size %q", jo.GroupTransactions)
			}
			o.GroupTransactions = n
		}
	}
	o.LayerTransaction = jo.LayerTransaction
	o.ForceTransaction = jo.ForceTransaction

	o.Layers = jo.Layers
	o.NewLayerName = jo.NewLayerName
	o.Where = jo.Where
	if jo.FID != nil {
		o.FIDToFetch = *jo.FID
	}
	if jo.Limit != nil {
		o.Limit = *jo.Limit
	}

	o.SelectFields = jo.Select
	if err := buildFieldMap(&o, jo.FieldMap); err != nil {
		return o, err
	}
	o.FieldTypesToString = jo.FieldTypesToString
	o.MapFieldType = jo.MapFieldType
	o.UnsetFieldWidth = jo.UnsetFieldWidth
	o.ForceNullable = jo.ForceNullable
	o.UnsetDefault = jo.UnsetDefault
	o.AddMissingFields = jo.AddMissingFields
	o.ExactFieldNameMatch = jo.ExactFieldNameMatch
	o.EmptyStrAsNull = jo.EmptyStrAsNull
	o.DateTimeTZ = jo.DateTimeTZ

	o.GeomField = jo.GeomField
	o.SelectGeomFields = jo.SelectGeomFields
	if err := buildGeomType(&o, jo.GeomType); err != nil {
		return o, err
	}
	dim, err := reconcile.ParseCoordDim(jo.Dim)
	if err != nil {
		return o, &UsageError{Msg: err.Error()}
	}
	o.CoordDim = dim
	o.ExplodeCollections = jo.Explode
	o.ZField = jo.ZField
	o.Segmentize = jo.Segmentize
	o.Simplify = jo.Simplify

	if err := buildSRS(&o, jo); err != nil {
		return o, err
	}
	o.GCPs = jo.GCPs
	o.GCPOrder = jo.Order
	if jo.TPS {
		if jo.Order != 0 {
			return o, usagef("a GCP order and a thin plate spline are exclusive")
		}
		o.GCPOrder = TPS
	}
	o.WrapDateline = jo.WrapDateline
	if jo.DatelineOffset != nil {
		o.DatelineOffset = *jo.DatelineOffset
	}

	switch {
	case jo.SpatWKT != "":
		g, err := geom.ParseWKT(jo.SpatWKT)
		if err != nil {
			return o, usagef("invalid spatial filter: %v", err)
		}
		o.SpatialFilter = g
	case jo.Spat != nil:
		g, err := boxGeometry(jo.Spat)
		if err != nil {
			return o, usagef("spatial filter: %v", err)
		}
		o.SpatialFilter = g
	}
	if o.ClipSrc, err = jo.ClipSrc.build("source clip"); err != nil {
		return o, err
	}
	if o.ClipDst, err = jo.ClipDst.build("destination clip"); err != nil {
		return o, err
	}

	o.PreserveFID = jo.PreserveFID
	o.UnsetFID = jo.UnsetFID
	o.SplitListFields = jo.SplitListFields
	if jo.MaxSubfields != nil {
		o.MaxSplitListSubfields = *jo.MaxSubfields
	}
	o.CopyMetadata = !jo.NoMetadata
	o.Metadata = jo.Metadata
	o.Upsert = jo.Upsert
	o.Debug = jo.Debug

	return o, o.Validate()
}

func buildFieldMap(o *Options, s string) error {
	if s == "" {
		return nil
	}
	if strings.EqualFold(s, "identity") {
		o.FieldMapIdentity = true
		return nil
	}
	parts := strings.Split(s, ",")
	o.FieldMap = make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < reconcile.Dropped {
			return usagef("invalid field map %q", s)
		}
		o.FieldMap[i] = n
	}
	return nil
}

func buildGeomType(o *Options, s string) error {
	if s == "" {
		return nil
	}
	promote, linear := false, false
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if c, err := geom.ParseConversion(tok); err == nil {
			switch c {
			case geom.PromoteToMulti:
				promote = true
			case geom.ConvertToLinear:
				linear = true
			case geom.PromoteToMultiAndConvertToLinear:
				promote, linear = true, true
			default:
				o.GeomConversion = c
			}
			continue
		}
		t, err := geom.ParseType(tok)
		if err != nil {
			return usagef("invalid geometry type %q", tok)
		}
		o.ForceGeomType = true
		o.GeomType = t
	}
	switch {
	case promote && linear:
		o.GeomConversion = geom.PromoteToMultiAndConvertToLinear
	case promote:
		o.GeomConversion = geom.PromoteToMulti
	case linear:
		o.GeomConversion = geom.ConvertToLinear
	}
	return nil
}

func buildSRS(o *Options, jo *JobOptions) error {
	parse := func(def, what string) (*srs.CRS, error) {
		if def == "" {
			return nil, nil
		}
		c, err := srs.Parse(def)
		if err != nil {
			return nil, usagef("invalid %s: %v", what, err)
		}
		return c, nil
	}
	if jo.TargetSRS != "" && jo.AssignSRS != "" {
		return usagef("a target CRS and an assigned CRS are exclusive")
	}
	var err error
	if o.SourceSRS, err = parse(jo.SourceSRS, "source CRS"); err != nil {
		return err
	}
	if o.SpatSRS, err = parse(jo.SpatSRS, "spatial filter CRS"); err != nil {
		return err
	}
	switch {
	case jo.TargetSRS != "":
		if o.OutputSRS, err = parse(jo.TargetSRS, "target CRS"); err != nil {
			return err
		}
		o.Reproject = true
	case strings.EqualFold(jo.AssignSRS, "NULL") || strings.EqualFold(jo.AssignSRS, "NONE"):
		o.NullifyOutputSRS = true
	case jo.AssignSRS != "":
		if o.OutputSRS, err = parse(jo.AssignSRS, "assigned CRS"); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClipConfig) build(what string) (*ClipSpec, error) {
	if c == nil {
		return nil, nil
	}
	spec := &ClipSpec{File: c.File, Layer: c.Layer, Where: c.Where, SpatExtent: c.SpatExtent}
	switch {
	case c.Bounds != nil:
		g, err := boxGeometry(c.Bounds)
		if err != nil {
			return nil, usagef("%s: %v", what, err)
		}
		spec.Geometry = g
	case c.WKT != "":
		spec.WKT = c.WKT
	}
	return spec, nil
}

func boxGeometry(b []float64) (*Geometry, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("expected xmin, ymin, xmax, ymax, got %d values", len(b))
	}
	if b[0] > b[2] || b[1] > b[3] {
		return nil, fmt.Errorf("empty box %v", b)
	}
	return geom.Envelope{MinX: b[0], MinY: b[1], MaxX: b[2], MaxY: b[3]}.Polygon(), nil
}

func usagef(format string, args ...any) *UsageError {
	return &translate.UsageError{Msg: fmt.Sprintf(format, args...)}
}
