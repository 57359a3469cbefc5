package sqldb

import (
	"database/sql"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// Layer is a table of a SQL dataset.
type Layer struct {
	ds        *Dataset
	name      string
	schema    *vector.Schema
	fidColumn string
	metadata  map[string]string

	// created is false until the table exists in the database.
	created bool

	where   string
	spatial *vector.SpatialFilter
	ignored map[int]bool

	// read cursor: keyset pagination on the FID
	page      []*vector.Feature
	pagePos   int
	lastFID   int64
	exhausted bool

	savepoint string
}

func newLayer(d *Dataset, name string, schema *vector.Schema, fid string) *Layer {
	l := &Layer{
		ds:        d,
		name:      name,
		schema:    schema,
		fidColumn: fid,
		metadata:  map[string]string{},
	}
	l.resetPage()
	return l
}

func (l *Layer) Name() string { return l.name }

func (l *Layer) Schema() *vector.Schema { return l.schema }

func (l *Layer) FIDColumn() string { return l.fidColumn }

func (l *Layer) Metadata() map[string]string {
	out := make(map[string]string, len(l.metadata))
	for k, v := range l.metadata {
		out[k] = v
	}
	return out
}

func (l *Layer) Capabilities() vector.LayerCapabilities {
	update := l.ds.opts.Update
	return vector.LayerCapabilities{
		FastFeatureCount:   l.spatial == nil,
		RandomRead:         true,
		Transactions:       true,
		CreateField:        update,
		CreateGeomField:    update,
		Upsert:             update,
		IgnoreFields:       true,
		CurveGeometries:    true,
		ZGeometries:        true,
		MeasuredGeometries: true,
	}
}

func (l *Layer) q(name string) string { return l.ds.dialect.Quote(name) }

// ensureTable creates the table and its bookkeeping rows.
func (l *Layer) ensureTable() error {
	if l.created {
		return nil
	}
	if !l.ds.opts.Update {
		return fmt.Errorf("sqldb: create table %q: %w", l.name, vector.ErrNotSupported)
	}
	d := l.ds.dialect

	cols := []string{l.q(l.fidColumn) + " " + d.fidDecl}
	for _, f := range l.schema.Fields {
		decl, err := d.columnType(f)
		if err != nil {
			return err
		}
		cols = append(cols, l.q(f.Name)+" "+decl)
	}
	for _, gf := range l.schema.GeomFields {
		decl := l.q(gf.Name) + " " + d.blobType
		if !gf.Nullable {
			decl += " NOT NULL"
		}
		cols = append(cols, decl)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", l.q(l.name), strings.Join(cols, ", "))
	if _, err := l.ds.exec(stmt); err != nil {
		return fmt.Errorf("sqldb: create table %q: %w", l.name, err)
	}

	if _, err := l.ds.exec("INSERT INTO ogr_layers (table_name, fid_column, position) VALUES ("+d.placeholders(1, 3)+")",
		l.name, l.fidColumn, l.position()); err != nil {
		return fmt.Errorf("sqldb: register %q: %w", l.name, err)
	}
	for i, f := range l.schema.Fields {
		if err := l.ds.registerField(l.name, i, f); err != nil {
			return fmt.Errorf("sqldb: register %q: %w", l.name, err)
		}
	}
	for i, gf := range l.schema.GeomFields {
		if err := l.ds.registerGeomField(l.name, len(l.schema.Fields)+i, gf); err != nil {
			return fmt.Errorf("sqldb: register %q: %w", l.name, err)
		}
	}
	if err := l.ds.writeMetadata(l.name, l.metadata); err != nil {
		return fmt.Errorf("sqldb: register %q: %w", l.name, err)
	}
	l.created = true
	return nil
}

func (l *Layer) position() int {
	for i, o := range l.ds.layers {
		if o == l {
			return i
		}
	}
	return len(l.ds.layers)
}

func (l *Layer) resetPage() {
	l.page = nil
	l.pagePos = 0
	l.lastFID = math.MinInt64
	l.exhausted = false
}

func (l *Layer) ResetReading() { l.resetPage() }

func (l *Layer) NextFeature() (*vector.Feature, error) {
	if !l.created {
		return nil, io.EOF
	}
	for {
		for l.pagePos < len(l.page) {
			f := l.page[l.pagePos]
			l.pagePos++
			if l.spatial == nil || l.spatial.Match(f) {
				return f, nil
			}
		}
		if l.exhausted {
			return nil, io.EOF
		}
		page, err := l.fetch(l.lastFID, l.ds.opts.PageSize)
		if err != nil {
			return nil, err
		}
		l.page, l.pagePos = page, 0
		if len(page) < l.ds.opts.PageSize {
			l.exhausted = true
		}
		if len(page) > 0 {
			l.lastFID = page[len(page)-1].FID
		}
	}
}

// selectList returns the selected columns and the schema position of each
// attribute column after the FID, in order.
func (l *Layer) selectList() (string, []int) {
	cols := []string{l.q(l.fidColumn)}
	var fields []int
	for i, f := range l.schema.Fields {
		if l.ignored[i] {
			continue
		}
		cols = append(cols, l.q(f.Name))
		fields = append(fields, i)
	}
	for _, gf := range l.schema.GeomFields {
		cols = append(cols, l.q(gf.Name))
	}
	return strings.Join(cols, ", "), fields
}

// fetch reads up to limit features with FID greater than after.
func (l *Layer) fetch(after int64, limit int) ([]*vector.Feature, error) {
	d := l.ds.dialect
	list, fields := l.selectList()
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s > %s", list, l.q(l.name), l.q(l.fidColumn), d.Placeholder(1))
	if l.where != "" {
		stmt += " AND (" + l.where + ")"
	}
	stmt += " ORDER BY " + l.q(l.fidColumn) + limitClause(limit)
	return l.scan(fields, stmt, after)
}

func (l *Layer) scan(fields []int, stmt string, args ...any) ([]*vector.Feature, error) {
	var out []*vector.Feature
	ncols := 1 + len(fields) + len(l.schema.GeomFields)
	err := l.ds.query(func(rows *sql.Rows) error {
		raw := make([]any, ncols)
		ptrs := make([]any, ncols)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		f, err := l.decode(fields, raw)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: read %q: %w", l.name, err)
	}
	return out, nil
}

func (l *Layer) decode(fields []int, raw []any) (*vector.Feature, error) {
	f := vector.NewFeature(l.schema)
	fid, err := toInt64(raw[0])
	if err != nil {
		return nil, fmt.Errorf("fid: %w", err)
	}
	f.FID = fid
	for j, i := range fields {
		v, err := decodeValue(l.schema.Fields[i].Type, raw[1+j])
		if err != nil {
			return nil, fmt.Errorf("fid %d field %q: %w", fid, l.schema.Fields[i].Name, err)
		}
		f.Set(i, v)
	}
	base := 1 + len(fields)
	for i, gf := range l.schema.GeomFields {
		g, err := decodeGeometry(raw[base+i], gf.CRS)
		if err != nil {
			return nil, fmt.Errorf("fid %d geometry %q: %w", fid, gf.Name, err)
		}
		f.SetGeometry(i, g)
	}
	return f, nil
}

func (l *Layer) GetFeature(fid int64) (*vector.Feature, error) {
	if l.created {
		list, fields := l.selectList()
		stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", list, l.q(l.name), l.q(l.fidColumn), l.ds.dialect.Placeholder(1))
		feats, err := l.scan(fields, stmt, fid)
		if err != nil {
			return nil, err
		}
		if len(feats) > 0 {
			return feats[0], nil
		}
	}
	return nil, fmt.Errorf("sqldb: layer %q fid %d: %w", l.name, fid, vector.ErrNoSuchFeature)
}

func (l *Layer) FeatureCount(force bool) int64 {
	if !l.created {
		return 0
	}
	if l.spatial != nil {
		if !force {
			return -1
		}
		var n int64
		after := int64(math.MinInt64)
		for {
			page, err := l.fetch(after, l.ds.opts.PageSize)
			if err != nil {
				return -1
			}
			for _, f := range page {
				if l.spatial.Match(f) {
					n++
				}
			}
			if len(page) < l.ds.opts.PageSize {
				return n
			}
			after = page[len(page)-1].FID
		}
	}

	stmt := "SELECT COUNT(*) FROM " + l.q(l.name)
	if l.where != "" {
		stmt += " WHERE " + l.where
	}
	ctx, cancel := l.ds.context()
	defer cancel()
	var n int64
	if err := l.ds.q().QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return -1
	}
	return n
}

// SetAttributeFilter passes where through to the database. It is checked
// by running it once.
func (l *Layer) SetAttributeFilter(where string) error {
	where = strings.TrimSpace(where)
	if where != "" && l.created {
		ctx, cancel := l.ds.context()
		defer cancel()
		var n int64
		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", l.q(l.name), where)
		if err := l.ds.q().QueryRowContext(ctx, stmt).Scan(&n); err != nil {
			return fmt.Errorf("sqldb: layer %q: invalid filter %q: %w", l.name, where, err)
		}
	}
	l.where = where
	l.resetPage()
	return nil
}

func (l *Layer) SetSpatialFilter(geomField int, g *geom.Geometry) error {
	l.resetPage()
	if g == nil {
		l.spatial = nil
		return nil
	}
	if geomField < 0 || geomField >= len(l.schema.GeomFields) {
		return fmt.Errorf("sqldb: layer %q has no geometry field %d", l.name, geomField)
	}
	l.spatial = vector.NewSpatialFilter(geomField, g)
	return nil
}

func (l *Layer) SetIgnoredFields(names []string) error {
	l.ignored = map[int]bool{}
	for _, n := range names {
		if i := l.schema.FieldIndex(n); i >= 0 {
			l.ignored[i] = true
		}
	}
	l.resetPage()
	return nil
}

func (l *Layer) CreateField(f vector.FieldDefn, approxOK bool) error {
	if !l.ds.opts.Update {
		return fmt.Errorf("sqldb: create field %q: %w", f.Name, vector.ErrNotSupported)
	}
	if !l.ds.Capabilities().CanCreateFieldType(f.Type) {
		if !approxOK {
			return fmt.Errorf("sqldb: field type %s: %w", f.Type, vector.ErrNotSupported)
		}
		f.Type = vector.String
		f.Width = 0
	}
	if l.schema.FieldIndex(f.Name) >= 0 || strings.EqualFold(f.Name, l.fidColumn) {
		return fmt.Errorf("sqldb: layer %q already has column %q", l.name, f.Name)
	}
	if l.created {
		decl, err := l.ds.dialect.columnType(f)
		if err != nil {
			return err
		}
		if _, err := l.ds.exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", l.q(l.name), l.q(f.Name), decl)); err != nil {
			return fmt.Errorf("sqldb: create field %q: %w", f.Name, err)
		}
		if err := l.ds.registerField(l.name, len(l.schema.Fields), f); err != nil {
			return fmt.Errorf("sqldb: create field %q: %w", f.Name, err)
		}
	}
	l.schema.Fields = append(l.schema.Fields, f)
	return nil
}

func (l *Layer) CreateGeomField(f vector.GeomFieldDefn) error {
	if !l.ds.opts.Update {
		return fmt.Errorf("sqldb: create geometry field %q: %w", f.Name, vector.ErrNotSupported)
	}
	if l.schema.GeomFieldIndex(f.Name) >= 0 {
		return fmt.Errorf("sqldb: layer %q already has geometry column %q", l.name, f.Name)
	}
	if l.created {
		if _, err := l.ds.exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			l.q(l.name), l.q(f.Name), l.ds.dialect.blobType)); err != nil {
			return fmt.Errorf("sqldb: create geometry field %q: %w", f.Name, err)
		}
		pos := len(l.schema.Fields) + len(l.schema.GeomFields)
		if err := l.ds.registerGeomField(l.name, pos, f); err != nil {
			return fmt.Errorf("sqldb: create geometry field %q: %w", f.Name, err)
		}
	}
	l.schema.GeomFields = append(l.schema.GeomFields, f)
	return nil
}

func (l *Layer) check(f *vector.Feature) error {
	if !l.ds.opts.Update {
		return fmt.Errorf("sqldb: write %q: %w", l.name, vector.ErrNotSupported)
	}
	if len(f.Fields) != len(l.schema.Fields) || len(f.Geoms) != len(l.schema.GeomFields) {
		return fmt.Errorf("sqldb: layer %q: feature has %d fields and %d geometries, layer has %d and %d",
			l.name, len(f.Fields), len(f.Geoms), len(l.schema.Fields), len(l.schema.GeomFields))
	}
	return l.ensureTable()
}

// insertColumns returns the column names and arguments of a write.
func (l *Layer) insertColumns(f *vector.Feature, withFID bool) ([]string, []any, error) {
	var cols []string
	var args []any
	if withFID {
		cols = append(cols, l.fidColumn)
		args = append(args, f.FID)
	}
	for i, fd := range l.schema.Fields {
		if !f.Fields[i].IsSet() {
			continue
		}
		cols = append(cols, fd.Name)
		args = append(args, encodeValue(f.Fields[i]))
	}
	for i, gf := range l.schema.GeomFields {
		b, err := encodeGeometry(f.Geoms[i])
		if err != nil {
			return nil, nil, fmt.Errorf("geometry %q: %w", gf.Name, err)
		}
		cols = append(cols, gf.Name)
		args = append(args, b)
	}
	return cols, args, nil
}

func (l *Layer) insertSQL(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = l.q(c)
	}
	if len(cols) == 0 {
		if l.ds.dialect == MySQL {
			return fmt.Sprintf("INSERT INTO %s () VALUES ()", l.q(l.name))
		}
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", l.q(l.name))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", l.q(l.name),
		strings.Join(quoted, ", "), l.ds.dialect.placeholders(1, len(cols)))
}

// CreateFeature inserts f. An unset FID is generated by the database and
// stored back in f.FID.
func (l *Layer) CreateFeature(f *vector.Feature) error {
	if err := l.check(f); err != nil {
		return err
	}
	withFID := f.FID != vector.NullFID
	cols, args, err := l.insertColumns(f, withFID)
	if err != nil {
		return fmt.Errorf("sqldb: write %q: %w", l.name, err)
	}
	stmt := l.insertSQL(cols)

	d := l.ds.dialect
	if !withFID && d.returning {
		ctx, cancel := l.ds.context()
		defer cancel()
		if err := l.ds.q().QueryRowContext(ctx, stmt+" RETURNING "+l.q(l.fidColumn), args...).Scan(&f.FID); err != nil {
			return fmt.Errorf("sqldb: write %q: %w", l.name, err)
		}
		return nil
	}

	res, err := l.ds.exec(stmt, args...)
	if err != nil {
		return fmt.Errorf("sqldb: write %q: %w", l.name, err)
	}
	if withFID {
		return l.syncSequence()
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqldb: write %q: %w", l.name, err)
	}
	f.FID = id
	return nil
}

// syncSequence moves a postgres serial past explicitly written FIDs.
func (l *Layer) syncSequence() error {
	if l.ds.dialect != Postgres {
		return nil
	}
	stmt := fmt.Sprintf("SELECT setval(pg_get_serial_sequence($1, $2), GREATEST((SELECT MAX(%s) FROM %s), 1))",
		l.q(l.fidColumn), l.q(l.name))
	_, err := l.ds.exec(stmt, l.q(l.name), l.fidColumn)
	return err
}

// UpsertFeature replaces the row with f.FID or inserts it.
func (l *Layer) UpsertFeature(f *vector.Feature) error {
	if f.FID == vector.NullFID {
		return l.CreateFeature(f)
	}
	if err := l.check(f); err != nil {
		return err
	}
	cols, args, err := l.insertColumns(f, true)
	if err != nil {
		return fmt.Errorf("sqldb: upsert %q: %w", l.name, err)
	}
	update := cols[1:]
	if len(update) == 0 {
		update = cols[:1]
	}
	stmt := l.insertSQL(cols) + l.ds.dialect.upsertClause(l.ds.dialect, l.fidColumn, update)
	if _, err := l.ds.exec(stmt, args...); err != nil {
		return fmt.Errorf("sqldb: upsert %q: %w", l.name, err)
	}
	return l.syncSequence()
}

func (l *Layer) SetMetadata(md map[string]string) error {
	if l.created {
		if err := l.ds.writeMetadata(l.name, md); err != nil {
			return fmt.Errorf("sqldb: set metadata of %q: %w", l.name, err)
		}
	}
	for k, v := range md {
		l.metadata[k] = v
	}
	return nil
}

// StartTransaction begins a transaction, or a savepoint when another one
// is already open on the dataset.
func (l *Layer) StartTransaction() error {
	if l.savepoint != "" || l.ds.txOwner == l {
		return vector.ErrTransactionSet
	}
	if err := l.ensureTable(); err != nil {
		return err
	}
	if l.ds.tx == nil {
		tx, err := l.ds.db.BeginTx(l.ds.ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		l.ds.tx, l.ds.txOwner = tx, l
		return nil
	}
	name := "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := l.ds.exec("SAVEPOINT " + name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	l.savepoint = name
	return nil
}

func (l *Layer) CommitTransaction() error {
	switch {
	case l.ds.txOwner == l:
		return l.ds.endTx(true)
	case l.savepoint != "":
		name := l.savepoint
		l.savepoint = ""
		if _, err := l.ds.exec("RELEASE SAVEPOINT " + name); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return nil
	}
	return vector.ErrNoTransaction
}

func (l *Layer) RollbackTransaction() error {
	switch {
	case l.ds.txOwner == l:
		return l.ds.endTx(false)
	case l.savepoint != "":
		name := l.savepoint
		l.savepoint = ""
		l.resetPage()
		if _, err := l.ds.exec("ROLLBACK TO SAVEPOINT " + name); err != nil {
			return fmt.Errorf("rollback to savepoint: %w", err)
		}
		if _, err := l.ds.exec("RELEASE SAVEPOINT " + name); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return nil
	}
	return vector.ErrNoTransaction
}
