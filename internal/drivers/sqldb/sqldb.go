// Package sqldb stores layers as tables of a SQL database.
//
// Each layer is a table with an integer FID primary key, one column per
// attribute field and one WKB blob column per geometry field. Field
// definitions, CRS and metadata live in three bookkeeping tables
// (ogr_layers, ogr_columns and ogr_metadata) so a database written by
// this package reopens with its full schema.
//
// Three engines are supported through Dialect: sqlite (modernc.org/sqlite,
// pure Go), PostgreSQL (lib/pq) and MySQL (go-sql-driver/mysql).
//
// Tables are created lazily, on the first read or write of a layer, so
// fields added right after CreateLayer become part of the CREATE TABLE.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

func init() {
	for _, d := range Dialects {
		vector.Register(driver{dialect: d})
	}
}

type driver struct{ dialect *Dialect }

func (d driver) Name() string         { return d.dialect.Name }
func (d driver) Extensions() []string { return d.dialect.Extensions }

func (d driver) Open(path string, update bool) (vector.Dataset, error) {
	return Open(context.Background(), d.dialect, path, Options{Update: update})
}

func (d driver) Create(path string, options map[string]string) (vector.Dataset, error) {
	return Open(context.Background(), d.dialect, path, Options{Update: true})
}

// Options configures a dataset connection.
type Options struct {
	// Update allows schema changes and writes.
	Update bool

	// Timeout bounds each statement. Zero means DefaultTimeout.
	Timeout time.Duration

	// PageSize is the number of rows fetched per query while reading.
	PageSize int
}

const (
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 500
)

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dataset is a SQL database seen as a collection of layers.
type Dataset struct {
	ctx     context.Context
	dialect *Dialect
	name    string
	db      *sql.DB
	opts    Options

	layers   []*Layer
	metadata map[string]string

	// tx is the open transaction, either dataset wide or started by a layer.
	tx *sql.Tx
	// txOwner is the layer that began tx, nil for a dataset transaction.
	txOwner *Layer
}

// Open connects to path, creating the bookkeeping tables when opened for
// update, and loads the registered layers.
func Open(ctx context.Context, dialect *Dialect, path string, opts Options) (*Dataset, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	trimmed := path
	if dialect.Prefix != "" && strings.HasPrefix(strings.ToUpper(path), dialect.Prefix) {
		trimmed = path[len(dialect.Prefix):]
	}

	db, err := sql.Open(dialect.driverName, dialect.dsn(trimmed))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.driverName, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	d := &Dataset{
		ctx:      ctx,
		dialect:  dialect,
		name:     path,
		db:       db,
		opts:     opts,
		metadata: map[string]string{},
	}
	if opts.Update {
		if err := d.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if err := d.load(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dataset) migrate() error {
	text := "VARCHAR(255)"
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ogr_layers (
			table_name %s NOT NULL PRIMARY KEY,
			fid_column %s NOT NULL,
			position INTEGER NOT NULL
		)`, text, text),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ogr_columns (
			table_name %s NOT NULL,
			position INTEGER NOT NULL,
			name %s NOT NULL,
			kind VARCHAR(16) NOT NULL,
			type_name VARCHAR(64) NOT NULL,
			width INTEGER NOT NULL DEFAULT 0,
			prec INTEGER NOT NULL DEFAULT 0,
			nullable INTEGER NOT NULL DEFAULT 1,
			default_value TEXT,
			srs VARCHAR(255)
		)`, text, text),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ogr_metadata (
			table_name %s NOT NULL,
			md_key %s NOT NULL,
			md_value TEXT
		)`, text, text),
	}
	for _, m := range migrations {
		if _, err := d.exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.opts.Timeout)
}

// q returns the open transaction or the database.
func (d *Dataset) q() querier {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

func (d *Dataset) exec(query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.context()
	defer cancel()
	return d.q().ExecContext(ctx, query, args...)
}

// query runs a query and hands every row to scan before the context is
// released.
func (d *Dataset) query(scan func(*sql.Rows) error, query string, args ...any) error {
	ctx, cancel := d.context()
	defer cancel()
	rows, err := d.q().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *Dataset) hasRegistry() bool {
	ctx, cancel := d.context()
	defer cancel()
	var n int
	err := d.q().QueryRowContext(ctx, "SELECT COUNT(*) FROM ogr_layers").Scan(&n)
	return err == nil
}

func (d *Dataset) load() error {
	if !d.hasRegistry() {
		return nil
	}
	type entry struct{ name, fid string }
	var entries []entry
	err := d.query(func(rows *sql.Rows) error {
		var e entry
		if err := rows.Scan(&e.name, &e.fid); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	}, "SELECT table_name, fid_column FROM ogr_layers ORDER BY position")
	if err != nil {
		return fmt.Errorf("sqldb: list layers: %w", err)
	}

	for _, e := range entries {
		schema, err := d.loadSchema(e.name)
		if err != nil {
			return err
		}
		l := newLayer(d, e.name, schema, e.fid)
		l.created = true
		md, err := d.loadMetadata(e.name)
		if err != nil {
			return err
		}
		l.metadata = md
		d.layers = append(d.layers, l)
	}

	md, err := d.loadMetadata("")
	if err != nil {
		return err
	}
	d.metadata = md
	return nil
}

func (d *Dataset) loadMetadata(table string) (map[string]string, error) {
	md := map[string]string{}
	err := d.query(func(rows *sql.Rows) error {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		md[k] = v.String
		return nil
	}, "SELECT md_key, md_value FROM ogr_metadata WHERE table_name = "+d.dialect.Placeholder(1), table)
	if err != nil {
		return nil, fmt.Errorf("sqldb: metadata of %q: %w", table, err)
	}
	return md, nil
}

func (d *Dataset) writeMetadata(table string, md map[string]string) error {
	for k, v := range md {
		if _, err := d.exec(fmt.Sprintf("DELETE FROM ogr_metadata WHERE table_name = %s AND md_key = %s",
			d.dialect.Placeholder(1), d.dialect.Placeholder(2)), table, k); err != nil {
			return err
		}
		if _, err := d.exec("INSERT INTO ogr_metadata (table_name, md_key, md_value) VALUES ("+
			d.dialect.placeholders(1, 3)+")", table, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) Name() string { return d.name }

func (d *Dataset) LayerCount() int { return len(d.layers) }

func (d *Dataset) Layer(i int) vector.Layer {
	if i < 0 || i >= len(d.layers) {
		return nil
	}
	return d.layers[i]
}

func (d *Dataset) LayerByName(name string) vector.Layer {
	for _, l := range d.layers {
		if l.name == name {
			return l
		}
	}
	for _, l := range d.layers {
		if strings.EqualFold(l.name, name) {
			return l
		}
	}
	return nil
}

// CreateLayer understands FID, FID64, GEOMETRY_NAME and GEOMETRY_NULLABLE.
func (d *Dataset) CreateLayer(name string, geomField *vector.GeomFieldDefn, options map[string]string) (vector.WritableLayer, error) {
	if !d.opts.Update {
		return nil, fmt.Errorf("sqldb: create layer %q: %w", name, vector.ErrNotSupported)
	}
	for _, l := range d.layers {
		if strings.EqualFold(l.name, name) {
			return nil, fmt.Errorf("sqldb: layer %q already exists", name)
		}
	}

	schema := &vector.Schema{}
	if geomField != nil && geomField.Type != geom.None {
		gf := *geomField
		if n := options["GEOMETRY_NAME"]; n != "" {
			gf.Name = n
		}
		if gf.Name == "" {
			gf.Name = "geometry"
		}
		gf.Nullable = !strings.EqualFold(options["GEOMETRY_NULLABLE"], "NO")
		schema.GeomFields = append(schema.GeomFields, gf)
	}

	fid := options["FID"]
	if fid == "" {
		fid = "fid"
	}
	l := newLayer(d, name, schema, fid)
	if strings.EqualFold(options["FID64"], "YES") {
		l.metadata["FID64"] = "YES"
	}
	d.layers = append(d.layers, l)
	return l, nil
}

func (d *Dataset) DeleteLayer(i int) error {
	if !d.opts.Update {
		return fmt.Errorf("sqldb: delete layer: %w", vector.ErrNotSupported)
	}
	if i < 0 || i >= len(d.layers) {
		return fmt.Errorf("sqldb: delete layer %d: %w", i, vector.ErrNoSuchLayer)
	}
	l := d.layers[i]
	if l.created {
		stmts := []string{
			"DROP TABLE " + d.dialect.Quote(l.name),
			"DELETE FROM ogr_layers WHERE table_name = " + d.dialect.Placeholder(1),
			"DELETE FROM ogr_columns WHERE table_name = " + d.dialect.Placeholder(1),
			"DELETE FROM ogr_metadata WHERE table_name = " + d.dialect.Placeholder(1),
		}
		for j, s := range stmts {
			var args []any
			if j > 0 {
				args = []any{l.name}
			}
			if _, err := d.exec(s, args...); err != nil {
				return fmt.Errorf("sqldb: delete layer %q: %w", l.name, err)
			}
		}
	}
	d.layers = append(d.layers[:i], d.layers[i+1:]...)
	return nil
}

func (d *Dataset) Capabilities() vector.DatasetCapabilities {
	return vector.DatasetCapabilities{
		CreateLayer:               d.opts.Update,
		DeleteLayer:               d.opts.Update,
		Transactions:              true,
		MultipleGeomFields:        true,
		CreateGeomFieldAfterLayer: d.opts.Update,
		CreatableFieldTypes:       d.dialect.creatableTypes(),
	}
}

func (d *Dataset) LayerCreationOptionList() []string {
	return []string{"FID", "FID64", "GEOMETRY_NAME", "GEOMETRY_NULLABLE"}
}

// StartTransaction begins a database transaction. force is accepted and
// ignored since every dialect is transactional.
func (d *Dataset) StartTransaction(force bool) error {
	if d.tx != nil {
		return vector.ErrTransactionSet
	}
	if err := d.flushLayers(); err != nil {
		return err
	}
	tx, err := d.db.BeginTx(d.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	d.tx = tx
	d.txOwner = nil
	return nil
}

func (d *Dataset) CommitTransaction() error {
	if d.tx == nil || d.txOwner != nil {
		return vector.ErrNoTransaction
	}
	return d.endTx(true)
}

func (d *Dataset) RollbackTransaction() error {
	if d.tx == nil || d.txOwner != nil {
		return vector.ErrNoTransaction
	}
	return d.endTx(false)
}

func (d *Dataset) endTx(commit bool) error {
	tx := d.tx
	d.tx, d.txOwner = nil, nil
	for _, l := range d.layers {
		l.savepoint = ""
		l.resetPage()
	}
	if commit {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return d.reloadLayers()
}

// reloadLayers marks layers whose table creation was rolled back so the
// table is created again on the next write.
func (d *Dataset) reloadLayers() error {
	for _, l := range d.layers {
		if l.created && !d.tableRegistered(l.name) {
			l.created = false
		}
	}
	return nil
}

func (d *Dataset) tableRegistered(name string) bool {
	ctx, cancel := d.context()
	defer cancel()
	var n int
	err := d.q().QueryRowContext(ctx, "SELECT COUNT(*) FROM ogr_layers WHERE table_name = "+d.dialect.Placeholder(1), name).Scan(&n)
	return err == nil && n > 0
}

func (d *Dataset) Metadata() map[string]string {
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

func (d *Dataset) SetMetadata(md map[string]string) error {
	if !d.opts.Update {
		return fmt.Errorf("sqldb: set metadata: %w", vector.ErrNotSupported)
	}
	if err := d.writeMetadata("", md); err != nil {
		return fmt.Errorf("sqldb: set metadata: %w", err)
	}
	for k, v := range md {
		d.metadata[k] = v
	}
	return nil
}

func (d *Dataset) flushLayers() error {
	for _, l := range d.layers {
		if err := l.ensureTable(); err != nil {
			return err
		}
	}
	return nil
}

// Close creates any pending tables, rolls back an open transaction and
// closes the connection pool.
func (d *Dataset) Close() error {
	if d.tx != nil {
		d.tx.Rollback()
		d.tx = nil
	}
	var err error
	if d.opts.Update {
		err = d.flushLayers()
	}
	if cerr := d.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// DB returns the underlying connection pool.
func (d *Dataset) DB() *sql.DB { return d.db }
