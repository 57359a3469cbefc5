package sqldb

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// Dialect holds the SQL spelling differences between database engines.
type Dialect struct {
	// Name is the registered format name.
	Name string

	// Prefix is stripped from dataset paths, e.g. "PG:".
	Prefix     string
	Extensions []string

	driverName string
	quoteChar  byte
	numbered   bool // $1, $2 placeholders
	returning  bool // INSERT ... RETURNING for generated FIDs
	fidDecl    string
	blobType   string
	types      map[vector.FieldType]string

	// upsertClause renders the conflict clause for the given columns.
	upsertClause func(d *Dialect, fid string, cols []string) string

	// dsn turns a dataset path into a driver DSN.
	dsn func(path string) string
}

// SQLite is the pure Go sqlite dialect.
var SQLite = &Dialect{
	Name:       "SQLite",
	Prefix:     "SQLITE:",
	Extensions: []string{"sqlite", "db"},
	driverName: "sqlite",
	quoteChar:  '"',
	fidDecl:    "INTEGER PRIMARY KEY AUTOINCREMENT",
	blobType:   "BLOB",
	types: map[vector.FieldType]string{
		vector.Integer:   "INTEGER",
		vector.Integer64: "BIGINT",
		vector.Real:      "REAL",
		vector.String:    "TEXT",
		vector.Date:      "VARCHAR(10)",
		vector.Time:      "VARCHAR(8)",
		vector.DateTime:  "VARCHAR(32)",
		vector.Binary:    "BLOB",
	},
	upsertClause: onConflictUpsert,
	dsn: func(path string) string {
		// SQLite only supports one writer
		return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	},
}

// Postgres is the PostgreSQL dialect. Paths look like "PG:host=... dbname=...".
var Postgres = &Dialect{
	Name:       "PostgreSQL",
	Prefix:     "PG:",
	driverName: "postgres",
	quoteChar:  '"',
	numbered:   true,
	returning:  true,
	fidDecl:    "BIGSERIAL PRIMARY KEY",
	blobType:   "BYTEA",
	types: map[vector.FieldType]string{
		vector.Integer:   "INTEGER",
		vector.Integer64: "BIGINT",
		vector.Real:      "DOUBLE PRECISION",
		vector.String:    "VARCHAR",
		vector.Date:      "VARCHAR(10)",
		vector.Time:      "VARCHAR(8)",
		vector.DateTime:  "VARCHAR(32)",
		vector.Binary:    "BYTEA",
	},
	upsertClause: onConflictUpsert,
	dsn: func(path string) string {
		if strings.Contains(path, "://") || strings.Contains(path, "sslmode=") {
			return path
		}
		return strings.TrimSpace(path + " sslmode=disable")
	},
}

// MySQL is the MySQL dialect. Paths look like "MYSQL:user:pass@tcp(host)/db".
var MySQL = &Dialect{
	Name:       "MySQL",
	Prefix:     "MYSQL:",
	driverName: "mysql",
	quoteChar:  '`',
	fidDecl:    "BIGINT AUTO_INCREMENT PRIMARY KEY",
	blobType:   "LONGBLOB",
	types: map[vector.FieldType]string{
		vector.Integer:   "INT",
		vector.Integer64: "BIGINT",
		vector.Real:      "DOUBLE",
		vector.String:    "TEXT",
		vector.Date:      "VARCHAR(10)",
		vector.Time:      "VARCHAR(8)",
		vector.DateTime:  "VARCHAR(32)",
		vector.Binary:    "LONGBLOB",
	},
	upsertClause: func(d *Dialect, fid string, cols []string) string {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c))
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
	dsn: func(path string) string {
		if strings.Contains(path, "?") {
			return path + "&charset=utf8mb4"
		}
		return path + "?charset=utf8mb4"
	},
}

// Dialects lists the dialects registered with the driver registry.
var Dialects = []*Dialect{SQLite, Postgres, MySQL}

func onConflictUpsert(d *Dialect, fid string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", d.Quote(fid), strings.Join(sets, ", "))
}

// Quote quotes an identifier.
func (d *Dialect) Quote(name string) string {
	q := string(d.quoteChar)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d *Dialect) placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// columnType returns the column declaration for a field.
func (d *Dialect) columnType(f vector.FieldDefn) (string, error) {
	t, ok := d.types[f.Type]
	if !ok {
		return "", fmt.Errorf("sqldb: %s has no %s columns: %w", d.Name, f.Type, vector.ErrNotSupported)
	}
	if f.Type == vector.String && f.Width > 0 && d != SQLite {
		t = fmt.Sprintf("VARCHAR(%d)", f.Width)
	}
	if f.Type == vector.Real && f.Width > 0 && f.Precision > 0 && d == Postgres {
		t = fmt.Sprintf("NUMERIC(%d,%d)", f.Width, f.Precision)
	}
	decl := t
	if !f.Nullable {
		decl += " NOT NULL"
	}
	if f.Default != nil {
		decl += " DEFAULT " + *f.Default
	}
	return decl, nil
}

// creatableTypes lists the field types the dialect can store.
func (d *Dialect) creatableTypes() []vector.FieldType {
	var out []vector.FieldType
	for _, t := range []vector.FieldType{vector.Integer, vector.Integer64, vector.Real, vector.String,
		vector.Date, vector.Time, vector.DateTime, vector.Binary} {
		if _, ok := d.types[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// limitClause is the same in all supported engines.
func limitClause(n int) string {
	return fmt.Sprintf(" LIMIT %d", n)
}
