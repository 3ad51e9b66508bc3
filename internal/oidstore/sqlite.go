package oidstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one row of the snmprec table.
type Record struct {
	OID       string `db:"oid" json:"oid"`
	Tag       string `db:"tag" json:"tag"`
	Value     string `db:"value" json:"value"`
	MaxAccess string `db:"maxaccess" json:"maxaccess"`
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore reads and writes OID values in the SQL variation table.
type SQLiteStore struct {
	db    *sqlx.DB
	path  string
	table string
}

// PadOID converts a dotted OID into the key format used by the SQL
// variation module, every component right aligned to ten characters.
func PadOID(oid string) string {
	parts := strings.Split(oid, ".")
	for i, p := range parts {
		parts[i] = fmt.Sprintf("%10s", p)
	}
	return strings.Join(parts, ".")
}

// UnpadOID reverses PadOID.
func UnpadOID(key string) string {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ".")
}

// NewSQLiteStore opens an existing database. A missing file is reported as
// ErrStoreMissing; the store never creates the database itself.
func NewSQLiteStore(path string, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DEFAULT_TABLE
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, path)
		}
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStore{db: db, path: path, table: table}, nil
}

// CreateSQLiteIfNotExists creates the database file and the snmprec table
// when they are absent and returns a store on top of it.
func CreateSQLiteIfNotExists(path string, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DEFAULT_TABLE
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		oid 		TEXT NOT NULL PRIMARY KEY,
		tag 		TEXT,
		value 		TEXT,
		maxaccess 	TEXT
	);
	`, table)
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &SQLiteStore{db: db, path: path, table: table}, nil
}

func (s *SQLiteStore) check() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrStoreMissing, s.path)
	}
	return nil
}

func (s *SQLiteStore) queryColumn(column string, oid string) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	var v sql.NullString
	q := fmt.Sprintf("SELECT %s FROM %s WHERE oid=?;", column, s.table)
	err := s.db.Get(&v, q, PadOID(oid))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query %s for %s: %w", column, oid, err)
	}
	return v.String, nil
}

func (s *SQLiteStore) updateColumn(column string, oid string, value string) error {
	if err := s.check(); err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET %s=? WHERE oid=?;", s.table, column)
	if _, err := s.db.Exec(q, value, PadOID(oid)); err != nil {
		return fmt.Errorf("failed to update %s for %s: %w", column, oid, err)
	}
	return nil
}

func (s *SQLiteStore) QueryValue(oid string) (string, error) {
	return s.queryColumn("value", oid)
}

func (s *SQLiteStore) UpdateValue(oid string, value string) error {
	return s.updateColumn("value", oid, value)
}

func (s *SQLiteStore) QueryTag(oid string) (string, error) {
	return s.queryColumn("tag", oid)
}

func (s *SQLiteStore) UpdateTag(oid string, tag string) error {
	return s.updateColumn("tag", oid, tag)
}

// Insert adds or replaces records in one transaction.
func (s *SQLiteStore) Insert(records ...Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to insert")
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	q := fmt.Sprintf(`INSERT OR REPLACE INTO %s (oid, tag, value, maxaccess)
		VALUES (:oid, :tag, :value, :maxaccess);`, s.table)
	for _, r := range records {
		r.OID = PadOID(r.OID)
		if _, err := tx.NamedExec(q, &r); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert %s: %w", UnpadOID(r.OID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Records returns every row whose OID starts with prefix, ordered by key.
func (s *SQLiteStore) Records(prefix string) ([]Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	records := []Record{}
	q := fmt.Sprintf("SELECT oid, tag, value, maxaccess FROM %s ORDER BY oid ASC;", s.table)
	if err := s.db.Select(&records, q); err != nil {
		return nil, fmt.Errorf("failed to retrieve records: %w", err)
	}
	out := records[:0]
	for _, r := range records {
		r.OID = UnpadOID(r.OID)
		if prefix == "" || r.OID == prefix || strings.HasPrefix(r.OID, prefix+".") {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
