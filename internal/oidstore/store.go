// Package oidstore persists the textual values backing simulated OIDs.
//
// Two backends are provided: SQLiteStore works on the `snmprec` table shared
// with the SNMP engine's SQL variation module, and SnmprecStore works on a
// plain `oid|tag|value` snmprec file with an in-memory overlay.
package oidstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoreMissing is returned when the backing database or file is gone.
// Callers treat it as fatal; it is distinct from an unknown OID, which
// yields an empty value.
var ErrStoreMissing = errors.New("oid store backing file does not exist")

const (
	BACKEND_SQLITE  = "sqlite"
	BACKEND_SNMPREC = "snmprec"

	DEFAULT_TABLE = "snmprec"
)

// Store is the contract every OID backend implements. Implementations must
// be safe for concurrent use by several PDU workers.
type Store interface {
	QueryValue(oid string) (string, error)
	UpdateValue(oid string, value string) error
	QueryTag(oid string) (string, error)
	UpdateTag(oid string, tag string) error
	Close() error
}

// Params selects and configures a backend.
type Params struct {
	Backend  string
	Database string
	Table    string
	SimFile  string
}

// Open builds the Store described by params.
func Open(params Params) (Store, error) {
	switch strings.ToLower(params.Backend) {
	case BACKEND_SQLITE, "":
		return NewSQLiteStore(params.Database, params.Table)
	case BACKEND_SNMPREC:
		return NewSnmprecStore(nil, params.SimFile)
	default:
		return nil, fmt.Errorf("unsupported oid store backend: %s", params.Backend)
	}
}

// Join builds an outlet field OID from an offset and trailing components.
func Join(offset string, parts ...int) string {
	var b strings.Builder
	b.WriteString(offset)
	for _, p := range parts {
		fmt.Fprintf(&b, ".%d", p)
	}
	return b.String()
}
