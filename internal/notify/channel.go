// Package notify carries OID write notifications from the SNMP engine to
// the bridge.
package notify

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by ReadTimeout when nothing arrived in time.
	ErrTimeout = errors.New("timed out waiting for notification")
	ErrClosed  = errors.New("notification channel is closed")
)

// Channel is a byte stream of newline separated "<oid> <value>" records.
type Channel interface {
	// ReadTimeout reads at most len(p) bytes, waiting up to d for data.
	ReadTimeout(p []byte, d time.Duration) (int, error)
	Close() error
}
