// store.go - Snapshot persistence behind a small interface.

package store

import (
	"errors"

	"darkpool/internal/ledger"
)

// ErrNoSnapshot is returned by Load when the backend holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store persists ledger snapshots.
type Store interface {
	Save(snap *ledger.Snapshot) error
	Load() (*ledger.Snapshot, error)
	Close() error
}
