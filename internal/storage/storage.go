// Package storage persists materialized messages and the per-folder
// identifier sets reconciliation diffs against.
package storage

import (
	"context"
	"errors"

	"github.com/bscott/mailsync/internal/message"
)

// ErrNotFound is returned when a message id is unknown to the store.
var ErrNotFound = errors.New("storage: message not found")

type Storage interface {
	// ExistingIDs returns every message id already persisted for an
	// account folder.
	ExistingIDs(ctx context.Context, account, folder string) (map[message.ID]struct{}, error)
	LoadMessage(ctx context.Context, account, folder string, id message.ID) (*message.Message, error)
	// SaveMessage inserts or replaces a fully materialized message.
	SaveMessage(ctx context.Context, account, folder string, msg *message.Message) error
	// UpdateSeen reapplies the remote seen flag onto a stored message.
	UpdateSeen(ctx context.Context, account, folder string, id message.ID, seen bool) error
	Close() error
}
