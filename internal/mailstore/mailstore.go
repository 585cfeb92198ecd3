// Package mailstore defines the transport-side abstraction over a mail
// store: one authenticated connection (Store) exposing folders whose
// messages can be bulk-fetched with a negotiated field mask. Concrete
// drivers live in the imap, pop3 and memory subpackages.
package mailstore

import (
	"context"
	"time"

	"github.com/bscott/mailsync/internal/message"
	"github.com/bscott/mailsync/internal/trace"
)

type FolderMode int

const (
	ModeReadOnly FolderMode = iota
	ModeReadWrite
)

// Envelope carries the raw header fields a bulk fetch can supply without
// downloading the message body.
type Envelope struct {
	FromName  string
	FromEmail string
	Subject   string
	Date      time.Time
}

// Descriptor describes one remote message as seen during a bulk fetch.
// Only the fields covered by the negotiated mask are populated. Seq is
// the position within the current session's folder listing and is only
// meaningful for that session.
type Descriptor struct {
	UID      message.ID
	Seq      uint32
	Size     int64
	Seen     bool
	Envelope Envelope
}

// RawMessage is a fully fetched message: its descriptor plus the
// complete RFC 5322 bytes, ready for materialization.
type RawMessage struct {
	Descriptor
	Body []byte
}

// Store is a single connected, authenticated link to a mail store. It is
// not safe for concurrent use; the owning account worker serializes all
// operations. Close unblocks any in-flight network call.
type Store interface {
	OpenFolder(ctx context.Context, name string, mode FolderMode) (Folder, error)
	Close() error
}

// Folder is a session-scoped handle onto one mailbox. It becomes invalid
// when its Store closes. Capabilities is computed once at open time and
// stable for the handle's lifetime.
type Folder interface {
	Capabilities() FieldMask
	// FetchAll bulk-fetches descriptors for every message in the
	// folder, populating only the fields in mask. Requesting fields
	// outside Capabilities() is a driver error.
	FetchAll(ctx context.Context, mask FieldMask, p trace.ProgressListener) ([]Descriptor, error)
	// FetchRaw downloads the complete message for a descriptor
	// previously returned by FetchAll in this session.
	FetchRaw(ctx context.Context, d Descriptor) (*RawMessage, error)
	// MarkSeen pushes a seen-flag change back to the server. Protocols
	// without flags return ErrNotSupported.
	MarkSeen(ctx context.Context, d Descriptor, seen bool) error
	Close() error
}
