// Package memory is an in-memory mailstore driver for tests: folders
// are plain slices, capabilities and failure modes are settable.
package memory

import (
	"context"
	"fmt"

	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/trace"
)

// Msg pairs a descriptor with its raw bytes.
type Msg struct {
	Desc mailstore.Descriptor
	Raw  []byte
}

type Folder struct {
	Caps mailstore.FieldMask
	Msgs []Msg

	// FetchErr, when set, is returned from FetchAll to simulate
	// protocol failures.
	FetchErr error

	FetchAllCalls int
	FetchRawCalls int
	MarkSeenCalls int
}

type Store struct {
	Folders map[string]*Folder
	Closed  bool
}

func NewStore() *Store {
	return &Store{Folders: make(map[string]*Folder)}
}

func (s *Store) OpenFolder(_ context.Context, name string, _ mailstore.FolderMode) (mailstore.Folder, error) {
	f, ok := s.Folders[name]
	if !ok {
		return nil, fmt.Errorf("no such folder %q", name)
	}
	return f, nil
}

func (s *Store) Close() error {
	s.Closed = true
	return nil
}

func (f *Folder) Capabilities() mailstore.FieldMask {
	return f.Caps
}

func (f *Folder) FetchAll(_ context.Context, mask mailstore.FieldMask, p trace.ProgressListener) ([]mailstore.Descriptor, error) {
	f.FetchAllCalls++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if p == nil {
		p = trace.NopProgress{}
	}

	p.Start(len(f.Msgs))
	descs := make([]mailstore.Descriptor, 0, len(f.Msgs))
	for i, m := range f.Msgs {
		d := mailstore.Descriptor{Seq: m.Desc.Seq}
		if mask.Has(mailstore.FetchUID) {
			d.UID = m.Desc.UID
		}
		if mask.Has(mailstore.FetchFlags) {
			d.Seen = m.Desc.Seen
		}
		if mask.Has(mailstore.FetchSize) {
			d.Size = m.Desc.Size
		}
		if mask.Has(mailstore.FetchEnvelope) {
			d.Envelope = m.Desc.Envelope
		}
		descs = append(descs, d)
		p.Progress(i+1, len(f.Msgs))
	}
	p.Stop(len(f.Msgs))
	return descs, nil
}

func (f *Folder) FetchRaw(_ context.Context, d mailstore.Descriptor) (*mailstore.RawMessage, error) {
	f.FetchRawCalls++
	for _, m := range f.Msgs {
		if (d.UID != "" && m.Desc.UID == d.UID) || (d.UID == "" && m.Desc.Seq == d.Seq) {
			return &mailstore.RawMessage{Descriptor: m.Desc, Body: m.Raw}, nil
		}
	}
	return nil, fmt.Errorf("message %q: %w", d.UID, mailstore.ErrNotFound)
}

func (f *Folder) MarkSeen(_ context.Context, d mailstore.Descriptor, seen bool) error {
	f.MarkSeenCalls++
	for i := range f.Msgs {
		m := &f.Msgs[i]
		if (d.UID != "" && m.Desc.UID == d.UID) || (d.UID == "" && m.Desc.Seq == d.Seq) {
			m.Desc.Seen = seen
			return nil
		}
	}
	return fmt.Errorf("message %q: %w", d.UID, mailstore.ErrNotFound)
}

func (f *Folder) Close() error { return nil }
