package storage

import (
	"context"
	"sync"

	"github.com/bscott/mailsync/internal/message"
)

type memKey struct {
	account, folder string
	id              message.ID
}

// MemoryStore is an in-memory Storage used by tests and by hosts that
// keep their own persistence. Reads are counted so tests can assert a
// pass never touched storage.
type MemoryStore struct {
	mu    sync.Mutex
	msgs  map[memKey]*message.Message
	Reads int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make(map[memKey]*message.Message)}
}

func (s *MemoryStore) ExistingIDs(_ context.Context, account, folder string) (map[message.ID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	ids := make(map[message.ID]struct{})
	for k := range s.msgs {
		if k.account == account && k.folder == folder {
			ids[k.id] = struct{}{}
		}
	}
	return ids, nil
}

func (s *MemoryStore) LoadMessage(_ context.Context, account, folder string, id message.ID) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	msg, ok := s.msgs[memKey{account, folder, id}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, account, folder string, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.msgs[memKey{account, folder, msg.ID}] = &cp
	return nil
}

func (s *MemoryStore) UpdateSeen(_ context.Context, account, folder string, id message.ID, seen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[memKey{account, folder, id}]
	if !ok {
		return ErrNotFound
	}
	msg.Read = seen
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Count returns the number of stored messages across all accounts.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}
