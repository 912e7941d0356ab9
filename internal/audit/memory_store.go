package audit

import (
	"fmt"
	"sync"
)

// InMemoryStore keeps the chain in process memory. Used by tests and by
// deployments that only need the chain for the life of the process.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want := uint64(len(s.entries)) + 1; entry.Seq != want {
		return fmt.Errorf("append out of order: seq %d, want %d", entry.Seq, want)
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) Get(seq uint64) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == 0 || seq > uint64(len(s.entries)) {
		return Entry{}, false, nil
	}
	return s.entries[seq-1], true, nil
}

func (s *InMemoryStore) Last() (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false, nil
	}
	return s.entries[len(s.entries)-1], true, nil
}

func (s *InMemoryStore) Range(from, to uint64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == 0 {
		from = 1
	}
	last := uint64(len(s.entries))
	if to == 0 || to > last {
		to = last
	}
	if from > to {
		return nil, nil
	}

	out := make([]Entry, 0, to-from+1)
	out = append(out, s.entries[from-1:to]...)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// Tamper overwrites a stored entry in place. Only tests use this, to prove
// that Verify detects modification after writing.
func (s *InMemoryStore) Tamper(seq uint64, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == 0 || seq > uint64(len(s.entries)) {
		return false
	}
	mutate(&s.entries[seq-1])
	return true
}
