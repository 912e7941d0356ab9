package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrChainBroken = errors.New("audit chain broken")
)

// Chain is the append-only, hash-linked event log. All writers serialize
// through the chain's mutex, so each append is atomic and assigns the next
// sequence number exactly once.
type Chain struct {
	mu       sync.Mutex
	store    Store
	clock    func() time.Time
	level    RedactionLevel
	lastHash string
	nextSeq  uint64
}

// NewChain opens a chain over the given store, resuming from the store's
// tail if it already holds entries.
func NewChain(store Store, level RedactionLevel, clock func() time.Time) (*Chain, error) {
	if clock == nil {
		clock = time.Now
	}

	c := &Chain{
		store:    store,
		clock:    clock,
		level:    level,
		lastHash: GenesisHash,
		nextSeq:  1,
	}

	tail, ok, err := store.Last()
	if err != nil {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}
	if ok {
		c.lastHash = tail.Hash
		c.nextSeq = tail.Seq + 1
	}
	return c, nil
}

// SetRedactionLevel updates the write-time redaction level, typically after
// a policy reload. Entries already written are untouched.
func (c *Chain) SetRedactionLevel(level RedactionLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

// Append redacts the payload, links and hashes a new entry, and durably
// persists it before returning its sequence number.
func (c *Chain) Append(entryType EntryType, runID string, payload map[string]any) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		Seq:       c.nextSeq,
		Timestamp: c.clock().UTC().Format(time.RFC3339),
		Type:      entryType,
		RunID:     runID,
		Payload:   Redact(payload, c.level),
		PrevHash:  c.lastHash,
	}

	hash, err := ComputeHash(entry)
	if err != nil {
		return 0, fmt.Errorf("hash audit entry: %w", err)
	}
	entry.Hash = hash

	if err := c.store.Append(entry); err != nil {
		return 0, fmt.Errorf("persist audit entry: %w", err)
	}

	c.lastHash = entry.Hash
	c.nextSeq++
	return entry.Seq, nil
}

// Head returns the sequence number and hash of the most recent entry.
func (c *Chain) Head() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextSeq - 1, c.lastHash
}

// Verify recomputes the hash chain over [from, to] and reports the first
// entry whose stored hash or linkage does not match. A zero from/to means
// the start/end of the chain. Everything after a broken entry is untrusted.
func (c *Chain) Verify(from, to uint64) error {
	entries, err := c.store.Range(from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	prev := GenesisHash
	if first := entries[0].Seq; first > 1 {
		before, ok, err := c.store.Get(first - 1)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: missing entry %d", ErrChainBroken, first-1)
		}
		prev = before.Hash
	}

	expected := entries[0].Seq
	for _, entry := range entries {
		if entry.Seq != expected {
			return fmt.Errorf("%w: missing entry %d", ErrChainBroken, expected)
		}
		if entry.PrevHash != prev {
			return fmt.Errorf("%w: entry %d prev-hash mismatch", ErrChainBroken, entry.Seq)
		}
		recomputed, err := ComputeHash(entry)
		if err != nil {
			return fmt.Errorf("%w: entry %d not canonicalizable: %v", ErrChainBroken, entry.Seq, err)
		}
		if recomputed != entry.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, entry.Seq)
		}
		prev = entry.Hash
		expected++
	}
	return nil
}

// Export returns entries in sequence order, optionally filtered by type.
// It is a pure read used by external tooling, never by the pipeline.
func (c *Chain) Export(from, to uint64, entryType EntryType) ([]Entry, error) {
	entries, err := c.store.Range(from, to)
	if err != nil {
		return nil, err
	}
	if entryType == "" {
		return entries, nil
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == entryType {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Stats summarizes the chain for status surfaces.
type Stats struct {
	Entries  uint64            `json:"entries"`
	HeadHash string            `json:"head_hash"`
	ByType   map[string]uint64 `json:"by_type"`
}

func (c *Chain) Stats() (Stats, error) {
	entries, err := c.store.Range(0, 0)
	if err != nil {
		return Stats{}, err
	}
	head, hash := c.Head()
	stats := Stats{Entries: head, HeadHash: hash, ByType: map[string]uint64{}}
	for _, entry := range entries {
		stats.ByType[string(entry.Type)]++
	}
	return stats, nil
}
