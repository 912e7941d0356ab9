package audit

// Store persists chain entries. Append is only ever called by the Chain's
// single writer; ordering and hashing are the Chain's job, durability is
// the store's.
type Store interface {
	Append(entry Entry) error
	Get(seq uint64) (Entry, bool, error)
	Last() (Entry, bool, error)
	Range(from, to uint64) ([]Entry, error)
	Close() error
}
