package broker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ID - unique identifier of registered session.
type ID string

// NewID - generates random session identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Peer - delivery endpoint of registered session.
// Push must never block the caller.
type Peer interface {
	Push(message string) error
}

// Entry - point-in-time view of registered session.
type Entry struct {
	ID       ID
	Name     string
	Addr     string
	JoinedAt time.Time
	Peer     Peer
}

type record struct {
	Entry
	seq uint64
}

// Registry - set of currently connected sessions.
// Mutations hold the lock only for the map update, readers work with copies.
type Registry struct {
	mu   sync.RWMutex
	seq  uint64
	list map[ID]*record
}

// NewRegistry - builds empty registry.
func NewRegistry() *Registry {
	return &Registry{
		list: make(map[ID]*record),
	}
}

// Register - adds session with given display name and returns its new ID.
// Display names are not required to be unique.
func (r *Registry) Register(name, addr string, peer Peer) ID {
	id := NewID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.list[id] = &record{
		Entry: Entry{
			ID:       id,
			Name:     name,
			Addr:     addr,
			JoinedAt: time.Now().UTC(),
			Peer:     peer,
		},
		seq: r.seq,
	}
	return id
}

// Unregister - removes session and returns its last entry. Reports false when ID
// is unknown, so repeated calls for the same session remove it only once.
func (r *Registry) Unregister(id ID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.list[id]
	if !ok {
		return Entry{}, false
	}
	delete(r.list, id)
	return rec.Entry, true
}

// Get - returns entry of registered session.
func (r *Registry) Get(id ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.list[id]
	if !ok {
		return Entry{}, false
	}
	return rec.Entry, true
}

// Len - number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

// Snapshot - copies all entries in join order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	records := make([]*record, 0, len(r.list))
	for _, rec := range r.list {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].seq < records[j].seq
	})
	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = rec.Entry
	}
	return entries
}
