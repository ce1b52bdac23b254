package querysql

import (
	"sync"

	"github.com/google/uuid"
)

// SessionIDGenerator names compile sessions for log correlation.
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns predetermined session IDs for testing.
//
// Thread-safety: SequenceGenerator is safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceGenerator creates a generator that returns ids in order.
func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics if all ids have been consumed, to catch test misconfiguration.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("SequenceGenerator: all session ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// session is the state of exactly one Compile call. It is threaded
// through every recursive step and never shared between calls.
type session struct {
	id      string
	dialect Dialect
	tables  TableResolver
	aliases *aliasAllocator
}

func newSession(id string, d Dialect, tables TableResolver) *session {
	return &session{
		id:      id,
		dialect: d,
		tables:  tables,
		aliases: newAliasAllocator(),
	}
}
