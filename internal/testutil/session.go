// Package testutil provides deterministic helpers shared by tests.
package testutil

import (
	"fmt"
	"sync"
)

// FixedSessionGenerator generates the same session ID every time.
//
// This enables deterministic log output and golden snapshot comparison:
// the same scenario compiled with a FixedSessionGenerator logs identical
// session fields on every run.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a new fixed session ID generator.
//
// If id is empty, Generate() returns "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session ID.
//
// Implements querysql.SessionIDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}

// CountingSessionGenerator returns "<prefix>-1", "<prefix>-2", ... and can
// be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type CountingSessionGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewCountingSessionGenerator creates a counter starting at 0. The first
// call to Generate() returns "<prefix>-1".
func NewCountingSessionGenerator(prefix string) *CountingSessionGenerator {
	if prefix == "" {
		prefix = "session"
	}
	return &CountingSessionGenerator{prefix: prefix}
}

// Generate increments the counter and returns the next ID.
func (g *CountingSessionGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Count returns how many IDs were generated since the last reset.
func (g *CountingSessionGenerator) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset resets the counter to 0.
func (g *CountingSessionGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
