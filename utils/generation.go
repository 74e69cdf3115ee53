package utils

import "sync/atomic"

// Generation hands out monotonically increasing tickets so that results of
// superseded requests can be discarded once a newer request has started.
type Generation struct {
	current atomic.Uint64
}

// Next starts a new generation and returns its ticket
func (g *Generation) Next() uint64 {
	return g.current.Add(1)
}

// IsCurrent reports whether the ticket still belongs to the latest generation
func (g *Generation) IsCurrent(ticket uint64) bool {
	return g.current.Load() == ticket
}

// Invalidate abandons every outstanding ticket
func (g *Generation) Invalidate() {
	g.current.Add(1)
}
