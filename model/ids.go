package model

import (
	"sync"
	"time"
)

// idShift leaves room for ids generated within the same millisecond.
const idShift = 10

// IDGenerator issues unique, monotonically increasing message ids derived
// from the wall clock.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a fresh id. Collisions with previously issued or observed
// ids are resolved by probing upward.
func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	id := now().UnixMilli() << idShift
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe records an id that already exists so later ids never reuse it.
func (g *IDGenerator) Observe(id int64) {
	g.mu.Lock()
	if id > g.last {
		g.last = id
	}
	g.mu.Unlock()
}
