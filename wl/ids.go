package wl

import (
	"math/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

type IDGenerator interface {
	NewEventID() EventID
}

// NewIDGenerator returns a monotonic ULID generator. Identifiers produced
// from a single generator sort in creation order.
func NewIDGenerator(clock Clock) IDGenerator {
	t := clock.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)

	return &ulidGenerator{
		clock:   clock,
		entropy: entropy,
	}
}

type ulidGenerator struct {
	lk      sync.Mutex
	clock   Clock
	entropy *ulid.MonotonicEntropy
}

func (g *ulidGenerator) NewEventID() EventID {
	g.lk.Lock()
	defer g.lk.Unlock()

	return EventID(ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String())
}
