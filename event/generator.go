package event

import (
	"math/rand"
	"sync"
	"time"
)

// A Generator picks events at random and stamps them. The source of
// randomness and the clock are injected so callers can pin both down.
type Generator struct {
	lock sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

// NewGenerator returns a Generator drawing from src and reading time from now.
// A nil now falls back to time.Now.
func NewGenerator(src rand.Source, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}

	return &Generator{
		rand: rand.New(src),
		now:  now,
	}
}

// NewDefaultGenerator returns a Generator seeded from the wall clock
func NewDefaultGenerator() *Generator {
	return NewGenerator(rand.NewSource(time.Now().UnixNano()), time.Now)
}

// Generate chooses one of the Templates uniformly and returns the stamped
// Entry along with its Kind. It never fails.
func (g *Generator) Generate() (*Entry, Kind) {
	// *rand.Rand is not safe for concurrent use
	g.lock.Lock()
	tmpl := Templates[g.rand.Intn(len(Templates))]
	orderID := MinOrderID + g.rand.Intn(MaxOrderID-MinOrderID+1)
	g.lock.Unlock()

	entry := &Entry{
		Time:     g.now().Truncate(time.Second),
		OrderID:  orderID,
		Template: tmpl,
	}

	return entry, tmpl.Kind
}
