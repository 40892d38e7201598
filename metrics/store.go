package metrics

import (
	"sync"

	"github.com/Shimmur/legacy-app/event"
	log "github.com/sirupsen/logrus"
)

// Snapshot is a point-in-time copy of all the counters. Its JSON form is what
// the /metrics endpoint returns.
type Snapshot struct {
	OrdersProcessed    int64 `json:"orders_processed"`
	PaymentFailures    int64 `json:"payment_failures"`
	OutOfStockFailures int64 `json:"out_of_stock_failures"`
	TotalErrors        int64 `json:"total_errors"`
}

// A Store holds the per-event counters for the life of the process. Counters
// only ever go up. TotalErrors is bumped in the same critical section as the
// failure counters, so no reader can see them disagree.
type Store struct {
	lock   sync.RWMutex
	counts Snapshot
}

// NewStore returns a Store with every counter at zero
func NewStore() *Store {
	return &Store{}
}

// Record counts one occurrence of the event kind
func (s *Store) Record(kind event.Kind) {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch kind {
	case event.OrderProcessed:
		s.counts.OrdersProcessed++
	case event.PaymentFailure:
		s.counts.PaymentFailures++
	case event.OutOfStock:
		s.counts.OutOfStockFailures++
	default:
		log.Warnf("Not recording unknown event kind '%s'", kind)
		return
	}

	if kind.IsError() {
		s.counts.TotalErrors++
	}
}

// Snapshot returns a copy of the current counters
func (s *Store) Snapshot() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.counts
}
