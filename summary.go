package main

import (
	"github.com/Shimmur/legacy-app/metrics"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// A SummaryLogger periodically logs the current counters, on a schedule
// controlled by the looper.
type SummaryLogger struct {
	ServiceName string

	store  *metrics.Store
	looper director.Looper
}

func NewSummaryLogger(looper director.Looper, store *metrics.Store, serviceName string) *SummaryLogger {
	return &SummaryLogger{
		ServiceName: serviceName,
		store:       store,
		looper:      looper,
	}
}

// Run blocks, logging a summary on every tick until the looper is stopped
func (s *SummaryLogger) Run() {
	s.looper.Loop(func() error {
		snap := s.store.Snapshot()

		log.WithFields(log.Fields{
			"service":               s.ServiceName,
			"orders_processed":      snap.OrdersProcessed,
			"payment_failures":      snap.PaymentFailures,
			"out_of_stock_failures": snap.OutOfStockFailures,
			"total_errors":          snap.TotalErrors,
		}).Infof("Periodic summary: %d orders processed, %d errors",
			snap.OrdersProcessed, snap.TotalErrors,
		)

		return nil
	})
}

func (s *SummaryLogger) Stop() {
	s.looper.Quit()
}

func (s *SummaryLogger) Wait() error {
	return s.looper.Wait()
}
