package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersProcessedDesc = prometheus.NewDesc(
		"orders_processed_total", "Total number of orders processed", nil, nil,
	)
	paymentFailuresDesc = prometheus.NewDesc(
		"orders_payment_failures_total", "Total number of payment failures", nil, nil,
	)
	outOfStockFailuresDesc = prometheus.NewDesc(
		"orders_out_of_stock_failures_total", "Total number of out-of-stock failures", nil, nil,
	)
	failedDesc = prometheus.NewDesc(
		"orders_failed_total", "Total number of failed orders", nil, nil,
	)
)

// A Collector exports a Store's counters to Prometheus. It reads a fresh
// Snapshot on every scrape rather than keeping counters of its own.
type Collector struct {
	store *Store
}

func NewCollector(store *Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- ordersProcessedDesc
	ch <- paymentFailuresDesc
	ch <- outOfStockFailuresDesc
	ch <- failedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.store.Snapshot()

	ch <- prometheus.MustNewConstMetric(ordersProcessedDesc, prometheus.CounterValue, float64(snap.OrdersProcessed))
	ch <- prometheus.MustNewConstMetric(paymentFailuresDesc, prometheus.CounterValue, float64(snap.PaymentFailures))
	ch <- prometheus.MustNewConstMetric(outOfStockFailuresDesc, prometheus.CounterValue, float64(snap.OutOfStockFailures))
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(snap.TotalErrors))
}

// Handler registers a Collector for the store on a private registry and
// returns an http.Handler serving it in the Prometheus text format.
func Handler(store *Store) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(store)); err != nil {
		return nil, err
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
