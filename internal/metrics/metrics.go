package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

const namespace = "price_tracker"

// Collector records collection runs in a private Prometheus registry.
// It implements prices.CollectionObserver.
type Collector struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	observed    *prometheus.CounterVec
	duration    prometheus.Histogram
	datasetRows prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collections_total",
			Help:      "Collection runs by outcome.",
		}, []string{"outcome"}),
		observed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations appended to the dataset by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_duration_seconds",
			Help:      "Wall time of a collection run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		datasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows in the stored dataset after the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful collection.",
		}),
	}

	c.registry.MustRegister(
		c.runs, c.observed, c.duration, c.datasetRows, c.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveCollection implements prices.CollectionObserver.
func (c *Collector) ObserveCollection(result prices.CollectResult, took time.Duration, err error) {
	c.duration.Observe(took.Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.runs.WithLabelValues(outcome).Inc()

	c.observed.WithLabelValues("priced").Add(float64(result.Priced))
	if missing := result.Fetched - result.Priced - result.Failed; missing > 0 {
		c.observed.WithLabelValues("missing").Add(float64(missing))
	}
	c.observed.WithLabelValues("failed").Add(float64(result.Failed))

	if result.TotalRows > 0 {
		c.datasetRows.Set(float64(result.TotalRows))
	}
	if err == nil {
		c.lastSuccess.SetToCurrentTime()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
