package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvasir"

var (
	// Registry is a dedicated Prometheus registry for all kvasir metrics.
	Registry = prometheus.NewRegistry()

	// PackDuration measures time spent assembling pack streams.
	PackDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pack_duration_ms",
			Help:      "Duration of pack assembly operations in milliseconds",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	// ParseDuration measures time spent parsing pack streams.
	ParseDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_ms",
			Help:      "Duration of pack parse operations in milliseconds",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	// ObjectsPacked counts packed objects by encoding.
	ObjectsPacked = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_packed_total",
			Help:      "Total number of objects written into packs",
		},
		[]string{"encoding"}, // full | delta
	)

	// ParseTotal counts pack parse attempts by outcome.
	ParseTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_total",
			Help:      "Total number of pack parse operations",
		},
		[]string{"outcome"}, // ok | error
	)

	// PackSavedRatio tracks the savings of the last pack relative to raw
	// object bytes.
	PackSavedRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pack_saved_ratio",
			Help:      "Savings ratio of the most recent pack (1 - pack_bytes / raw_bytes)",
		},
	)

	// ObjectsImported counts objects written into the store outside of
	// pack parsing.
	ObjectsImported = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_imported_total",
			Help:      "Total number of objects imported into the store",
		},
	)

	// Up is a liveness gauge for the watch mode.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Whether the watch loop is running",
		},
	)
)

// ObservePack records the latency of one pack assembly.
func ObservePack(start time.Time) {
	PackDuration.Observe(float64(time.Since(start)) / float64(time.Millisecond))
}

// ObserveParse records the latency of one pack parse.
func ObserveParse(start time.Time) {
	ParseDuration.Observe(float64(time.Since(start)) / float64(time.Millisecond))
}

// AddPacked increments the packed-object counters.
func AddPacked(full, delta int) {
	if full > 0 {
		ObjectsPacked.WithLabelValues("full").Add(float64(full))
	}
	if delta > 0 {
		ObjectsPacked.WithLabelValues("delta").Add(float64(delta))
	}
}

// SetPackSavedRatio reports the savings of a finished pack.
func SetPackSavedRatio(rawBytes, packBytes int) {
	if rawBytes <= 0 {
		return
	}
	PackSavedRatio.Set(1 - float64(packBytes)/float64(rawBytes))
}

// CountParse records a parse outcome.
func CountParse(err error) {
	if err != nil {
		ParseTotal.WithLabelValues("error").Inc()
		return
	}
	ParseTotal.WithLabelValues("ok").Inc()
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on the provided address.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
