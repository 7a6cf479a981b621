// Package metrics provides Prometheus instrumentation for the accountant.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the accountant's collectors. It implements the bookkeeper's
// Recorder.
type Metrics struct {
	TransactionsBooked   *prometheus.CounterVec
	TransactionsRejected *prometheus.CounterVec
	BookDuration         *prometheus.HistogramVec
	EntriesAppended      prometheus.Counter
	PeriodsClosed        prometheus.Counter
	Adjustments          prometheus.Counter
	EntriesPublished     *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		TransactionsBooked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accountant_transactions_booked_total",
			Help: "Transactions committed to the ledger",
		}, []string{"type"}),

		TransactionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accountant_transactions_rejected_total",
			Help: "Transactions rejected by the bookkeeper",
		}, []string{"type", "reason"}),

		BookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accountant_book_duration_seconds",
			Help:    "Time to book a single transaction",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"type"}),

		EntriesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "accountant_entries_appended_total",
			Help: "Ledger entries appended by booked transactions",
		}),

		PeriodsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "accountant_periods_closed_total",
			Help: "Accounting periods closed",
		}),

		Adjustments: factory.NewCounter(prometheus.CounterOpts{
			Name: "accountant_fair_value_adjustments_total",
			Help: "Fair value adjustment pairs booked at period close",
		}),

		EntriesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accountant_entries_published_total",
			Help: "Entry batches published to the stream, by outcome",
		}, []string{"outcome"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accountant_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accountant_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "path"}),

		gatherer: gatherer,
	}
}

// TransactionBooked records a committed transaction
func (m *Metrics) TransactionBooked(txType string, entries int, elapsed time.Duration) {
	m.TransactionsBooked.WithLabelValues(txType).Inc()
	m.BookDuration.WithLabelValues(txType).Observe(elapsed.Seconds())
	m.EntriesAppended.Add(float64(entries))
}

// TransactionRejected records a rejected transaction
func (m *Metrics) TransactionRejected(txType string, reason string) {
	m.TransactionsRejected.WithLabelValues(txType, reason).Inc()
}

// PeriodClosed records a period close and its adjustment pairs
func (m *Metrics) PeriodClosed(adjustments int) {
	m.PeriodsClosed.Inc()
	m.Adjustments.Add(float64(adjustments))
}

// BatchPublished records the outcome of an entry batch publish
func (m *Metrics) BatchPublished(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EntriesPublished.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
