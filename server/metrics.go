package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	appends         *prometheus.CounterVec
	removes         *prometheus.CounterVec
	pointerWrites   prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "vibeq_queue_appends_total", Help: "Queue append attempts by result"},
			[]string{"result"},
		),
		removes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "vibeq_queue_removals_total", Help: "Queue removal attempts by result"},
			[]string{"result"},
		),
		pointerWrites: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "vibeq_now_playing_writes_total", Help: "Now-playing pointer writes"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vibeq_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"route", "method", "code"},
		),
	}
	reg.MustRegister(m.appends, m.removes, m.pointerWrites, m.requestDuration)
	return m
}

func (m *Metrics) ObserveAppend(result string) {
	m.appends.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRemove(result string) {
	m.removes.WithLabelValues(result).Inc()
}

// PointerWritten counts one successful pointer write.
func (m *Metrics) PointerWritten() {
	m.pointerWrites.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency labelled by route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		// the websocket handler hijacks the connection
		if route == "/ws/events" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		m.requestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
