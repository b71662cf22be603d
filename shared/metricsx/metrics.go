package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events published by topic and type.",
		},
		[]string{"topic", "event_type"},
	)
	eventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_event_publish_failures_total",
			Help: "Domain event publish failures (dropped, best-effort producer).",
		},
		[]string{"topic"},
	)
	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_consumed_total",
			Help: "Domain events handled successfully by topic and type.",
		},
		[]string{"topic", "event_type"},
	)
	eventHandleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_event_handle_failures_total",
			Help: "Domain event handler failures by topic.",
		},
		[]string{"topic"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_cache_hits_total",
			Help: "Report cache hits by key.",
		},
		[]string{"key"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_cache_misses_total",
			Help: "Report cache misses by key.",
		},
		[]string{"key"},
	)
	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Service-to-service HTTP requests by target and outcome.",
		},
		[]string{"service", "outcome"},
	)
	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Service-to-service HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency,
		eventsPublished, eventPublishFailures, eventsConsumed, eventHandleFailures,
		kafkaConsumerLag, cacheHits, cacheMisses,
		upstreamRequests, upstreamLatency, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func IncEventPublished(topic string, eventType string) {
	eventsPublished.WithLabelValues(topic, eventType).Inc()
}

func IncEventPublishFailure(topic string) {
	eventPublishFailures.WithLabelValues(topic).Inc()
}

func IncEventConsumed(topic string, eventType string) {
	eventsConsumed.WithLabelValues(topic, eventType).Inc()
}

func IncEventHandleFailure(topic string) {
	eventHandleFailures.WithLabelValues(topic).Inc()
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncCacheHit(key string) {
	cacheHits.WithLabelValues(key).Inc()
}

func IncCacheMiss(key string) {
	cacheMisses.WithLabelValues(key).Inc()
}

func IncUpstreamRequest(service string, outcome string) {
	upstreamRequests.WithLabelValues(service, outcome).Inc()
}

func ObserveUpstreamLatency(service string, d time.Duration) {
	upstreamLatency.WithLabelValues(service).Observe(d.Seconds())
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
