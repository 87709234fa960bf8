// Package metrics provides Prometheus metrics for the transaction relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Announcement reasons.
const (
	ReasonRelay = "relay" // 처음 본 피어 트랜잭션 전파
	ReasonLocal = "local" // 로컬 노드가 만든 트랜잭션
	ReasonSweep = "sweep" // 주기적 재공지
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	// Message metrics
	messagesReceivedTotal *prometheus.CounterVec // 커맨드별 수신 메시지 수
	messagesSentTotal     *prometheus.CounterVec // 커맨드별 전송 메시지 수
	sendFailuresTotal     *prometheus.CounterVec // 커맨드별 전송 실패 수

	// Cache metrics
	cacheHitsTotal      prometheus.Counter // getdata 캐시 적중
	cacheMissesTotal    prometheus.Counter // getdata 캐시 미스
	cacheEvictionsTotal prometheus.Counter // LRU 퇴출
	cacheEntries        prometheus.Gauge   // 현재 캐시 항목 수

	// Announcement metrics
	announcementsTotal *prometheus.CounterVec // 사유별 inv 공지 수
	sweepsTotal        prometheus.Counter     // 주기적 스윕 횟수
	sweepDuration      prometheus.Histogram   // 스윕 소요 시간

	// Store metrics
	storeReadsTotal *prometheus.CounterVec // 용도별 저장소 읽기 횟수
}

// NewMetrics creates a new Metrics instance and registers it on reg.
// A nil reg registers on the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.messagesReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Total number of peer messages handled by the relay, by command",
	}, []string{"command"})

	m.messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Total number of messages sent by the relay, by command",
	}, []string{"command"})

	m.sendFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_failures_total",
		Help:      "Total number of failed peer sends, by command",
	}, []string{"command"})

	m.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Requested transactions served from the dedup cache",
	})

	m.cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Requested transactions not found in the dedup cache",
	})

	m.cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted from the dedup cache",
	})

	m.cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Current number of dedup cache entries",
	})

	m.announcementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "announcements_total",
		Help:      "Transaction announcements sent to a random peer, by reason",
	}, []string{"reason"})

	m.sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Completed periodic re-announcement sweeps",
	})

	m.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of periodic re-announcement sweeps in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	})

	m.storeReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_reads_total",
		Help:      "Reads of the unconfirmed transaction store, by operation",
	}, []string{"op"})

	// Register all metrics
	reg.MustRegister(
		m.messagesReceivedTotal,
		m.messagesSentTotal,
		m.sendFailuresTotal,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEvictionsTotal,
		m.cacheEntries,
		m.announcementsTotal,
		m.sweepsTotal,
		m.sweepDuration,
		m.storeReadsTotal,
	)

	return m
}

// IncrementMessagesReceived increments the received counter for command.
func (m *Metrics) IncrementMessagesReceived(command string) {
	m.messagesReceivedTotal.WithLabelValues(command).Inc()
}

// IncrementMessagesSent increments the sent counter for command.
func (m *Metrics) IncrementMessagesSent(command string) {
	m.messagesSentTotal.WithLabelValues(command).Inc()
}

// IncrementSendFailures increments the send failure counter for command.
func (m *Metrics) IncrementSendFailures(command string) {
	m.sendFailuresTotal.WithLabelValues(command).Inc()
}

// AddCacheHits adds n cache hits.
func (m *Metrics) AddCacheHits(n int) {
	m.cacheHitsTotal.Add(float64(n))
}

// AddCacheMisses adds n cache misses.
func (m *Metrics) AddCacheMisses(n int) {
	m.cacheMissesTotal.Add(float64(n))
}

// IncrementCacheEvictions increments the eviction counter.
func (m *Metrics) IncrementCacheEvictions() {
	m.cacheEvictionsTotal.Inc()
}

// SetCacheEntries sets the cache size gauge.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// IncrementAnnouncements increments the announcement counter for reason.
func (m *Metrics) IncrementAnnouncements(reason string) {
	m.announcementsTotal.WithLabelValues(reason).Inc()
}

// RecordSweep records one completed sweep.
func (m *Metrics) RecordSweep(duration time.Duration) {
	m.sweepsTotal.Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

// IncrementStoreReads increments the store read counter for op.
func (m *Metrics) IncrementStoreReads(op string) {
	m.storeReadsTotal.WithLabelValues(op).Inc()
}

// Server provides 프로메테우스 매트릭을 위한 HTTP 서버를 제공
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a new metrics HTTP server serving gatherer.
// A nil gatherer serves the default registry.
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start starts the metrics server. Listen errors are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop stops the metrics server.
func (s *Server) Stop() error {
	return s.server.Close()
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// NullMetrics is a no-op implementation of metrics for testing.
type NullMetrics struct{}

func (NullMetrics) IncrementMessagesReceived(command string) {}
func (NullMetrics) IncrementMessagesSent(command string)     {}
func (NullMetrics) IncrementSendFailures(command string)     {}
func (NullMetrics) AddCacheHits(n int)                       {}
func (NullMetrics) AddCacheMisses(n int)                     {}
func (NullMetrics) IncrementCacheEvictions()                 {}
func (NullMetrics) SetCacheEntries(n int)                    {}
func (NullMetrics) IncrementAnnouncements(reason string)     {}
func (NullMetrics) RecordSweep(d time.Duration)              {}
func (NullMetrics) IncrementStoreReads(op string)            {}
