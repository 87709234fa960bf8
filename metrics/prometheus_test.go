package metrics

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("txrelay", reg)

	m.IncrementMessagesReceived("tx")
	m.IncrementMessagesReceived("tx")
	m.IncrementMessagesSent("inv")
	m.IncrementSendFailures("inv")
	m.AddCacheHits(3)
	m.AddCacheMisses(2)
	m.IncrementCacheEvictions()
	m.SetCacheEntries(42)
	m.IncrementAnnouncements(ReasonSweep)
	m.RecordSweep(10 * time.Millisecond)
	m.IncrementStoreReads("announce")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesReceivedTotal.WithLabelValues("tx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSentTotal.WithLabelValues("inv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailuresTotal.WithLabelValues("inv")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvictionsTotal))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.cacheEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.announcementsTotal.WithLabelValues(ReasonSweep)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeReadsTotal.WithLabelValues("announce")))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("txrelay", reg)
	assert.Panics(t, func() { NewMetrics("txrelay", reg) })
}

func TestServerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("txrelay", reg)
	m.IncrementAnnouncements(ReasonLocal)

	// 빈 포트 확보
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := NewServer(addr, reg)
	srv.Start()
	defer srv.Stop()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return true
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, strings.Contains(body, `txrelay_announcements_total{reason="local"} 1`))
}
