package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	ItemsCollected.WithLabelValues("search").Add(2)
	RateLimitHits.Inc()
	StateTransitions.WithLabelValues("searching", "reading_timeline").Inc()
	Replies.WithLabelValues("posted").Inc()
	RequestDuration.WithLabelValues("search", "200").Observe(0.1)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"xwatch_items_collected_total",
		"xwatch_rate_limit_hits_total",
		"xwatch_state_transitions_total",
		"xwatch_replies_total",
		"xwatch_request_duration_seconds",
		"xwatch_backoff_seconds",
	} {
		assert.Contains(t, string(body), name)
	}
}
