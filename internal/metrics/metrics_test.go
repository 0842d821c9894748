package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewScheduler(reg)

	m.Tick()
	m.Observe("FargateLambda", OutcomeRejected, 10*time.Millisecond)
	m.Observe("FargateLambda", OutcomeRejected, 10*time.Millisecond)
	m.Skip("FargateLambdaInPrivateVPCWithSG")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.invocations.WithLabelValues("FargateLambda", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("FargateLambdaInPrivateVPCWithSG")))
}

func TestScheduler_NilIsNoop(t *testing.T) {
	var m *Scheduler
	assert.NotPanics(t, func() {
		m.Tick()
		m.Observe("x", OutcomeSuccess, time.Second)
		m.Skip("x")
	})
}

func TestNewServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewScheduler(reg).Tick()

	srv := httptest.NewServer(NewServer(":0", reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wetwire_fargate_ticks_total 1")
}
