package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ObserveRequest("api", "ok", 10*time.Millisecond)
	c.ObserveRequest("api", "ok", 20*time.Millisecond)
	c.ObserveRequest("subgraph", "error", time.Millisecond)
	c.IncRetry("api")
	c.ObserveCache("positions", true)
	c.ObserveCache("positions", false)
	c.ObserveCache("positions", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("api", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("subgraph", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("api")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("positions", "miss")))
}

func TestCollectors_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveRequest("api", "ok", time.Second)
		c.IncRetry("api")
		c.ObserveCache("x", true)
	})
}
