package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("nil config uses defaults", func(t *testing.T) {
		c, err := NewCollector(nil)
		require.NoError(t, err)
		assert.Equal(t, "/metrics", c.Path())
		assert.Equal(t, "tiercache", c.config.Namespace)
		assert.NotNil(t, c.Registry())
	})

	t.Run("disabled collector records nothing", func(t *testing.T) {
		c, err := NewCollector(&Config{Enabled: false})
		require.NoError(t, err)
		assert.Nil(t, c.Registry())

		c.RecordLookup("memory", true, time.Millisecond)
		c.RecordError("disk", "set")
	})

	t.Run("nil collector is safe", func(t *testing.T) {
		var c *Collector
		c.RecordLookup("memory", true, time.Millisecond)
		c.RecordEvictions("capacity", 3)
		c.UpdateTierSize("memory", 10, 1)
		assert.Equal(t, "/metrics", c.Path())
	})
}

func TestCollector_Recording(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)

	c.RecordLookup("memory", true, time.Millisecond)
	c.RecordLookup("memory", true, time.Millisecond)
	c.RecordLookup("none", false, 5*time.Millisecond)
	c.RecordWrite("disk", 1024)
	c.RecordEvictions("capacity", 2)
	c.RecordEvictions("expired", 0)
	c.RecordError("disk", "get")
	c.UpdateTierSize("memory", 4096, 4)
	c.UpdateHitRate(0.75)
	c.RecordPreheat("parallel", 10, 7)
	c.RecordRemoteFetch("valkey", "found")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.lookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("none", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("disk")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.evictions.WithLabelValues("capacity")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.evictions.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("disk", "get")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(c.tierBytes.WithLabelValues("memory")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.tierEntries.WithLabelValues("memory")))
	assert.Equal(t, 0.75, testutil.ToFloat64(c.hitRate))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.preheatKeys.WithLabelValues("parallel", "warm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remoteFetches.WithLabelValues("valkey", "found")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.lookupDuration))
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil)
	require.NoError(t, err)
	c.RecordLookup("disk", true, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `tiercache_lookups_total{result="hit",tier="disk"} 1`), string(body))
}
