package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveLLMCall("hf", "success", 200*time.Millisecond)
	c.Attempt("tags", "rejected")
	c.Attempt("tags", "accepted")
	c.QuotaBackoff("description")
	c.Fatal("category", "attempts_exhausted")
	c.File("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("hf", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("tags", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quotaBackoffs.WithLabelValues("description")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fatal.WithLabelValues("category", "attempts_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.files.WithLabelValues("ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilCollectorsAreNoops(t *testing.T) {
	t.Parallel()

	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveLLMCall("x", "y", time.Second)
		c.Attempt("f", "o")
		c.QuotaBackoff("f")
		c.Fatal("f", "r")
		c.File("ok")
	})
}
