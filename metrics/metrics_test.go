package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/clog"
	"github.com/ceyewan/bastion/xerrors"
)

func scrape(t *testing.T, m Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func newTestMeter(t *testing.T) Meter {
	t.Helper()
	m, err := New(&Config{Enabled: true, ServiceName: "test"}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, Discard(), m)
}

func TestRuntimeMetrics(t *testing.T) {
	m, err := New(&Config{Enabled: true, ServiceName: "test", Runtime: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.Contains(t, scrape(t, m), "go_goroutine")
}

func TestCounterExported(t *testing.T) {
	m := newTestMeter(t)
	ctx := context.Background()

	c, err := m.Counter("bastion_test_ops_total", "ops")
	require.NoError(t, err)
	c.Inc(ctx, L("scope", "user"))
	c.Add(ctx, 2, L("scope", "user"))
	c.Add(ctx, -5, L("scope", "user"))

	body := scrape(t, m)
	assert.Contains(t, body, "bastion_test_ops_total")
	assert.Contains(t, body, `scope="user"`)
}

func TestGaugeAndHistogram(t *testing.T) {
	m := newTestMeter(t)
	ctx := context.Background()

	g, err := m.Gauge("bastion_test_state", "state")
	require.NoError(t, err)
	g.Set(ctx, 2, L("name", "a"))
	g.Inc(ctx, L("name", "a"))
	g.Dec(ctx, L("name", "b"))

	h, err := m.Histogram("bastion_test_latency_seconds", "latency", WithUnit("s"), WithBuckets([]float64{0.1, 1}))
	require.NoError(t, err)
	h.Record(ctx, 0.5)

	body := scrape(t, m)
	assert.Contains(t, body, "bastion_test_state")
	assert.Contains(t, body, "bastion_test_latency_seconds_bucket")
	assert.Contains(t, body, `le="0.1"`)
}

func TestMetersAreIsolated(t *testing.T) {
	a := newTestMeter(t)
	b := newTestMeter(t)

	c, err := a.Counter("only_in_a_total", "a")
	require.NoError(t, err)
	c.Inc(context.Background())

	assert.Contains(t, scrape(t, a), "only_in_a_total")
	assert.NotContains(t, scrape(t, b), "only_in_a_total")
}

func TestDiscard(t *testing.T) {
	m := Discard()
	c, err := m.Counter("x", "x")
	require.NoError(t, err)
	c.Inc(context.Background())
	assert.NoError(t, m.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(200))
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(302))
	assert.Equal(t, OutcomeRejected, HTTPOutcome(429))
	assert.Equal(t, OutcomeRejected, HTTPOutcome(503))
	assert.Equal(t, OutcomeError, HTTPOutcome(500))
	assert.Equal(t, "4xx", HTTPStatusClass(404))
	assert.Equal(t, "unknown", HTTPStatusClass(42))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestMeter(t)
	hm, err := NewHTTPServerMetrics(m, "svc")
	require.NoError(t, err)

	r := gin.New()
	r.Use(hm.GinMiddleware())
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, MetricHTTPServerRequestTotal)
	assert.Contains(t, body, `outcome="rejected"`)
	assert.Contains(t, body, `route="/limited"`)

	_, err = NewHTTPServerMetrics(nil, "svc")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	var nilMetrics *HTTPServerMetrics
	assert.NotPanics(t, func() { nilMetrics.Observe(context.Background(), "", "", 200, time.Millisecond) })
}
