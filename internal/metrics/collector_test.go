package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWith(reg, "lp", zaptest.NewLogger(t)), reg
}

func TestNewCollectorWith_RegistersEverything(t *testing.T) {
	_, reg := newTestCollector(t)
	// 无标签的指标立即可见；带标签的向量在首次观测前不会出现
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Panics(t, func() { NewCollectorWith(reg, "lp", nil) }, "duplicate registration")
}

func TestCollector_HTTP(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/api/v1/runs/{id}", 200, 100*time.Millisecond, 0, 2048)
	c.RecordHTTPRequest("GET", "/api/v1/runs/{id}", 204, 50*time.Millisecond, 0, 0)
	c.RecordHTTPRequest("POST", "/api/v1/automation/prompt", 409, time.Second, 64, 128)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.http.requests.WithLabelValues("GET", "/api/v1/runs/{id}", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.http.requests.WithLabelValues("POST", "/api/v1/automation/prompt", "4xx")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP lp_http_requests_total Total number of HTTP requests
# TYPE lp_http_requests_total counter
lp_http_requests_total{method="GET",path="/api/v1/runs/{id}",status="2xx"} 2
lp_http_requests_total{method="POST",path="/api/v1/automation/prompt",status="4xx"} 1
`), "lp_http_requests_total")
	assert.NoError(t, err)
}

func TestCollector_Inference(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveInference("completion", true, 500*time.Millisecond)
	c.ObserveInference("completion", false, time.Second)
	c.ObserveInference("status", true, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.inference.calls.WithLabelValues("completion", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inference.calls.WithLabelValues("completion", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.inference.duration))
}

func TestCollector_Automation(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveSession("created")
	c.ObserveRun("prompt", "agentic", true, 3*time.Second)
	c.ObserveRun("prompt", "basic", false, time.Second)
	c.ObserveFallback("run")
	c.ObserveScreenshots(2)
	c.ObserveScreenshots(0)
	c.RecordEventDropped()

	a := c.automation
	assert.Equal(t, 1.0, testutil.ToFloat64(a.live))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.runs.WithLabelValues("prompt", "agentic", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.runs.WithLabelValues("prompt", "basic", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fallbacks.WithLabelValues("run")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.screenshots))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.dropped))

	c.ObserveSession("closed")
	c.ObserveSession("crashed")
	assert.Equal(t, 0.0, testutil.ToFloat64(a.live))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.sessions.WithLabelValues("crashed")))
}

func TestCollector_Database(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDBQuery("sqlite", "insert", 20*time.Millisecond)
	c.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 1, testutil.CollectAndCount(c.db.queries))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.db.open.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.db.idle.WithLabelValues("postgres")))
}

func TestCollector_Concurrent(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 64)
			c.ObserveInference("models", true, 5*time.Millisecond)
			c.ObserveRun("demo", "demo", true, time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.http.requests.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.inference.calls.WithLabelValues("models", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.automation.runs.WithLabelValues("demo", "demo", "success")))
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{
		0: "unknown", 101: "unknown", 201: "2xx", 304: "3xx", 409: "4xx", 504: "5xx", 600: "unknown",
	} {
		assert.Equal(t, want, statusClass(code), code)
	}
}
