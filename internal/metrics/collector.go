package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/inference"
)

var (
	_ automation.Observer = (*Collector)(nil)
	_ inference.Observer  = (*Collector)(nil)
)

// sizeBuckets 覆盖 100B 到 1GB
var sizeBuckets = prometheus.ExponentialBuckets(100, 10, 8)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	reqSize  *prometheus.HistogramVec
	respSize *prometheus.HistogramVec
}

type inferenceMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

type automationMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	fallbacks   *prometheus.CounterVec
	screenshots prometheus.Counter
	sessions    *prometheus.CounterVec
	live        prometheus.Gauge
	dropped     prometheus.Counter
}

type dbMetrics struct {
	open    *prometheus.GaugeVec
	idle    *prometheus.GaugeVec
	queries *prometheus.HistogramVec
}

// Collector 汇总 HTTP、推理服务、自动化运行与历史库的 Prometheus 指标。
// 它同时实现 automation.Observer 与 inference.Observer。
type Collector struct {
	http       httpMetrics
	inference  inferenceMetrics
	automation automationMetrics
	db         dbMetrics
}

// NewCollector 在默认 registry 上注册指标，/metrics 由 promhttp.Handler 暴露
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 在指定 registry 上注册指标。同一 registry 上重复注册同名指标会 panic。
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	c := &Collector{
		http: httpMetrics{
			requests: counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
			duration: histogram("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
			reqSize:  histogram("http_request_size_bytes", "HTTP request size in bytes", sizeBuckets, "method", "path"),
			respSize: histogram("http_response_size_bytes", "HTTP response size in bytes", sizeBuckets, "method", "path"),
		},
		inference: inferenceMetrics{
			calls: counter("inference_requests_total", "Total number of inference server calls", "operation", "status"),
			duration: histogram("inference_request_duration_seconds", "Inference server call duration in seconds",
				[]float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}, "operation"),
		},
		automation: automationMetrics{
			runs: counter("automation_runs_total", "Total number of automation runs", "kind", "backend", "status"),
			duration: histogram("automation_run_duration_seconds", "Automation run duration in seconds",
				[]float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}, "kind", "backend"),
			// stage: init 或 run
			fallbacks: counter("automation_fallbacks_total", "Times the basic backend replaced the enhanced backend", "stage"),
			screenshots: f.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "automation_screenshots_total", Help: "Total number of screenshots saved",
			}),
			sessions: counter("browser_session_events_total", "Browser session lifecycle events", "event"),
			live: f.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Name: "browser_sessions_active", Help: "Number of live browser sessions",
			}),
			dropped: f.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "events_dropped_total", Help: "Output events dropped for slow subscribers",
			}),
		},
		db: dbMetrics{
			open:    gauge("db_connections_open", "Number of open database connections", "database"),
			idle:    gauge("db_connections_idle", "Number of idle database connections", "database"),
			queries: histogram("db_query_duration_seconds", "Database query duration in seconds", prometheus.DefBuckets, "database", "operation"),
		},
	}

	if logger != nil {
		logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	}
	return c
}

// RecordHTTPRequest 记录一次请求。path 应是路由模板，避免标签基数失控。
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration, reqBytes, respBytes int64) {
	c.http.requests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.http.duration.WithLabelValues(method, path).Observe(d.Seconds())
	c.http.reqSize.WithLabelValues(method, path).Observe(float64(reqBytes))
	c.http.respSize.WithLabelValues(method, path).Observe(float64(respBytes))
}

// ObserveInference 记录一次推理服务调用
func (c *Collector) ObserveInference(op string, success bool, d time.Duration) {
	c.inference.calls.WithLabelValues(op, outcome(success)).Inc()
	c.inference.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRun 记录一次 demo 或 prompt 运行
func (c *Collector) ObserveRun(kind, backend string, success bool, d time.Duration) {
	c.automation.runs.WithLabelValues(kind, backend, outcome(success)).Inc()
	c.automation.duration.WithLabelValues(kind, backend).Observe(d.Seconds())
}

// ObserveFallback 记录增强后端回退到基础后端
func (c *Collector) ObserveFallback(stage string) {
	c.automation.fallbacks.WithLabelValues(stage).Inc()
}

// ObserveScreenshots 累加保存的截图数
func (c *Collector) ObserveScreenshots(n int) {
	if n > 0 {
		c.automation.screenshots.Add(float64(n))
	}
}

// ObserveSession 记录会话事件，created 与 closed 同时维护存活会话数
func (c *Collector) ObserveSession(event string) {
	c.automation.sessions.WithLabelValues(event).Inc()
	switch event {
	case "created":
		c.automation.live.Inc()
	case "closed":
		c.automation.live.Dec()
	}
}

// RecordEventDropped 实现 events.DropRecorder
func (c *Collector) RecordEventDropped() { c.automation.dropped.Inc() }

// RecordDBConnections 上报连接池状态
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.db.open.WithLabelValues(database).Set(float64(open))
	c.db.idle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录一次历史库操作
func (c *Collector) RecordDBQuery(database, operation string, d time.Duration) {
	c.db.queries.WithLabelValues(database, operation).Observe(d.Seconds())
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// statusClass 把状态码折叠为 2xx 到 5xx，其余为 unknown
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
