package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ForesightX/internal/agent"
	"ForesightX/internal/observability/alerting"
)

const namespace = "foresightx"

// Registry 持有服务的全部 Prometheus 指标。
type Registry struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpErrors    *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	agentEvents   *prometheus.CounterVec
	actionLatency *prometheus.HistogramVec
	alerts        *prometheus.CounterVec
}

var (
	_ agent.Observer    = (*Registry)(nil)
	_ alerting.Notifier = (*Registry)(nil)
)

// New 创建独立的指标注册表，附带 Go 运行时与进程指标。
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		agentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_events_total",
			Help:      "Replies and actions completed by the agent.",
		}, []string{"action", "success"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time spent handling an action or generating a reply.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"action"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by the message pipeline.",
		}, []string{"code", "severity"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpErrors,
		r.httpLatency,
		r.agentEvents,
		r.actionLatency,
		r.alerts,
	)
	return r
}

// MustRegister 注册额外的采集器，例如队列长度。
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.reg.MustRegister(cs...)
}

// ObserveHTTPRequest 记录一次 HTTP 请求。
func (r *Registry) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	r.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		r.httpErrors.WithLabelValues(handler, method).Inc()
	}
	r.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Middleware 返回记录请求指标的 gin 中间件，handler 标签使用路由模板。
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		r.ObserveHTTPRequest(handler, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// Observe 实现 agent.Observer。
func (r *Registry) Observe(_ context.Context, event agent.Event) {
	action := event.Action
	if action == "" {
		action = "NONE"
	}
	r.agentEvents.WithLabelValues(action, strconv.FormatBool(event.Success)).Inc()
	r.actionLatency.WithLabelValues(action).Observe(event.Duration.Seconds())
}

// Channel 实现 alerting.Notifier。
func (r *Registry) Channel() alerting.Channel { return "metrics" }

// Notify 实现 alerting.Notifier，只计数不外发。
func (r *Registry) Notify(_ context.Context, event alerting.Event) error {
	r.alerts.WithLabelValues(string(event.Code), string(event.Severity)).Inc()
	return nil
}

// Handler 以 Prometheus 文本格式暴露指标。
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
