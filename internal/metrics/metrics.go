package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "counsel"

// Collector owns the counseling counters on its own registry. It satisfies
// agent.Recorder.
type Collector struct {
	registry *prometheus.Registry

	Turns          prometheus.Counter
	Routes         *prometheus.CounterVec
	LLMOutcomes    *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	ActiveSessions prometheus.Gauge
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Utterances processed by the counselor",
		}),
		Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Consultation routing decisions",
		}, []string{"route"}),
		LLMOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_outcomes_total",
			Help:      "Language model calls by outcome",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state changes",
		}, []string{"from", "to"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "path", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open voice streams",
		}),
	}
	reg.MustRegister(c.Turns, c.Routes, c.LLMOutcomes, c.Transitions, c.HTTPRequests, c.HTTPDuration, c.ActiveSessions)
	return c
}

func (c *Collector) Turn()                      { c.Turns.Inc() }
func (c *Collector) Route(route string)         { c.Routes.WithLabelValues(route).Inc() }
func (c *Collector) LLMOutcome(outcome string)  { c.LLMOutcomes.WithLabelValues(outcome).Inc() }
func (c *Collector) Transition(from, to string) { c.Transitions.WithLabelValues(from, to).Inc() }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware counts requests by their route pattern, not the raw path, so
// session ids do not explode label cardinality.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			status := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			c.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			c.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
