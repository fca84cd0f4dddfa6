package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentSteps       *prometheus.HistogramVec

	activeSessions prometheus.Gauge
	sessionFrames  *prometheus.CounterVec

	dispatchQueueSize *prometheus.GaugeVec
	dispatchTotal     *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	fallbackTotal     *prometheus.CounterVec

	remoteServers prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nava_tool_executions_total",
					Help: "Tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "nava_tool_duration_seconds",
					Help:    "Tool execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nava_agent_runs_total",
					Help: "Agent loop runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "nava_agent_run_duration_seconds",
					Help:    "Agent loop run duration in seconds.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
				[]string{"provider"},
			),
			agentSteps: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "nava_agent_steps",
					Help:    "Think/act rounds per agent loop run.",
					Buckets: prometheus.LinearBuckets(1, 2, 10),
				},
				[]string{"provider"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "nava_active_sessions",
					Help: "Open websocket sessions.",
				},
			),
			sessionFrames: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nava_session_frames_total",
					Help: "Outbound session frames by kind.",
				},
				[]string{"kind"},
			),
			dispatchQueueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "nava_dispatch_queue_size",
					Help: "Requests waiting in a dispatch lane.",
				},
				[]string{"lane"},
			),
			dispatchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nava_dispatch_total",
					Help: "Completed dispatch lane tasks by status.",
				},
				[]string{"lane", "status"},
			),
			dispatchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "nava_dispatch_duration_seconds",
					Help:    "Dispatch lane task duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			fallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nava_fallback_total",
					Help: "Direct completion fallbacks by status.",
				},
				[]string{"status"},
			),
			remoteServers: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "nava_remote_servers_connected",
					Help: "Connected remote tool servers.",
				},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentSteps,
			m.activeSessions,
			m.sessionFrames,
			m.dispatchQueueSize,
			m.dispatchTotal,
			m.dispatchDuration,
			m.fallbackTotal,
			m.remoteServers,
		)

		metricsInst = m
	})

	return metricsInst
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordAgentRun(provider string, duration time.Duration, steps int, success bool) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(provider, status(success)).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.agentSteps.WithLabelValues(provider).Observe(float64(steps))
}

func AddActiveSessions(delta int) {
	getMetrics().activeSessions.Add(float64(delta))
}

func RecordSessionFrame(kind string) {
	getMetrics().sessionFrames.WithLabelValues(kind).Inc()
}

func SetDispatchQueueSize(lane string, size int) {
	getMetrics().dispatchQueueSize.WithLabelValues(lane).Set(float64(size))
}

func RecordDispatch(lane string, duration time.Duration, success bool) {
	m := getMetrics()
	m.dispatchTotal.WithLabelValues(lane, status(success)).Inc()
	m.dispatchDuration.WithLabelValues(lane).Observe(duration.Seconds())
}

func RecordFallback(success bool) {
	getMetrics().fallbackTotal.WithLabelValues(status(success)).Inc()
}

func AddRemoteServers(delta int) {
	getMetrics().remoteServers.Add(float64(delta))
}
