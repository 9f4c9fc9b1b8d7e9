package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jihwankim/surge-utils/pkg/core/state"
)

// StateCollector exposes the lock-free shared state and the aggregated
// P99 to Prometheus. Every scrape is a set of relaxed atomic loads; no
// lock is taken anywhere.
type StateCollector struct {
	state *state.SharedState
	agg   *Aggregator

	totalRequests *prometheus.Desc
	totalBytes    *prometheus.Desc
	errorCount    *prometheus.Desc
	workerStatus  *prometheus.Desc
	heartbeatAge  *prometheus.Desc
	p99Latency    *prometheus.Desc
	targetRPS     *prometheus.Desc
	jitterFactor  *prometheus.Desc
}

// NewStateCollector builds the collector. agg may be nil when the
// aggregator is not running.
func NewStateCollector(s *state.SharedState, agg *Aggregator) *StateCollector {
	return &StateCollector{
		state: s,
		agg:   agg,
		totalRequests: prometheus.NewDesc(
			"surge_requests_total", "Completed requests across the hive.", nil, nil),
		totalBytes: prometheus.NewDesc(
			"surge_bytes_total", "Payload bytes delivered across the hive.", nil, nil),
		errorCount: prometheus.NewDesc(
			"surge_errors_total", "Failed tasks across the hive.", nil, nil),
		workerStatus: prometheus.NewDesc(
			"surge_worker_status", "Worker status code (0=idle 1=handshaking 2=sending 3=blocked 4=dead).",
			[]string{"worker"}, nil),
		heartbeatAge: prometheus.NewDesc(
			"surge_worker_heartbeat_age_seconds", "Seconds since the worker's last activity.",
			[]string{"worker"}, nil),
		p99Latency: prometheus.NewDesc(
			"surge_latency_p99_microseconds", "P99 request latency from the merged histogram.", nil, nil),
		targetRPS: prometheus.NewDesc(
			"surge_target_rps", "Operator-tuned target request rate.", nil, nil),
		jitterFactor: prometheus.NewDesc(
			"surge_jitter_factor", "Operator-tuned jitter percentage.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRequests
	ch <- c.totalBytes
	ch <- c.errorCount
	ch <- c.workerStatus
	ch <- c.heartbeatAge
	ch <- c.p99Latency
	ch <- c.targetRPS
	ch <- c.jitterFactor
}

// Collect implements prometheus.Collector.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(c.state.TotalRequests.Load()))
	ch <- prometheus.MustNewConstMetric(c.totalBytes, prometheus.CounterValue, float64(c.state.TotalBytes.Load()))
	ch <- prometheus.MustNewConstMetric(c.errorCount, prometheus.CounterValue, float64(c.state.ErrorCount.Load()))
	ch <- prometheus.MustNewConstMetric(c.targetRPS, prometheus.GaugeValue, float64(c.state.TargetRPS.Load()))
	ch <- prometheus.MustNewConstMetric(c.jitterFactor, prometheus.GaugeValue, float64(c.state.JitterFactor.Load()))

	if c.agg != nil {
		ch <- prometheus.MustNewConstMetric(c.p99Latency, prometheus.GaugeValue, float64(c.agg.P99LatencyUs()))
	}

	now := time.Now().Unix()
	for i := 0; i < c.state.NumWorkers(); i++ {
		label := strconv.Itoa(i)
		ch <- prometheus.MustNewConstMetric(c.workerStatus, prometheus.GaugeValue,
			float64(c.state.WorkerStatusOf(i)), label)

		age := float64(0)
		if hb := c.state.HeartbeatOf(i); hb > 0 {
			age = float64(now - hb)
		}
		ch <- prometheus.MustNewConstMetric(c.heartbeatAge, prometheus.GaugeValue, age, label)
	}
}

// StartMetricsServer registers the collector on a fresh registry and
// serves /metrics on addr until the server is shut down.
func StartMetricsServer(addr string, collector *StateCollector) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	return srv
}
