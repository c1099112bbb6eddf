package exporter

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtx-hosting/hostpulse/pkg/stats"
)

type PrometheusExporter struct {
	registry      *prometheus.Registry
	cpuUsage      prometheus.Gauge
	memoryUsage   prometheus.Gauge
	memoryUsed    prometheus.Gauge
	uptime        prometheus.Gauge
	historyLength prometheus.Gauge
	rxBytes       *prometheus.GaugeVec
	txBytes       *prometheus.GaugeVec
	requests      *prometheus.CounterVec

	mu     sync.Mutex
	ifaces map[string]struct{}
}

// NewPrometheusExporter registers its collectors on a private registry so
// that several exporters can coexist in one process.
func NewPrometheusExporter() *PrometheusExporter {
	p := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostpulse_cpu_usage_percent",
			Help: "Host CPU utilisation over the last sampling interval",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostpulse_memory_usage_percent",
			Help: "Share of host memory in use",
		}),
		memoryUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostpulse_memory_used_bytes",
			Help: "Host memory in use",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostpulse_uptime_seconds",
			Help: "Host uptime",
		}),
		historyLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostpulse_history_samples",
			Help: "Samples currently held in the history window",
		}),
		rxBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostpulse_interface_receive_bytes",
				Help: "Bytes received by a network interface",
			},
			[]string{"interface"},
		),
		txBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostpulse_interface_transmit_bytes",
				Help: "Bytes transmitted by a network interface",
			},
			[]string{"interface"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostpulse_status_requests_total",
				Help: "Status requests by outcome",
			},
			[]string{"outcome"},
		),
		ifaces: make(map[string]struct{}),
	}

	p.registry.MustRegister(
		p.cpuUsage,
		p.memoryUsage,
		p.memoryUsed,
		p.uptime,
		p.historyLength,
		p.rxBytes,
		p.txBytes,
		p.requests,
	)
	for _, outcome := range []string{OutcomeServed, OutcomeRateLimited, OutcomeError} {
		p.requests.WithLabelValues(outcome)
	}

	return p
}

// UpdateStats mirrors a snapshot into the gauges. Unavailable values are
// exported as NaN.
func (p *PrometheusExporter) UpdateStats(snap *stats.Snapshot) {
	if snap == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.CPU.UsagePercent != nil {
		p.cpuUsage.Set(*snap.CPU.UsagePercent)
	} else {
		p.cpuUsage.Set(math.NaN())
	}

	if snap.Memory != nil {
		p.memoryUsage.Set(snap.Memory.UsagePercent)
		p.memoryUsed.Set(float64(snap.Memory.Used))
	} else {
		p.memoryUsage.Set(math.NaN())
		p.memoryUsed.Set(math.NaN())
	}

	if snap.System != nil {
		p.uptime.Set(float64(snap.System.Uptime))
	} else {
		p.uptime.Set(math.NaN())
	}

	p.historyLength.Set(float64(len(snap.History)))

	current := make(map[string]struct{}, len(snap.Network))
	for _, iface := range snap.Network {
		current[iface.Name] = struct{}{}
		p.rxBytes.WithLabelValues(iface.Name).Set(float64(iface.RxBytes))
		p.txBytes.WithLabelValues(iface.Name).Set(float64(iface.TxBytes))
	}

	for name := range p.ifaces {
		if _, exists := current[name]; !exists {
			p.rxBytes.DeleteLabelValues(name)
			p.txBytes.DeleteLabelValues(name)
		}
	}

	p.ifaces = current
}

func (p *PrometheusExporter) ObserveRequest(outcome string) {
	p.requests.WithLabelValues(outcome).Inc()
}

func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// StartServer blocks serving /metrics on addr until ctx is cancelled.
func (p *PrometheusExporter) StartServer(ctx context.Context, addr string) error {
	ln, err := listen(addr)
	if err != nil {
		return err
	}
	return p.Serve(ctx, ln)
}

func (p *PrometheusExporter) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	return serve(ctx, newHTTPServer(mux), ln, slog.Default())
}
