package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bridge.
type Metrics struct {
	ActiveCalls       prometheus.Gauge
	CallEvents        *prometheus.CounterVec
	MediaFrames       *prometheus.CounterVec
	MalformedFrames   *prometheus.CounterVec
	UpstreamEvents    *prometheus.CounterVec
	PendingAudioDrops prometheus.Counter
	SetupAckLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls currently bridged.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		MediaFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_frames_total",
			Help:      "Relayed audio frames by direction.",
		}, []string{"direction"}),
		MalformedFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Undecodable frames by side.",
		}, []string{"side"}),
		UpstreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_events_total",
			Help:      "Live-connection events by type.",
		}, []string{"event"}),
		PendingAudioDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_audio_drops_total",
			Help:      "Audio chunks dropped from the pre-ready queue on overflow.",
		}),
		SetupAckLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "setup_ack_latency_ms",
			Help:      "Latency from live dial to setup acknowledgment in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 1000, 2000, 3000},
		}),
	}
}

func (m *Metrics) ObserveSetupAckLatency(d time.Duration) {
	m.SetupAckLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
