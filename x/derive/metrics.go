package derive

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/derivation/metrics"
)

// Metrics tracks pipeline throughput and failure counts.
type Metrics struct {
	registry *metrics.ComponentRegistry

	FramesIngested    prometheus.Counter
	ChannelsInFlight  prometheus.Gauge
	ChannelsReady     prometheus.Counter
	ChannelsDropped   *prometheus.CounterVec
	BatchesDecoded    *prometheus.CounterVec
	DecodeErrors      *prometheus.CounterVec
	ChannelBytes      prometheus.Histogram
	BatchesPerChannel prometheus.Histogram
}

// NewMetrics creates the pipeline metrics under the module namespace.
func NewMetrics() *Metrics {
	registry := metrics.NewComponentRegistry(metrics.Namespace, "pipeline")
	return &Metrics{
		registry: registry,
		FramesIngested: registry.NewCounter(prometheus.CounterOpts{
			Name: "frames_ingested_total",
			Help: "Total channel frames ingested from batcher call-data",
		}),
		ChannelsInFlight: registry.NewGauge(prometheus.GaugeOpts{
			Name: "channels_in_flight",
			Help: "Channels currently buffered in the bank",
		}),
		ChannelsReady: registry.NewCounter(prometheus.CounterOpts{
			Name: "channels_ready_total",
			Help: "Total channels completed and read",
		}),
		ChannelsDropped: registry.NewCounterVec(prometheus.CounterOpts{
			Name: "channels_dropped_total",
			Help: "Total channels dropped, by reason",
		}, []string{"reason"}),
		BatchesDecoded: registry.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_decoded_total",
			Help: "Total batches decoded from completed channels, by type",
		}, []string{"type"}),
		DecodeErrors: registry.NewCounterVec(prometheus.CounterOpts{
			Name: "decode_errors_total",
			Help: "Total decode failures, by stage",
		}, []string{"stage"}),
		ChannelBytes: registry.NewHistogram(prometheus.HistogramOpts{
			Name:    "channel_bytes",
			Help:    "Compressed size of completed channels",
			Buckets: metrics.SizeBuckets,
		}),
		BatchesPerChannel: registry.NewHistogram(prometheus.HistogramOpts{
			Name:    "batches_per_channel",
			Help:    "Batches decoded per completed channel",
			Buckets: metrics.CountBuckets,
		}),
	}
}

// Gatherer exposes the pipeline metrics for scraping.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry.Gatherer()
}
