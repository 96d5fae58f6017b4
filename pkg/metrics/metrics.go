// Package metrics exposes Prometheus collectors for mesh node activity.
//
// All methods are safe to call on a nil *Metrics, so components can take
// an optional metrics pointer without guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/csrmesh/csrmesh-go/pkg/wire"
)

const namespace = "csrmesh"

// Cache names used as label values.
const (
	CachePending   = "pending"
	CacheConfirmed = "confirmed"
)

// Metrics holds the collectors of one node.
type Metrics struct {
	MessagesIn        *prometheus.CounterVec
	MessagesOut       *prometheus.CounterVec
	AnnouncesSent     prometheus.Counter
	ReportsSent       prometheus.Counter
	ReportsSuppressed prometheus.Counter
	Evictions         *prometheus.CounterVec
	CacheEntries      *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Model messages received, by opcode.",
		}, []string{"opcode"}),
		MessagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Model messages sent, by opcode.",
		}, []string{"opcode"}),
		AnnouncesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "asset",
			Name:      "announces_sent_total",
			Help:      "ASSET_ANNOUNCE messages emitted by the broadcast scheduler.",
		}),
		ReportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "reports_sent_total",
			Help:      "TRACKER_REPORT messages emitted on promotion.",
		}),
		ReportsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "reports_suppressed_total",
			Help:      "Pending sightings discarded because a peer reported a stronger signal.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "evictions_total",
			Help:      "Cache entries removed, by cache and reason.",
		}, []string{"cache", "reason"}),
		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "cache_entries",
			Help:      "Occupied cache slots, by cache.",
		}, []string{"cache"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesIn,
			m.MessagesOut,
			m.AnnouncesSent,
			m.ReportsSent,
			m.ReportsSuppressed,
			m.Evictions,
			m.CacheEntries,
		)
	}
	return m
}

// MessageIn counts a received message.
func (m *Metrics) MessageIn(op wire.Opcode) {
	if m == nil {
		return
	}
	m.MessagesIn.WithLabelValues(op.String()).Inc()
}

// MessageOut counts a sent message.
func (m *Metrics) MessageOut(op wire.Opcode) {
	if m == nil {
		return
	}
	m.MessagesOut.WithLabelValues(op.String()).Inc()
}

// Announce counts an emitted announce.
func (m *Metrics) Announce() {
	if m == nil {
		return
	}
	m.AnnouncesSent.Inc()
}

// Report counts an emitted tracker report.
func (m *Metrics) Report() {
	if m == nil {
		return
	}
	m.ReportsSent.Inc()
}

// Suppressed counts a pending sighting lost to a peer.
func (m *Metrics) Suppressed() {
	if m == nil {
		return
	}
	m.ReportsSuppressed.Inc()
}

// Evicted counts a removed cache entry.
func (m *Metrics) Evicted(cache, reason string) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(cache, reason).Inc()
}

// SetCacheEntries records the occupancy of a cache.
func (m *Metrics) SetCacheEntries(cache string, n int) {
	if m == nil {
		return
	}
	m.CacheEntries.WithLabelValues(cache).Set(float64(n))
}
