package bus

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// topicMetrics tracks per-topic counters. oneSecondTick can roll the
// per-tick counters into one-second rates, but nothing calls it, so the
// per-second fields stay zero.
type topicMetrics struct {
	messagesTotal  int64
	packetsTotal   int64
	confirmedPos   int64
	confirmedNeg   int64
	persistQueueSz int64

	messagesThisTick int64
	packetsThisTick  int64
	messagesPerSec   int64
	packetsPerSec    int64
}

func newTopicMetrics() *topicMetrics {
	return &topicMetrics{}
}

func (m *topicMetrics) onPublish(count int) {
	atomic.AddInt64(&m.messagesTotal, int64(count))
	atomic.AddInt64(&m.messagesThisTick, int64(count))
}

func (m *topicMetrics) onPacketSent() {
	atomic.AddInt64(&m.packetsTotal, 1)
	atomic.AddInt64(&m.packetsThisTick, 1)
}

func (m *topicMetrics) onConfirmed(positive, negative int) {
	atomic.AddInt64(&m.confirmedPos, int64(positive))
	atomic.AddInt64(&m.confirmedNeg, int64(negative))
}

// oneSecondTick rolls the per-tick counters into a rate, mirroring
// original_source's TopicMetrics::one_second_tick.
func (m *topicMetrics) oneSecondTick() {
	m.messagesPerSec = atomic.SwapInt64(&m.messagesThisTick, 0)
	m.packetsPerSec = atomic.SwapInt64(&m.packetsThisTick, 0)
}

// Registry holds the process-wide Prometheus collectors. It is registered
// to a private registry (no HTTP exposition: admin/status endpoints are
// out of scope per spec.md), so a future exporter can mount it without
// this package reaching for net/http itself. PacketsSent, PagesLoaded and
// DeliveryDuration are registered but nothing in this package updates them.
type Registry struct {
	Registry *prometheus.Registry

	MessagesPublished prometheus.Counter
	PacketsSent       prometheus.Counter
	ConfirmedPositive prometheus.Counter
	ConfirmedNegative prometheus.Counter
	PagesLoaded       prometheus.Counter
	PagesEvicted      prometheus.Counter
	DeliveryDuration  prometheus.Histogram
	SubscribersKicked prometheus.Counter
}

// NewMetricsRegistry builds and registers every collector under namespace.
func NewMetricsRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		Registry: reg,
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_published_total",
			Help: "Total messages accepted by Publish.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_sent_total",
			Help: "Total packets written to any session.",
		}),
		ConfirmedPositive: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "confirmed_positive_total",
			Help: "Total message ids positively confirmed.",
		}),
		ConfirmedNegative: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "confirmed_negative_total",
			Help: "Total message ids negatively confirmed (redelivered).",
		}),
		PagesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pages_loaded_total",
			Help: "Total page loads completed by the page loader.",
		}),
		PagesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pages_evicted_total",
			Help: "Total pages evicted by GC.",
		}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "delivery_build_seconds",
			Help:    "Time spent building one delivery bucket.",
			Buckets: prometheus.DefBuckets,
		}),
		SubscribersKicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "subscribers_kicked_total",
			Help: "Total subscribers kicked for exceeding the delivery timeout.",
		}),
	}

	reg.MustRegister(
		m.MessagesPublished, m.PacketsSent, m.ConfirmedPositive, m.ConfirmedNegative,
		m.PagesLoaded, m.PagesEvicted, m.DeliveryDuration, m.SubscribersKicked,
	)
	return m
}
