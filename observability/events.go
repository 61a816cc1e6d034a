package observability

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tipledger/core/types"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	volume  *prometheus.CounterVec
	dropped prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipledger",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed ledger events segmented by type.",
			}, []string{"type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipledger",
				Subsystem: "events",
				Name:      "token_units_total",
				Help:      "Token base units moved by committed events segmented by type and leg.",
			}, []string{"type", "leg"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tipledger",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Deliveries skipped because a subscriber buffer was full.",
			}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.volume, eventRegistry.dropped)
	})
	return eventRegistry
}

// Publish records the event. It satisfies the event bus sink contract so the
// registry can be attached directly.
func (m *eventMetrics) Publish(evt *types.Event) error {
	if m == nil || evt == nil {
		return nil
	}
	eventType := strings.TrimSpace(evt.Type)
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
	for _, leg := range []string{"amount", "feeAmount"} {
		raw, ok := evt.Attributes[leg]
		if !ok {
			continue
		}
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil && v > 0 {
			m.volume.WithLabelValues(eventType, leg).Add(float64(v))
		}
	}
	return nil
}

// RecordDropped adds n skipped deliveries.
func (m *eventMetrics) RecordDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.Add(float64(n))
}
