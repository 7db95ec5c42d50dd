package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"streampay/core/events"
	"streampay/native/stream"
)

// StreamsMetrics exports the protocol-wide analytics view as prometheus
// collectors. The gauges mirror the aggregator's on-demand numbers; callers
// refresh them with Update whenever they take a new observation.
type StreamsMetrics struct {
	activeStreams prometheus.Gauge
	totalStreams  prometheus.Gauge
	valueLocked   *prometheus.GaugeVec
	feesCollected *prometheus.GaugeVec
	withdrawals   prometheus.Counter
}

var (
	streamsOnce     sync.Once
	streamsRegistry *StreamsMetrics
)

// Streams returns the process-wide collector set, registering it on first
// use.
func Streams() *StreamsMetrics {
	streamsOnce.Do(func() {
		streamsRegistry = &StreamsMetrics{
			activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "streampay_active_streams",
				Help: "Number of created, not-yet-canceled streams.",
			}),
			totalStreams: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "streampay_total_streams",
				Help: "Lifetime number of created streams.",
			}),
			valueLocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "streampay_value_locked",
				Help: "Deposited balance tracked per token.",
			}, []string{"token"}),
			feesCollected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "streampay_fees_collected",
				Help: "Cumulative protocol fees per token.",
			}, []string{"token"}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "streampay_withdrawals_total",
				Help: "Count of successful withdrawals observed.",
			}),
		}
		prometheus.MustRegister(
			streamsRegistry.activeStreams,
			streamsRegistry.totalStreams,
			streamsRegistry.valueLocked,
			streamsRegistry.feesCollected,
			streamsRegistry.withdrawals,
		)
	})
	return streamsRegistry
}

// Update refreshes the gauges from a protocol metrics snapshot.
func (m *StreamsMetrics) Update(pm *stream.ProtocolMetrics) {
	if m == nil || pm == nil {
		return
	}
	m.activeStreams.Set(float64(pm.ActiveStreams))
	m.totalStreams.Set(float64(pm.TotalStreams))
	for _, totals := range pm.Tokens {
		m.valueLocked.WithLabelValues(totals.Token).Set(bigFloat(totals.ValueLocked))
		m.feesCollected.WithLabelValues(totals.Token).Set(bigFloat(totals.FeesCollected))
	}
}

// ObserveWithdrawal counts one successful withdrawal.
func (m *StreamsMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// EventObserver feeds the collector set from the engine's event stream. It
// implements events.Emitter so it can be wired directly as the engine
// emitter, counting withdrawals as they happen instead of on the next
// gauge refresh.
type EventObserver struct {
	metrics *StreamsMetrics
}

// NewEventObserver binds an observer to the given collector set.
func NewEventObserver(m *StreamsMetrics) *EventObserver {
	return &EventObserver{metrics: m}
}

// Emit implements events.Emitter.
func (o *EventObserver) Emit(evt events.Event) {
	if o == nil || o.metrics == nil || evt == nil {
		return
	}
	if evt.EventType() == stream.EventTypeStreamWithdrawn {
		o.metrics.ObserveWithdrawal()
	}
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
