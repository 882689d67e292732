package infra

import (
	"sync/atomic"
	"time"

	"option_go/internal/domain"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	transitionsApplied atomic.Uint64
	rejectedPrecond    atomic.Uint64
	rejectedAuth       atomic.Uint64
	rejectedExternal   atomic.Uint64
	rejectedInvariant  atomic.Uint64

	// Settlement outcomes
	exercised     atomic.Uint64
	expired       atomic.Uint64
	unsold        atomic.Uint64
	inTheMoney    atomic.Uint64
	outOfTheMoney atomic.Uint64

	// Oracle path
	feedTicks    atomic.Uint64
	pricesPosted atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	feedConnected atomic.Int32 // 1 = connected, 0 = not
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTransition records a committed transition with its latency.
func (m *Metrics) RecordTransition(latencyNs int64) {
	m.transitionsApplied.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejection records an aborted transition by kind.
func (m *Metrics) RecordRejection(kind domain.Kind) {
	switch kind {
	case domain.KindPrecondition:
		m.rejectedPrecond.Add(1)
	case domain.KindAuthorization:
		m.rejectedAuth.Add(1)
	case domain.KindExternal:
		m.rejectedExternal.Add(1)
	default:
		m.rejectedInvariant.Add(1)
	}
}

// RecordOutcome records how a settling transition resolved.
func (m *Metrics) RecordOutcome(outcome string) {
	switch outcome {
	case "exercised":
		m.exercised.Add(1)
	case "expired":
		m.expired.Add(1)
	case "unsold":
		m.unsold.Add(1)
	case "in_the_money":
		m.inTheMoney.Add(1)
	case "out_of_the_money":
		m.outOfTheMoney.Add(1)
	}
}

// RecordFeedTick records a price received from the feed.
func (m *Metrics) RecordFeedTick() {
	m.feedTicks.Add(1)
}

// RecordPricePosted records a price accepted by update_price.
func (m *Metrics) RecordPricePosted() {
	m.pricesPosted.Add(1)
}

// SetFeedConnected sets the feed connection gauge.
func (m *Metrics) SetFeedConnected(connected bool) {
	if connected {
		m.feedConnected.Store(1)
	} else {
		m.feedConnected.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TransitionsApplied uint64
	RejectedByKind     map[string]uint64
	Outcomes           map[string]uint64
	FeedTicks          uint64
	PricesPosted       uint64
	AvgLatencyNs       int64
	FeedConnected      bool
	Timestamp          time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TransitionsApplied: m.transitionsApplied.Load(),
		RejectedByKind: map[string]uint64{
			domain.KindPrecondition.String():  m.rejectedPrecond.Load(),
			domain.KindAuthorization.String(): m.rejectedAuth.Load(),
			domain.KindExternal.String():      m.rejectedExternal.Load(),
			domain.KindInvariant.String():     m.rejectedInvariant.Load(),
		},
		Outcomes: map[string]uint64{
			"exercised":        m.exercised.Load(),
			"expired":          m.expired.Load(),
			"unsold":           m.unsold.Load(),
			"in_the_money":     m.inTheMoney.Load(),
			"out_of_the_money": m.outOfTheMoney.Load(),
		},
		FeedTicks:     m.feedTicks.Load(),
		PricesPosted:  m.pricesPosted.Load(),
		AvgLatencyNs:  avgLatency,
		FeedConnected: m.feedConnected.Load() == 1,
		Timestamp:     time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.transitionsApplied, &m.rejectedPrecond, &m.rejectedAuth, &m.rejectedExternal,
		&m.rejectedInvariant, &m.exercised, &m.expired, &m.unsold, &m.inTheMoney,
		&m.outOfTheMoney, &m.feedTicks, &m.pricesPosted, &m.latencyCount,
	} {
		c.Store(0)
	}
	m.latencySumNs.Store(0)
	m.feedConnected.Store(0)
}
