package platauth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginThrottled
	MetricLoginIPRejected
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	MetricMFAReplay
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricSessionCreated
	MetricSessionRevoked
	MetricImpersonationStarted
	MetricImpersonationEnded
	MetricImpersonationConflict
	MetricAuditAppendFailed

	metricIDCount
)

// Metrics holds atomic per-engine counters. A nil or disabled Metrics is a
// no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id < 0 || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
