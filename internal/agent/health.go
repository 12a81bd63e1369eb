package agent

import (
	"sync/atomic"
	"time"

	"vm-health-agent/internal/collector"
)

type HealthStatus struct {
	sinkConnected atomic.Bool
	cycles        atomic.Int64
	lastCycleAt   atomic.Int64
	lastOK        atomic.Int64
	lastFailed    atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{}
}

func (h *HealthStatus) SetSinkConnected(ok bool) {
	h.sinkConnected.Store(ok)
}

func (h *HealthStatus) MarkCycle(results []collector.Result, at time.Time) {
	var ok, failed int64
	for _, r := range results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	h.lastOK.Store(ok)
	h.lastFailed.Store(failed)
	h.lastCycleAt.Store(at.UnixNano())
	h.cycles.Add(1)
}

// Healthy reports whether the latest cycle polled at least one project.
func (h *HealthStatus) Healthy() bool {
	return h.cycles.Load() > 0 && h.lastOK.Load() > 0
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"sink_connected":   h.sinkConnected.Load(),
		"cycles":           h.cycles.Load(),
		"last_ok_projects": h.lastOK.Load(),
		"last_failed":      h.lastFailed.Load(),
	}
	if v := h.lastCycleAt.Load(); v > 0 {
		out["last_cycle_at"] = time.Unix(0, v).UTC()
	}
	return out
}
