package tcp

import "sync/atomic"

// AdmissionGate bounds how many accepted connections may be live at once,
// ahead of the reactor's connection slab. The slab capacity is the hard
// ceiling; the gate fails fast at the same bound so a burst of accepts is
// rejected cheaply at the socket instead of filling the slab to its last
// slot and erroring deeper in the accept path.
type AdmissionGate struct {
	capacity int64
	inUse    atomic.Int64
	rejected atomic.Int64
}

// NewAdmissionGate builds a gate admitting at most capacity concurrent
// connections.
func NewAdmissionGate(capacity int) *AdmissionGate {
	if capacity < 1 {
		capacity = 1
	}
	return &AdmissionGate{capacity: int64(capacity)}
}

// TryAcquire claims one admission slot, failing fast when the gate is at
// capacity.
func (g *AdmissionGate) TryAcquire() bool {
	if g.inUse.Add(1) > g.capacity {
		g.inUse.Add(-1)
		g.rejected.Add(1)
		return false
	}
	return true
}

// Release returns a slot claimed by TryAcquire.
func (g *AdmissionGate) Release() {
	g.inUse.Add(-1)
}

// Snapshot reports the gate's counters, for logging or metrics scraping.
func (g *AdmissionGate) Snapshot() AdmissionSnapshot {
	inUse := g.inUse.Load()
	return AdmissionSnapshot{
		Capacity:    g.capacity,
		InUse:       inUse,
		Rejected:    g.rejected.Load(),
		Utilization: float64(inUse) / float64(g.capacity) * 100,
	}
}

// AdmissionSnapshot is a point-in-time view of an AdmissionGate.
type AdmissionSnapshot struct {
	Capacity    int64
	InUse       int64
	Rejected    int64
	Utilization float64
}
