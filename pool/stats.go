package pool

import "time"

// Stats is a point-in-time snapshot of pool shape and load.
type Stats struct {
	TotalWorkers     int
	BusyWorkers      int
	AvailableWorkers int
	IdleWorkers      int
	PendingTasks     int
	ActiveTasks      int
}

// Stats returns the current pool-level counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := len(d.workers)
	busy := 0
	available := 0
	for _, w := range d.workers {
		if w.Busy() {
			busy++
		}
		if w.Available() {
			available++
		}
	}
	return Stats{
		TotalWorkers:     total,
		BusyWorkers:      busy,
		AvailableWorkers: available,
		IdleWorkers:      total - busy,
		PendingTasks:     len(d.tasks),
		ActiveTasks:      busy,
	}
}

// GetNumberAvailableWorkers returns the count of workers currently
// satisfying Available().
func (d *Dispatcher) GetNumberAvailableWorkers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.workers {
		if w.Available() {
			n++
		}
	}
	return n
}

// WStats is the per-pool aggregate of worker execution counters.
type WStats struct {
	PoolSize     int
	Ready        int
	TotalTime    time.Duration
	MinTime      time.Duration
	MaxTime      time.Duration
	LastTime     time.Duration
	RequestCount int64
	EventLoopUtil float64
}

// WStats aggregates per-worker counters. minTime is seeded at zero and
// reduced with an ordinary min(), so on a pool where every sample happens
// to be positive it reports 0 rather than the true minimum — a known quirk
// preserved here for callers that already depend on it. See
// WStatsCorrected for the fixed variant and DESIGN.md for the reasoning.
func (d *Dispatcher) WStats() WStats {
	workers := d.snapshotWorkers()

	out := WStats{PoolSize: len(workers)}
	var minTime time.Duration // deliberately seeded at 0, see doc comment above
	var totalELU float64
	for _, w := range workers {
		if w.Available() {
			out.Ready++
		}
		c := w.Stats()
		out.TotalTime += c.TotalTime
		if c.MinTime < minTime {
			minTime = c.MinTime
		}
		if c.MaxTime > out.MaxTime {
			out.MaxTime = c.MaxTime
		}
		out.LastTime = c.LastTime
		out.RequestCount += c.RequestCount
		totalELU += c.EventLoopUtil
	}
	out.MinTime = minTime
	if len(workers) > 0 {
		out.EventLoopUtil = totalELU / float64(len(workers))
	}
	return out
}

// WStatsCorrected aggregates the same counters as WStats but seeds minTime
// at the maximum duration instead of zero, and reports zero when the pool
// has no workers, so MinTime reflects an actual observed minimum.
func (d *Dispatcher) WStatsCorrected() WStats {
	workers := d.snapshotWorkers()

	out := WStats{PoolSize: len(workers)}
	if len(workers) == 0 {
		return out
	}

	minTime := time.Duration(1<<63 - 1)
	var totalELU float64
	for _, w := range workers {
		if w.Available() {
			out.Ready++
		}
		c := w.Stats()
		out.TotalTime += c.TotalTime
		if c.MinTime < minTime {
			minTime = c.MinTime
		}
		if c.MaxTime > out.MaxTime {
			out.MaxTime = c.MaxTime
		}
		out.LastTime = c.LastTime
		out.RequestCount += c.RequestCount
		totalELU += c.EventLoopUtil
	}
	out.MinTime = minTime
	out.EventLoopUtil = totalELU / float64(len(workers))
	return out
}

func (d *Dispatcher) snapshotWorkers() []WorkerHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]WorkerHandle, len(d.workers))
	copy(out, d.workers)
	return out
}
