package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a set of prometheus collectors tracking Dispatcher activity.
// Additive over Stats()/WStats() — it does not change dispatcher behavior,
// only observes it. A caller registers one Metrics value per Dispatcher
// instance against its own prometheus.Registerer.
type Metrics struct {
	Workers         prometheus.Gauge
	BusyWorkers     prometheus.Gauge
	QueueDepth      prometheus.Gauge
	TasksDispatched prometheus.Counter
	TasksRejected   prometheus.Counter
	WorkerCrashes   prometheus.Counter
}

// NewMetrics builds collectors namespaced under "workerpool", ready to be
// registered against a prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workerpool",
			Name:      "workers",
			Help:      "Current number of live workers in the pool.",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workerpool",
			Name:      "busy_workers",
			Help:      "Current number of workers executing at least one call.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workerpool",
			Name:      "queue_depth",
			Help:      "Current number of tasks waiting to be dispatched.",
		}),
		TasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workerpool",
			Name:      "tasks_dispatched_total",
			Help:      "Total number of tasks handed to a worker.",
		}),
		TasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workerpool",
			Name:      "tasks_rejected_total",
			Help:      "Total number of tasks rejected synchronously at submit time.",
		}),
		WorkerCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workerpool",
			Name:      "worker_crashes_total",
			Help:      "Total number of workers removed after an exec rejection with Terminated()==true.",
		}),
	}
}

// Register registers all collectors against reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Workers, m.BusyWorkers, m.QueueDepth,
		m.TasksDispatched, m.TasksRejected, m.WorkerCrashes,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Sample reads d.Stats() into the gauges. Callers invoke it before the
// gauges are read (cmd/workerpoold does so before serving /metrics and
// /status), since the Dispatcher only increments the counters itself.
func (m *Metrics) Sample(d *Dispatcher) {
	s := d.Stats()
	m.Workers.Set(float64(s.TotalWorkers))
	m.BusyWorkers.Set(float64(s.BusyWorkers))
	m.QueueDepth.Set(float64(s.PendingTasks))
}
