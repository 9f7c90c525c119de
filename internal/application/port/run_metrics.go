package port

import "time"

// RunMetrics records in-process counters for runs and probes (e.g. Prometheus).
type RunMetrics interface {
	ObserveProbe(network, status string, duration time.Duration)
	ObserveRun(trigger, outcome string, duration time.Duration)
	SetRunning(running bool)
	IncPersistFailures()
}
