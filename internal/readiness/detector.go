// Package readiness decides when a spawned workload is actually serving.
// Detection is a strategy: a banner matcher scanning process output for a
// host/port line, and an active HTTP probe corroborating a declared port.
// Absence of a timely match means "unknown, keep polling", never failure.
package readiness

// Detector is an active strategy that checks whether a workload answers
// on its declared address. Implementations must be safe for concurrent use.
type Detector interface {
	// Reachable returns true if the workload responds at host:port.
	Reachable(host string, port int) (bool, error)
	// Describe returns a human-readable description of the strategy.
	Describe() string
}
