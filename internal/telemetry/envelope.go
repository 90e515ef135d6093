package telemetry

import (
	"time"
)

// EnvelopeType tags outbound messages so observers can dispatch on them.
type EnvelopeType string

const (
	TypeLog         EnvelopeType = "log"
	TypeStatus      EnvelopeType = "status"
	TypeProject     EnvelopeType = "project"
	TypeBuild       EnvelopeType = "build"
	TypePerformance EnvelopeType = "performance"
	TypeError       EnvelopeType = "error"
	TypePong        EnvelopeType = "pong"
)

// Envelope is the wire format pushed to every connected observer.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Payload   any          `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

// LogLevel classifies a forwarded output line.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of workload or control-plane output.
type LogEntry struct {
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	ProjectID string    `json:"project_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildPhase is a coarse marker synthesized from build output.
type BuildPhase string

const (
	PhaseStart     BuildPhase = "start"
	PhaseTransform BuildPhase = "transform"
	PhaseBundle    BuildPhase = "bundle"
	PhaseWrite     BuildPhase = "write"
	PhaseDone      BuildPhase = "done"
	PhaseError     BuildPhase = "error"
)

// BuildProgress is broadcast only, never persisted.
type BuildProgress struct {
	ProjectID string     `json:"project_id"`
	Phase     BuildPhase `json:"phase"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
}

// Performance is a readiness timing sample for a serve lane: how long
// the workload took from spawn to its ready signal.
type Performance struct {
	ProjectID string `json:"project_id"`
	Action    string `json:"action"`
	StartupMS int64  `json:"startup_ms"`
	Port      int    `json:"port,omitempty"`
}
