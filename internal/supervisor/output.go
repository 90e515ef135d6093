package supervisor

import (
	"regexp"
	"strings"

	"github.com/devlane/devlane/internal/telemetry"
)

var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// stripANSI removes terminal color and cursor codes. Engine CLIs emit
// colored output even when not attached to a TTY.
func stripANSI(line string) string {
	return ansiEscapes.ReplaceAllString(line, "")
}

// classifyLine maps an output line to a telemetry log level by substring.
// Engines do not agree on a log format, so this stays deliberately loose;
// an unrecognized line is info.
func classifyLine(line string) telemetry.LogLevel {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "error") || strings.Contains(l, "err!") || strings.Contains(l, "failed"):
		return telemetry.LevelError
	case strings.Contains(l, "warn"):
		return telemetry.LevelWarn
	case strings.Contains(l, "debug"):
		return telemetry.LevelDebug
	default:
		return telemetry.LevelInfo
	}
}

// buildPhaseFor recognizes engine build output milestones. Percentages are
// coarse checkpoints, not real progress; vite and rsbuild print these
// markers in a stable order.
func buildPhaseFor(line string) (telemetry.BuildPhase, int, bool) {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "transform"):
		return telemetry.PhaseTransform, 30, true
	case strings.Contains(l, "rendering chunks") || strings.Contains(l, "bundl"):
		return telemetry.PhaseBundle, 60, true
	case strings.Contains(l, "writing") || strings.Contains(l, "gzip size") || strings.Contains(l, "emitted"):
		return telemetry.PhaseWrite, 90, true
	default:
		return "", 0, false
	}
}
