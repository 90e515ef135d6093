package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/devlane/devlane/internal/state"
)

func recvEnvelope(t *testing.T, o *Observer) Envelope {
	t.Helper()
	select {
	case env, ok := <-o.C():
		if !ok {
			t.Fatal("observer channel closed")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return Envelope{}
}

func TestAttachSendsSnapshotThenHistory(t *testing.T) {
	snapshot := func() []state.Project {
		return []state.Project{{ID: "app", Status: state.StatusRunning, Port: 5173}}
	}
	h := NewHub(snapshot)
	h.PushLog(LevelInfo, "first", "app")
	h.PushLog(LevelWarn, "second", "app")

	o := h.Attach()
	defer o.Close()

	env := recvEnvelope(t, o)
	if env.Type != TypeStatus {
		t.Fatalf("first envelope type = %s, want status", env.Type)
	}
	projects := env.Payload.([]state.Project)
	if len(projects) != 1 || projects[0].ID != "app" {
		t.Fatalf("snapshot payload = %+v", projects)
	}

	for _, want := range []string{"first", "second"} {
		env = recvEnvelope(t, o)
		if env.Type != TypeLog {
			t.Fatalf("type = %s, want log", env.Type)
		}
		if entry := env.Payload.(LogEntry); entry.Message != want {
			t.Fatalf("message = %q, want %q", entry.Message, want)
		}
	}
}

func TestLiveAfterReplayNoGapNoDuplicate(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 10; i++ {
		h.PushLog(LevelInfo, fmt.Sprintf("old-%d", i), "app")
	}

	o := h.Attach()
	defer o.Close()
	h.PushLog(LevelInfo, "live", "app")

	var got []string
	// snapshot first
	if env := recvEnvelope(t, o); env.Type != TypeStatus {
		t.Fatalf("first type = %s", env.Type)
	}
	for i := 0; i < 11; i++ {
		env := recvEnvelope(t, o)
		got = append(got, env.Payload.(LogEntry).Message)
	}
	for i := 0; i < 10; i++ {
		if got[i] != fmt.Sprintf("old-%d", i) {
			t.Fatalf("replay[%d] = %q", i, got[i])
		}
	}
	if got[10] != "live" {
		t.Fatalf("live entry = %q", got[10])
	}
}

func TestHistoryCapacityBound(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < HistoryCapacity+50; i++ {
		h.PushLog(LevelInfo, fmt.Sprintf("m-%d", i), "app")
	}
	if h.HistoryLen() != HistoryCapacity {
		t.Fatalf("history len = %d, want %d", h.HistoryLen(), HistoryCapacity)
	}

	o := h.Attach()
	defer o.Close()
	_ = recvEnvelope(t, o) // snapshot
	env := recvEnvelope(t, o)
	if entry := env.Payload.(LogEntry); entry.Message != "m-50" {
		t.Fatalf("oldest replayed = %q, want m-50", entry.Message)
	}
}

func TestSlowObserverDropsOldestNotNewest(t *testing.T) {
	h := NewHub(nil)
	o := h.Attach()
	defer o.Close()
	_ = recvEnvelope(t, o) // snapshot

	// overflow the queue without draining it
	total := HistoryCapacity + 600
	for i := 0; i < total; i++ {
		h.PushLog(LevelInfo, fmt.Sprintf("m-%d", i), "app")
	}

	// drain; the final message must have survived
	last := ""
	for {
		select {
		case env := <-o.C():
			if entry, ok := env.Payload.(LogEntry); ok {
				last = entry.Message
			}
			continue
		case <-time.After(200 * time.Millisecond):
		}
		break
	}
	if last != fmt.Sprintf("m-%d", total-1) {
		t.Fatalf("newest message lost, last = %q", last)
	}
}

func TestDetachClosesChannelAndCounts(t *testing.T) {
	h := NewHub(nil)
	a := h.Attach()
	b := h.Attach()
	if h.ObserverCount() != 2 {
		t.Fatalf("count = %d", h.ObserverCount())
	}

	a.Close()
	a.Close() // idempotent
	if h.ObserverCount() != 1 {
		t.Fatalf("count = %d", h.ObserverCount())
	}

	// drain snapshot then expect close
	_ = <-a.C()
	if _, ok := <-a.C(); ok {
		t.Fatal("channel should be closed")
	}

	// broadcasting after a detach must not panic and must reach b
	h.PushProject(state.Project{ID: "app"})
	_ = recvEnvelope(t, b) // snapshot
	env := recvEnvelope(t, b)
	if env.Type != TypeProject {
		t.Fatalf("type = %s", env.Type)
	}
	b.Close()
}

func TestPerformanceBroadcastOnly(t *testing.T) {
	h := NewHub(nil)
	o := h.Attach()
	_ = recvEnvelope(t, o) // snapshot
	h.PushPerformance(Performance{ProjectID: "app", Action: "dev", StartupMS: 120, Port: 5173})
	env := recvEnvelope(t, o)
	if env.Type != TypePerformance {
		t.Fatalf("type = %s", env.Type)
	}
	if p := env.Payload.(Performance); p.StartupMS != 120 || p.Port != 5173 {
		t.Fatalf("payload = %+v", p)
	}
	o.Close()

	// timing samples are not replayed for late joiners
	late := h.Attach()
	defer late.Close()
	if env := recvEnvelope(t, late); env.Type != TypeStatus {
		t.Fatalf("first type = %s", env.Type)
	}
	select {
	case env := <-late.C():
		t.Fatalf("unexpected replayed envelope: %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBuildProgressBroadcastOnly(t *testing.T) {
	h := NewHub(nil)
	o := h.Attach()
	_ = recvEnvelope(t, o) // snapshot
	h.PushBuildProgress(BuildProgress{ProjectID: "app", Phase: PhaseTransform, Progress: 30})
	env := recvEnvelope(t, o)
	if env.Type != TypeBuild {
		t.Fatalf("type = %s", env.Type)
	}
	o.Close()

	// progress events are not replayed for late joiners
	late := h.Attach()
	defer late.Close()
	if env := recvEnvelope(t, late); env.Type != TypeStatus {
		t.Fatalf("first type = %s", env.Type)
	}
	select {
	case env := <-late.C():
		t.Fatalf("unexpected replayed envelope: %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}
