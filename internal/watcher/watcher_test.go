package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type changeRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *changeRecorder) record(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *changeRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *changeRecorder) waitFor(t *testing.T, n int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		got := r.snapshot()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d notifications, want %d: %v", len(got), n, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherNotifiesOnWrite(t *testing.T) {
	root := t.TempDir()
	rec := &changeRecorder{}
	w, err := New(50*time.Millisecond, nil, rec.record, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Watch("web", root); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "main.ts"), []byte("export {}"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := rec.waitFor(t, 1, 3*time.Second)
	if got[0] != "web" {
		t.Fatalf("project = %q", got[0])
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	rec := &changeRecorder{}
	w, err := New(150*time.Millisecond, nil, rec.record, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Watch("web", root); err != nil {
		t.Fatal(err)
	}

	// a burst of writes inside one debounce window collapses to a single
	// notification
	for i := 0; i < 5; i++ {
		name := filepath.Join(root, "file.ts")
		if err := os.WriteFile(name, []byte{byte('a' + i)}, 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec.waitFor(t, 1, 3*time.Second)
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("notifications = %v, want one", got)
	}
}

func TestWatcherMapsEventsToProjects(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	rec := &changeRecorder{}
	w, err := New(50*time.Millisecond, nil, rec.record, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Watch("alpha", rootA); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch("beta", rootB); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(rootB, "index.ts"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := rec.waitFor(t, 1, 3*time.Second)
	if got[0] != "beta" {
		t.Fatalf("project = %q, want beta", got[0])
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := New(50*time.Millisecond, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
