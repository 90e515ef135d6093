package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/devlane/devlane/internal/history"
	"github.com/devlane/devlane/internal/history/sqlite"
)

func TestNewSinkFromDSNErrors(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"mysql://root@localhost/history",
		"redis://localhost:6379",
	}
	for _, dsn := range cases {
		if _, err := NewSinkFromDSN(dsn); err == nil {
			t.Errorf("NewSinkFromDSN(%q): expected error", dsn)
		}
	}
}

func TestNewSinkFromDSNSQLite(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	s, ok := sink.(*sqlite.Sink)
	if !ok {
		t.Fatalf("sink type = %T", sink)
	}
	defer func() { _ = s.Close() }()

	if err := s.Send(context.Background(), history.Event{
		Type:       history.EventDevStarted,
		ProjectID:  "web",
		Engine:     "vite",
		Port:       5173,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestNewSinkFromDSNBarePathDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	s, ok := sink.(*sqlite.Sink)
	if !ok {
		t.Fatalf("sink type = %T", sink)
	}
	_ = s.Close()
}
