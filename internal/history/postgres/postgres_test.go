package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/devlane/devlane/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	events := []history.Event{
		{
			Type:       history.EventDevStarted,
			ProjectID:  "web",
			Engine:     "vite",
			Port:       5173,
			OccurredAt: time.Now().UTC(),
		},
		{
			Type:       history.EventDevError,
			ProjectID:  "web",
			Engine:     "vite",
			Detail:     "port already in use",
			OccurredAt: time.Now().UTC(),
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	err = sink.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workload_history WHERE project = $1", "web").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query workload_history: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 rows, got %d", count)
	}

	var detail string
	err = sink.db.QueryRowContext(ctx,
		"SELECT detail FROM workload_history WHERE event = $1", string(history.EventDevError)).Scan(&detail)
	if err != nil {
		t.Fatalf("Failed to query detail: %v", err)
	}
	if detail != "port already in use" {
		t.Fatalf("detail = %q", detail)
	}
}

func TestNewEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
