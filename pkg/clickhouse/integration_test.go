package clickhouse_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/eventsift/eventsift/pkg/clickhouse"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

// skipIfNoDocker skips integration tests when Docker is unavailable.
func skipIfNoDocker(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}
	if err := exec.CommandContext(t.Context(), "docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

func TestClientAndWriter_integration(t *testing.T) {
	skipIfNoDocker(t)

	ctx := context.Background()

	container, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3-alpine",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword("password"),
		tcclickhouse.WithDatabase("eventsift_test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	addr, err := container.ConnectionHost(ctx)
	require.NoError(t, err)

	client, err := clickhouse.NewClient(ctx, clickhouse.Options{
		Addr:     addr,
		Database: "eventsift_test",
		Username: "default",
		Password: "password",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Exec(ctx, `
		CREATE TABLE events (
			event_id String,
			project_id UInt64,
			message String
		) ENGINE = Memory
	`))

	columns := []string{"event_id", "project_id", "message"}
	rows := [][]any{
		clickhouse.RowFromEvent(columns, map[string]any{
			"event_id":   "abc123",
			"project_id": uint64(1),
			"message":    "boom",
		}),
		clickhouse.RowFromEvent(columns, map[string]any{
			"event_id":   "def456",
			"project_id": uint64(2),
			"message":    "crash",
		}),
	}

	writer := clickhouse.NewWriter(client)
	require.NoError(t, writer.WriteRows(ctx, "events", columns, rows))

	results, err := client.Select(ctx, "SELECT event_id, message FROM events ORDER BY event_id")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "abc123", results[0]["event_id"])
	require.Equal(t, "crash", results[1]["message"])
}
