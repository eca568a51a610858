package checks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/launchpad/internal/database/testutil"
	"github.com/charlesng35/launchpad/internal/monitoring"
)

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	result = Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestRedisCheck(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, monitoring.StatusUp, Redis(client, time.Second).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusUp, Redis(nil, 0).Run(context.Background()).Status)

	srv.Close()
	result := Redis(client, 200*time.Millisecond).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.NotEmpty(t, result.Details)
}

func TestMaintenanceCheck(t *testing.T) {
	require.Equal(t, monitoring.StatusUp, Maintenance(nil, 0).Run(context.Background()).Status)

	tracker := monitoring.NewJobTracker()
	tracker.Register("tokens")

	result := Maintenance(tracker, time.Hour).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "tokens: pending first run")

	tracker.Record("tokens", errors.New("database is locked"), time.Millisecond)
	result = Maintenance(tracker, time.Hour).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "database is locked")

	tracker.Record("tokens", nil, time.Millisecond)
	require.Equal(t, monitoring.StatusUp, Maintenance(tracker, time.Hour).Run(context.Background()).Status)
}
