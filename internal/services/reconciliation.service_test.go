package services

import (
	"context"
	"errors"
	"server/internal/database"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
)

func setupReconciliationTest(t *testing.T) *ReconciliationService {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	return NewReconciliationService(database.DB{Cache: database.Cache{General: cache}})
}

func TestEnqueue_WithoutCache(t *testing.T) {
	service := NewReconciliationService(database.DB{})

	err := service.Enqueue(context.Background(), PendingWrite{Op: "disconnect"})
	assert.Error(t, err)
}

func TestReplayPending_RunsRegisteredHandlers(t *testing.T) {
	service := setupReconciliationTest(t)
	ctx := context.Background()

	var seen []string
	service.Register("disconnect", func(ctx context.Context, write PendingWrite) error {
		seen = append(seen, write.Fields["clientId"])
		return nil
	})

	require.NoError(t, service.Enqueue(ctx, PendingWrite{
		Op:     "disconnect",
		Fields: map[string]string{"clientId": "client-a"},
	}))
	require.NoError(t, service.Enqueue(ctx, PendingWrite{
		Op:     "disconnect",
		Fields: map[string]string{"clientId": "client-b"},
	}))

	replayed, err := service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, replayed)
	assert.Equal(t, []string{"client-a", "client-b"}, seen)

	// Queue drained
	replayed, err = service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)
}

func TestReplayPending_RequeuesOnHandlerFailure(t *testing.T) {
	service := setupReconciliationTest(t)
	ctx := context.Background()

	calls := 0
	service.Register("disconnect", func(ctx context.Context, write PendingWrite) error {
		calls++
		if calls == 1 {
			return errors.New("store still down")
		}
		return nil
	})

	require.NoError(t, service.Enqueue(ctx, PendingWrite{
		Op:     "disconnect",
		Fields: map[string]string{"clientId": "client-a"},
	}))

	// First pass fails and keeps the write queued
	replayed, err := service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)

	// Second pass picks the requeued write back up
	replayed, err = service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	assert.Equal(t, 2, calls)
}

func TestReplayPending_DropsUnknownOps(t *testing.T) {
	service := setupReconciliationTest(t)
	ctx := context.Background()

	require.NoError(t, service.Enqueue(ctx, PendingWrite{Op: "vanished"}))

	replayed, err := service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)

	// Dropped, not requeued
	replayed, err = service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)
}
