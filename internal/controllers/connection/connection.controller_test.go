package connectionController

import (
	"context"
	"errors"
	"path/filepath"
	"server/config"
	"server/internal/database"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db             database.DB
	accountRepo    repositories.AccountRepository
	connRepo       repositories.ConnectionRepository
	reconciliation *services.ReconciliationService
	controller     *Controller
}

func setupTest(t *testing.T) testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&Account{}, &Connection{}, &ConnectionRequest{}, &ClientInvite{}, &Application{}))

	db := database.DB{SQL: gdb}
	accountRepo := repositories.NewAccount(db)
	connRepo := repositories.NewConnection(db)
	transaction := services.NewTransactionService(db)
	controller := New(db, config.Config{}, accountRepo, connRepo, transaction, nil, nil)

	return testEnv{db: db, accountRepo: accountRepo, connRepo: connRepo, controller: controller}
}

// setupCacheTest backs the cache with a miniredis server so the degraded
// read and write paths can be exercised against real cache state.
func setupCacheTest(t *testing.T) testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&Account{}, &Connection{}, &ConnectionRequest{}, &ClientInvite{}, &Application{}))

	mr := miniredis.RunT(t)
	cache, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	db := database.DB{SQL: gdb, Cache: database.Cache{
		General:    cache,
		Account:    cache,
		Connection: cache,
	}}
	accountRepo := repositories.NewAccount(db)
	connRepo := repositories.NewConnection(db)
	transaction := services.NewTransactionService(db)
	reconciliation := services.NewReconciliationService(db)
	controller := New(db, config.Config{}, accountRepo, connRepo, transaction, nil, reconciliation)

	return testEnv{
		db:             db,
		accountRepo:    accountRepo,
		connRepo:       connRepo,
		reconciliation: reconciliation,
		controller:     controller,
	}
}

// closeStore takes the record store down mid-test so reads and writes after
// this point can only be answered by the cache.
func (e testEnv) closeStore(t *testing.T) {
	t.Helper()
	sqlDB, err := e.db.SQL.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func (e testEnv) createClient(t *testing.T, email string) *Account {
	t.Helper()
	account := &Account{Email: email, PasswordHash: "x", Role: RoleClient}
	require.NoError(t, e.accountRepo.Create(context.Background(), account))
	return account
}

func (e testEnv) createPractitioner(t *testing.T, email string) *Account {
	t.Helper()
	account := &Account{
		Email:              email,
		PasswordHash:       "x",
		Role:               RolePractitioner,
		PractitionerStatus: PractitionerApproved,
	}
	require.NoError(t, e.accountRepo.Create(context.Background(), account))
	return account
}

func TestConnect(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")

	connection, err := env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)
	require.NotNil(t, connection)
	assert.Equal(t, ConnectionActive, connection.Status)
	assert.Equal(t, client.ID, connection.ClientID)
	assert.Equal(t, practitioner.ID, connection.PractitionerID)

	// The account pointer follows the connection row
	updated, err := env.accountRepo.GetByID(ctx, client.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.ConnectedPractitionerID)
	assert.Equal(t, practitioner.ID, *updated.ConnectedPractitionerID)
}

func TestConnect_SamePractitionerStillConflicts(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")

	first, err := env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)

	// Reconnecting to the current practitioner is a conflict too; the client
	// has to disconnect first.
	_, err = env.controller.Connect(ctx, client.ID, practitioner.ID)
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	active, err := env.connRepo.GetActiveByClientID(ctx, client.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	connections, err := env.connRepo.ListByClientID(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, connections, 1)
}

func TestConnect_SecondPractitionerRejected(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	first := env.createPractitioner(t, "first@example.com")
	second := env.createPractitioner(t, "second@example.com")

	_, err := env.controller.Connect(ctx, client.ID, first.ID)
	require.NoError(t, err)

	_, err = env.controller.Connect(ctx, client.ID, second.ID)
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	// The original link is untouched
	active, err := env.connRepo.GetActiveByClientID(ctx, client.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.PractitionerID)
}

func TestConnect_ConcurrentOnlyOneWins(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioners := make([]*Account, 5)
	for i := range practitioners {
		practitioners[i] = env.createPractitioner(t, "prac"+string(rune('a'+i))+"@example.com")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for _, practitioner := range practitioners {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			_, err := env.controller.Connect(ctx, client.ID, pid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrAlreadyConnected):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(practitioner.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, conflicts)

	// Exactly one active row survives the race
	active, err := env.connRepo.GetActiveByClientID(ctx, client.ID)
	require.NoError(t, err)
	require.NotNil(t, active)

	history, err := env.connRepo.ListByClientID(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestConnect_RejectsUnapprovedPractitioner(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	pending := &Account{
		Email:              "pending@example.com",
		PasswordHash:       "x",
		Role:               RolePractitioner,
		PractitionerStatus: PractitionerPending,
	}
	require.NoError(t, env.accountRepo.Create(ctx, pending))

	_, err := env.controller.Connect(ctx, client.ID, pending.ID)
	assert.Error(t, err)
}

func TestConnect_UnknownAccounts(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	practitioner := env.createPractitioner(t, "prac@example.com")

	_, err := env.controller.Connect(ctx, "no-such-client", practitioner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	client := env.createClient(t, "client@example.com")
	_, err = env.controller.Connect(ctx, client.ID, "no-such-practitioner")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnect(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")

	_, err := env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)

	connection, err := env.controller.Disconnect(ctx, client.ID, "")
	require.NoError(t, err)
	require.NotNil(t, connection)
	assert.Equal(t, ConnectionDisconnected, connection.Status)
	assert.NotNil(t, connection.EndedAt)
	require.NotNil(t, connection.Reason)
	assert.Equal(t, ReasonClientDisconnected, *connection.Reason)

	updated, err := env.accountRepo.GetByID(ctx, client.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.ConnectedPractitionerID)

	// Client can connect again afterwards
	_, err = env.controller.Connect(ctx, client.ID, practitioner.ID)
	assert.NoError(t, err)
}

func TestDisconnect_NoActiveConnectionIsNoop(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")

	connection, err := env.controller.Disconnect(ctx, client.ID, "")
	require.NoError(t, err)
	assert.Nil(t, connection)
}

func TestIsConnected(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")

	connected, stale, err := env.controller.IsConnected(ctx, client.ID)
	require.NoError(t, err)
	assert.False(t, connected)
	assert.False(t, stale)

	_, err = env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)

	connected, stale, err = env.controller.IsConnected(ctx, client.ID)
	require.NoError(t, err)
	assert.True(t, connected)
	assert.False(t, stale)
}

func TestHistory_KeepsEndedConnections(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	first := env.createPractitioner(t, "first@example.com")
	second := env.createPractitioner(t, "second@example.com")

	_, err := env.controller.Connect(ctx, client.ID, first.ID)
	require.NoError(t, err)
	_, err = env.controller.Disconnect(ctx, client.ID, "")
	require.NoError(t, err)
	_, err = env.controller.Connect(ctx, client.ID, second.ID)
	require.NoError(t, err)

	history, err := env.controller.History(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestGetActive_ServesCacheWhenStoreDown(t *testing.T) {
	env := setupCacheTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")
	_, err := env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)

	env.closeStore(t)

	connection, stale, err := env.controller.GetActive(ctx, client.ID)
	require.NoError(t, err)
	assert.True(t, stale)
	require.NotNil(t, connection)
	assert.Equal(t, practitioner.ID, connection.PractitionerID)
}

func TestGetActive_StoreDownWithoutMirror(t *testing.T) {
	env := setupCacheTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	env.closeStore(t)

	// No mirror was ever written for this client, so the degraded read has
	// nothing to serve.
	_, _, err := env.controller.GetActive(ctx, client.ID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestListConnectedClients_ServesRosterCacheWhenStoreDown(t *testing.T) {
	env := setupCacheTest(t)
	ctx := context.Background()

	practitioner := env.createPractitioner(t, "prac@example.com")
	a := env.createClient(t, "a@example.com")
	b := env.createClient(t, "b@example.com")

	_, err := env.controller.Connect(ctx, a.ID, practitioner.ID)
	require.NoError(t, err)
	_, err = env.controller.Connect(ctx, b.ID, practitioner.ID)
	require.NoError(t, err)

	// Warm the roster mirror with one authoritative read
	clients, stale, err := env.controller.ListConnectedClients(ctx, practitioner.ID)
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, clients, 2)

	env.closeStore(t)

	clients, stale, err = env.controller.ListConnectedClients(ctx, practitioner.ID)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Len(t, clients, 2)
}

func TestDisconnect_QueuedWhenStoreDown(t *testing.T) {
	env := setupCacheTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")
	_, err := env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)

	env.closeStore(t)

	_, err = env.controller.Disconnect(ctx, client.ID, "")
	assert.ErrorIs(t, err, ErrUnconfirmed)

	// The store is still down, so the replay fails and the write stays
	// queued instead of being applied or dropped.
	replayed, err := env.reconciliation.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)
}

func TestReplayPending_AppliesQueuedDisconnect(t *testing.T) {
	env := setupCacheTest(t)
	ctx := context.Background()

	client := env.createClient(t, "client@example.com")
	practitioner := env.createPractitioner(t, "prac@example.com")
	_, err := env.controller.Connect(ctx, client.ID, practitioner.ID)
	require.NoError(t, err)

	require.NoError(t, env.reconciliation.Enqueue(ctx, services.PendingWrite{
		Op:     "disconnect",
		Fields: map[string]string{"clientId": client.ID, "reason": ReasonClientDisconnected},
	}))

	replayed, err := env.reconciliation.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	active, err := env.connRepo.GetActiveByClientID(ctx, client.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Nothing left in the queue
	replayed, err = env.reconciliation.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)
}

func TestListConnectedClients(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	practitioner := env.createPractitioner(t, "prac@example.com")
	a := env.createClient(t, "a@example.com")
	b := env.createClient(t, "b@example.com")

	_, err := env.controller.Connect(ctx, a.ID, practitioner.ID)
	require.NoError(t, err)
	_, err = env.controller.Connect(ctx, b.ID, practitioner.ID)
	require.NoError(t, err)

	clients, stale, err := env.controller.ListConnectedClients(ctx, practitioner.ID)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Len(t, clients, 2)
}
