package matchingController

import (
	"context"
	"path/filepath"
	"server/config"
	"server/internal/database"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (database.DB, repositories.AccountRepository, *Controller) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&Account{}, &Connection{}, &ConnectionRequest{}, &ClientInvite{}, &Application{}))

	db := database.DB{SQL: gdb}
	accountRepo := repositories.NewAccount(db)
	transaction := services.NewTransactionService(db)
	controller := New(db, config.Config{}, accountRepo, transaction)

	return db, accountRepo, controller
}

func createPractitioner(t *testing.T, repo repositories.AccountRepository, email, status string, cursor int64, specs ...string) *Account {
	t.Helper()

	account := &Account{
		Email:              email,
		PasswordHash:       "x",
		Role:               RolePractitioner,
		PractitionerStatus: status,
		RotationCursor:     cursor,
		Specializations:    specs,
	}
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

func TestFindMatch_RoundRobinFairness(t *testing.T) {
	_, repo, controller := setupTest(t)
	ctx := context.Background()

	p1 := createPractitioner(t, repo, "p1@example.com", PractitionerApproved, 0)
	p2 := createPractitioner(t, repo, "p2@example.com", PractitionerApproved, 0)
	p3 := createPractitioner(t, repo, "p3@example.com", PractitionerApproved, 0)

	seen := map[string]int{}
	for range 3 {
		match, err := controller.FindMatch(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, match)
		seen[match.ID]++
	}

	// Three matches over three equal practitioners touch each one exactly once
	assert.Equal(t, 1, seen[p1.ID])
	assert.Equal(t, 1, seen[p2.ID])
	assert.Equal(t, 1, seen[p3.ID])

	for _, id := range []string{p1.ID, p2.ID, p3.ID} {
		account, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), account.RotationCursor)
	}
}

func TestFindMatch_LowestCursorWins(t *testing.T) {
	_, repo, controller := setupTest(t)
	ctx := context.Background()

	createPractitioner(t, repo, "busy@example.com", PractitionerApproved, 3)
	idle := createPractitioner(t, repo, "idle@example.com", PractitionerApproved, 1)

	match, err := controller.FindMatch(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, idle.ID, match.ID)

	updated, err := repo.GetByID(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.RotationCursor)
}

func TestFindMatch_SpecializationFilter(t *testing.T) {
	tests := []struct {
		name        string
		needed      []string
		expectMatch bool
	}{
		{name: "matching tag", needed: []string{"vat"}, expectMatch: true},
		{name: "one of several tags", needed: []string{"payroll", "vat"}, expectMatch: true},
		{name: "no overlap", needed: []string{"estate_planning"}, expectMatch: false},
		{name: "empty request matches anyone", needed: nil, expectMatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, repo, controller := setupTest(t)
			createPractitioner(t, repo, "vat@example.com", PractitionerApproved, 0, "vat", "small_business")

			match, err := controller.FindMatch(context.Background(), tt.needed)
			require.NoError(t, err)
			if tt.expectMatch {
				assert.NotNil(t, match)
			} else {
				assert.Nil(t, match)
			}
		})
	}
}

func TestFindMatch_RespectsExclusions(t *testing.T) {
	_, repo, controller := setupTest(t)
	ctx := context.Background()

	excluded := createPractitioner(t, repo, "first@example.com", PractitionerApproved, 0)
	second := createPractitioner(t, repo, "second@example.com", PractitionerApproved, 5)

	match, err := controller.FindMatch(ctx, nil, excluded.ID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, second.ID, match.ID)
}

func TestFindMatch_SkipsNonApproved(t *testing.T) {
	_, repo, controller := setupTest(t)
	ctx := context.Background()

	createPractitioner(t, repo, "pending@example.com", PractitionerPending, 0)
	createPractitioner(t, repo, "suspended@example.com", PractitionerSuspended, 0)
	createPractitioner(t, repo, "fraud@example.com", PractitionerFraud, 0)

	match, err := controller.FindMatch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindMatch_NoPractitionersAtAll(t *testing.T) {
	_, _, controller := setupTest(t)

	match, err := controller.FindMatch(context.Background(), []string{"vat"})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindMatch_CursorNotBumpedWithoutMatch(t *testing.T) {
	_, repo, controller := setupTest(t)
	ctx := context.Background()

	p := createPractitioner(t, repo, "p@example.com", PractitionerApproved, 0, "vat")

	match, err := controller.FindMatch(ctx, []string{"estate_planning"})
	require.NoError(t, err)
	require.Nil(t, match)

	account, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.RotationCursor)
}
