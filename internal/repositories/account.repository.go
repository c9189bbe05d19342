package repositories

import (
	"context"
	"errors"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/services"
	"time"

	"gorm.io/gorm"
)

const (
	ACCOUNT_CACHE_EXPIRY = 1 * time.Hour
	CODE_CACHE_EXPIRY    = 24 * time.Hour
	ROSTER_CACHE_EXPIRY  = 15 * time.Minute
)

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetCachedByID(ctx context.Context, id string) (*Account, bool, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByPractitionerCode(ctx context.Context, code string) (*Account, error)
	GetCachedByPractitionerCode(ctx context.Context, code string) (*Account, bool, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
	SetConnectedPractitioner(ctx context.Context, clientID string, practitionerID *string) error
	IncrementRotationCursor(ctx context.Context, practitionerID string) error
	ListApprovedPractitioners(ctx context.Context, excludeIDs ...string) ([]*Account, error)
	ListConnectedClients(ctx context.Context, practitionerID string) ([]Account, error)
	GetCachedRoster(ctx context.Context, practitionerID string) ([]Account, bool, error)
	ListFraudExpired(ctx context.Context, now time.Time) ([]Account, error)
	CreateApplication(ctx context.Context, application *Application) error
	ListApplications(ctx context.Context, accountID string) ([]Application, error)
}

type accountRepository struct {
	db  database.DB
	log logger.Logger
}

func NewAccount(db database.DB) AccountRepository {
	return &accountRepository{
		db:  db,
		log: logger.New("accountRepository"),
	}
}

func (r *accountRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

// GetByID is an authoritative read. The mirror is refreshed on the way out
// but never consulted; degraded reads go through GetCachedByID explicitly.
func (r *accountRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	log := r.log.Function("GetByID")

	var account Account
	if err := r.getDB(ctx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get account by id", err, "id", id)
	}

	r.addAccountToCache(ctx, &account)
	return &account, nil
}

func (r *accountRepository) GetCachedByID(ctx context.Context, id string) (*Account, bool, error) {
	var account Account
	found, err := database.NewCacheBuilder(r.db.Cache.Account, id).
		WithContext(ctx).
		Get(&account)
	if err != nil || !found {
		return nil, false, err
	}
	return &account, true, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	log := r.log.Function("GetByEmail")

	var account Account
	if err := r.getDB(ctx).First(&account, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get account by email", err)
	}

	return &account, nil
}

// GetByPractitionerCode resolves a human-entered code against the record
// store. The cache copy exists only for the offline fallback path and is
// written here, never read here.
func (r *accountRepository) GetByPractitionerCode(ctx context.Context, code string) (*Account, error) {
	log := r.log.Function("GetByPractitionerCode")

	var account Account
	if err := r.getDB(ctx).First(&account, "practitioner_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get account by practitioner code", err, "code", code)
	}

	if err := database.NewCacheBuilder(r.db.Cache.Account, "code:"+code).
		WithStruct(&account).
		WithTTL(CODE_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); err != nil {
		log.Warn("failed to mirror practitioner code lookup", "code", code, "error", err)
	}

	return &account, nil
}

func (r *accountRepository) GetCachedByPractitionerCode(ctx context.Context, code string) (*Account, bool, error) {
	var account Account
	found, err := database.NewCacheBuilder(r.db.Cache.Account, "code:"+code).
		WithContext(ctx).
		Get(&account)
	if err != nil || !found {
		return nil, false, err
	}
	return &account, true, nil
}

func (r *accountRepository) Create(ctx context.Context, account *Account) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(account).Error; err != nil {
		return log.Err("failed to create account", err, "email", account.Email)
	}

	r.addAccountToCache(ctx, account)
	return nil
}

func (r *accountRepository) Update(ctx context.Context, account *Account) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(account).Error; err != nil {
		return log.Err("failed to update account", err, "id", account.ID)
	}

	r.addAccountToCache(ctx, account)
	return nil
}

// SetConnectedPractitioner writes only the link pointer, leaving the rest of
// the row alone. Pass nil to clear it.
func (r *accountRepository) SetConnectedPractitioner(ctx context.Context, clientID string, practitionerID *string) error {
	log := r.log.Function("SetConnectedPractitioner")

	result := r.getDB(ctx).Model(&Account{}).
		Where("id = ?", clientID).
		Update("connected_practitioner_id", practitionerID)
	if result.Error != nil {
		return log.Err("failed to set connected practitioner", result.Error, "clientID", clientID)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	if err := database.NewCacheBuilder(r.db.Cache.Account, clientID).Delete(); err != nil {
		log.Warn("failed to invalidate account cache", "clientID", clientID, "error", err)
	}

	return nil
}

// IncrementRotationCursor bumps the round-robin cursor in the store itself so
// concurrent selections cannot both observe the old value after commit.
func (r *accountRepository) IncrementRotationCursor(ctx context.Context, practitionerID string) error {
	log := r.log.Function("IncrementRotationCursor")

	result := r.getDB(ctx).Model(&Account{}).
		Where("id = ?", practitionerID).
		UpdateColumn("rotation_cursor", gorm.Expr("rotation_cursor + 1"))
	if result.Error != nil {
		return log.Err("failed to increment rotation cursor", result.Error, "practitionerID", practitionerID)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepository) ListApprovedPractitioners(ctx context.Context, excludeIDs ...string) ([]*Account, error) {
	log := r.log.Function("ListApprovedPractitioners")

	query := r.getDB(ctx).
		Where("role = ?", RolePractitioner).
		Where("practitioner_status = ?", PractitionerApproved)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}

	var practitioners []*Account
	if err := query.Order("rotation_cursor ASC, id ASC").Find(&practitioners).Error; err != nil {
		return nil, log.Err("failed to list approved practitioners", err)
	}

	return practitioners, nil
}

// ListConnectedClients is the canonical roster. The cached roster reconciles
// toward this result and never overrides it.
func (r *accountRepository) ListConnectedClients(ctx context.Context, practitionerID string) ([]Account, error) {
	log := r.log.Function("ListConnectedClients")

	var clients []Account
	if err := r.getDB(ctx).
		Where("connected_practitioner_id = ?", practitionerID).
		Order("created_at ASC").
		Find(&clients).Error; err != nil {
		return nil, log.Err("failed to list connected clients", err, "practitionerID", practitionerID)
	}

	if err := database.NewCacheBuilder(r.db.Cache.Connection, "roster:"+practitionerID).
		WithStruct(clients).
		WithTTL(ROSTER_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); err != nil {
		log.Warn("failed to mirror roster", "practitionerID", practitionerID, "error", err)
	}

	return clients, nil
}

func (r *accountRepository) GetCachedRoster(ctx context.Context, practitionerID string) ([]Account, bool, error) {
	var clients []Account
	found, err := database.NewCacheBuilder(r.db.Cache.Connection, "roster:"+practitionerID).
		WithContext(ctx).
		Get(&clients)
	if err != nil || !found {
		return nil, false, err
	}
	return clients, true, nil
}

func (r *accountRepository) ListFraudExpired(ctx context.Context, now time.Time) ([]Account, error) {
	log := r.log.Function("ListFraudExpired")

	var practitioners []Account
	if err := r.getDB(ctx).
		Where("role = ?", RolePractitioner).
		Where("practitioner_status = ?", PractitionerFraud).
		Where("fraud_appeal_deadline IS NOT NULL AND fraud_appeal_deadline < ?", now).
		Find(&practitioners).Error; err != nil {
		return nil, log.Err("failed to list fraud-expired practitioners", err)
	}

	return practitioners, nil
}

func (r *accountRepository) CreateApplication(ctx context.Context, application *Application) error {
	log := r.log.Function("CreateApplication")

	if err := r.getDB(ctx).Create(application).Error; err != nil {
		return log.Err("failed to create application record", err, "accountID", application.AccountID)
	}

	return nil
}

func (r *accountRepository) ListApplications(ctx context.Context, accountID string) ([]Application, error) {
	log := r.log.Function("ListApplications")

	var applications []Application
	if err := r.getDB(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&applications).Error; err != nil {
		return nil, log.Err("failed to list applications", err, "accountID", accountID)
	}

	return applications, nil
}

func (r *accountRepository) addAccountToCache(ctx context.Context, account *Account) {
	if err := database.NewCacheBuilder(r.db.Cache.Account, account.ID).
		WithStruct(account).
		WithTTL(ACCOUNT_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); err != nil {
		r.log.Function("addAccountToCache").
			Warn("failed to add account to cache", "accountID", account.ID, "error", err)
	}
}
