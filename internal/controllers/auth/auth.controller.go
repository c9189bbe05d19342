package authController

import (
	"context"
	"errors"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type session struct {
	AccountID string    `json:"accountId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Controller struct {
	DB          database.DB
	Config      config.Config
	AccountRepo repositories.AccountRepository
	log         logger.Logger
}

func New(db database.DB, config config.Config, accountRepo repositories.AccountRepository) *Controller {
	return &Controller{
		DB:          db,
		Config:      config,
		AccountRepo: accountRepo,
		log:         logger.New("authController"),
	}
}

// Register creates an account. Practitioners start in pending status with a
// submitted application row; an admin approves them before they can match.
func (c *Controller) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	log := c.log.Function("Register")

	if req.Email == "" || req.Password == "" {
		return nil, log.Error("email and password are required")
	}
	if req.Role != RoleClient && req.Role != RolePractitioner {
		return nil, log.Error("invalid role", "role", req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, log.Err("failed to hash password", err)
	}

	account := &Account{
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Role:         req.Role,
	}
	if req.Role == RolePractitioner {
		account.PractitionerStatus = PractitionerPending
		account.Specializations = req.Specializations
	}

	if err := c.AccountRepo.Create(ctx, account); err != nil {
		return nil, err
	}

	if req.Role == RolePractitioner {
		if err := c.AccountRepo.CreateApplication(ctx, &Application{
			AccountID: account.ID,
			Action:    ApplicationSubmitted,
		}); err != nil {
			log.Warn("failed to record application submission", "accountID", account.ID, "error", err)
		}
	}

	log.Info("account registered", "accountID", account.ID, "role", account.Role)
	return account, nil
}

// Login checks credentials and opens a cache-backed session. Bad email and
// bad password are indistinguishable to the caller.
func (c *Controller) Login(ctx context.Context, req LoginRequest) (*Account, string, error) {
	log := c.log.Function("Login")

	account, err := c.AccountRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", log.Err("failed to load account for login", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	expiry := time.Duration(c.Config.SessionExpiryMinutes) * time.Minute
	if err := database.NewCacheBuilder(c.DB.Cache.Session, sessionID).
		WithStruct(session{AccountID: account.ID, CreatedAt: time.Now()}).
		WithTTL(expiry).
		WithContext(ctx).
		Set(); err != nil {
		return nil, "", log.Err("failed to store session", err)
	}

	log.Info("login", "accountID", account.ID)
	return account, sessionID, nil
}

// GetSession resolves a session ID to its account. Used by the auth
// middleware on every request.
func (c *Controller) GetSession(ctx context.Context, sessionID string) (*Account, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}

	var s session
	found, err := database.NewCacheBuilder(c.DB.Cache.Session, sessionID).
		WithContext(ctx).
		Get(&s)
	if err != nil || !found {
		return nil, ErrNotFound
	}

	return c.AccountRepo.GetByID(ctx, s.AccountID)
}

func (c *Controller) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return database.NewCacheBuilder(c.DB.Cache.Session, sessionID).
		WithContext(ctx).
		Delete()
}
