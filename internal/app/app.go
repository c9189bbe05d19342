package app

import (
	"server/config"
	"server/internal/database"
	"server/internal/events"
	"server/internal/handlers/middleware"
	"server/internal/logger"
	"server/internal/repositories"
	"server/internal/services"
	"server/internal/websockets"

	adminController "server/internal/controllers/admin"
	authController "server/internal/controllers/auth"
	connectionController "server/internal/controllers/connection"
	intakeController "server/internal/controllers/intake"
	matchingController "server/internal/controllers/matching"
	reassignmentController "server/internal/controllers/reassignment"
)

type App struct {
	Database   database.DB
	Middleware middleware.Middleware
	Websocket  *websockets.Manager
	EventBus   *events.EventBus
	Config     config.Config

	// Services
	TransactionService *services.TransactionService
	CacheInvalidation  *services.CacheInvalidationService
	Reconciliation     *services.ReconciliationService

	// Repositories
	AccountRepo repositories.AccountRepository
	ConnRepo    repositories.ConnectionRepository
	RequestRepo repositories.ConnectionRequestRepository
	InviteRepo  repositories.ClientInviteRepository

	// Controllers
	AuthController         *authController.Controller
	MatchingController     *matchingController.Controller
	ConnectionController   *connectionController.Controller
	ReassignmentController *reassignmentController.Controller
	IntakeController       *intakeController.Controller
	AdminController        *adminController.Controller
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.InitConfig()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	eventBus := events.New(db.Cache.Events, config)

	// Initialize services
	transactionService := services.NewTransactionService(db)
	cacheInvalidation := services.NewCacheInvalidationService(db, eventBus)
	reconciliation := services.NewReconciliationService(db)

	// Initialize repositories
	accountRepo := repositories.NewAccount(db)
	connRepo := repositories.NewConnection(db)
	requestRepo := repositories.NewConnectionRequest(db)
	inviteRepo := repositories.NewClientInvite(db)

	// Initialize controllers with repositories and services
	auth := authController.New(db, config, accountRepo)
	matching := matchingController.New(db, config, accountRepo, transactionService)
	connection := connectionController.New(db, config, accountRepo, connRepo,
		transactionService, cacheInvalidation, reconciliation)
	reassignment := reassignmentController.New(db, config, accountRepo, connRepo,
		requestRepo, matching, transactionService, cacheInvalidation)
	intake := intakeController.New(db, config, accountRepo, requestRepo, inviteRepo,
		connection, matching, transactionService)
	admin := adminController.New(db, config, accountRepo, reassignment,
		transactionService, cacheInvalidation, eventBus)

	middleware := middleware.New(db, eventBus, config, auth)
	websocket := websockets.New(db, eventBus, config)
	eventBus.Listen("accounts", "connections", "broadcast")

	app := &App{
		Database:               db,
		Config:                 config,
		Middleware:             middleware,
		TransactionService:     transactionService,
		CacheInvalidation:      cacheInvalidation,
		Reconciliation:         reconciliation,
		AccountRepo:            accountRepo,
		ConnRepo:               connRepo,
		RequestRepo:            requestRepo,
		InviteRepo:             inviteRepo,
		AuthController:         auth,
		MatchingController:     matching,
		ConnectionController:   connection,
		ReassignmentController: reassignment,
		IntakeController:       intake,
		AdminController:        admin,
		Websocket:              websocket,
		EventBus:               eventBus,
	}

	if err := app.validate(); err != nil {
		return &App{}, log.Err("failed to validate app", err)
	}

	return app, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")
	if a.Database.SQL == nil {
		return log.ErrMsg("database is nil")
	}

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	nilChecks := []any{
		a.Websocket,
		a.EventBus,
		a.TransactionService,
		a.CacheInvalidation,
		a.Reconciliation,
		a.AuthController,
		a.MatchingController,
		a.ConnectionController,
		a.ReassignmentController,
		a.IntakeController,
		a.AdminController,
		a.AccountRepo,
		a.ConnRepo,
		a.RequestRepo,
		a.InviteRepo,
	}

	for _, check := range nilChecks {
		if check == nil {
			return log.ErrMsg("nil check failed")
		}
	}

	return nil
}

func (a *App) Close() (err error) {
	if a.Reconciliation != nil {
		a.Reconciliation.Close()
	}

	if a.EventBus != nil {
		if closeErr := a.EventBus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
