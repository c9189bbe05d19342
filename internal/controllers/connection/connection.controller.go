package connectionController

import (
	"context"
	"errors"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"time"
)

// Controller owns the client-practitioner link. Every mutation runs against
// the record store inside a transaction; the cache only ever mirrors what the
// store confirmed.
type Controller struct {
	DB                database.DB
	Config            config.Config
	AccountRepo       repositories.AccountRepository
	ConnectionRepo    repositories.ConnectionRepository
	Transaction       *services.TransactionService
	CacheInvalidation *services.CacheInvalidationService
	Reconciliation    *services.ReconciliationService
	log               logger.Logger
}

func New(
	db database.DB,
	config config.Config,
	accountRepo repositories.AccountRepository,
	connectionRepo repositories.ConnectionRepository,
	transaction *services.TransactionService,
	cacheInvalidation *services.CacheInvalidationService,
	reconciliation *services.ReconciliationService,
) *Controller {
	controller := &Controller{
		DB:                db,
		Config:            config,
		AccountRepo:       accountRepo,
		ConnectionRepo:    connectionRepo,
		Transaction:       transaction,
		CacheInvalidation: cacheInvalidation,
		Reconciliation:    reconciliation,
		log:               logger.New("connectionController"),
	}

	if reconciliation != nil {
		reconciliation.Register("disconnect", controller.replayDisconnect)
	}

	return controller
}

// Connect links a client to a practitioner. Any existing active link fails
// with ErrAlreadyConnected, whether it points at the same practitioner or a
// different one; the client must disconnect first. The check and the insert
// share one transaction, and a partial unique index on the store backs the
// rule against writers that race past the check.
func (c *Controller) Connect(ctx context.Context, clientID, practitionerID string) (*Connection, error) {
	log := c.log.Function("Connect")

	var connection *Connection
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		client, err := c.AccountRepo.GetByID(txCtx, clientID)
		if err != nil {
			return err
		}
		if client.Role != RoleClient {
			return log.Error("account is not a client", "accountID", clientID, "role", client.Role)
		}

		practitioner, err := c.AccountRepo.GetByID(txCtx, practitionerID)
		if err != nil {
			return err
		}
		if !practitioner.IsApprovedPractitioner() {
			return log.Error("practitioner is not approved",
				"practitionerID", practitionerID, "status", practitioner.PractitionerStatus)
		}

		existing, err := c.ConnectionRepo.GetActiveByClientID(txCtx, clientID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyConnected
		}

		connection = &Connection{
			ClientID:       clientID,
			PractitionerID: practitionerID,
			Status:         ConnectionActive,
		}
		if err := c.ConnectionRepo.Create(txCtx, connection); err != nil {
			return err
		}

		return c.AccountRepo.SetConnectedPractitioner(txCtx, clientID, &practitionerID)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyConnected) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, log.Err("failed to connect client", err,
			"clientID", clientID, "practitionerID", practitionerID)
	}

	c.invalidate(ctx, clientID, practitionerID)
	return connection, nil
}

// Disconnect ends the client's active connection. No active connection is a
// no-op, not an error, so retries are safe. When the record store is down
// the intent is queued and the caller gets ErrUnconfirmed.
func (c *Controller) Disconnect(ctx context.Context, clientID, reason string) (*Connection, error) {
	log := c.log.Function("Disconnect")

	if reason == "" {
		reason = ReasonClientDisconnected
	}

	connection, err := c.disconnect(ctx, clientID, reason)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if c.Reconciliation != nil {
			if qErr := c.Reconciliation.Enqueue(ctx, services.PendingWrite{
				Op:     "disconnect",
				Fields: map[string]string{"clientId": clientID, "reason": reason},
			}); qErr == nil {
				log.Warn("store write failed, disconnect queued for reconciliation",
					"clientID", clientID, "error", err)
				return nil, ErrUnconfirmed
			}
		}
		return nil, log.Err("failed to disconnect client", err, "clientID", clientID)
	}

	if connection != nil {
		c.invalidate(ctx, clientID, connection.PractitionerID)
	}
	return connection, nil
}

// disconnect is the store write shared by Disconnect and the reconciliation
// replay. It never queues; queueing a failed replay again would duplicate
// the pending write.
func (c *Controller) disconnect(ctx context.Context, clientID, reason string) (*Connection, error) {
	var connection *Connection
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		existing, err := c.ConnectionRepo.GetActiveByClientID(txCtx, clientID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}

		now := time.Now()
		existing.Status = ConnectionDisconnected
		existing.EndedAt = &now
		existing.Reason = &reason
		if err := c.ConnectionRepo.Update(txCtx, existing); err != nil {
			return err
		}

		connection = existing
		return c.AccountRepo.SetConnectedPractitioner(txCtx, clientID, nil)
	})
	if err != nil {
		return nil, err
	}
	return connection, nil
}

// GetActive returns the client's active connection, nil when none. When the
// record store cannot answer it falls back to the cache mirror and reports
// the result as stale.
func (c *Controller) GetActive(ctx context.Context, clientID string) (*Connection, bool, error) {
	log := c.log.Function("GetActive")

	connection, err := c.ConnectionRepo.GetActiveByClientID(ctx, clientID)
	if err == nil {
		return connection, false, nil
	}

	log.Warn("record store read failed, trying cache", "clientID", clientID, "error", err)
	cached, found, cacheErr := c.ConnectionRepo.GetCachedActiveByClientID(ctx, clientID)
	if cacheErr != nil || !found {
		return nil, false, ErrStoreUnavailable
	}
	return cached, true, nil
}

// IsConnected is the membership probe the rest of the app uses. The stale
// flag is true when the answer came from the cache mirror.
func (c *Controller) IsConnected(ctx context.Context, clientID string) (bool, bool, error) {
	connection, stale, err := c.GetActive(ctx, clientID)
	if err != nil {
		return false, false, err
	}
	return connection != nil, stale, nil
}

// ListConnectedClients returns a practitioner's roster, cache-fallback like
// GetActive.
func (c *Controller) ListConnectedClients(ctx context.Context, practitionerID string) ([]Account, bool, error) {
	log := c.log.Function("ListConnectedClients")

	clients, err := c.AccountRepo.ListConnectedClients(ctx, practitionerID)
	if err == nil {
		return clients, false, nil
	}

	log.Warn("record store read failed, trying roster cache", "practitionerID", practitionerID, "error", err)
	cached, found, cacheErr := c.AccountRepo.GetCachedRoster(ctx, practitionerID)
	if cacheErr != nil || !found {
		return nil, false, ErrStoreUnavailable
	}
	return cached, true, nil
}

// History returns every connection the client ever had, newest state last.
func (c *Controller) History(ctx context.Context, clientID string) ([]Connection, error) {
	return c.ConnectionRepo.ListByClientID(ctx, clientID)
}

func (c *Controller) replayDisconnect(ctx context.Context, write services.PendingWrite) error {
	clientID := write.Fields["clientId"]
	reason := write.Fields["reason"]
	if clientID == "" {
		return nil
	}

	connection, err := c.disconnect(ctx, clientID, reason)
	if err != nil {
		return err
	}
	if connection != nil {
		c.invalidate(ctx, clientID, connection.PractitionerID)
	}
	return nil
}

func (c *Controller) invalidate(ctx context.Context, clientID string, practitionerIDs ...string) {
	if c.CacheInvalidation == nil {
		return
	}
	if err := c.CacheInvalidation.InvalidateConnections(ctx, clientID, practitionerIDs...); err != nil {
		c.log.Function("invalidate").Warn("cache invalidation failed", "clientID", clientID, "error", err)
	}
}
