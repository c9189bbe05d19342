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

const ACTIVE_CONNECTION_CACHE_EXPIRY = 1 * time.Hour

type ConnectionRepository interface {
	Create(ctx context.Context, connection *Connection) error
	Update(ctx context.Context, connection *Connection) error
	GetByID(ctx context.Context, id string) (*Connection, error)
	GetActiveByClientID(ctx context.Context, clientID string) (*Connection, error)
	GetCachedActiveByClientID(ctx context.Context, clientID string) (*Connection, bool, error)
	ListByClientID(ctx context.Context, clientID string) ([]Connection, error)
	ListActiveByPractitionerID(ctx context.Context, practitionerID string) ([]Connection, error)
}

type connectionRepository struct {
	db  database.DB
	log logger.Logger
}

func NewConnection(db database.DB) ConnectionRepository {
	return &connectionRepository{
		db:  db,
		log: logger.New("connectionRepository"),
	}
}

func (r *connectionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *connectionRepository) Create(ctx context.Context, connection *Connection) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(connection).Error; err != nil {
		return log.Err("failed to create connection", err,
			"clientID", connection.ClientID, "practitionerID", connection.PractitionerID)
	}

	r.mirrorActive(ctx, connection)
	return nil
}

func (r *connectionRepository) Update(ctx context.Context, connection *Connection) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(connection).Error; err != nil {
		return log.Err("failed to update connection", err, "id", connection.ID)
	}

	r.mirrorActive(ctx, connection)
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id string) (*Connection, error) {
	log := r.log.Function("GetByID")

	var connection Connection
	if err := r.getDB(ctx).First(&connection, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get connection by id", err, "id", id)
	}

	return &connection, nil
}

// GetActiveByClientID is the authoritative membership check for the
// one-active-connection rule. No connection is (nil, nil), not an error,
// and the cache is never consulted here.
func (r *connectionRepository) GetActiveByClientID(ctx context.Context, clientID string) (*Connection, error) {
	log := r.log.Function("GetActiveByClientID")

	var connection Connection
	err := r.getDB(ctx).
		Where("client_id = ? AND status = ?", clientID, ConnectionActive).
		First(&connection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, log.Err("failed to get active connection", err, "clientID", clientID)
	}

	r.mirrorActive(ctx, &connection)
	return &connection, nil
}

func (r *connectionRepository) GetCachedActiveByClientID(ctx context.Context, clientID string) (*Connection, bool, error) {
	var connection Connection
	found, err := database.NewCacheBuilder(r.db.Cache.Connection, "active:"+clientID).
		WithContext(ctx).
		Get(&connection)
	if err != nil || !found {
		return nil, false, err
	}
	return &connection, true, nil
}

func (r *connectionRepository) ListByClientID(ctx context.Context, clientID string) ([]Connection, error) {
	log := r.log.Function("ListByClientID")

	var connections []Connection
	if err := r.getDB(ctx).
		Where("client_id = ?", clientID).
		Order("created_at ASC").
		Find(&connections).Error; err != nil {
		return nil, log.Err("failed to list connections for client", err, "clientID", clientID)
	}

	return connections, nil
}

func (r *connectionRepository) ListActiveByPractitionerID(ctx context.Context, practitionerID string) ([]Connection, error) {
	log := r.log.Function("ListActiveByPractitionerID")

	var connections []Connection
	if err := r.getDB(ctx).
		Where("practitioner_id = ? AND status = ?", practitionerID, ConnectionActive).
		Order("created_at ASC").
		Find(&connections).Error; err != nil {
		return nil, log.Err("failed to list active connections for practitioner", err,
			"practitionerID", practitionerID)
	}

	return connections, nil
}

// mirrorActive keeps the per-client active pointer in the cache. An ended
// connection clears the pointer instead of overwriting it.
func (r *connectionRepository) mirrorActive(ctx context.Context, connection *Connection) {
	log := r.log.Function("mirrorActive")
	key := "active:" + connection.ClientID

	if connection.Status != ConnectionActive {
		if err := database.NewCacheBuilder(r.db.Cache.Connection, key).WithContext(ctx).Delete(); err != nil {
			log.Warn("failed to clear active connection mirror", "clientID", connection.ClientID, "error", err)
		}
		return
	}

	if err := database.NewCacheBuilder(r.db.Cache.Connection, key).
		WithStruct(connection).
		WithTTL(ACTIVE_CONNECTION_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); err != nil {
		log.Warn("failed to mirror active connection", "clientID", connection.ClientID, "error", err)
	}
}
