package repositories

import (
	"context"
	"errors"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/services"

	"gorm.io/gorm"
)

type ConnectionRequestRepository interface {
	Create(ctx context.Context, request *ConnectionRequest) error
	Update(ctx context.Context, request *ConnectionRequest) error
	GetByID(ctx context.Context, id string) (*ConnectionRequest, error)
	GetPendingByClientAndPractitioner(ctx context.Context, clientID, practitionerID string) (*ConnectionRequest, error)
	ListPendingByPractitioner(ctx context.Context, practitionerID string) ([]ConnectionRequest, error)
	ListByClientID(ctx context.Context, clientID string) ([]ConnectionRequest, error)
}

type connectionRequestRepository struct {
	db  database.DB
	log logger.Logger
}

func NewConnectionRequest(db database.DB) ConnectionRequestRepository {
	return &connectionRequestRepository{
		db:  db,
		log: logger.New("connectionRequestRepository"),
	}
}

func (r *connectionRequestRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *connectionRequestRepository) Create(ctx context.Context, request *ConnectionRequest) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(request).Error; err != nil {
		return log.Err("failed to create connection request", err, "clientID", request.ClientID)
	}

	return nil
}

func (r *connectionRequestRepository) Update(ctx context.Context, request *ConnectionRequest) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(request).Error; err != nil {
		return log.Err("failed to update connection request", err, "id", request.ID)
	}

	return nil
}

func (r *connectionRequestRepository) GetByID(ctx context.Context, id string) (*ConnectionRequest, error) {
	log := r.log.Function("GetByID")

	var request ConnectionRequest
	if err := r.getDB(ctx).First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get connection request", err, "id", id)
	}

	return &request, nil
}

// GetPendingByClientAndPractitioner backs the duplicate-request guard.
// Returns (nil, nil) when no pending request exists for the pair.
func (r *connectionRequestRepository) GetPendingByClientAndPractitioner(
	ctx context.Context,
	clientID, practitionerID string,
) (*ConnectionRequest, error) {
	log := r.log.Function("GetPendingByClientAndPractitioner")

	var request ConnectionRequest
	err := r.getDB(ctx).
		Where("client_id = ? AND practitioner_id = ? AND status = ?",
			clientID, practitionerID, RequestPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, log.Err("failed to get pending request", err,
			"clientID", clientID, "practitionerID", practitionerID)
	}

	return &request, nil
}

func (r *connectionRequestRepository) ListPendingByPractitioner(ctx context.Context, practitionerID string) ([]ConnectionRequest, error) {
	log := r.log.Function("ListPendingByPractitioner")

	var requests []ConnectionRequest
	if err := r.getDB(ctx).
		Where("practitioner_id = ? AND status = ?", practitionerID, RequestPending).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, log.Err("failed to list pending requests", err, "practitionerID", practitionerID)
	}

	return requests, nil
}

func (r *connectionRequestRepository) ListByClientID(ctx context.Context, clientID string) ([]ConnectionRequest, error) {
	log := r.log.Function("ListByClientID")

	var requests []ConnectionRequest
	if err := r.getDB(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&requests).Error; err != nil {
		return nil, log.Err("failed to list requests for client", err, "clientID", clientID)
	}

	return requests, nil
}
