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

type ClientInviteRepository interface {
	Create(ctx context.Context, invite *ClientInvite) error
	Update(ctx context.Context, invite *ClientInvite) error
	GetByID(ctx context.Context, id string) (*ClientInvite, error)
	ListPendingByContact(ctx context.Context, contact string) ([]ClientInvite, error)
	ListByPractitioner(ctx context.Context, practitionerID string) ([]ClientInvite, error)
	ConsumePending(ctx context.Context, id string) (bool, error)
	MarkExpired(ctx context.Context, id string) error
}

type clientInviteRepository struct {
	db  database.DB
	log logger.Logger
}

func NewClientInvite(db database.DB) ClientInviteRepository {
	return &clientInviteRepository{
		db:  db,
		log: logger.New("clientInviteRepository"),
	}
}

func (r *clientInviteRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *clientInviteRepository) Create(ctx context.Context, invite *ClientInvite) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(invite).Error; err != nil {
		return log.Err("failed to create client invite", err, "practitionerID", invite.PractitionerID)
	}

	return nil
}

func (r *clientInviteRepository) Update(ctx context.Context, invite *ClientInvite) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(invite).Error; err != nil {
		return log.Err("failed to update client invite", err, "id", invite.ID)
	}

	return nil
}

func (r *clientInviteRepository) GetByID(ctx context.Context, id string) (*ClientInvite, error) {
	log := r.log.Function("GetByID")

	var invite ClientInvite
	if err := r.getDB(ctx).First(&invite, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get client invite", err, "id", id)
	}

	return &invite, nil
}

// ListPendingByContact returns every pending invite addressed to a contact.
// Verification compares the submitted code against each row's hash, so the
// lookup never needs the plaintext code.
func (r *clientInviteRepository) ListPendingByContact(ctx context.Context, contact string) ([]ClientInvite, error) {
	log := r.log.Function("ListPendingByContact")

	var invites []ClientInvite
	if err := r.getDB(ctx).
		Where("client_contact = ? AND status = ?", contact, InvitePending).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, log.Err("failed to list pending invites", err, "contact", contact)
	}

	return invites, nil
}

func (r *clientInviteRepository) ListByPractitioner(ctx context.Context, practitionerID string) ([]ClientInvite, error) {
	log := r.log.Function("ListByPractitioner")

	var invites []ClientInvite
	if err := r.getDB(ctx).
		Where("practitioner_id = ?", practitionerID).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, log.Err("failed to list invites for practitioner", err, "practitionerID", practitionerID)
	}

	return invites, nil
}

// ConsumePending flips a pending invite to accepted with a conditional
// update, so two concurrent verifications cannot both consume it. Returns
// false when the invite was already consumed or expired.
func (r *clientInviteRepository) ConsumePending(ctx context.Context, id string) (bool, error) {
	log := r.log.Function("ConsumePending")

	result := r.getDB(ctx).Model(&ClientInvite{}).
		Where("id = ? AND status = ?", id, InvitePending).
		Updates(map[string]any{
			"status":      InviteAccepted,
			"accepted_at": time.Now(),
		})
	if result.Error != nil {
		return false, log.Err("failed to consume invite", result.Error, "id", id)
	}

	return result.RowsAffected > 0, nil
}

func (r *clientInviteRepository) MarkExpired(ctx context.Context, id string) error {
	log := r.log.Function("MarkExpired")

	if err := r.getDB(ctx).Model(&ClientInvite{}).
		Where("id = ?", id).
		Update("status", InviteExpired).Error; err != nil {
		return log.Err("failed to mark invite expired", err, "id", id)
	}

	return nil
}
