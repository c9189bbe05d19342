package adminController

import (
	"context"
	"server/config"
	"server/internal/controllers/reassignment"
	"server/internal/database"
	"server/internal/events"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"server/internal/utils"
	"time"

	"github.com/google/uuid"
)

// Controller covers the practitioner lifecycle: approval, suspension,
// deletion, fraud tagging and the fraud-deadline sweep. Every transition is
// recorded as an application row for the audit trail.
type Controller struct {
	DB                database.DB
	Config            config.Config
	AccountRepo       repositories.AccountRepository
	Reassignment      *reassignmentController.Controller
	Transaction       *services.TransactionService
	CacheInvalidation *services.CacheInvalidationService
	eventBus          *events.EventBus
	log               logger.Logger
}

func New(
	db database.DB,
	config config.Config,
	accountRepo repositories.AccountRepository,
	reassignment *reassignmentController.Controller,
	transaction *services.TransactionService,
	cacheInvalidation *services.CacheInvalidationService,
	eventBus *events.EventBus,
) *Controller {
	return &Controller{
		DB:                db,
		Config:            config,
		AccountRepo:       accountRepo,
		Reassignment:      reassignment,
		Transaction:       transaction,
		CacheInvalidation: cacheInvalidation,
		eventBus:          eventBus,
		log:               logger.New("adminController"),
	}
}

// Approve moves a practitioner to approved and assigns their shareable code
// if they never had one. Approving an already-approved practitioner is a
// no-op.
func (c *Controller) Approve(ctx context.Context, adminID, practitionerID string) (*Account, error) {
	log := c.log.Function("Approve")

	var practitioner *Account
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		var err error
		practitioner, err = c.getPractitioner(txCtx, practitionerID)
		if err != nil {
			return err
		}
		if practitioner.PractitionerStatus == PractitionerApproved {
			return nil
		}

		practitioner.PractitionerStatus = PractitionerApproved
		practitioner.FraudAppealDeadline = nil
		if practitioner.PractitionerCode == nil {
			code, err := utils.GeneratePractitionerCode()
			if err != nil {
				return err
			}
			practitioner.PractitionerCode = &code
		}
		if err := c.AccountRepo.Update(txCtx, practitioner); err != nil {
			return err
		}

		return c.record(txCtx, practitionerID, ApplicationApproved, adminID, nil)
	})
	if err != nil {
		return nil, log.Err("failed to approve practitioner", err, "practitionerID", practitionerID)
	}

	c.invalidate(ctx, practitionerID)
	return practitioner, nil
}

// Suspend blocks a practitioner from new matches and requests. Existing
// client links stay in place.
func (c *Controller) Suspend(ctx context.Context, adminID, practitionerID string, notes *string) (*Account, error) {
	log := c.log.Function("Suspend")

	var practitioner *Account
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		var err error
		practitioner, err = c.getPractitioner(txCtx, practitionerID)
		if err != nil {
			return err
		}

		practitioner.PractitionerStatus = PractitionerSuspended
		if err := c.AccountRepo.Update(txCtx, practitioner); err != nil {
			return err
		}

		return c.record(txCtx, practitionerID, ApplicationSuspended, adminID, notes)
	})
	if err != nil {
		return nil, log.Err("failed to suspend practitioner", err, "practitionerID", practitionerID)
	}

	c.invalidate(ctx, practitionerID)
	return practitioner, nil
}

// Delete retires a practitioner and immediately sweeps their clients to new
// practitioners. The sweep report comes back with the account so the caller
// sees who could not be moved.
func (c *Controller) Delete(ctx context.Context, adminID, practitionerID string) (*Account, reassignmentController.Report, error) {
	log := c.log.Function("Delete")

	var practitioner *Account
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		var err error
		practitioner, err = c.getPractitioner(txCtx, practitionerID)
		if err != nil {
			return err
		}

		practitioner.PractitionerStatus = PractitionerDeleted
		if err := c.AccountRepo.Update(txCtx, practitioner); err != nil {
			return err
		}

		return c.record(txCtx, practitionerID, ApplicationDeleted, adminID, nil)
	})
	if err != nil {
		return nil, reassignmentController.Report{}, log.Err("failed to delete practitioner", err,
			"practitionerID", practitionerID)
	}

	c.invalidate(ctx, practitionerID)

	// The sweep runs after the status change commits, so the matcher can no
	// longer pick this practitioner while their clients move.
	report, err := c.Reassignment.Reassign(ctx, practitionerID, ReasonPractitionerDeleted)
	if err != nil {
		return practitioner, report, log.Err("deletion sweep failed", err, "practitionerID", practitionerID)
	}

	return practitioner, report, nil
}

// TagFraud flags a practitioner and starts their appeal clock. Client links
// are untouched until the deadline passes and an admin runs the sweep.
func (c *Controller) TagFraud(ctx context.Context, adminID, practitionerID string, notes *string) (*Account, error) {
	log := c.log.Function("TagFraud")

	var practitioner *Account
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		var err error
		practitioner, err = c.getPractitioner(txCtx, practitionerID)
		if err != nil {
			return err
		}

		deadline := time.Now().AddDate(0, 0, c.Config.FraudAppealDays)
		practitioner.PractitionerStatus = PractitionerFraud
		practitioner.FraudAppealDeadline = &deadline
		if err := c.AccountRepo.Update(txCtx, practitioner); err != nil {
			return err
		}

		return c.record(txCtx, practitionerID, ApplicationFraudTagged, adminID, notes)
	})
	if err != nil {
		return nil, log.Err("failed to tag practitioner for fraud", err, "practitionerID", practitionerID)
	}

	c.invalidate(ctx, practitionerID)
	return practitioner, nil
}

// ClearFraud resolves an appeal in the practitioner's favor.
func (c *Controller) ClearFraud(ctx context.Context, adminID, practitionerID string) (*Account, error) {
	log := c.log.Function("ClearFraud")

	var practitioner *Account
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		var err error
		practitioner, err = c.getPractitioner(txCtx, practitionerID)
		if err != nil {
			return err
		}

		practitioner.PractitionerStatus = PractitionerApproved
		practitioner.FraudAppealDeadline = nil
		if err := c.AccountRepo.Update(txCtx, practitioner); err != nil {
			return err
		}

		return c.record(txCtx, practitionerID, ApplicationFraudCleared, adminID, nil)
	})
	if err != nil {
		return nil, log.Err("failed to clear fraud tag", err, "practitionerID", practitionerID)
	}

	c.invalidate(ctx, practitionerID)
	return practitioner, nil
}

// ListFraudExpired lists fraud-tagged practitioners whose appeal window has
// closed. Nothing happens to them automatically; an admin reviews this list
// and picks who goes through SweepFraudExpired.
func (c *Controller) ListFraudExpired(ctx context.Context) ([]Account, error) {
	return c.AccountRepo.ListFraudExpired(ctx, time.Now())
}

// SweepFraudExpired reassigns the clients of the selected practitioners.
// Practitioners whose deadline has not actually passed are skipped.
func (c *Controller) SweepFraudExpired(ctx context.Context, adminID string, practitionerIDs []string) (map[string]reassignmentController.Report, error) {
	log := c.log.Function("SweepFraudExpired")

	now := time.Now()
	reports := make(map[string]reassignmentController.Report, len(practitionerIDs))

	for _, practitionerID := range practitionerIDs {
		practitioner, err := c.AccountRepo.GetByID(ctx, practitionerID)
		if err != nil {
			return reports, err
		}
		if practitioner.PractitionerStatus != PractitionerFraud ||
			practitioner.FraudAppealDeadline == nil ||
			practitioner.FraudAppealDeadline.After(now) {
			log.Warn("skipping practitioner, appeal window still open",
				"practitionerID", practitionerID)
			continue
		}

		report, err := c.Reassignment.Reassign(ctx, practitionerID, ReasonFraudAppealExpired)
		if err != nil {
			return reports, err
		}
		reports[practitionerID] = report
	}

	return reports, nil
}

// ListApplications returns the workflow history for one account.
func (c *Controller) ListApplications(ctx context.Context, accountID string) ([]Application, error) {
	return c.AccountRepo.ListApplications(ctx, accountID)
}

// SendBroadcast pushes an admin announcement to every connected dashboard.
func (c *Controller) SendBroadcast(ctx context.Context, admin Account, message string) {
	log := c.log.Function("SendBroadcast")

	if c.eventBus == nil {
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      "admin",
		Channel:   "admin",
		UserID:    admin.ID,
		Data:      map[string]any{"message": message},
		Timestamp: time.Now(),
	}

	log.Info("broadcasting admin message", "adminID", admin.ID)
	if err := c.eventBus.Publish("broadcast", event); err != nil {
		log.Er("failed to publish event", err, "event", event)
		return
	}
}

func (c *Controller) getPractitioner(ctx context.Context, practitionerID string) (*Account, error) {
	practitioner, err := c.AccountRepo.GetByID(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	if !practitioner.IsPractitioner() {
		return nil, ErrNotFound
	}
	return practitioner, nil
}

func (c *Controller) record(ctx context.Context, accountID, action, actorID string, notes *string) error {
	return c.AccountRepo.CreateApplication(ctx, &Application{
		AccountID: accountID,
		Action:    action,
		ActorID:   &actorID,
		Notes:     notes,
	})
}

func (c *Controller) invalidate(ctx context.Context, accountID string) {
	if c.CacheInvalidation == nil {
		return
	}
	if err := c.CacheInvalidation.InvalidateAccount(ctx, accountID); err != nil {
		c.log.Function("invalidate").Warn("cache invalidation failed", "accountID", accountID, "error", err)
	}
}
