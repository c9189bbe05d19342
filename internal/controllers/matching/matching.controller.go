package matchingController

import (
	"context"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
)

// Controller picks practitioners for clients. Selection is round-robin over
// approved practitioners: the lowest rotation cursor wins, ties break on ID,
// and the winner's cursor is bumped inside the same transaction so the next
// match goes elsewhere.
type Controller struct {
	DB          database.DB
	Config      config.Config
	AccountRepo repositories.AccountRepository
	Transaction *services.TransactionService
	log         logger.Logger
}

func New(
	db database.DB,
	config config.Config,
	accountRepo repositories.AccountRepository,
	transaction *services.TransactionService,
) *Controller {
	return &Controller{
		DB:          db,
		Config:      config,
		AccountRepo: accountRepo,
		Transaction: transaction,
		log:         logger.New("matchingController"),
	}
}

// FindMatch returns the next practitioner for the requested specializations,
// or nil when nobody qualifies. Practitioners in excludeIDs never come back,
// no matter how low their cursor sits.
func (c *Controller) FindMatch(ctx context.Context, needed []string, excludeIDs ...string) (*Account, error) {
	log := c.log.Function("FindMatch")

	var match *Account
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		practitioners, err := c.AccountRepo.ListApprovedPractitioners(txCtx, excludeIDs...)
		if err != nil {
			return err
		}

		for _, practitioner := range practitioners {
			if !practitioner.MatchesSpecializations(needed) {
				continue
			}
			match = practitioner
			break
		}

		if match == nil {
			return nil
		}

		return c.AccountRepo.IncrementRotationCursor(txCtx, match.ID)
	})
	if err != nil {
		return nil, log.Err("failed to find match", err)
	}

	if match == nil {
		log.Info("no eligible practitioner", "needed", needed)
		return nil, nil
	}

	log.Info("matched practitioner", "practitionerID", match.ID, "needed", needed)
	return match, nil
}
