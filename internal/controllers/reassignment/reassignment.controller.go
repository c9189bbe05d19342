package reassignmentController

import (
	"context"
	"errors"
	"server/config"
	"server/internal/controllers/matching"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"sync"
	"time"
)

const reassignWorkers = 4

// Result is the outcome for one client in a sweep.
type Result struct {
	ClientID          string `json:"clientId"`
	NewPractitionerID string `json:"newPractitionerId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Report summarizes a sweep. A sweep that moved some clients and failed
// others returns both lists and no error; callers retry the Failed half.
type Report struct {
	PractitionerID string   `json:"practitionerId"`
	Reason         string   `json:"reason"`
	Succeeded      []Result `json:"succeeded"`
	Failed         []Result `json:"failed"`
}

// Controller moves a departing practitioner's clients to new practitioners.
// Each client moves in its own transaction, so one bad row never wedges the
// rest of the roster.
type Controller struct {
	DB                database.DB
	Config            config.Config
	AccountRepo       repositories.AccountRepository
	ConnectionRepo    repositories.ConnectionRepository
	RequestRepo       repositories.ConnectionRequestRepository
	Matching          *matchingController.Controller
	Transaction       *services.TransactionService
	CacheInvalidation *services.CacheInvalidationService
	log               logger.Logger
}

func New(
	db database.DB,
	config config.Config,
	accountRepo repositories.AccountRepository,
	connectionRepo repositories.ConnectionRepository,
	requestRepo repositories.ConnectionRequestRepository,
	matching *matchingController.Controller,
	transaction *services.TransactionService,
	cacheInvalidation *services.CacheInvalidationService,
) *Controller {
	return &Controller{
		DB:                db,
		Config:            config,
		AccountRepo:       accountRepo,
		ConnectionRepo:    connectionRepo,
		RequestRepo:       requestRepo,
		Matching:          matching,
		Transaction:       transaction,
		CacheInvalidation: cacheInvalidation,
		log:               logger.New("reassignmentController"),
	}
}

// Reassign sweeps every active client of the practitioner to a replacement.
// A client with no eligible replacement keeps their current link and lands
// in Failed so an admin can rerun the sweep later.
func (c *Controller) Reassign(ctx context.Context, practitionerID, reason string) (Report, error) {
	log := c.log.Function("Reassign")
	report := Report{PractitionerID: practitionerID, Reason: reason}

	connections, err := c.ConnectionRepo.ListActiveByPractitionerID(ctx, practitionerID)
	if err != nil {
		return report, log.Err("failed to list roster for reassignment", err, "practitionerID", practitionerID)
	}
	if len(connections) == 0 {
		return report, nil
	}

	log.Info("starting reassignment sweep",
		"practitionerID", practitionerID, "reason", reason, "clients", len(connections))

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		work = make(chan Connection)
	)

	for range reassignWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for connection := range work {
				result := c.reassignOne(ctx, connection, reason)
				mu.Lock()
				if result.Error == "" {
					report.Succeeded = append(report.Succeeded, result)
				} else {
					report.Failed = append(report.Failed, result)
				}
				mu.Unlock()
			}
		}()
	}

	for _, connection := range connections {
		work <- connection
	}
	close(work)
	wg.Wait()

	log.Info("reassignment sweep finished",
		"practitionerID", practitionerID,
		"succeeded", len(report.Succeeded), "failed", len(report.Failed))

	return report, nil
}

// reassignOne moves a single client. Match selection, ending the old link
// and opening the new one commit together or not at all.
func (c *Controller) reassignOne(ctx context.Context, old Connection, reason string) Result {
	log := c.log.Function("reassignOne")
	result := Result{ClientID: old.ClientID}

	needed, err := c.neededSpecializations(ctx, old.ClientID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	err = c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		replacement, err := c.Matching.FindMatch(txCtx, needed, old.PractitionerID)
		if err != nil {
			return err
		}
		if replacement == nil {
			return ErrNotFound
		}

		now := time.Now()
		old.Status = ConnectionReassigned
		old.EndedAt = &now
		old.Reason = &reason
		if err := c.ConnectionRepo.Update(txCtx, &old); err != nil {
			return err
		}

		previous := old.PractitionerID
		next := &Connection{
			ClientID:               old.ClientID,
			PractitionerID:         replacement.ID,
			Status:                 ConnectionActive,
			PreviousPractitionerID: &previous,
			Reason:                 &reason,
		}
		if err := c.ConnectionRepo.Create(txCtx, next); err != nil {
			return err
		}

		if err := c.AccountRepo.SetConnectedPractitioner(txCtx, old.ClientID, &replacement.ID); err != nil {
			return err
		}

		result.NewPractitionerID = replacement.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			result.Error = "no eligible practitioner"
			log.Warn("client left in place, no replacement found", "clientID", old.ClientID)
		} else {
			result.Error = err.Error()
			log.Er("failed to reassign client", err, "clientID", old.ClientID)
		}
		return result
	}

	if c.CacheInvalidation != nil {
		if err := c.CacheInvalidation.InvalidateConnections(ctx, old.ClientID,
			old.PractitionerID, result.NewPractitionerID); err != nil {
			log.Warn("cache invalidation failed", "clientID", old.ClientID, "error", err)
		}
	}

	return result
}

// neededSpecializations recovers what the client originally asked for, so a
// reassignment respects the same matching constraints. Clients who arrived
// by code or invite have no constraints.
func (c *Controller) neededSpecializations(ctx context.Context, clientID string) ([]string, error) {
	requests, err := c.RequestRepo.ListByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, request := range requests {
		if request.Source == RequestSourceMatch {
			return request.NeededSpecializations, nil
		}
	}
	return nil, nil
}
