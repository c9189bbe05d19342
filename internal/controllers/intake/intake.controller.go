package intakeController

import (
	"context"
	"errors"
	"server/config"
	"server/internal/controllers/connection"
	"server/internal/controllers/matching"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"server/internal/utils"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Controller handles the three ways a client reaches a practitioner: looking
// up a shared practitioner code, redeeming a practitioner-issued invite, and
// the matching questionnaire.
type Controller struct {
	DB          database.DB
	Config      config.Config
	AccountRepo repositories.AccountRepository
	RequestRepo repositories.ConnectionRequestRepository
	InviteRepo  repositories.ClientInviteRepository
	Connection  *connectionController.Controller
	Matching    *matchingController.Controller
	Transaction *services.TransactionService
	log         logger.Logger
}

func New(
	db database.DB,
	config config.Config,
	accountRepo repositories.AccountRepository,
	requestRepo repositories.ConnectionRequestRepository,
	inviteRepo repositories.ClientInviteRepository,
	connection *connectionController.Controller,
	matching *matchingController.Controller,
	transaction *services.TransactionService,
) *Controller {
	return &Controller{
		DB:          db,
		Config:      config,
		AccountRepo: accountRepo,
		RequestRepo: requestRepo,
		InviteRepo:  inviteRepo,
		Connection:  connection,
		Matching:    matching,
		Transaction: transaction,
		log:         logger.New("intakeController"),
	}
}

// LookupPractitionerCode resolves a shared code to the practitioner profile.
// When the record store is down the cached copy answers instead, flagged
// stale so the UI can say so.
func (c *Controller) LookupPractitionerCode(ctx context.Context, code string) (*Account, bool, error) {
	log := c.log.Function("LookupPractitionerCode")
	code = utils.NormalizeCode(code)

	practitioner, err := c.AccountRepo.GetByPractitionerCode(ctx, code)
	if err == nil {
		if !practitioner.IsApprovedPractitioner() {
			return nil, false, ErrNotFound
		}
		return practitioner, false, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, false, ErrNotFound
	}

	log.Warn("record store lookup failed, trying cache", "code", code, "error", err)
	cached, found, cacheErr := c.AccountRepo.GetCachedByPractitionerCode(ctx, code)
	if cacheErr != nil || !found {
		return nil, false, ErrStoreUnavailable
	}
	if !cached.IsApprovedPractitioner() {
		return nil, false, ErrNotFound
	}
	return cached, true, nil
}

// SubmitCodeRequest files a pending connection request against the
// practitioner behind the code. Submitting the same code twice returns the
// existing pending request instead of stacking duplicates.
func (c *Controller) SubmitCodeRequest(ctx context.Context, clientID, code string) (*ConnectionRequest, error) {
	log := c.log.Function("SubmitCodeRequest")

	practitioner, _, err := c.LookupPractitionerCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var request *ConnectionRequest
	err = c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		existing, err := c.RequestRepo.GetPendingByClientAndPractitioner(txCtx, clientID, practitioner.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			request = existing
			return nil
		}

		request = &ConnectionRequest{
			ClientID:       clientID,
			PractitionerID: &practitioner.ID,
			Status:         RequestPending,
			Source:         RequestSourceCode,
		}
		return c.RequestRepo.Create(txCtx, request)
	})
	if err != nil {
		return nil, log.Err("failed to submit code request", err, "clientID", clientID)
	}

	return request, nil
}

// AcceptRequest lets the practitioner take a pending request, which connects
// the client. A client who connected elsewhere in the meantime surfaces as
// ErrAlreadyConnected and the request stays pending.
func (c *Controller) AcceptRequest(ctx context.Context, practitionerID, requestID string) (*Connection, error) {
	log := c.log.Function("AcceptRequest")

	var connection *Connection
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		request, err := c.RequestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if request.Status != RequestPending || request.PractitionerID == nil || *request.PractitionerID != practitionerID {
			return ErrNotFound
		}

		connection, err = c.Connection.Connect(txCtx, request.ClientID, practitionerID)
		if err != nil {
			return err
		}

		request.Status = RequestAccepted
		return c.RequestRepo.Update(txCtx, request)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyConnected) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, log.Err("failed to accept request", err, "requestID", requestID)
	}

	return connection, nil
}

// DeclineRequest marks the request declined. For matched requests the
// decliner joins the exclusion list and the matcher immediately tries the
// next practitioner; the new pending request comes back, or nil when the
// pool is exhausted and the client waits unassigned.
func (c *Controller) DeclineRequest(ctx context.Context, practitionerID, requestID string) (*ConnectionRequest, error) {
	log := c.log.Function("DeclineRequest")

	var next *ConnectionRequest
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		request, err := c.RequestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if request.Status != RequestPending || request.PractitionerID == nil || *request.PractitionerID != practitionerID {
			return ErrNotFound
		}

		request.Status = RequestDeclined
		if err := c.RequestRepo.Update(txCtx, request); err != nil {
			return err
		}

		if request.Source != RequestSourceMatch {
			return nil
		}

		excluded := append(append([]string{}, request.ExcludedPractitionerIDs...), practitionerID)
		replacement, err := c.Matching.FindMatch(txCtx, request.NeededSpecializations, excluded...)
		if err != nil {
			return err
		}

		next = &ConnectionRequest{
			ClientID:                request.ClientID,
			Status:                  RequestPending,
			Source:                  RequestSourceMatch,
			NeededSpecializations:   request.NeededSpecializations,
			ExcludedPractitionerIDs: excluded,
		}
		if replacement != nil {
			next.PractitionerID = &replacement.ID
		}
		return c.RequestRepo.Create(txCtx, next)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, log.Err("failed to decline request", err, "requestID", requestID)
	}

	return next, nil
}

// CreateInvite issues an invite for a client contact. The plaintext code is
// returned exactly once; only its bcrypt hash is stored.
func (c *Controller) CreateInvite(ctx context.Context, practitionerID, clientContact string) (string, *ClientInvite, error) {
	log := c.log.Function("CreateInvite")

	practitioner, err := c.AccountRepo.GetByID(ctx, practitionerID)
	if err != nil {
		return "", nil, err
	}
	if !practitioner.IsApprovedPractitioner() {
		return "", nil, log.Error("only approved practitioners can invite",
			"practitionerID", practitionerID, "status", practitioner.PractitionerStatus)
	}

	code, err := utils.GenerateInviteCode()
	if err != nil {
		return "", nil, log.Err("failed to generate invite code", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, log.Err("failed to hash invite code", err)
	}

	invite := &ClientInvite{
		PractitionerID: practitionerID,
		CodeHash:       string(hash),
		ClientContact:  clientContact,
		Status:         InvitePending,
		ExpiresAt:      time.Now().Add(time.Duration(c.Config.InviteExpiryHours) * time.Hour),
	}
	if err := c.InviteRepo.Create(ctx, invite); err != nil {
		return "", nil, err
	}

	log.Info("invite created", "practitionerID", practitionerID, "inviteID", invite.ID)
	return code, invite, nil
}

// VerifyInvite redeems an invite and connects the client. Everything that
// can go wrong fails closed as ErrInvalidInvite: wrong code, expired token,
// already-consumed token and unknown contact all look identical to the
// caller.
func (c *Controller) VerifyInvite(ctx context.Context, clientID, clientContact, code string) (*Connection, error) {
	log := c.log.Function("VerifyInvite")
	code = utils.NormalizeCode(code)

	invites, err := c.InviteRepo.ListPendingByContact(ctx, clientContact)
	if err != nil {
		log.Er("failed to load invites, failing closed", err, "contact", clientContact)
		return nil, ErrInvalidInvite
	}

	now := time.Now()
	var matched *ClientInvite
	for i := range invites {
		invite := &invites[i]
		if invite.IsExpired(now) {
			if err := c.InviteRepo.MarkExpired(ctx, invite.ID); err != nil {
				log.Warn("failed to mark invite expired", "inviteID", invite.ID, "error", err)
			}
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(invite.CodeHash), []byte(code)) == nil {
			matched = invite
			break
		}
	}
	if matched == nil {
		log.Warn("invite verification failed", "contact", clientContact)
		return nil, ErrInvalidInvite
	}

	var connection *Connection
	err = c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		consumed, err := c.InviteRepo.ConsumePending(txCtx, matched.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidInvite
		}

		connection, err = c.Connection.Connect(txCtx, clientID, matched.PractitionerID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyConnected) {
			return nil, err
		}
		if errors.Is(err, ErrInvalidInvite) {
			return nil, ErrInvalidInvite
		}
		log.Er("invite redemption failed, failing closed", err, "inviteID", matched.ID)
		return nil, ErrInvalidInvite
	}

	return connection, nil
}

// SubmitQuestionnaire files a matched request for the client. When the
// matcher finds a candidate the request targets them; otherwise it stays
// pending and unassigned until the pool changes.
func (c *Controller) SubmitQuestionnaire(ctx context.Context, clientID string, needed []string) (*ConnectionRequest, error) {
	log := c.log.Function("SubmitQuestionnaire")

	var request *ConnectionRequest
	err := c.Transaction.Execute(ctx, func(txCtx context.Context) error {
		practitioner, err := c.Matching.FindMatch(txCtx, needed)
		if err != nil {
			return err
		}

		request = &ConnectionRequest{
			ClientID:              clientID,
			Status:                RequestPending,
			Source:                RequestSourceMatch,
			NeededSpecializations: needed,
		}
		if practitioner != nil {
			request.PractitionerID = &practitioner.ID
		}
		return c.RequestRepo.Create(txCtx, request)
	})
	if err != nil {
		return nil, log.Err("failed to submit questionnaire", err, "clientID", clientID)
	}

	return request, nil
}

// ListPendingRequests returns the requests waiting on a practitioner.
func (c *Controller) ListPendingRequests(ctx context.Context, practitionerID string) ([]ConnectionRequest, error) {
	return c.RequestRepo.ListPendingByPractitioner(ctx, practitionerID)
}

// ListInvites returns the invites a practitioner has issued.
func (c *Controller) ListInvites(ctx context.Context, practitionerID string) ([]ClientInvite, error) {
	return c.InviteRepo.ListByPractitioner(ctx, practitionerID)
}
