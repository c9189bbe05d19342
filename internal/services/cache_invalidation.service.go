package services

import (
	"context"
	"server/internal/database"
	"server/internal/events"
	"server/internal/logger"
	"time"

	"github.com/google/uuid"
)

// CacheInvalidationService drops stale mirror entries after record store
// writes and tells connected dashboards to refetch. Failures here never fail
// the write that triggered them.
type CacheInvalidationService struct {
	db       database.DB
	eventBus *events.EventBus
	log      logger.Logger
}

func NewCacheInvalidationService(
	db database.DB,
	eventBus *events.EventBus,
) *CacheInvalidationService {
	return &CacheInvalidationService{
		db:       db,
		eventBus: eventBus,
		log:      logger.New("CacheInvalidationService"),
	}
}

// InvalidateAccount removes the account mirror and notifies subscribers.
func (s *CacheInvalidationService) InvalidateAccount(ctx context.Context, accountID string) error {
	log := s.log.Function("InvalidateAccount")

	if err := database.NewCacheBuilder(s.db.Cache.Account, accountID).
		WithContext(ctx).
		Delete(); err != nil {
		log.Warn("failed to invalidate account cache", "accountID", accountID, "error", err)
	}

	return s.publish("accounts", accountID, map[string]any{"accountId": accountID})
}

// InvalidateConnections removes the connection mirrors for a client and the
// roster mirror for the practitioners involved.
func (s *CacheInvalidationService) InvalidateConnections(
	ctx context.Context,
	clientID string,
	practitionerIDs ...string,
) error {
	log := s.log.Function("InvalidateConnections")

	if err := database.NewCacheBuilder(s.db.Cache.Connection, "active:"+clientID).
		WithContext(ctx).
		Delete(); err != nil {
		log.Warn("failed to invalidate active connection cache", "clientID", clientID, "error", err)
	}

	for _, practitionerID := range practitionerIDs {
		if practitionerID == "" {
			continue
		}
		if err := database.NewCacheBuilder(s.db.Cache.Connection, "roster:"+practitionerID).
			WithContext(ctx).
			Delete(); err != nil {
			log.Warn("failed to invalidate roster cache", "practitionerID", practitionerID, "error", err)
		}
	}

	return s.publish("connections", clientID, map[string]any{
		"clientId":        clientID,
		"practitionerIds": practitionerIDs,
	})
}

func (s *CacheInvalidationService) publish(channel, userID string, data map[string]any) error {
	if s.eventBus == nil {
		return nil
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      "cache_invalidation",
		Channel:   channel,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now(),
	}

	if err := s.eventBus.Publish(channel, event); err != nil {
		s.log.Function("publish").Warn("failed to publish invalidation event", "channel", channel, "error", err)
	}
	return nil
}
