package services

import (
	"context"
	"encoding/json"
	"server/internal/database"
	"server/internal/logger"
	"time"

	"github.com/valkey-io/valkey-go"
)

const pendingWritesKey = "pending_writes"

// PendingWrite is a record store write that only reached the local cache.
// It is queued here and replayed until the store confirms it; callers were
// told the write is unconfirmed and must not treat it as durable.
type PendingWrite struct {
	Op       string            `json:"op"`
	Fields   map[string]string `json:"fields"`
	QueuedAt time.Time         `json:"queuedAt"`
}

type ReplayFunc func(ctx context.Context, write PendingWrite) error

// ReconciliationService replays queued unconfirmed writes against the record
// store and refreshes cache mirrors. Sync is strictly one-way, store to
// cache; nothing is ever written back from cache state.
type ReconciliationService struct {
	db       database.DB
	log      logger.Logger
	handlers map[string]ReplayFunc
	cancel   context.CancelFunc
}

func NewReconciliationService(db database.DB) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		log:      logger.New("ReconciliationService"),
		handlers: make(map[string]ReplayFunc),
	}
}

// Register wires the replay handler for one operation kind. Controllers
// register their own replays during app wiring.
func (s *ReconciliationService) Register(op string, fn ReplayFunc) {
	s.handlers[op] = fn
}

// Enqueue stores an unconfirmed write in the cache-side queue. The caller
// still returns ErrUnconfirmed to its own caller.
func (s *ReconciliationService) Enqueue(ctx context.Context, write PendingWrite) error {
	log := s.log.Function("Enqueue")

	if s.db.Cache.General == nil {
		return log.Error("no cache available to queue unconfirmed write", "op", write.Op)
	}

	write.QueuedAt = time.Now()
	data, err := json.Marshal(write)
	if err != nil {
		return log.Err("failed to marshal pending write", err, "op", write.Op)
	}

	cache := s.db.Cache.General
	if err := cache.Do(ctx, cache.B().Rpush().Key(pendingWritesKey).Element(string(data)).Build()).Error(); err != nil {
		return log.Err("failed to queue pending write", err, "op", write.Op)
	}

	log.Warn("queued unconfirmed write for reconciliation", "op", write.Op)
	return nil
}

// ReplayPending drains the queue, re-running each write against the record
// store. A write that fails again goes back to the end of the queue.
func (s *ReconciliationService) ReplayPending(ctx context.Context) (int, error) {
	log := s.log.Function("ReplayPending")

	cache := s.db.Cache.General
	if cache == nil {
		return 0, nil
	}

	replayed := 0
	for {
		raw, err := cache.Do(ctx, cache.B().Lpop().Key(pendingWritesKey).Build()).ToString()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				break
			}
			return replayed, log.Err("failed to pop pending write", err)
		}

		var write PendingWrite
		if err := json.Unmarshal([]byte(raw), &write); err != nil {
			log.Er("dropping unreadable pending write", err)
			continue
		}

		handler, ok := s.handlers[write.Op]
		if !ok {
			log.ErMsg("no replay handler registered, dropping write", "op", write.Op)
			continue
		}

		if err := handler(ctx, write); err != nil {
			log.Warn("replay failed, requeueing", "op", write.Op, "error", err)
			if qErr := cache.Do(ctx, cache.B().Rpush().Key(pendingWritesKey).Element(raw).Build()).Error(); qErr != nil {
				log.Er("failed to requeue pending write", qErr, "op", write.Op)
			}
			// Stop the pass so a persistently failing store doesn't spin
			return replayed, nil
		}
		replayed++
	}

	if replayed > 0 {
		log.Info("replayed unconfirmed writes", "count", replayed)
	}
	return replayed, nil
}

// Run replays the queue on an interval until the context is cancelled.
func (s *ReconciliationService) Run(ctx context.Context, interval time.Duration) {
	log := s.log.Function("Run")
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.ReplayPending(runCtx); err != nil {
					log.Er("reconciliation pass failed", err)
				}
			}
		}
	}()
}

func (s *ReconciliationService) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
