package websockets

import (
	"encoding/json"
	"server/config"
	"server/internal/database"
	"server/internal/events"
	"server/internal/logger"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// Manager pushes connection and account change events to practitioner
// dashboards so rosters refresh without polling.
type Manager struct {
	db       database.DB
	eventBus *events.EventBus
	config   config.Config
	log      logger.Logger

	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]bool
}

func New(db database.DB, eventBus *events.EventBus, config config.Config) *Manager {
	manager := &Manager{
		db:       db,
		eventBus: eventBus,
		config:   config,
		log:      logger.New("websockets"),
		conns:    make(map[string]map[*websocket.Conn]bool),
	}

	if eventBus != nil {
		eventBus.Subscribe("connections", manager.fanout)
		eventBus.Subscribe("accounts", manager.fanout)
	}

	return manager
}

// HandleWebSocket keeps the socket open and registered until the client
// hangs up. The accountID local comes from the auth middleware.
func (m *Manager) HandleWebSocket(c *websocket.Conn) {
	log := m.log.Function("HandleWebSocket")

	accountID, ok := c.Locals("accountID").(string)
	if !ok || accountID == "" {
		log.Warn("websocket without account, closing")
		_ = c.Close()
		return
	}

	m.register(accountID, c)
	defer m.unregister(accountID, c)

	log.Info("websocket connected", "accountID", accountID)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

func (m *Manager) register(accountID string, c *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[accountID] == nil {
		m.conns[accountID] = make(map[*websocket.Conn]bool)
	}
	m.conns[accountID][c] = true
}

func (m *Manager) unregister(accountID string, c *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns[accountID], c)
	if len(m.conns[accountID]) == 0 {
		delete(m.conns, accountID)
	}
	_ = c.Close()
}

// fanout delivers an event to the sockets of every account it names. Events
// without a target account go to everyone.
func (m *Manager) fanout(event events.Event) {
	log := m.log.Function("fanout")

	data, err := json.Marshal(event)
	if err != nil {
		log.Er("failed to marshal event for fanout", err)
		return
	}

	targets := m.targetsFor(event)
	for _, c := range targets {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn("failed to write to websocket", "error", err)
		}
	}
}

func (m *Manager) targetsFor(event events.Event) []*websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accountIDs := make([]string, 0, 2)
	if event.UserID != "" {
		accountIDs = append(accountIDs, event.UserID)
	}
	if ids, ok := event.Data["practitionerIds"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok && s != "" {
				accountIDs = append(accountIDs, s)
			}
		}
	}

	var targets []*websocket.Conn
	if len(accountIDs) == 0 {
		for _, conns := range m.conns {
			for c := range conns {
				targets = append(targets, c)
			}
		}
		return targets
	}

	for _, accountID := range accountIDs {
		for c := range m.conns[accountID] {
			targets = append(targets, c)
		}
	}
	return targets
}

// Broadcast sends an ad hoc message to every connected socket.
func (m *Manager) Broadcast(messageType string, data map[string]any) {
	m.fanout(events.Event{Type: messageType, Data: data})
}
