package ws

import (
	"encoding/json"
	"sync"

	"crmdesk_backend/internal/logger"
	"crmdesk_backend/internal/services/dto"
)

// MembersResolver maps a conversation id to the user ids that should receive
// its events. Injected so the manager stays ignorant of the database.
type MembersResolver func(conversationID string) ([]string, error)

// Manager tracks live websocket connections by user and fans conversation
// events out to them. It implements both the realtime broadcast and the
// presence check the notification service uses for its email fallback.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool // userID -> connections

	register   chan *Client
	unregister chan *Client

	resolveMembers MembersResolver
}

func NewManager(resolveMembers MembersResolver) *Manager {
	return &Manager{
		clients:        make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		resolveMembers: resolveMembers,
	}
}

// Run processes connection lifecycle events. Call it once, in its own
// goroutine.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			if m.clients[client.userID] == nil {
				m.clients[client.userID] = make(map[*Client]bool)
			}
			m.clients[client.userID][client] = true
			m.mu.Unlock()
			logger.Debug("websocket client connected", "user_id", client.userID)

		case client := <-m.unregister:
			m.mu.Lock()
			if conns, ok := m.clients[client.userID]; ok {
				if conns[client] {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(m.clients, client.userID)
					}
				}
			}
			m.mu.Unlock()
			logger.Debug("websocket client disconnected", "user_id", client.userID)
		}
	}
}

// Publish sends an event to every connected participant of the conversation
// except excludeUserID. A slow or full connection is skipped rather than
// blocked on.
func (m *Manager) Publish(conversationID string, event dto.BroadcastEvent, excludeUserID string) {
	members, err := m.resolveMembers(conversationID)
	if err != nil {
		logger.EffectLog("broadcast", conversationID, err)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.EffectLog("broadcast", conversationID, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, userID := range members {
		if userID == excludeUserID {
			continue
		}
		for client := range m.clients[userID] {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
	logger.EffectLog("broadcast", conversationID, nil)
}

// IsOnline reports whether the user has at least one live connection.
func (m *Manager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID]) > 0
}
