package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks the sessions of this process and their transport room
// subscriptions. It is the gateway's Emitter.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // connID -> session
	rooms    map[string]map[string]struct{} // roomID -> connIDs
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]struct{}),
		logger:   logger,
	}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

// remove drops the session and every transport subscription it holds.
func (h *Hub) remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, connID)
	for roomID, conns := range h.rooms {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) Emit(connID string, frame []byte) error {
	h.mu.RLock()
	s, ok := h.sessions[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConn
	}
	err := s.enqueue(frame)
	if err == ErrSlowConsumer {
		h.logger.Warn("closing slow session", zap.String("conn_id", connID))
	}
	return err
}

func (h *Hub) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[connID]; !ok {
		return
	}
	conns, ok := h.rooms[roomID]
	if !ok {
		conns = make(map[string]struct{})
		h.rooms[roomID] = conns
	}
	conns[connID] = struct{}{}
}

func (h *Hub) Unsubscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every session. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.Close()
	}
}
