package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("notification hub is not running")

// Subscription receives the messages of one screening until it is closed or the hub stops.
type Subscription struct {
	C <-chan Message

	send        chan Message
	screeningID uuid.UUID
	hub         *Hub
	once        sync.Once
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unregister(s)
}

// Hub is the in-process registry of screening subscribers. It is owned by main:
// Start on boot, Stop on shutdown. A socket layer subscribes per connected client.
//
// Subscribe is the entry point for a push transport such as a websocket or SSE
// handler, which this service does not mount. Until one is added the Hub only
// feeds in-process consumers, and Redis or RabbitMQ carry events across processes.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Subscription]bool
	bufferSize int
	running    bool
	log        *zap.Logger
}

func NewHub(bufferSize int, log *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Subscription]bool),
		bufferSize: bufferSize,
		log:        log.With(zap.String("publisher", "hub")),
	}
}

func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = true
	h.log.Info("Notification hub started")
}

// Stop closes every subscription and rejects further use until Start is called again.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false

	closed := 0
	for screeningID, subs := range h.clients {
		for sub := range subs {
			sub.closeSend()
			closed++
		}
		delete(h.clients, screeningID)
	}

	h.log.Info("Notification hub stopped", zap.Int("closed_subscriptions", closed))
}

func (h *Hub) Subscribe(screeningID uuid.UUID) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil, ErrHubStopped
	}

	send := make(chan Message, h.bufferSize)
	sub := &Subscription{
		C:           send,
		send:        send,
		screeningID: screeningID,
		hub:         h,
	}

	if h.clients[screeningID] == nil {
		h.clients[screeningID] = make(map[*Subscription]bool)
	}
	h.clients[screeningID][sub] = true

	h.log.Debug("Subscriber registered",
		zap.String("screening_id", screeningID.String()),
		zap.Int("subscribers", len(h.clients[screeningID])),
	)

	return sub, nil
}

// Subscribers counts the open subscriptions of a screening.
func (h *Hub) Subscribers(screeningID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[screeningID])
}

// Publish delivers without blocking. A subscriber whose buffer is full is dropped.
func (h *Hub) Publish(_ context.Context, screeningID uuid.UUID, events []SeatEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubStopped
	}

	msg := NewMessage(screeningID, events)
	for sub := range h.clients[screeningID] {
		select {
		case sub.send <- msg:
		default:
			h.log.Warn("Dropping slow subscriber", zap.String("screening_id", screeningID.String()))
			sub.closeSend()
			delete(h.clients[screeningID], sub)
		}
	}

	if len(h.clients[screeningID]) == 0 {
		delete(h.clients, screeningID)
	}

	return nil
}

func (h *Hub) unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.clients[sub.screeningID]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			sub.closeSend()
		}
		if len(subs) == 0 {
			delete(h.clients, sub.screeningID)
		}
	}
}

func (s *Subscription) closeSend() {
	s.once.Do(func() { close(s.send) })
}
