package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"livedetect/internal/logger"
)

// HubService fans overlay frames out to every connected viewer. All writes to
// the connections happen on the Run goroutine.
type HubService struct {
	// clients maps each viewer to whether its page is hidden.
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	visibility chan visibilityUpdate
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger

	onChange func(visible int)
}

type visibilityUpdate struct {
	client *websocket.Conn
	hidden bool
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 1),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		visibility: make(chan visibilityUpdate),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// OnChange registers a callback invoked with the number of visible viewers
// whenever it may have changed: connects, disconnects and visibility reports.
// Must be set before Run.
func (h *HubService) OnChange(fn func(visible int)) {
	h.onChange = fn
}

// Run serves registrations and broadcasts until ctx is done, then closes every
// connection.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = false
			count, visible := len(h.clients), h.visibleLocked()
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", count)
			h.changed(visible)

		case client := <-h.unregister:
			h.drop(client)

		case update := <-h.visibility:
			h.mutex.Lock()
			hidden, ok := h.clients[update.client]
			changed := ok && hidden != update.hidden
			if changed {
				h.clients[update.client] = update.hidden
			}
			visible := h.visibleLocked()
			h.mutex.Unlock()
			if changed {
				h.changed(visible)
			}

		case message := <-h.broadcast:
			for _, client := range h.snapshot() {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					h.drop(client)
				}
			}

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mutex.Unlock()
			return
		}
	}
}

func (h *HubService) drop(client *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.Close()
	}
	count, visible := len(h.clients), h.visibleLocked()
	h.mutex.Unlock()
	if ok {
		h.logger.Info("Viewer disconnected. Total: %d", count)
		h.changed(visible)
	}
}

func (h *HubService) visibleLocked() int {
	visible := 0
	for _, hidden := range h.clients {
		if !hidden {
			visible++
		}
	}
	return visible
}

func (h *HubService) changed(visible int) {
	if h.onChange != nil {
		h.onChange(visible)
	}
}

func (h *HubService) snapshot() []*websocket.Conn {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SetHidden records a viewer's page visibility.
func (h *HubService) SetHidden(client *websocket.Conn, hidden bool) {
	select {
	case h.visibility <- visibilityUpdate{client: client, hidden: hidden}:
	case <-h.done:
	}
}

// Broadcast queues message for all viewers. If the previous message has not
// been sent yet it is replaced, so a slow viewer never stalls the caller.
func (h *HubService) Broadcast(message []byte) {
	for {
		select {
		case h.broadcast <- message:
			return
		case <-h.done:
			return
		default:
		}
		select {
		case <-h.broadcast:
		default:
		}
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
