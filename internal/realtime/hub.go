package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"tabsync/internal/logging"
)

const broadcastBacklog = 256

type roomMessage struct {
	room    string
	payload []byte
}

// Hub tracks websocket subscribers by room and fans broadcast events out
// to them. Slow subscribers are disconnected rather than buffered.
type Hub struct {
	logger     *slog.Logger
	sendBuffer int
	origins    []string

	register   chan *client
	unregister chan *client
	broadcast  chan roomMessage
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}

	runOnce  sync.Once
	stopOnce sync.Once
}

// Options configures a Hub.
type Options struct {
	// SendBuffer is the per-client outgoing queue length.
	SendBuffer int
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows
	// same-host requests only.
	AllowedOrigins []string
}

// NewHub creates a hub. Call Run in a goroutine before broadcasting.
func NewHub(logger *slog.Logger, opts Options) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	buffer := opts.SendBuffer
	if buffer < 1 {
		buffer = 64
	}
	return &Hub{
		logger:     logging.NewComponentLogger(logger, "realtime"),
		sendBuffer: buffer,
		origins:    opts.AllowedOrigins,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan roomMessage, broadcastBacklog),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run processes registration and broadcast traffic until Stop is called.
func (h *Hub) Run() {
	h.runOnce.Do(func() {
		for {
			select {
			case c := <-h.register:
				h.mu.Lock()
				h.clients[c] = struct{}{}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Debug("client connected",
					logging.String("room", c.room),
					logging.Int("total", total))

			case c := <-h.unregister:
				h.removeClient(c)

			case msg := <-h.broadcast:
				h.deliver(msg)

			case <-h.done:
				h.mu.Lock()
				for c := range h.clients {
					delete(h.clients, c)
					close(c.send)
				}
				h.mu.Unlock()
				return
			}
		}
	})
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast sends an event to every subscriber of the room. The call never
// blocks; when the hub backlog is full the event is dropped.
func (h *Hub) Broadcast(room string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("drop unmarshalable event",
			logging.String(logging.FieldEventType, event.Type),
			logging.Error(err))
		return
	}
	select {
	case h.broadcast <- roomMessage{room: room, payload: payload}:
	case <-h.done:
	default:
		h.logger.Warn("broadcast backlog full, dropping event",
			logging.String(logging.FieldEventType, event.Type),
			logging.String("room", room))
	}
}

// ClientCount reports connected subscribers, optionally filtered by room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room == "" {
		return len(h.clients)
	}
	count := 0
	for c := range h.clients {
		if c.room == room {
			count++
		}
	}
	return count
}

func (h *Hub) deliver(msg roomMessage) {
	h.mu.Lock()
	for c := range h.clients {
		if c.room != msg.room {
			continue
		}
		select {
		case c.send <- msg.payload:
		default:
			// Slow consumer, disconnect instead of queueing unboundedly.
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected",
		logging.String("room", c.room),
		logging.Int("total", total))
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, parsed.Host) {
			return true
		}
	}
	return false
}
