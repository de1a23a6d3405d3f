// Package events is an in-process broadcaster for job lifecycle
// notifications: a register/unregister/broadcast channel hub with no
// transport of its own, since delivery to external clients is outside the
// orchestration core.
package events

import (
	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
)

// JobEvent is a single state-change notification for a job.
type JobEvent struct {
	JobID int64           `json:"jobId"`
	State domain.JobState `json:"state"`
}

// Listener receives broadcast events on a buffered channel. Slow listeners
// are dropped rather than allowed to back-pressure the broadcaster.
type Listener struct {
	hub   *Hub
	ch    chan JobEvent
}

// Hub fans out job events to registered listeners.
type Hub struct {
	listeners  map[*Listener]bool
	broadcast  chan JobEvent
	register   chan *Listener
	unregister chan *Listener
	done       chan struct{}
	logger     *logging.Logger
}

// NewHub creates a Hub. Call Run as a goroutine to start its event loop.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		listeners:  make(map[*Listener]bool),
		broadcast:  make(chan JobEvent, 256),
		register:   make(chan *Listener),
		unregister: make(chan *Listener),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main event loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case l := <-h.register:
			h.listeners[l] = true

		case l := <-h.unregister:
			if _, ok := h.listeners[l]; ok {
				delete(h.listeners, l)
				close(l.ch)
			}

		case event := <-h.broadcast:
			var slow []*Listener
			for l := range h.listeners {
				select {
				case l.ch <- event:
				default:
					slow = append(slow, l)
				}
			}
			for _, l := range slow {
				delete(h.listeners, l)
				close(l.ch)
			}
		}
	}
}

// Stop ends the hub's event loop.
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast notifies all registered listeners of a job event. Non-blocking:
// if the broadcast channel itself is full, the event is dropped and logged.
func (h *Hub) Broadcast(event JobEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Msg("event broadcast channel full, dropping event")
	}
}

// Subscribe registers a new listener and returns it. Callers must range over
// its channel and call Unsubscribe when done.
func (h *Hub) Subscribe() *Listener {
	l := &Listener{hub: h, ch: make(chan JobEvent, 32)}
	h.register <- l
	return l
}

// Unsubscribe removes a listener from the hub.
func (h *Hub) Unsubscribe(l *Listener) {
	h.unregister <- l
}

// Events returns the listener's event channel.
func (l *Listener) Events() <-chan JobEvent { return l.ch }
