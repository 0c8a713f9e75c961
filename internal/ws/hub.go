// Package ws streams job progress to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// JobSource is satisfied by *job.Manager.
type JobSource interface {
	Get(ctx context.Context, id uuid.UUID) (domain.JobStatus, error)
	Subscribe(id uuid.UUID) (<-chan domain.JobEvent, func())
}

// Hub fans job events out to the websocket clients watching each job. It
// holds one job subscription per watched job, dropped with the last client.
type Hub struct {
	source     JobSource
	clients    map[*Client]bool
	jobs       map[uuid.UUID]map[*Client]bool
	feeds      map[uuid.UUID]func()
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(source JobSource, logger *slog.Logger) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[*Client]bool),
		jobs:       make(map[uuid.UUID]map[*Client]bool),
		feeds:      make(map[uuid.UUID]func()),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "ws_hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToJob(event)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID, cancel := range h.feeds {
		cancel()
		delete(h.feeds, jobID)
	}
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.jobs = make(map[uuid.UUID]map[*Client]bool)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.jobs[client.jobID] == nil {
		h.jobs[client.jobID] = make(map[*Client]bool)
		h.follow(client.jobID)
	}
	h.jobs[client.jobID][client] = true
}

// follow subscribes to a job and forwards its events to the hub loop.
// Callers hold h.mu.
func (h *Hub) follow(jobID uuid.UUID) {
	events, cancel := h.source.Subscribe(jobID)
	h.feeds[jobID] = cancel

	go func() {
		// The job may have finished before the subscription existed.
		if status, err := h.source.Get(context.Background(), jobID); err == nil && status.State.IsTerminal() {
			h.publish(Event{JobID: jobID, Type: EventJobState, Data: status, Timestamp: time.Now(), final: true})
		}

		for ev := range events {
			eventType := EventJobState
			if ev.Type == domain.JobEventProgress {
				eventType = EventJobProgress
			}
			h.publish(Event{
				JobID:     jobID,
				Type:      eventType,
				Data:      ev,
				Timestamp: ev.Timestamp,
				final:     ev.Type == domain.JobEventState && ev.State.IsTerminal(),
			})
		}
	}()
}

func (h *Hub) publish(event Event) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.jobs[client.jobID], client)
	close(client.send)

	if len(h.jobs[client.jobID]) == 0 {
		delete(h.jobs, client.jobID)
		if cancel, ok := h.feeds[client.jobID]; ok {
			cancel()
			delete(h.feeds, client.jobID)
		}
	}
}

func (h *Hub) broadcastToJob(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.jobs[event.JobID]
	if clients == nil {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode job event", slog.String("error", err.Error()))
		return
	}

	for client := range clients {
		select {
		case client.send <- message:
		default:
			// Slow client; it reconnects and gets a fresh snapshot.
			h.dropLocked(client)
		}
	}

	if event.final {
		for client := range h.jobs[event.JobID] {
			h.dropLocked(client)
		}
	}
}

// Watch registers a client for jobID. The current status is queued first;
// a job that already finished gets only that snapshot and is not registered.
func (h *Hub) Watch(ctx context.Context, client *Client) error {
	status, err := h.source.Get(ctx, client.jobID)
	if err != nil {
		return err
	}

	snapshot, err := json.Marshal(Event{
		JobID:     client.jobID,
		Type:      EventJobSnapshot,
		Data:      status,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	client.send <- snapshot

	if status.State.IsTerminal() {
		close(client.send)
		return nil
	}

	select {
	case h.register <- client:
		return nil
	case <-h.done:
		close(client.send)
		return context.Canceled
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) GetConnectedClients(jobID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.jobs[jobID])
}
