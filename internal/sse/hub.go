package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/types"
)

type Event string

const (
	EventJobUpdate Event = "JobUpdate"
)

type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

// JobUpdateData is the wire shape of a job progress event.
type JobUpdateData struct {
	JobID     string `json:"job_id"`
	Code      int    `json:"code"`
	Stage     string `json:"stage"`
	State     string `json:"state"`
	Progress  int    `json:"progress"`
	CapsuleID string `json:"capsule_id,omitempty"`
}

type Client struct {
	ID       uuid.UUID
	Outbound chan Message
	done     chan struct{}
}

// Hub fans job updates out to connected SSE clients. Outbound channels are
// bounded; a slow consumer drops events instead of blocking the publisher.
// The job record stays the source of truth for anyone who missed an event.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[*Client]bool
}

func NewHub(baseLog *logger.Logger) *Hub {
	return &Hub{
		log:     baseLog.With("component", "SSEHub"),
		clients: make(map[*Client]bool),
	}
}

func (hub *Hub) NewClient() *Client {
	client := &Client{
		ID:       uuid.New(),
		Outbound: make(chan Message, 16),
		done:     make(chan struct{}),
	}
	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()
	hub.log.Debug("SSE client connected", "clientID", client.ID)
	return client
}

func (hub *Hub) Broadcast(msg Message) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.clients {
		select {
		case c.Outbound <- msg:
		default:
			hub.log.Warn("Dropping SSE message; outbound buffer full", "clientID", c.ID)
		}
	}
}

// BroadcastJobUpdate publishes a job's current state to every subscriber.
func (hub *Hub) BroadcastJobUpdate(job *types.Job) {
	hub.Broadcast(Message{
		Event: EventJobUpdate,
		Data: JobUpdateData{
			JobID:     job.ID,
			Code:      job.Code,
			Stage:     job.Stage,
			State:     job.State,
			Progress:  job.Progress,
			CapsuleID: job.CapsuleID,
		},
	})
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.log.Debug("SSE client context done", "clientID", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-client.Outbound:
			jsonBytes, err := json.Marshal(msg)
			if err != nil {
				hub.log.Warn("Failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", string(jsonBytes))
			flusher.Flush()
		}
	}
}

func (hub *Hub) CloseClient(client *Client) {
	hub.mu.Lock()
	delete(hub.clients, client)
	hub.mu.Unlock()
	close(client.done)
	close(client.Outbound)
}
