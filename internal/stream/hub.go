// Package stream broadcasts solver snapshots to websocket clients.
package stream

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/logging"
)

// Frame is the JSON message sent for each broadcast snapshot. Field rows run
// along x: Field[i][j] is node (i, j). Non-finite values are sent as null.
type Frame struct {
	Step   int                  `json:"step"`
	Time   float64              `json:"time"`
	Nx     int                  `json:"nx"`
	Ny     int                  `json:"ny"`
	Field  [][]*float64         `json:"field"`
	Energy *dynamo.EnergySample `json:"energy,omitempty"`
}

// NewFrame copies s into a Frame. The snapshot view may be reused after it
// returns.
func NewFrame(s dynamo.Snapshot) Frame {
	f := Frame{Step: s.Step, Time: s.Time, Nx: s.Field.Nx, Ny: s.Field.Ny}
	f.Field = make([][]*float64, s.Field.Nx)
	for i := range f.Field {
		row := make([]*float64, s.Field.Ny)
		for j := range row {
			v := s.Field.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row[j] = &v
		}
		f.Field[i] = row
	}
	if s.Energy != nil && finite(s.Energy) {
		e := *s.Energy
		f.Energy = &e
	}
	return f
}

func finite(e *dynamo.EnergySample) bool {
	for _, v := range []float64{e.Kinetic, e.Bending, e.Total} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Hub maintains the set of active clients and broadcasts frames to them.
// It implements dynamo.Observer, so a solver can publish straight into it.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	every int
	log   logging.Logger
	mu    sync.RWMutex
}

// NewHub returns a hub that publishes every Nth step. The final step of a
// run is not special to the hub; callers that want it should call Publish.
func NewHub(every int, log logging.Logger) *Hub {
	if every < 1 {
		every = 1
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		every:      every,
		log:        log,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client's send channel. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info(ctx, "client connected", logging.Int("clients", n))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info(ctx, "client disconnected", logging.Int("clients", n))
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
					h.log.Warn(ctx, "dropping slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnStep publishes every Nth snapshot. Frames are dropped rather than
// blocking the solver when the broadcast queue is full.
func (h *Hub) OnStep(s dynamo.Snapshot) {
	if s.Step%h.every != 0 || h.Clients() == 0 {
		return
	}
	h.Publish(s)
}

// Publish encodes s and queues it for every client.
func (h *Hub) Publish(s dynamo.Snapshot) bool {
	msg, err := json.Marshal(NewFrame(s))
	if err != nil {
		h.log.Error(context.Background(), "encode frame failed", logging.Int("step", s.Step), logging.Err(err))
		return false
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		return false
	}
}
