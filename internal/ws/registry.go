package ws

import (
	"encoding/json"
	"sync"

	"log/slog"

	"github.com/nishantshetty7/quizania-backend/pkg/metrics"
)

// serverFrame is the envelope written to clients: an event name plus its
// payload.
type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Registry tracks the connections owned by this process and which rooms they
// are marked into for local delivery. Room membership truth lives in the
// coordinator's mirror; the registry only answers "who do I deliver to here".
//
// Two maps are kept so both room fan-out and per-connection cleanup are a
// single lookup.
type Registry struct {
	log *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*Conn               // connID -> conn
	byRoom map[string]map[string]struct{} // room -> set of connIDs
	byConn map[string]map[string]struct{} // connID -> set of rooms
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		log:    logger,
		conns:  map[string]*Conn{},
		byRoom: map[string]map[string]struct{}{},
		byConn: map[string]map[string]struct{}{},
	}
}

// Add registers a newly accepted connection.
func (r *Registry) Add(connID string, c *Conn) {
	r.mu.Lock()
	r.conns[connID] = c
	r.mu.Unlock()
	metrics.ConnectionsActive.Inc()
}

// Remove drops a connection and clears its room marks. The mirror is not
// touched: a dropped socket stops receiving, it does not leave its room.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	if _, ok := r.conns[connID]; ok {
		metrics.ConnectionsActive.Dec()
	}
	delete(r.conns, connID)
	for room := range r.byConn[connID] {
		delete(r.byRoom[room], connID)
		if len(r.byRoom[room]) == 0 {
			delete(r.byRoom, room)
		}
	}
	delete(r.byConn, connID)
	r.mu.Unlock()
}

// EnterRoom marks a local connection as eligible for deliveries to room.
// Idempotent.
func (r *Registry) EnterRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	if r.byRoom[room] == nil {
		r.byRoom[room] = map[string]struct{}{}
	}
	r.byRoom[room][connID] = struct{}{}
	if r.byConn[connID] == nil {
		r.byConn[connID] = map[string]struct{}{}
	}
	r.byConn[connID][room] = struct{}{}
}

// LeaveRoom clears the delivery mark. Idempotent.
func (r *Registry) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byRoom[room], connID)
	if len(r.byRoom[room]) == 0 {
		delete(r.byRoom, room)
	}
	delete(r.byConn[connID], room)
}

// IsLocal reports whether this process owns the connection.
func (r *Registry) IsLocal(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Emit delivers an event to every local connection marked into room.
func (r *Registry) Emit(room, event string, data any) {
	raw, err := json.Marshal(serverFrame{Event: event, Data: data})
	if err != nil {
		r.log.Error("ws.emit.encode", "event", event, "err", err)
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID := range r.byRoom[room] {
		if c := r.conns[connID]; c != nil {
			c.Send(raw)
		}
	}
}

// EmitTo delivers an event to a single local connection.
func (r *Registry) EmitTo(connID, event string, data any) {
	raw, err := json.Marshal(serverFrame{Event: event, Data: data})
	if err != nil {
		r.log.Error("ws.emit.encode", "event", event, "err", err)
		return
	}
	r.mu.RLock()
	c := r.conns[connID]
	r.mu.RUnlock()
	if c != nil {
		c.Send(raw)
	}
}
