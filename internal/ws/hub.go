package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/google/uuid"

	"github.com/nishantshetty7/quizania-backend/internal/quiz"
)

// clientFrame is the inbound envelope: which event the client raised plus
// the room/name it targets. Data is forwarded opaquely (display metadata for
// joins, the whole chat payload for chat).
type clientFrame struct {
	Event string         `json:"event"`
	Room  string         `json:"room"`
	Name  string         `json:"name"`
	Data  map[string]any `json:"data"`
}

// Client-raised event names.
const (
	frameJoin  = "join_room"
	frameLeave = "leave_room"
	frameChat  = "chat"
)

// Hub is the WS ingress: it owns accepted connections via the registry and
// forwards decoded client intents to the coordinator. It never touches room
// state itself; admission happens when the intent is replayed off the bus.
type Hub struct {
	log  *slog.Logger
	reg  *Registry
	quiz *quiz.Coordinator
}

func NewHub(logger *slog.Logger, reg *Registry, coord *quiz.Coordinator) *Hub {
	return &Hub{log: logger, reg: reg, quiz: coord}
}

// ServeWS handles a new /ws connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	connID := uuid.NewString()
	c := NewConn(conn)
	h.reg.Add(connID, c)
	h.log.Debug("ws.connected", "conn", connID)

	// Outbound writer
	go c.WriteLoop(ctx)

	// Inbound reader: decode frames, publish intents. Malformed frames are
	// dropped, not answered.
	for {
		raw, ok := c.Read(ctx)
		if !ok {
			break
		}
		var f clientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.log.Debug("ws.frame.decode", "conn", connID, "err", err)
			continue
		}
		h.dispatch(ctx, connID, f)
	}

	// Dropped socket: stop local delivery. Membership stays in the mirror
	// until an explicit leave; a reconnect under the same name reclaims it.
	h.reg.Remove(connID)
	_ = c.Close()
	h.log.Debug("ws.disconnected", "conn", connID)
}

func (h *Hub) dispatch(ctx context.Context, connID string, f clientFrame) {
	switch f.Event {
	case frameJoin:
		h.quiz.OnClientJoin(ctx, f.Room, f.Name, connID, f.Data)
	case frameLeave:
		h.quiz.OnClientLeave(ctx, f.Room, f.Name, connID)
	case frameChat:
		h.quiz.OnClientChat(ctx, f.Room, connID, f.Data)
	default:
		h.log.Debug("ws.frame.unknown", "conn", connID, "event", f.Event)
	}
}
