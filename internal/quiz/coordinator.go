package quiz

import (
	"context"

	"log/slog"

	"github.com/nishantshetty7/quizania-backend/pkg/metrics"
)

// maxRoomSize is the quiz format: exactly two players per room.
const maxRoomSize = 2

// Registry is the per-process connection layer the coordinator delivers
// lifecycle events through. Only connections owned by this process are
// reachable; other instances deliver to theirs when they replay the same
// intent.
type Registry interface {
	EnterRoom(connID, room string)
	LeaveRoom(connID, room string)
	Emit(room, event string, data any)
	EmitTo(connID, event string, data any)
	IsLocal(connID string) bool
}

// Bus is the broadcast channel intents are replicated over. Publish is
// fire-and-forget; Subscribe blocks, invoking fn for every message in
// delivery order until ctx is cancelled.
type Bus interface {
	Publish(ctx context.Context, in Intent) error
	Subscribe(ctx context.Context, fn func(Intent))
}

// Coordinator owns the room membership mirror for this process. Client
// intents are never applied directly: they are published on the bus and take
// effect when they come back through Apply, so every instance makes the same
// admission decision from the same replay order.
type Coordinator struct {
	log *slog.Logger
	bus Bus
	reg Registry

	// rooms is the mirror: room key -> name -> participant. Mutated only
	// from the subscribe loop, so no locking.
	rooms map[string]map[string]Participant
}

func NewCoordinator(logger *slog.Logger, bus Bus, reg Registry) *Coordinator {
	return &Coordinator{log: logger, bus: bus, reg: reg, rooms: map[string]map[string]Participant{}}
}

// Run consumes the bus until ctx is cancelled. All mirror mutation happens on
// this goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	c.bus.Subscribe(ctx, c.Apply)
}

// OnClientJoin publishes a join intent. The caller learns the outcome only
// through the lifecycle event replay later delivers to its connection.
func (c *Coordinator) OnClientJoin(ctx context.Context, room, name, connID string, payload map[string]any) {
	if room == "" || name == "" {
		c.log.Debug("quiz.join.dropped", "room", room, "name", name)
		return
	}
	c.publish(ctx, Intent{Kind: KindJoin, Room: room, Name: name, ConnID: connID, Payload: payload})
}

// OnClientLeave publishes a leave intent.
func (c *Coordinator) OnClientLeave(ctx context.Context, room, name, connID string) {
	if room == "" || name == "" {
		c.log.Debug("quiz.leave.dropped", "room", room, "name", name)
		return
	}
	c.publish(ctx, Intent{Kind: KindLeave, Room: room, Name: name, ConnID: connID})
}

// OnClientChat publishes a chat intent. Chat is not gated by membership.
func (c *Coordinator) OnClientChat(ctx context.Context, room, connID string, payload map[string]any) {
	if room == "" {
		c.log.Debug("quiz.chat.dropped")
		return
	}
	c.publish(ctx, Intent{Kind: KindChat, Room: room, ConnID: connID, Payload: payload})
}

func (c *Coordinator) publish(ctx context.Context, in Intent) {
	if err := c.bus.Publish(ctx, in); err != nil {
		c.log.Error("quiz.publish", "kind", in.Kind, "room", in.Room, "err", err)
		return
	}
	metrics.IntentsPublished.WithLabelValues(string(in.Kind)).Inc()
}

// Apply is the deterministic state transition, invoked once per message
// observed on the bus (self-originated ones included).
func (c *Coordinator) Apply(in Intent) {
	switch in.Kind {
	case KindJoin:
		c.applyJoin(in)
	case KindLeave:
		c.applyLeave(in)
	case KindChat:
		c.applyChat(in)
	default:
		c.log.Warn("quiz.apply.unknown_kind", "kind", in.Kind)
	}
}

func (c *Coordinator) applyJoin(in Intent) {
	members := c.rooms[in.Room]
	if members == nil {
		members = map[string]Participant{}
		c.rooms[in.Room] = members
	}

	_, known := members[in.Name]
	if len(members) >= maxRoomSize && !known {
		// Room full and this is a third name: same verdict on every
		// instance, error only on the one owning the connection.
		metrics.JoinsRejected.Inc()
		if c.reg.IsLocal(in.ConnID) {
			c.reg.EmitTo(in.ConnID, EventQuizError, ErrorEvent{Error: "room in use"})
		}
		return
	}

	rejoin := known && len(members) == maxRoomSize
	members[in.Name] = Participant{Name: in.Name, ConnID: in.ConnID, Data: in.Payload}
	metrics.JoinsAdmitted.Inc()
	if c.reg.IsLocal(in.ConnID) {
		c.reg.EnterRoom(in.ConnID, in.Room)
	}
	if rejoin {
		// Reconnect under the same name: connection id refreshed, the
		// quiz is already running, nothing to announce.
		c.log.Debug("quiz.rejoin", "room", in.Room, "name", in.Name)
		return
	}

	switch len(members) {
	case 1:
		c.reg.Emit(in.Room, EventUserJoined, RoomEvent{
			Type: "lobby",
			User: in.Name,
			Data: EventData{Users: snapshot(members)},
		})
	case maxRoomSize:
		c.reg.Emit(in.Room, EventQuizStart, RoomEvent{
			Type: "question",
			User: in.Name,
			Data: EventData{Users: snapshot(members), Question: emptyQuestion},
		})
	}
}

func (c *Coordinator) applyLeave(in Intent) {
	if c.reg.IsLocal(in.ConnID) {
		c.reg.LeaveRoom(in.ConnID, in.Room)
	}

	members, ok := c.rooms[in.Room]
	if !ok {
		return
	}
	if _, known := members[in.Name]; !known {
		// Duplicate or stale leave; tolerated, not an error.
		return
	}
	delete(members, in.Name)

	if len(members) == 0 {
		delete(c.rooms, in.Room)
		return
	}
	c.reg.Emit(in.Room, EventUserLeft, RoomEvent{
		Type: "lobby",
		User: in.Name,
		Data: EventData{Users: snapshot(members)},
	})
}

func (c *Coordinator) applyChat(in Intent) {
	c.reg.Emit(in.Room, EventChat, in.Payload)
}

// Members returns a copy of a room's membership, or ok=false if the room is
// not in the mirror. Meaningful only relative to the replay position of the
// goroutine running Apply.
func (c *Coordinator) Members(room string) (map[string]Participant, bool) {
	members, ok := c.rooms[room]
	if !ok {
		return nil, false
	}
	return snapshot(members), true
}

// snapshot copies membership so emitted events carry the state at emission
// time, not a live view of the mirror.
func snapshot(m map[string]Participant) map[string]Participant {
	out := make(map[string]Participant, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
