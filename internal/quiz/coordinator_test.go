package quiz

import (
	"context"
	"io"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/require"
)

// fanoutBus delivers every published intent synchronously, in publish order,
// to all attached handlers. It stands in for the redis channel: one total
// order observed by every "process".
type fanoutBus struct {
	handlers  []func(Intent)
	published []Intent
}

func (b *fanoutBus) Publish(_ context.Context, in Intent) error {
	b.published = append(b.published, in)
	for _, h := range b.handlers {
		h(in)
	}
	return nil
}

func (b *fanoutBus) Subscribe(ctx context.Context, fn func(Intent)) {
	b.handlers = append(b.handlers, fn)
	<-ctx.Done()
}

func (b *fanoutBus) attach(c *Coordinator) { b.handlers = append(b.handlers, c.Apply) }

type emitted struct {
	room   string
	connID string
	event  string
	data   any
}

// fakeRegistry records deliveries for the connections it "owns".
type fakeRegistry struct {
	conns  map[string]bool
	rooms  map[string]map[string]bool // room -> connID set
	events []emitted
	direct []emitted // EmitTo deliveries
}

func newFakeRegistry(conns ...string) *fakeRegistry {
	f := &fakeRegistry{conns: map[string]bool{}, rooms: map[string]map[string]bool{}}
	for _, c := range conns {
		f.conns[c] = true
	}
	return f
}

func (f *fakeRegistry) EnterRoom(connID, room string) {
	if f.rooms[room] == nil {
		f.rooms[room] = map[string]bool{}
	}
	f.rooms[room][connID] = true
}

func (f *fakeRegistry) LeaveRoom(connID, room string) {
	delete(f.rooms[room], connID)
}

func (f *fakeRegistry) Emit(room, event string, data any) {
	f.events = append(f.events, emitted{room: room, event: event, data: data})
}

func (f *fakeRegistry) EmitTo(connID, event string, data any) {
	f.direct = append(f.direct, emitted{connID: connID, event: event, data: data})
}

func (f *fakeRegistry) IsLocal(connID string) bool { return f.conns[connID] }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// single-process harness: one coordinator looped back through the bus.
func newTestCoordinator(conns ...string) (*Coordinator, *fakeRegistry, *fanoutBus) {
	bus := &fanoutBus{}
	reg := newFakeRegistry(conns...)
	c := NewCoordinator(testLogger(), bus, reg)
	bus.attach(c)
	return c, reg, bus
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	c, reg, _ := newTestCoordinator("c1", "c2", "c3")

	// First join: lobby.
	c.OnClientJoin(ctx, "R1", "alice", "c1", map[string]any{"avatar": "fox"})
	require.Len(t, reg.events, 1)
	ev := reg.events[0]
	require.Equal(t, "R1", ev.room)
	require.Equal(t, EventUserJoined, ev.event)
	re := ev.data.(RoomEvent)
	require.Equal(t, "lobby", re.Type)
	require.Equal(t, "alice", re.User)
	require.Len(t, re.Data.Users, 1)
	require.Equal(t, "c1", re.Data.Users["alice"].ConnID)
	require.True(t, reg.rooms["R1"]["c1"], "joining conn marked for local delivery")

	// Second join: quiz starts.
	c.OnClientJoin(ctx, "R1", "bob", "c2", nil)
	require.Len(t, reg.events, 2)
	ev = reg.events[1]
	require.Equal(t, EventQuizStart, ev.event)
	re = ev.data.(RoomEvent)
	require.Equal(t, "question", re.Type)
	require.Equal(t, "bob", re.User)
	require.Len(t, re.Data.Users, 2)
	require.JSONEq(t, `{}`, string(re.Data.Question))

	// Third name: rejected, error to the offending connection only.
	c.OnClientJoin(ctx, "R1", "carol", "c3", nil)
	require.Len(t, reg.events, 2, "no room event for a rejected join")
	require.Len(t, reg.direct, 1)
	require.Equal(t, "c3", reg.direct[0].connID)
	require.Equal(t, EventQuizError, reg.direct[0].event)
	require.Equal(t, ErrorEvent{Error: "room in use"}, reg.direct[0].data)
	members, ok := c.Members("R1")
	require.True(t, ok)
	require.Len(t, members, 2)
	require.NotContains(t, members, "carol")
	require.False(t, reg.rooms["R1"]["c3"])

	// Alice leaves: bob alone in the lobby.
	c.OnClientLeave(ctx, "R1", "alice", "c1")
	require.Len(t, reg.events, 3)
	ev = reg.events[2]
	require.Equal(t, EventUserLeft, ev.event)
	re = ev.data.(RoomEvent)
	require.Equal(t, "alice", re.User)
	require.Len(t, re.Data.Users, 1)
	require.Contains(t, re.Data.Users, "bob")
	require.False(t, reg.rooms["R1"]["c1"])

	// Bob leaves: room removed from the mirror, nothing announced.
	c.OnClientLeave(ctx, "R1", "bob", "c2")
	require.Len(t, reg.events, 3)
	_, ok = c.Members("R1")
	require.False(t, ok, "empty room garbage-collected")
}

func TestRejectionIsIdempotent(t *testing.T) {
	c, reg, _ := newTestCoordinator("c1", "c2", "c3")

	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "alice", ConnID: "c1"})
	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "bob", ConnID: "c2"})

	reject := Intent{Kind: KindJoin, Room: "R1", Name: "carol", ConnID: "c3"}
	c.Apply(reject)
	c.Apply(reject) // duplicate delivery

	members, _ := c.Members("R1")
	require.Len(t, members, 2)
	require.NotContains(t, members, "carol")
	require.Len(t, reg.direct, 2, "each replay answers, neither mutates")
}

func TestRejoinReplacesConnection(t *testing.T) {
	c, reg, _ := newTestCoordinator("c1", "c2", "c9")

	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "alice", ConnID: "c1"})
	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "bob", ConnID: "c2"})
	before := len(reg.events)

	// Alice reconnects under a new connection id.
	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "alice", ConnID: "c9"})

	members, _ := c.Members("R1")
	require.Len(t, members, 2)
	require.Equal(t, "c9", members["alice"].ConnID)
	require.Equal(t, "c2", members["bob"].ConnID, "other member untouched")
	require.Len(t, reg.events, before, "no quiz_start re-emitted on rejoin")
	require.Empty(t, reg.direct)
	require.True(t, reg.rooms["R1"]["c9"], "new connection marked for delivery")
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	c, reg, _ := newTestCoordinator("c1", "c2")

	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "alice", ConnID: "c1"})
	before := len(reg.events)

	// Name never joined.
	c.Apply(Intent{Kind: KindLeave, Room: "R1", Name: "mallory", ConnID: "c2"})
	members, ok := c.Members("R1")
	require.True(t, ok)
	require.Len(t, members, 1)
	require.Len(t, reg.events, before)

	// Room never existed.
	c.Apply(Intent{Kind: KindLeave, Room: "nope", Name: "alice", ConnID: "c1"})
	_, ok = c.Members("nope")
	require.False(t, ok)
	require.Len(t, reg.events, before)
}

func TestMalformedIntentsDropped(t *testing.T) {
	ctx := context.Background()
	c, _, bus := newTestCoordinator("c1")

	c.OnClientJoin(ctx, "", "alice", "c1", nil)
	c.OnClientJoin(ctx, "R1", "", "c1", nil)
	c.OnClientLeave(ctx, "", "alice", "c1")
	c.OnClientLeave(ctx, "R1", "", "c1")
	c.OnClientChat(ctx, "", "c1", nil)

	require.Empty(t, bus.published, "malformed intents never reach the bus")
}

func TestChatIsNotGatedByMembership(t *testing.T) {
	ctx := context.Background()
	c, reg, _ := newTestCoordinator("c1")

	payload := map[string]any{"room": "R1", "text": "hello?"}
	c.OnClientChat(ctx, "R1", "c1", payload)

	require.Len(t, reg.events, 1)
	require.Equal(t, EventChat, reg.events[0].event)
	require.Equal(t, "R1", reg.events[0].room)
	require.Equal(t, payload, reg.events[0].data)
}

func TestMirrorsConvergeAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	bus := &fanoutBus{}

	// Three instances, each owning one client connection.
	regs := []*fakeRegistry{newFakeRegistry("c1"), newFakeRegistry("c2"), newFakeRegistry("c3")}
	coords := make([]*Coordinator, len(regs))
	for i, reg := range regs {
		coords[i] = NewCoordinator(testLogger(), bus, reg)
		bus.attach(coords[i])
	}

	assertConverged := func(rooms ...string) {
		t.Helper()
		for _, room := range rooms {
			want, wantOK := coords[0].Members(room)
			require.LessOrEqual(t, len(want), 2, "capacity invariant")
			for _, c := range coords[1:] {
				got, ok := c.Members(room)
				require.Equal(t, wantOK, ok)
				require.Equal(t, want, got)
			}
		}
	}

	// Intents originate on different instances; the bus imposes one order.
	coords[0].OnClientJoin(ctx, "R1", "alice", "c1", nil)
	assertConverged("R1")
	coords[1].OnClientJoin(ctx, "R1", "bob", "c2", nil)
	assertConverged("R1")
	coords[2].OnClientJoin(ctx, "R1", "carol", "c3", nil)
	assertConverged("R1")
	coords[2].OnClientJoin(ctx, "R2", "carol", "c3", nil)
	assertConverged("R1", "R2")
	coords[1].OnClientLeave(ctx, "R1", "bob", "c2")
	assertConverged("R1", "R2")
	coords[0].OnClientLeave(ctx, "R1", "alice", "c1")
	assertConverged("R1", "R2")

	_, ok := coords[0].Members("R1")
	require.False(t, ok)
	members, _ := coords[1].Members("R2")
	require.Len(t, members, 1)

	// Carol's rejection surfaced only on the instance owning her socket.
	require.Empty(t, regs[0].direct)
	require.Empty(t, regs[1].direct)
	require.Len(t, regs[2].direct, 1)
	require.Equal(t, EventQuizError, regs[2].direct[0].event)
}

func TestSimultaneousFirstJoinsBothAdmitted(t *testing.T) {
	// Two new names race into an empty room; the second replay sees the
	// first's effect and completes the pair instead of rejecting it.
	c, reg, _ := newTestCoordinator("c1", "c2")

	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "alice", ConnID: "c1"})
	c.Apply(Intent{Kind: KindJoin, Room: "R1", Name: "bob", ConnID: "c2"})

	members, _ := c.Members("R1")
	require.Len(t, members, 2)
	require.Empty(t, reg.direct)
	require.Equal(t, EventQuizStart, reg.events[len(reg.events)-1].event)
}
