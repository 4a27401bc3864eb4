package client

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"arena-core/internal/config"
	"arena-core/internal/game"
	"arena-core/internal/input"
	"arena-core/internal/protocol"
)

// captureTransport records every sent envelope.
type captureTransport struct {
	sent []struct {
		Type    protocol.MsgType
		Payload any
	}
}

func (ct *captureTransport) Send(t protocol.MsgType, _ protocol.Channel, payload any) {
	ct.sent = append(ct.sent, struct {
		Type    protocol.MsgType
		Payload any
	}{t, payload})
}

func (ct *captureTransport) lastInputs(t *testing.T) *protocol.MsgClInputs {
	t.Helper()
	for i := len(ct.sent) - 1; i >= 0; i-- {
		if ct.sent[i].Type == protocol.TypeInputs {
			m := ct.sent[i].Payload.(protocol.MsgClInputs)
			return &m
		}
	}
	return nil
}

func newTestClient(t *testing.T) (*Client, *captureTransport, game.PlayerID) {
	t.Helper()
	grid, _ := game.BuildMap("dm1")
	tunes := game.NewTuneTable(game.DefaultTunings())

	// Authoritative state producing the snapshot the client joins from.
	server := game.NewState(grid, tunes, game.DefaultOptions(), 1)
	pid := server.PlayerJoin(game.JoinInfo{Info: game.CharacterInfo{Name: "local"}})
	for i := 0; i < 3; i++ {
		server.Tick(game.TickOptions{})
	}
	snapBytes := server.SnapshotFor(game.SnapshotScope{ForPlayers: map[game.PlayerID]struct{}{pid: {}}})

	grid2, _ := game.BuildMap("dm1")
	local := game.NewState(grid2, game.NewTuneTable(game.DefaultTunings()), game.DefaultOptions(), 2)

	tr := &captureTransport{}
	cfg := config.DefaultClient()
	c := New(cfg, local, tr)
	c.OnReadyResponse(&protocol.MsgSvReadyResponse{
		Kind:   protocol.ReadySuccess,
		Joined: []protocol.JoinedID{{Slot: 0, PlayerID: pid}},
	})
	c.OnSnapshot(&protocol.MsgSvSnapshot{SnapID: 1, Data: snapBytes}, time.Now())
	return c, tr, pid
}

// TestSnapshotIngest rebuilds the local world and recognizes the local
// player hints.
func TestSnapshotIngest(t *testing.T) {
	c, _, pid := newTestClient(t)
	if _, ok := c.localPlayers[pid]; !ok {
		t.Fatal("local player not recognized from snapshot hints")
	}
	if c.state.Players().Len() != 1 {
		t.Errorf("players = %d, want 1", c.state.Players().Len())
	}
	if len(c.pendingAcks) != 1 || c.pendingAcks[0] != 1 {
		t.Errorf("pending acks = %v, want [1]", c.pendingAcks)
	}
}

// TestFrameSendsBoundedInputChain transmits at most the cap's worth of
// ticks and acks the received snapshot.
func TestFrameSendsBoundedInputChain(t *testing.T) {
	c, tr, pid := newTestClient(t)

	now := time.Now()
	c.Frame(now, map[uint64]input.CharacterInput{0: {Dir: 1}})

	msg := tr.lastInputs(t)
	if msg == nil {
		t.Fatal("no inputs message sent")
	}
	chain, ok := msg.Inputs[pid]
	if !ok {
		t.Fatal("no chain for the local player")
	}
	n := len(chain.Chain.Data) / input.DefLen
	if n < 1 || n > InputSendCap {
		t.Errorf("chain carries %d inputs, cap is %d", n, InputSendCap)
	}
	if !chain.Chain.AsDiff {
		t.Error("client chains should establish baselines")
	}
	if len(msg.SnapAck) != 1 || msg.SnapAck[0] != 1 {
		t.Errorf("snap ack = %v, want [1]", msg.SnapAck)
	}

	inputs, err := input.DecodeChain(input.CharacterInput{}, chain.Chain.Data)
	if err != nil {
		t.Fatalf("decode chain: %v", err)
	}
	for i, in := range inputs {
		if in.Dir != 1 {
			t.Errorf("input %d: dir = %d", i, in.Dir)
		}
	}
}

// TestInstantInputIdempotence renders two frames with no tick boundary
// crossed and expects identical visible state.
func TestInstantInputIdempotence(t *testing.T) {
	c, _, _ := newTestClient(t)

	now := time.Now()
	in := map[uint64]input.CharacterInput{0: {Dir: 1, CursorX: 300}}

	c.Frame(now, in)
	first := c.RenderState(now)

	// Same wall-clock instant: no tick boundary crossed between frames.
	c.Frame(now, in)
	second := c.RenderState(now)

	if !reflect.DeepEqual(first.Chars, second.Chars) {
		t.Fatalf("visible state changed across idle frames:\n%+v\n%+v", first.Chars, second.Chars)
	}
}

// TestPredictionAdvancesAcrossTicks crosses tick boundaries and expects the
// predicted world to move under held input.
func TestPredictionAdvancesAcrossTicks(t *testing.T) {
	c, _, pid := newTestClient(t)

	start := time.Now()
	in := map[uint64]input.CharacterInput{0: {Dir: 1}}
	c.Frame(start, in)
	tick0 := c.state.MonotonicTick()

	c.Frame(start.Add(5*c.tickTime), in)
	if got := c.state.MonotonicTick(); got <= tick0 {
		t.Fatalf("tick did not advance: %d -> %d", tick0, got)
	}
	if _, ok := c.state.CharacterIDOf(pid); !ok {
		t.Fatal("local character lost across prediction")
	}
}

// TestDiffedSnapshotMissingBaseline freezes prediction until a full
// snapshot arrives.
func TestDiffedSnapshotMissingBaseline(t *testing.T) {
	c, _, _ := newTestClient(t)

	missing := uint64(777)
	c.OnSnapshot(&protocol.MsgSvSnapshot{
		SnapID: 9, AsDiff: true, DiffID: &missing, Data: []byte{1, 2, 3},
	}, time.Now())

	if !c.needFullBaseline {
		t.Fatal("missing baseline must freeze prediction")
	}
	tickBefore := c.state.MonotonicTick()
	c.Frame(time.Now().Add(3*c.tickTime), map[uint64]input.CharacterInput{0: {Dir: 1}})
	if c.state.MonotonicTick() != tickBefore {
		t.Error("prediction advanced without a baseline")
	}

	// A fresh full snapshot recovers.
	snapBytes := c.lastSnapsData(t, 1)
	c.OnSnapshot(&protocol.MsgSvSnapshot{SnapID: 10, Data: snapBytes}, time.Now())
	if c.needFullBaseline {
		t.Error("full snapshot did not clear the baseline freeze")
	}
}

// lastSnapsData fetches a stored snapshot from the ring.
func (c *Client) lastSnapsData(t *testing.T, id uint64) []byte {
	t.Helper()
	data, ok := c.lastSnaps.Get(id)
	if !ok {
		t.Fatalf("snapshot %d not in ring", id)
	}
	return data
}

// TestObservedViewports follows a player and skips vanished ones.
func TestObservedViewports(t *testing.T) {
	c, _, pid := newTestClient(t)
	c.ObserveDummy(pid, AnchorBottomRight)

	frames := c.RenderObserved(time.Now())
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Viewport.Player != pid || frames[0].Viewport.Anchor != AnchorBottomRight {
		t.Errorf("viewport = %+v", frames[0].Viewport)
	}

	c.StopObserving(pid)
	if frames := c.RenderObserved(time.Now()); len(frames) != 0 {
		t.Errorf("frames after stop = %d", len(frames))
	}
}

// TestPredTimerUnits caps transmitted ticks at the protocol limit.
func TestPredTimerUnits(t *testing.T) {
	pt := NewPredictionTimer()
	tickTime := time.Second / game.TicksPerSecond

	if got := pt.TimeUnitsToRespect(tickTime, 7); got < 1 || got > 7 {
		t.Errorf("fresh timer units = %d", got)
	}

	// A terrible connection saturates at the cap.
	for i := 0; i < 50; i++ {
		pt.AddPingSample(400 * time.Millisecond)
		pt.AddPingSample(100 * time.Millisecond)
	}
	if got := pt.TimeUnitsToRespect(tickTime, 7); got != 7 {
		t.Errorf("jittery timer units = %d, want 7", got)
	}
}

// TestPredTimerAdjustmentClamped bounds corrections to half a frame.
func TestPredTimerAdjustmentClamped(t *testing.T) {
	pt := NewPredictionTimer()
	pt.AddFrameTime(16 * time.Millisecond)

	for i := 0; i < 100; i++ {
		adj := pt.Adjustment(0, time.Second)
		if adj > 8*time.Millisecond || adj < -8*time.Millisecond {
			t.Fatalf("adjustment %v exceeds half a frame", adj)
		}
	}
}

// TestEnvelopeRoundTrip sanity-checks the protocol encoding used by the
// transport.
func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := protocol.Encode(protocol.TypeQueueInfo, protocol.ChannelChat, protocol.MsgSvQueueInfo{Text: "#1"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != protocol.TypeQueueInfo {
		t.Errorf("type = %s", env.Type)
	}
	var msg protocol.MsgSvQueueInfo
	if err := json.Unmarshal(env.Payload, &msg); err != nil || msg.Text != "#1" {
		t.Errorf("payload = %+v, err %v", msg, err)
	}
}
