// Package client implements the client game loop: input generation and
// transmission, instant-input prediction with server reconciliation, and the
// interpolation state handed to the renderer. The loop runs at wall-clock
// speed; the simulation only advances on tick boundaries.
package client

import (
	"log"
	"time"

	"arena-core/internal/config"
	"arena-core/internal/game"
	"arena-core/internal/input"
	"arena-core/internal/protocol"
	"arena-core/internal/snap"
)

// InputSendCap bounds how many ticks of input one frame may transmit.
const InputSendCap = 7

// storedInputTicks bounds the retained per-tick input maps.
const storedInputTicks = 50

// Transport sends envelopes to the server. The websocket dialer implements
// it; tests plug in a capture.
type Transport interface {
	Send(t protocol.MsgType, ch protocol.Channel, payload any)
}

// Client drives one connection's game loop.
type Client struct {
	cfg       config.ClientConfig
	state     *game.State
	transport Transport
	timer     *PredictionTimer

	tickTime time.Duration

	// localSlots maps the client's slot ids to authoritative player ids
	// (from the ready response).
	localSlots map[uint64]game.PlayerID
	// localPlayers is the hint set recognized from the latest snapshot.
	localPlayers map[game.PlayerID]struct{}

	// lastSnaps is the bounded ring of received snapshots by snap id.
	lastSnaps   *snap.Ring
	pendingAcks []uint64

	// curStateSnap is the last confirmed game-local snapshot; restoring
	// from it before each prediction keeps repeated predictions for the
	// same tick idempotent.
	curStateSnap []byte

	// needFullBaseline pauses prediction until a full snapshot arrives
	// after a patch/parse failure.
	needFullBaseline bool

	lastGameTick time.Time
	started      bool

	inputSeq         uint64
	inputVersions    map[game.PlayerID]uint64
	sentHistory      map[game.PlayerID]*input.History
	inputSendTimes   map[uint64]time.Time
	lastAckedInputID uint64
	hasAckedInput    bool

	// storedInputs holds the per-tick input maps used by the prediction
	// tick loop, bounded to the last storedInputTicks ticks.
	storedInputs map[uint64]map[game.PlayerID]input.CharacterInput

	observed []ObservedViewport
}

// New creates a client game loop around a local simulation state.
func New(cfg config.ClientConfig, st *game.State, tr Transport) *Client {
	return &Client{
		cfg:            cfg,
		state:          st,
		transport:      tr,
		timer:          NewPredictionTimer(),
		tickTime:       time.Second / game.TicksPerSecond,
		localSlots:     make(map[uint64]game.PlayerID),
		localPlayers:   make(map[game.PlayerID]struct{}),
		lastSnaps:      snap.NewRing(),
		inputVersions:  make(map[game.PlayerID]uint64),
		sentHistory:    make(map[game.PlayerID]*input.History),
		inputSendTimes: make(map[uint64]time.Time),
		storedInputs:   make(map[uint64]map[game.PlayerID]input.CharacterInput),
	}
}

// Timer exposes the prediction timer.
func (c *Client) Timer() *PredictionTimer { return c.timer }

// State exposes the local simulation (render, tests).
func (c *Client) State() *game.State { return c.state }

// SendReady starts the join handshake for the given local players.
func (c *Client) SendReady(uniqueID uint64, players []protocol.LocalPlayer) {
	c.transport.Send(protocol.TypeReady, protocol.ChannelChat, protocol.MsgClReady{
		UniqueID: uniqueID,
		Players:  players,
	})
}

// OnReadyResponse records the authoritative ids of the local players.
func (c *Client) OnReadyResponse(msg *protocol.MsgSvReadyResponse) {
	for _, j := range msg.Joined {
		c.localSlots[j.Slot] = j.PlayerID
	}
	if msg.Kind == protocol.ReadyError {
		log.Printf("join failed: %s", msg.ErrorKind)
	}
}

// LocalPlayer resolves a slot id to the player id, once joined.
func (c *Client) LocalPlayer(slot uint64) (game.PlayerID, bool) {
	id, ok := c.localSlots[slot]
	return id, ok
}

// Frame advances the loop by one rendered frame. slotInputs carries the
// fresh input of each local player, keyed by slot.
func (c *Client) Frame(now time.Time, slotInputs map[uint64]input.CharacterInput) {
	if !c.started {
		c.lastGameTick = now
		c.started = true
	}
	c.timer.AddFrameTime(c.tickTime) // frame pacing sample; render measures real dt

	perPlayer := make(map[game.PlayerID]input.CharacterInput, len(slotInputs))
	for slot, in := range slotInputs {
		if pid, ok := c.localSlots[slot]; ok {
			perPlayer[pid] = in
		}
	}

	c.sendInputs(now, perPlayer)

	// Instant input: rebuild from the confirmed snapshot so this frame's
	// prediction starts from the same base as the last one.
	if c.cfg.Prediction && c.curStateSnap != nil && !c.needFullBaseline {
		if _, err := c.state.BuildFromSnapshot(c.curStateSnap); err != nil {
			log.Printf("prediction restore failed: %v", err)
			c.needFullBaseline = true
		}
	}

	// Advance whole ticks the wall clock has crossed.
	for now.Sub(c.lastGameTick) >= c.tickTime {
		c.lastGameTick = c.lastGameTick.Add(c.tickTime)
		if c.needFullBaseline {
			// Do not advance prediction until a full baseline arrives;
			// the user sees a stutter instead of divergence.
			continue
		}
		c.applyStoredInputs(c.state.MonotonicTick() + 1)
		c.state.Tick(game.TickOptions{})
	}

	if c.needFullBaseline {
		return
	}

	// The post-tick state is the interpolation source...
	prevBytes := c.state.SnapshotFor(game.SnapshotScope{ForPlayers: c.localPlayers})
	if err := c.state.BuildFromSnapshotForPrev(prevBytes); err != nil {
		log.Printf("prev rebuild failed: %v", err)
	}
	// ...and the restore point for the next frame's prediction.
	c.curStateSnap = prevBytes

	// One-tick future prediction so the local player's actions render with
	// zero delay. Events are suppressed.
	next := c.state.MonotonicTick() + 1
	if !c.applyStoredInputs(next) {
		c.applyStoredInputs(next - 1)
	}
	c.state.Tick(game.TickOptions{IsFutureTickPrediction: true})

	// Smoothed clock correction, bounded per frame.
	target := c.timer.PredTickOffset(c.tickTime)
	current := now.Sub(c.lastGameTick)
	adj := c.timer.Adjustment(current, target)
	c.lastGameTick = c.lastGameTick.Add(-adj)

	c.pruneStoredInputs()
}

// applyStoredInputs feeds the stored inputs of one tick into the simulation,
// deriving each player's edge diff against the previous tick's input.
func (c *Client) applyStoredInputs(tick uint64) bool {
	ins, ok := c.storedInputs[tick]
	if !ok {
		return false
	}
	set := make(map[game.PlayerID]game.SetInput, len(ins))
	for pid, in := range ins {
		var prev input.CharacterInput
		if m, ok := c.storedInputs[tick-1]; ok {
			prev = m[pid]
		}
		st := input.State{Input: prev}
		diff, _ := st.TryOverwrite(in, 1, true)
		set[pid] = game.SetInput{Input: in, Diff: diff}
	}
	c.state.SetPlayerInputs(set)
	return true
}

func (c *Client) pruneStoredInputs() {
	cur := c.state.MonotonicTick()
	for tick := range c.storedInputs {
		if tick+storedInputTicks < cur {
			delete(c.storedInputs, tick)
		}
	}
}

// sendInputs encodes this frame's input chains against the last acked
// baseline and transmits them with the pending snapshot acks.
func (c *Client) sendInputs(now time.Time, perPlayer map[game.PlayerID]input.CharacterInput) {
	if len(perPlayer) == 0 && len(c.pendingAcks) == 0 {
		return
	}

	units := c.timer.TimeUnitsToRespect(c.tickTime, InputSendCap)
	firstTick := c.state.MonotonicTick() + 1

	c.inputSeq++
	msg := protocol.MsgClInputs{
		ID:      c.inputSeq,
		Inputs:  make(map[game.PlayerID]protocol.InputChain, len(perPlayer)),
		SnapAck: c.pendingAcks,
	}
	c.pendingAcks = nil

	for pid, in := range perPlayer {
		hist, ok := c.sentHistory[pid]
		if !ok {
			hist = input.NewHistory()
			c.sentHistory[pid] = hist
		}

		var base input.CharacterInput
		var diffID *uint64
		if c.hasAckedInput {
			if b, ok := hist.Get(c.lastAckedInputID); ok {
				base = b
				id := c.lastAckedInputID
				diffID = &id
			}
		}

		// The whole window carries the current input; the server applies
		// each at its tick.
		inputs := make([]input.CharacterInput, units)
		for i := range inputs {
			inputs[i] = in
		}
		version := c.inputVersions[pid] + 1
		c.inputVersions[pid] = version + uint64(units) - 1

		msg.Inputs[pid] = protocol.InputChain{
			Chain: input.Chain{
				DiffID: diffID,
				AsDiff: true,
				Data:   input.EncodeChain(base, inputs),
			},
			ForTick: firstTick,
			Version: version,
		}
		hist.Store(msg.ID, in)

		// Remember the inputs for the prediction tick loop.
		for i := 0; i < units; i++ {
			tick := firstTick + uint64(i)
			m, ok := c.storedInputs[tick]
			if !ok {
				m = make(map[game.PlayerID]input.CharacterInput)
				c.storedInputs[tick] = m
			}
			m[pid] = in
		}
	}

	c.inputSendTimes[msg.ID] = now
	if len(c.inputSendTimes) > 64 {
		for id := range c.inputSendTimes {
			if id+64 < msg.ID {
				delete(c.inputSendTimes, id)
			}
		}
	}

	c.transport.Send(protocol.TypeInputs, protocol.ChannelInputs, msg)
}

// OnSnapshot ingests a server snapshot: reconstructs it from its baseline if
// diffed, rebuilds the local world and the interpolation source, and queues
// the ack.
func (c *Client) OnSnapshot(msg *protocol.MsgSvSnapshot, now time.Time) {
	data := msg.Data
	if msg.AsDiff {
		if msg.DiffID == nil {
			c.needFullBaseline = true
			return
		}
		baseline, ok := c.lastSnaps.Get(*msg.DiffID)
		if !ok {
			// Baseline lost: request a full snapshot by not acking, and
			// freeze prediction until one arrives.
			c.needFullBaseline = true
			return
		}
		full, err := snap.Apply(baseline, data)
		if err != nil {
			log.Printf("snapshot patch failed: %v", err)
			c.needFullBaseline = true
			return
		}
		data = full
	}

	if _, err := game.ParseSnapshot(data); err != nil {
		log.Printf("snapshot parse failed: %v", err)
		c.needFullBaseline = true
		return
	}

	c.lastSnaps.Store(msg.SnapID, data)
	c.pendingAcks = append(c.pendingAcks, msg.SnapID)
	if len(c.pendingAcks) > snap.RingCap {
		c.pendingAcks = c.pendingAcks[len(c.pendingAcks)-snap.RingCap:]
	}

	local, err := c.state.BuildFromSnapshot(data)
	if err != nil {
		log.Printf("snapshot rebuild failed: %v", err)
		c.needFullBaseline = true
		return
	}
	c.localPlayers = local
	c.curStateSnap = data
	c.needFullBaseline = false

	// Rebuild the previous world from a slightly older snapshot so
	// interpolation has two confirmed states.
	if prevData, ok := c.lastSnaps.Get(msg.SnapID - 1); ok {
		c.state.BuildFromSnapshotForPrev(prevData)
	} else {
		c.state.BuildFromSnapshotForPrev(data)
	}

	// Input acks double as RTT samples.
	for _, ack := range msg.InputAck {
		if sent, ok := c.inputSendTimes[ack.ID]; ok {
			rtt := now.Sub(sent) - time.Duration(ack.LogicOverheadMS)*time.Millisecond
			if rtt > 0 {
				c.timer.AddPingSample(rtt)
			}
			delete(c.inputSendTimes, ack.ID)
		}
		if ack.ID > c.lastAckedInputID || !c.hasAckedInput {
			c.lastAckedInputID = ack.ID
			c.hasAckedInput = true
		}
	}
}
