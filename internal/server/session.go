package server

import (
	"log"
	"time"

	"arena-core/internal/console"
	"arena-core/internal/game"
	"arena-core/internal/input"
	"arena-core/internal/protocol"
	"arena-core/internal/snap"
)

// sessState is the per-connection lifecycle state.
type sessState uint8

const (
	// stateQueued: server full, waiting for a slot.
	stateQueued sessState = iota
	// stateNetworkPending: ServerInfo sent, waiting for Ready.
	stateNetworkPending
	// stateReady: at least one local player joined.
	stateReady
)

// Session is the server-side state of one connection.
type Session struct {
	conn  *Conn
	state sessState

	// uniqueID identifies the client installation across reconnects; the
	// timeout-player retention is keyed on (uniqueID, slot).
	uniqueID uint64

	// players maps client slot ids to authoritative player ids.
	players map[uint64]game.PlayerID

	// Per-player input reconstruction state.
	inputHist  map[game.PlayerID]*input.History
	inputState map[game.PlayerID]*input.State

	// Snapshot baseline ring and ack state.
	ring    *snap.Ring
	snapSeq uint64
	lastAck uint64
	hasAck  bool

	// pendingAcks piggyback on the next snapshot.
	pendingAcks []protocol.InputAck

	rconAuth    console.AuthLevel
	connectedAt time.Time
	queuePos    int
}

func newSession(conn *Conn) *Session {
	return &Session{
		conn:        conn,
		players:     make(map[uint64]game.PlayerID),
		inputHist:   make(map[game.PlayerID]*input.History),
		inputState:  make(map[game.PlayerID]*input.State),
		ring:        snap.NewRing(),
		connectedAt: time.Now(),
	}
}

// playerIDs returns the session's joined players as a set.
func (s *Session) playerIDs() map[game.PlayerID]struct{} {
	out := make(map[game.PlayerID]struct{}, len(s.players))
	for _, id := range s.players {
		out[id] = struct{}{}
	}
	return out
}

// ownsPlayer reports whether a player id belongs to this session.
func (s *Session) ownsPlayer(id game.PlayerID) bool {
	for _, pid := range s.players {
		if pid == id {
			return true
		}
	}
	return false
}

// handleInputs ingests one Inputs message: reconstructs every chain against
// its baseline, stores as_diff results, and queues the inputs for their
// target ticks. Chains referencing an evicted baseline are dropped; the rest
// of the message still applies.
func (sv *Server) handleInputs(s *Session, msg *protocol.MsgClInputs, recvAt time.Time) {
	if s.state != stateReady {
		return
	}

	// Snapshot acks ride on input messages.
	for _, ack := range msg.SnapAck {
		if ack > s.lastAck || !s.hasAck {
			if _, ok := s.ring.Get(ack); ok {
				s.lastAck = ack
				s.hasAck = true
				s.ring.Pin(ack)
			}
		}
	}

	for pid, chain := range msg.Inputs {
		if !s.ownsPlayer(pid) {
			continue
		}
		hist, ok := s.inputHist[pid]
		if !ok {
			hist = input.NewHistory()
			s.inputHist[pid] = hist
		}

		var base input.CharacterInput
		if chain.Chain.DiffID != nil {
			b, ok := hist.Get(*chain.Chain.DiffID)
			if !ok {
				// Baseline evicted: drop this chain, keep the rest.
				inputsDropped.Inc()
				continue
			}
			base = b
		}

		inputs, err := input.DecodeChain(base, chain.Chain.Data)
		if err != nil {
			log.Printf("conn %d: bad input chain: %v", s.conn.id, err)
			continue
		}
		if len(inputs) == 0 {
			continue
		}
		// Duplicate message ids never rewrite a baseline: History.Store
		// ignores known ids.
		if chain.Chain.AsDiff {
			hist.Store(msg.ID, inputs[len(inputs)-1])
		}

		st := s.inputState[pid]
		if st == nil {
			st = &input.State{}
			s.inputState[pid] = st
		}
		for i, in := range inputs {
			tick := chain.ForTick + uint64(i)
			version := chain.Version + uint64(i)
			diff, applied := st.TryOverwrite(in, version, false)
			if !applied {
				continue
			}
			sv.queueInput(tick, pid, game.SetInput{Input: in, Diff: diff})
		}
	}

	s.pendingAcks = append(s.pendingAcks, protocol.InputAck{
		ID:              msg.ID,
		LogicOverheadMS: time.Since(recvAt).Milliseconds(),
	})
}

// queueInput buffers an input for a future tick; inputs for the current or
// past ticks apply on the next tick.
func (sv *Server) queueInput(tick uint64, pid game.PlayerID, in game.SetInput) {
	cur := sv.state.MonotonicTick()
	if tick <= cur {
		tick = cur + 1
	}
	m, ok := sv.queuedInputs[tick]
	if !ok {
		m = make(map[game.PlayerID]game.SetInput)
		sv.queuedInputs[tick] = m
	}
	m[pid] = in
}

// sendSnapshot produces and sends this session's snapshot for the current
// tick, as a diff against its latest-acked baseline when one is available.
func (sv *Server) sendSnapshot(s *Session, overhead time.Duration) {
	snapBytes := sv.state.SnapshotFor(game.SnapshotScope{ForPlayers: s.playerIDs()})
	snapshotBytes.Observe(float64(len(snapBytes)))

	s.snapSeq++
	id := s.snapSeq
	s.ring.Store(id, snapBytes)

	msg := protocol.MsgSvSnapshot{
		SnapID:                id,
		Data:                  snapBytes,
		GameMonotonicTickDiff: sv.state.MonotonicTick(),
		OverheadTimeMS:        overhead.Milliseconds(),
		InputAck:              s.pendingAcks,
	}
	s.pendingAcks = nil

	if s.hasAck {
		if baseline, ok := s.ring.Get(s.lastAck); ok {
			patch := snap.Diff(baseline, snapBytes)
			// A diff bigger than the snapshot is not worth sending.
			if len(patch) < len(snapBytes) {
				diffID := s.lastAck
				msg.AsDiff = true
				msg.DiffID = &diffID
				msg.Data = patch
			}
		}
	}
	snapshotDiffBytes.Observe(float64(len(msg.Data)))

	s.conn.Send(protocol.TypeSnapshot, protocol.ChannelInputs, msg)
}
