package server

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"arena-core/internal/config"
	"arena-core/internal/game"
	"arena-core/internal/input"
	"arena-core/internal/protocol"
	"arena-core/internal/snap"
)

func testServer(maxConns int) *Server {
	grid, hash := game.BuildMap("dm1")
	st := game.NewState(grid, game.NewTuneTable(game.DefaultTunings()), game.DefaultOptions(), 1)
	cfg := config.DefaultServer()
	cfg.MaxConnections = maxConns
	return New(cfg, st, "dm1", hash)
}

var nextTestConn uint64

// fakeConn builds a connection that never touches a real socket; Send
// queues into the buffered channel, which tests drain with recvAll.
func fakeConn(ip string) *Conn {
	nextTestConn++
	return &Conn{
		id:   nextTestConn,
		ip:   ip,
		send: make(chan []byte, sendQueueLen),
		when: time.Now(),
	}
}

// recvAll drains and decodes everything queued on a connection.
func recvAll(t *testing.T, c *Conn) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case data := <-c.send:
			env, err := protocol.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func lastOfType(envs []protocol.Envelope, mt protocol.MsgType) (protocol.Envelope, bool) {
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == mt {
			return envs[i], true
		}
	}
	return protocol.Envelope{}, false
}

// ready performs the handshake for one local player and returns its id.
func ready(t *testing.T, sv *Server, c *Conn, uniqueID uint64, name string) game.PlayerID {
	t.Helper()
	sv.handleReady(sv.sessions[c.id], &protocol.MsgClReady{
		UniqueID: uniqueID,
		Players:  []protocol.LocalPlayer{{ID: 0, Info: protocol.CharacterInfo{Name: name}}},
	})
	envs := recvAll(t, c)
	env, ok := lastOfType(envs, protocol.TypeReadyResponse)
	if !ok {
		t.Fatal("no ready response")
	}
	var resp protocol.MsgSvReadyResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Kind != protocol.ReadySuccess {
		t.Fatalf("ready response = %+v", resp)
	}
	return resp.Joined[0].PlayerID
}

// TestQueuePromotion is the end-to-end queue scenario: a full server queues
// the second client and promotes it when the first leaves.
func TestQueuePromotion(t *testing.T) {
	sv := testServer(1)

	a := fakeConn("10.0.0.1")
	sv.onConnOpen(a)
	envs := recvAll(t, a)
	if _, ok := lastOfType(envs, protocol.TypeServerInfo); !ok {
		t.Fatal("client A did not receive ServerInfo")
	}
	ready(t, sv, a, 1, "alice")

	b := fakeConn("10.0.0.2")
	sv.onConnOpen(b)
	envs = recvAll(t, b)
	env, ok := lastOfType(envs, protocol.TypeQueueInfo)
	if !ok {
		t.Fatal("client B did not receive QueueInfo")
	}
	var qi protocol.MsgSvQueueInfo
	json.Unmarshal(env.Payload, &qi)
	if qi.Text == "" || !bytes.Contains([]byte(qi.Text), []byte("#1")) {
		t.Errorf("queue info text = %q, want position #1", qi.Text)
	}

	// A disconnects; B is promoted and can become ready.
	sv.onConnClose(a, true)
	envs = recvAll(t, b)
	if _, ok := lastOfType(envs, protocol.TypeServerInfo); !ok {
		t.Fatal("client B was not promoted with ServerInfo")
	}
	ready(t, sv, b, 2, "bob")
}

// TestVoteKickQuorum is the 4-client kick scenario: implicit votes, quorum
// termination, ban and kick of the target.
func TestVoteKickQuorum(t *testing.T) {
	sv := testServer(8)

	conns := make([]*Conn, 4)
	pids := make([]game.PlayerID, 4)
	names := []string{"c1", "c2", "c3", "c4"}
	ips := []string{"10.1.0.1", "10.1.0.2", "10.1.0.3", "10.1.0.4"}
	for i := range conns {
		conns[i] = fakeConn(ips[i])
		sv.onConnOpen(conns[i])
		recvAll(t, conns[i])
		pids[i] = ready(t, sv, conns[i], uint64(100+i), names[i])
	}

	res := sv.startVote(sv.sessions[conns[0].id], &protocol.MsgClPlayerMsg{
		PlayerID:   pids[0],
		Kind:       protocol.PlayerMsgStartVote,
		VoteKind:   protocol.VoteStartKick,
		VoteTarget: pids[3],
	})
	if res != protocol.StartVoteOK {
		t.Fatalf("start vote = %v", res)
	}
	v := sv.vote
	if v.yes != 1 || v.no != 1 || v.allowed != 4 {
		t.Fatalf("initial tally yes=%d no=%d allowed=%d, want 1/1/4", v.yes, v.no, v.allowed)
	}

	sv.castVote(sv.sessions[conns[1].id], true)
	if sv.vote == nil {
		t.Fatal("vote ended early")
	}
	sv.castVote(sv.sessions[conns[2].id], true)

	// yes=3 no=1: yes+no == allowed terminates, yes > no passes.
	if sv.vote != nil {
		t.Fatal("vote should have terminated at quorum")
	}
	ban, banned := sv.bans[ips[3]]
	if !banned {
		t.Fatal("target IP not banned")
	}
	if until := time.Until(ban.Until); until < 14*time.Minute || until > 16*time.Minute {
		t.Errorf("ban duration ~%v, want 15 minutes", until)
	}
	if sv.state.Players().Contains(pids[3]) {
		t.Error("kicked player still ingame")
	}
}

// TestVoteRules covers self-vote, moderator immunity, concurrent-vote and
// double-vote restrictions.
func TestVoteRules(t *testing.T) {
	sv := testServer(8)
	a := fakeConn("10.2.0.1")
	b := fakeConn("10.2.0.2")
	sv.onConnOpen(a)
	sv.onConnOpen(b)
	recvAll(t, a)
	recvAll(t, b)
	pa := ready(t, sv, a, 1, "a")
	pb := ready(t, sv, b, 2, "b")

	// Self-vote is forbidden.
	res := sv.startVote(sv.sessions[a.id], &protocol.MsgClPlayerMsg{
		PlayerID: pa, VoteKind: protocol.VoteStartKick, VoteTarget: pa,
	})
	if res != protocol.StartVoteSelfVote {
		t.Errorf("self vote = %v", res)
	}

	// Moderators cannot be kicked.
	sv.sessions[b.id].rconAuth = 1
	res = sv.startVote(sv.sessions[a.id], &protocol.MsgClPlayerMsg{
		PlayerID: pa, VoteKind: protocol.VoteStartKick, VoteTarget: pb,
	})
	if res != protocol.StartVoteTargetImmune {
		t.Errorf("kick moderator = %v", res)
	}
	sv.sessions[b.id].rconAuth = 0

	// A running vote blocks another.
	res = sv.startVote(sv.sessions[a.id], &protocol.MsgClPlayerMsg{
		PlayerID: pa, VoteKind: protocol.VoteStartMap, VoteMap: "ctf1",
	})
	if res != protocol.StartVoteOK {
		t.Fatalf("map vote = %v", res)
	}
	res = sv.startVote(sv.sessions[b.id], &protocol.MsgClPlayerMsg{
		PlayerID: pb, VoteKind: protocol.VoteStartMap, VoteMap: "dm2",
	})
	if res != protocol.StartVoteAnotherActive {
		t.Errorf("second vote = %v", res)
	}

	// The starter cannot vote again.
	yesBefore := sv.vote.yes
	sv.castVote(sv.sessions[a.id], true)
	if sv.vote != nil && sv.vote.yes != yesBefore {
		t.Error("starter double-voted")
	}
}

// TestSnapshotDeltaAck sends snapshots, acks one, and verifies following
// snapshots are diffs whose application matches the full snapshot
// byte-exactly.
func TestSnapshotDeltaAck(t *testing.T) {
	sv := testServer(4)
	a := fakeConn("10.3.0.1")
	sv.onConnOpen(a)
	recvAll(t, a)
	pid := ready(t, sv, a, 1, "alice")
	_ = pid
	s := sv.sessions[a.id]

	// Five ticks produce snapshots S2..S6 (S1 was already sent on ready).
	for i := 0; i < 5; i++ {
		sv.RunTick()
	}
	envs := recvAll(t, a)

	var snaps []protocol.MsgSvSnapshot
	for _, env := range envs {
		if env.Type == protocol.TypeSnapshot {
			var m protocol.MsgSvSnapshot
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				t.Fatal(err)
			}
			snaps = append(snaps, m)
		}
	}
	if len(snaps) < 3 {
		t.Fatalf("got %d snapshots", len(snaps))
	}
	// Without any ack every snapshot is full.
	for _, m := range snaps {
		if m.AsDiff {
			t.Fatal("unacked client must receive full snapshots")
		}
	}

	ackID := snaps[2].SnapID
	baseline, ok := s.ring.Get(ackID)
	if !ok {
		t.Fatal("baseline missing from ring")
	}
	sv.handleInputs(s, &protocol.MsgClInputs{ID: 1, SnapAck: []uint64{ackID}}, time.Now())

	sv.RunTick()
	envs = recvAll(t, a)
	env, ok := lastOfType(envs, protocol.TypeSnapshot)
	if !ok {
		t.Fatal("no snapshot after ack")
	}
	var m protocol.MsgSvSnapshot
	json.Unmarshal(env.Payload, &m)
	if !m.AsDiff || m.DiffID == nil || *m.DiffID != ackID {
		t.Fatalf("snapshot after ack not diffed against S%d: %+v", ackID, m.AsDiff)
	}

	// patch(baseline, diff) must reconstruct the stored full snapshot
	// byte-exactly.
	full, ok := s.ring.Get(m.SnapID)
	if !ok {
		t.Fatal("new snapshot missing from ring")
	}
	rebuilt, err := snap.Apply(baseline, m.Data)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !bytes.Equal(rebuilt, full) {
		t.Fatal("patch(baseline, diff) != full snapshot")
	}
}

// TestInputChainEvictedBaseline drops only the chain with the missing
// baseline; other players' chains in the same message still apply.
func TestInputChainEvictedBaseline(t *testing.T) {
	sv := testServer(4)
	a := fakeConn("10.4.0.1")
	sv.onConnOpen(a)
	recvAll(t, a)
	pid1 := ready(t, sv, a, 1, "one")
	s := sv.sessions[a.id]

	// Second local player on the same connection.
	sv.handleAddLocalPlayer(s, &protocol.MsgClAddLocalPlayer{
		LocalPlayer: protocol.LocalPlayer{ID: 1, Info: protocol.CharacterInfo{Name: "two"}},
	})
	pid2 := s.players[1]
	recvAll(t, a)

	missing := uint64(999)
	in := input.CharacterInput{Dir: 1}
	msg := &protocol.MsgClInputs{
		ID: 7,
		Inputs: map[game.PlayerID]protocol.InputChain{
			pid1: {
				Chain:   input.Chain{DiffID: &missing, AsDiff: true, Data: input.EncodeChain(input.CharacterInput{}, []input.CharacterInput{in})},
				ForTick: 1, Version: 1,
			},
			pid2: {
				Chain:   input.Chain{AsDiff: true, Data: input.EncodeChain(input.CharacterInput{}, []input.CharacterInput{in})},
				ForTick: 1, Version: 1,
			},
		},
	}
	sv.handleInputs(s, msg, time.Now())

	if s.inputState[pid1] != nil && s.inputState[pid1].Version != 0 {
		t.Error("chain with evicted baseline must be dropped")
	}
	st2 := s.inputState[pid2]
	if st2 == nil || st2.Input.Dir != 1 {
		t.Error("valid chain in the same message must still apply")
	}
}

// TestTimeoutReconnect retains the character of a non-graceful disconnect
// and resurrects it for a matching (unique id, slot) rejoin, with no join
// event.
func TestTimeoutReconnect(t *testing.T) {
	sv := testServer(4)
	a := fakeConn("10.5.0.1")
	sv.onConnOpen(a)
	recvAll(t, a)
	pid := ready(t, sv, a, 42, "ghost")
	sv.RunTick()
	sv.state.EventsFor(game.EventScope{}) // drain join events

	// Abrupt disconnect: character retained.
	sv.onConnClose(a, false)
	if !sv.state.Players().Contains(pid) {
		t.Fatal("character dropped despite timeout retention")
	}

	// Rejoin with the same unique id and slot.
	b := fakeConn("10.5.0.9")
	sv.onConnOpen(b)
	recvAll(t, b)
	got := ready(t, sv, b, 42, "ghost")
	if got != pid {
		t.Fatalf("rejoin returned %v, want original %v", got, pid)
	}

	sv.RunTick()
	for _, list := range sv.state.EventsFor(game.EventScope{}) {
		for _, ev := range list {
			if ev.Kind == game.EventPlayerJoined {
				t.Fatal("timeout reconnect must not emit a join event")
			}
		}
	}
}

// TestTimeoutExpiry drops the retained character once the window passes.
func TestTimeoutExpiry(t *testing.T) {
	sv := testServer(4)
	sv.cfg.TimeoutRetentionSecs = 0
	a := fakeConn("10.6.0.1")
	sv.onConnOpen(a)
	recvAll(t, a)
	pid := ready(t, sv, a, 7, "gone")

	sv.onConnClose(a, false)
	time.Sleep(2 * time.Millisecond)
	sv.RunTick()
	if sv.state.Players().Contains(pid) {
		t.Fatal("retained character survived past the timeout window")
	}
}

// TestReadyTwiceRejected answers ClientAlreadyReady.
func TestReadyTwiceRejected(t *testing.T) {
	sv := testServer(4)
	a := fakeConn("10.7.0.1")
	sv.onConnOpen(a)
	recvAll(t, a)
	ready(t, sv, a, 1, "a")

	sv.handleReady(sv.sessions[a.id], &protocol.MsgClReady{UniqueID: 1})
	envs := recvAll(t, a)
	env, ok := lastOfType(envs, protocol.TypeReadyResponse)
	if !ok {
		t.Fatal("no response")
	}
	var resp protocol.MsgSvReadyResponse
	json.Unmarshal(env.Payload, &resp)
	if resp.Kind != protocol.ReadyError || resp.ErrorKind != protocol.ReadyErrClientAlreadyReady {
		t.Errorf("response = %+v", resp)
	}
}

// TestRconAuthLevels routes secrets to auth levels.
func TestRconAuthLevels(t *testing.T) {
	sv := testServer(4)
	sv.cfg.RconAdminSecret = "admin-secret"
	sv.cfg.RconModeratorSecret = "mod-secret"

	if got := sv.authFromSecret([]byte("admin-secret")); got != 2 {
		t.Errorf("admin auth = %v", got)
	}
	if got := sv.authFromSecret([]byte("mod-secret")); got != 1 {
		t.Errorf("moderator auth = %v", got)
	}
	if got := sv.authFromSecret([]byte("wrong")); got != 0 {
		t.Errorf("wrong secret auth = %v", got)
	}
	if got := sv.authFromSecret(nil); got != 0 {
		t.Errorf("no secret auth = %v", got)
	}
}
