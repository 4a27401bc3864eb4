// Package server runs the authoritative game server: connection lifecycle,
// input ingestion, the tick loop, snapshot fan-out, votes and the remote
// console. The simulation itself lives in the game package; everything here
// stays single-threaded with the tick loop, fed by the hub's event queue.
package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"arena-core/internal/config"
	"arena-core/internal/console"
	"arena-core/internal/demo"
	"arena-core/internal/game"
	"arena-core/internal/protocol"
)

// timeoutKey identifies a retained character of a timed-out client.
type timeoutKey struct {
	UniqueID uint64
	Slot     uint64
}

type timeoutEntry struct {
	PlayerID game.PlayerID
	Expires  time.Time
}

type banEntry struct {
	Until time.Time
	Cause string
}

// Server owns every session and drives the game loop.
type Server struct {
	cfg   config.ServerConfig
	state *game.State
	hub   *Hub

	sessions map[uint64]*Session
	// queue holds connection ids waiting for a slot, earliest first.
	queue []uint64

	// queuedInputs buffers inputs per target tick and is drained at that
	// tick.
	queuedInputs map[uint64]map[game.PlayerID]game.SetInput

	vote       *activeVote
	voteStarts *voteStartLimiter
	chatLimits *chatLimiter

	bans           map[string]banEntry
	timeoutPlayers map[timeoutKey]timeoutEntry

	serverChain *console.Chain

	mapName string
	mapHash []byte

	recorder *demo.Recorder
	workers  *WorkerPool

	// voteCatalogue is the static map/misc vote list served to clients.
	voteCatalogue map[string][]protocol.VoteListEntry
}

// New creates a server around a game state.
func New(cfg config.ServerConfig, st *game.State, mapName string, mapHash []byte) *Server {
	sv := &Server{
		cfg:            cfg,
		state:          st,
		hub:            NewHub(4096),
		sessions:       make(map[uint64]*Session),
		queuedInputs:   make(map[uint64]map[game.PlayerID]game.SetInput),
		voteStarts:     newVoteStartLimiter(),
		chatLimits:     newChatLimiter(),
		bans:           make(map[string]banEntry),
		timeoutPlayers: make(map[timeoutKey]timeoutEntry),
		serverChain:    console.NewChain(),
		mapName:        mapName,
		mapHash:        mapHash,
		voteCatalogue:  defaultVoteCatalogue(mapName),
		workers:        NewWorkerPool(),
	}
	sv.workers.Start()
	sv.registerServerCommands()
	if cfg.DemoPath != "" {
		sv.startDemo(cfg.DemoPath)
	}
	return sv
}

// Hub returns the network hub for route registration.
func (sv *Server) Hub() *Hub { return sv.hub }

// State returns the game state (ops surface, tests).
func (sv *Server) State() *game.State { return sv.state }

// Run drives the tick loop until the context is cancelled.
func (sv *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / game.TicksPerSecond)
	defer ticker.Stop()
	log.Printf("server running at %d TPS, map %s", game.TicksPerSecond, sv.mapName)

	for {
		select {
		case <-ctx.Done():
			sv.workers.Stop()
			if sv.recorder != nil {
				sv.recorder.Close()
			}
			return
		case <-ticker.C:
			sv.RunTick()
		}
	}
}

// RunTick executes one full server iteration: drain transport callbacks,
// apply due inputs, advance the simulation, then fan out events and
// snapshots.
func (sv *Server) RunTick() {
	start := time.Now()

	sv.drainNetEvents()

	next := sv.state.MonotonicTick() + 1
	if due, ok := sv.queuedInputs[next]; ok {
		sv.state.SetPlayerInputs(due)
		delete(sv.queuedInputs, next)
	}

	sv.state.Tick(game.TickOptions{})

	sv.tickVote()
	sv.sweepTimeouts()
	sv.fanOutEvents()
	sv.fanOutSnapshots(time.Since(start))

	tickDuration.Observe(time.Since(start).Seconds())
}

func (sv *Server) drainNetEvents() {
	for {
		select {
		case ev := <-sv.hub.events:
			sv.handleNetEvent(ev)
		default:
			return
		}
	}
}

func (sv *Server) handleNetEvent(ev netEvent) {
	switch ev.kind {
	case netConnOpen:
		sv.onConnOpen(ev.conn)
	case netConnMsg:
		sv.onConnMsg(ev.conn, ev.data)
	case netConnClose:
		sv.onConnClose(ev.conn, ev.graceful)
	}
}

// readyCount counts sessions occupying a real slot.
func (sv *Server) readyCount() int {
	n := 0
	for _, s := range sv.sessions {
		if s.state != stateQueued {
			n++
		}
	}
	return n
}

func (sv *Server) onConnOpen(c *Conn) {
	if ban, banned := sv.bans[c.ip]; banned && time.Now().Before(ban.Until) {
		recordConnectionRejected("banned")
		c.Send(protocol.TypeQueueInfo, protocol.ChannelChat, protocol.MsgSvQueueInfo{
			Text: fmt.Sprintf("banned until %s: %s", ban.Until.Format(time.RFC3339), ban.Cause),
		})
		c.Close()
		return
	}

	s := newSession(c)
	sv.sessions[c.id] = s

	if sv.readyCount() >= sv.cfg.MaxConnections {
		s.state = stateQueued
		sv.queue = append(sv.queue, c.id)
		s.queuePos = len(sv.queue)
		queuedClients.Set(float64(len(sv.queue)))
		c.Send(protocol.TypeQueueInfo, protocol.ChannelChat, protocol.MsgSvQueueInfo{
			Text: fmt.Sprintf("server full, you are in queue #%d", s.queuePos),
		})
		return
	}
	sv.promoteToPending(s)
}

// promoteToPending sends ServerInfo and waits for Ready.
func (sv *Server) promoteToPending(s *Session) {
	s.state = stateNetworkPending
	s.conn.Send(protocol.TypeServerInfo, protocol.ChannelChat, sv.serverInfo())
}

func (sv *Server) serverInfo() protocol.MsgSvServerInfo {
	opts := sv.state.Options()
	return protocol.MsgSvServerInfo{
		Map:       sv.mapName,
		MapHash:   sv.mapHash,
		GameMod:   "vanilla",
		RenderMod: "default",
		Options: protocol.ServerOptions{
			MaxIngame:    opts.MaxIngame,
			FriendlyFire: opts.FriendlyFire,
			Sided:        opts.Sided,
			ScoreLimit:   opts.ScoreLimit,
			TimeLimit:    opts.TimeLimitSecs,
		},
	}
}

func (sv *Server) onConnClose(c *Conn, graceful bool) {
	s, ok := sv.sessions[c.id]
	if !ok {
		return
	}
	delete(sv.sessions, c.id)
	sv.chatLimits.Forget(c.id)

	if s.state == stateQueued {
		sv.removeFromQueue(c.id)
		return
	}

	sv.dropVoterSession(s)

	if len(s.players) > 0 {
		if graceful {
			for _, pid := range s.players {
				sv.state.PlayerDrop(pid, game.DropDisconnect)
			}
		} else {
			// Non-graceful: retain the characters for reconnect.
			expires := time.Now().Add(time.Duration(sv.cfg.TimeoutRetentionSecs) * time.Second)
			for slot, pid := range s.players {
				sv.timeoutPlayers[timeoutKey{UniqueID: s.uniqueID, Slot: slot}] = timeoutEntry{
					PlayerID: pid,
					Expires:  expires,
				}
			}
			log.Printf("conn %d timed out, retaining %d players", c.id, len(s.players))
		}
	}
	sv.updateGauges()
	sv.promoteQueued()
}

func (sv *Server) removeFromQueue(connID uint64) {
	for i, id := range sv.queue {
		if id == connID {
			sv.queue = append(sv.queue[:i], sv.queue[i+1:]...)
			break
		}
	}
	sv.renumberQueue()
}

// promoteQueued moves the earliest queued connection into a freed slot.
func (sv *Server) promoteQueued() {
	if len(sv.queue) == 0 || sv.readyCount() >= sv.cfg.MaxConnections {
		return
	}
	connID := sv.queue[0]
	sv.queue = sv.queue[1:]
	if s, ok := sv.sessions[connID]; ok {
		sv.promoteToPending(s)
	}
	sv.renumberQueue()
}

// renumberQueue resends queue positions after any change.
func (sv *Server) renumberQueue() {
	queuedClients.Set(float64(len(sv.queue)))
	for i, id := range sv.queue {
		if s, ok := sv.sessions[id]; ok {
			s.queuePos = i + 1
			s.conn.Send(protocol.TypeQueueInfo, protocol.ChannelChat, protocol.MsgSvQueueInfo{
				Text: fmt.Sprintf("server full, you are in queue #%d", s.queuePos),
			})
		}
	}
}

func (sv *Server) onConnMsg(c *Conn, data []byte) {
	s, ok := sv.sessions[c.id]
	if !ok {
		return
	}
	env, err := protocol.Decode(data)
	if err != nil {
		// Parse errors drop the message, never the connection.
		log.Printf("conn %d: %v", c.id, err)
		return
	}

	switch env.Type {
	case protocol.TypeReady:
		var msg protocol.MsgClReady
		if json.Unmarshal(env.Payload, &msg) == nil {
			sv.handleReady(s, &msg)
		}
	case protocol.TypeAddLocalPlayer:
		var msg protocol.MsgClAddLocalPlayer
		if json.Unmarshal(env.Payload, &msg) == nil {
			sv.handleAddLocalPlayer(s, &msg)
		}
	case protocol.TypeRemLocalPlayer:
		var msg protocol.MsgClRemLocalPlayer
		if json.Unmarshal(env.Payload, &msg) == nil {
			sv.handleRemLocalPlayer(s, msg.PlayerID)
		}
	case protocol.TypeInputs:
		var msg protocol.MsgClInputs
		if json.Unmarshal(env.Payload, &msg) == nil {
			sv.handleInputs(s, &msg, time.Now())
		}
	case protocol.TypePlayerMsg:
		var msg protocol.MsgClPlayerMsg
		if json.Unmarshal(env.Payload, &msg) == nil {
			sv.handlePlayerMsg(s, &msg)
		}
	case protocol.TypeLoadVotes:
		var msg protocol.MsgClLoadVotes
		if json.Unmarshal(env.Payload, &msg) == nil {
			sv.handleLoadVotes(s, &msg)
		}
	default:
		log.Printf("conn %d: unhandled message type %q", c.id, env.Type)
	}
}

// handleReady runs the join handshake. Players retained from a timeout
// reconnect are resurrected in place; no join event is emitted for them.
func (sv *Server) handleReady(s *Session, msg *protocol.MsgClReady) {
	if s.state == stateReady {
		s.conn.Send(protocol.TypeReadyResponse, protocol.ChannelChat, protocol.MsgSvReadyResponse{
			Kind:      protocol.ReadyError,
			ErrorKind: protocol.ReadyErrClientAlreadyReady,
		})
		return
	}
	if s.state == stateQueued {
		return
	}
	s.uniqueID = msg.UniqueID
	s.rconAuth = sv.authFromSecret(msg.RconSecret)

	var joined []protocol.JoinedID
	var nonJoined []uint64
	for _, lp := range msg.Players {
		if len(s.players) >= sv.cfg.MaxPlayersPerClient {
			nonJoined = append(nonJoined, lp.ID)
			continue
		}
		if lp.Info.Check() != nil {
			nonJoined = append(nonJoined, lp.ID)
			continue
		}
		pid := sv.joinOrRestore(s, lp)
		s.players[lp.ID] = pid
		joined = append(joined, protocol.JoinedID{Slot: lp.ID, PlayerID: pid})
	}

	resp := protocol.MsgSvReadyResponse{Joined: joined, NonJoined: nonJoined}
	switch {
	case len(joined) == 0:
		resp.Kind = protocol.ReadyError
		resp.ErrorKind = protocol.ReadyErrServerFull
	case len(nonJoined) > 0:
		resp.Kind = protocol.ReadyPartialSuccess
	default:
		resp.Kind = protocol.ReadySuccess
	}
	s.conn.Send(protocol.TypeReadyResponse, protocol.ChannelChat, resp)

	if len(joined) > 0 {
		s.state = stateReady
		sv.updateGauges()
		// Publish the console catalogue for tab completion.
		cmds := append(sv.serverChain.Usages(), sv.state.Chain().Usages()...)
		sort.Strings(cmds)
		s.conn.Send(protocol.TypeRconCommands, protocol.ChannelRcon, protocol.MsgSvRconCommands{Commands: cmds})
		// The first player triggers an initial full snapshot.
		sv.sendSnapshot(s, 0)
	}
}

// joinOrRestore reuses a timeout-retained character when the (uniqueID, slot)
// key matches, otherwise joins fresh.
func (sv *Server) joinOrRestore(s *Session, lp protocol.LocalPlayer) game.PlayerID {
	key := timeoutKey{UniqueID: s.uniqueID, Slot: lp.ID}
	if entry, ok := sv.timeoutPlayers[key]; ok {
		delete(sv.timeoutPlayers, key)
		if time.Now().Before(entry.Expires) && sv.state.Players().Contains(entry.PlayerID) {
			log.Printf("conn %d: restored timed-out player", s.conn.id)
			return entry.PlayerID
		}
	}
	return sv.state.PlayerJoin(game.JoinInfo{Info: lp.Info.ToGame()})
}

func (sv *Server) handleAddLocalPlayer(s *Session, msg *protocol.MsgClAddLocalPlayer) {
	if s.state != stateReady || len(s.players) >= sv.cfg.MaxPlayersPerClient {
		return
	}
	if _, taken := s.players[msg.ID]; taken || msg.Info.Check() != nil {
		return
	}
	pid := sv.joinOrRestore(s, msg.LocalPlayer)
	s.players[msg.ID] = pid
	s.conn.Send(protocol.TypeReadyResponse, protocol.ChannelChat, protocol.MsgSvReadyResponse{
		Kind:   protocol.ReadySuccess,
		Joined: []protocol.JoinedID{{Slot: msg.ID, PlayerID: pid}},
	})
	sv.updateGauges()
}

func (sv *Server) handleRemLocalPlayer(s *Session, pid game.PlayerID) {
	for slot, owned := range s.players {
		if owned == pid {
			delete(s.players, slot)
			delete(s.inputHist, pid)
			delete(s.inputState, pid)
			sv.state.PlayerDrop(pid, game.DropDisconnect)
			sv.updateGauges()
			return
		}
	}
}

func (sv *Server) handlePlayerMsg(s *Session, msg *protocol.MsgClPlayerMsg) {
	if s.state != stateReady || !s.ownsPlayer(msg.PlayerID) {
		return
	}

	switch msg.Kind {
	case protocol.PlayerMsgChat:
		sv.handleChat(s, msg)

	case protocol.PlayerMsgKill:
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdKill})

	case protocol.PlayerMsgJoinSpectator:
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdJoinSpectator})

	case protocol.PlayerMsgJoinStage:
		if len(msg.StageName) > protocol.MaxNameLen {
			return
		}
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{
			Kind:       game.CmdJoinStage,
			StageName:  msg.StageName,
			OwnStage:   msg.OwnStage,
			StageColor: msg.StageColor,
		})

	case protocol.PlayerMsgJoinSide:
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdJoinSide, Side: game.Side(msg.Side)})

	case protocol.PlayerMsgSwitchCamera:
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdSetCameraMode, Camera: game.CameraMode(msg.Camera)})

	case protocol.PlayerMsgEmoticon:
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdEmoticon, Emoticon: msg.Emoticon})

	case protocol.PlayerMsgChangeEyes:
		sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdChangeEyes, Eye: game.Eye(msg.Eye)})

	case protocol.PlayerMsgStartVote:
		res := sv.startVote(s, msg)
		s.conn.Send(protocol.TypeStartVoteRes, protocol.ChannelVotes, protocol.MsgSvStartVoteResult{Result: res})

	case protocol.PlayerMsgVoted:
		sv.castVote(s, msg.VoteYes)

	case protocol.PlayerMsgUpdateInfo:
		if msg.Info.Check() != nil {
			return
		}
		sv.state.TryOverwriteCharacterInfo(msg.PlayerID, msg.Info.ToGame(), msg.InfoVersion)

	case protocol.PlayerMsgRconExec:
		sv.handleRconExec(s, msg.RconName, msg.RconArgs)
	}
}

func (sv *Server) handleChat(s *Session, msg *protocol.MsgClPlayerMsg) {
	if protocol.CheckChat(msg.ChatText) != nil {
		return
	}
	if !sv.chatLimits.Allow(s.conn.id) {
		return
	}

	// Slash commands dispatch into the game command chain.
	if strings.HasPrefix(msg.ChatText, "/") {
		lines := sv.state.ClientCommand(msg.PlayerID, game.ClientCmd{Kind: game.CmdChat, Chat: msg.ChatText})
		sv.sendChatLines(s, lines)
		return
	}

	name := sv.playerName(msg.PlayerID)
	out := protocol.MsgSvChat{Mode: msg.ChatMode, From: msg.PlayerID, Name: name, Text: msg.ChatText}

	switch msg.ChatMode {
	case protocol.ChatWhisper:
		if target, ok := sv.sessionOfPlayer(msg.Whisper); ok {
			target.conn.Send(protocol.TypeChat, protocol.ChannelChat, out)
			s.conn.Send(protocol.TypeChat, protocol.ChannelChat, out)
		}
	case protocol.ChatTeam:
		side, _ := sv.state.SideOf(msg.PlayerID)
		for _, other := range sv.sessions {
			if other.state != stateReady {
				continue
			}
			for _, pid := range other.players {
				if os, ok := sv.state.SideOf(pid); ok && os == side {
					other.conn.Send(protocol.TypeChat, protocol.ChannelChat, out)
					break
				}
			}
		}
	default:
		for _, other := range sv.sessions {
			if other.state == stateReady {
				other.conn.Send(protocol.TypeChat, protocol.ChannelChat, out)
			}
		}
	}
}

func (sv *Server) sendChatLines(s *Session, lines []string) {
	for _, line := range lines {
		s.conn.Send(protocol.TypeChat, protocol.ChannelChat, protocol.MsgSvChat{
			Mode: protocol.ChatGlobal, Name: "server", Text: line,
		})
	}
}

func (sv *Server) broadcastChatLines(from string, lines []string) {
	for _, s := range sv.sessions {
		if s.state != stateReady {
			continue
		}
		for _, line := range lines {
			s.conn.Send(protocol.TypeChat, protocol.ChannelChat, protocol.MsgSvChat{
				Mode: protocol.ChatGlobal, Name: from, Text: line,
			})
		}
	}
}

// handleRconExec routes a console line: server commands first, then the game
// state's chain.
func (sv *Server) handleRconExec(s *Session, name string, args []string) {
	line := name
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	var results []string
	if res, err := sv.serverChain.Exec(line, s.rconAuth); err == nil {
		results = res
	} else {
		pid := firstPlayer(s)
		results = sv.state.RconCommand(pid, s.rconAuth, []string{line})
	}

	// Bound the total result size per the protocol.
	total := 0
	for i, r := range results {
		total += len(r)
		if total > protocol.MaxRconResultLen {
			results = append(results[:i], "... output truncated")
			break
		}
	}
	s.conn.Send(protocol.TypeRconExecResult, protocol.ChannelRcon, protocol.MsgSvRconExecResult{Results: results})
}

func firstPlayer(s *Session) *game.PlayerID {
	for _, pid := range s.players {
		p := pid
		return &p
	}
	return nil
}

func (sv *Server) handleLoadVotes(s *Session, msg *protocol.MsgClLoadVotes) {
	entries, ok := sv.voteCatalogue[msg.Kind]
	if !ok {
		return
	}
	hash := catalogueHash(entries)
	out := protocol.MsgSvLoadVote{Kind: msg.Kind, Hash: hash}
	if string(msg.CachedHash) == string(hash) {
		out.Cached = true
	} else {
		out.Entries = entries
	}
	s.conn.Send(protocol.TypeLoadVote, protocol.ChannelVotes, out)
}

// sweepTimeouts drops retained characters whose reconnect window expired.
func (sv *Server) sweepTimeouts() {
	now := time.Now()
	for key, entry := range sv.timeoutPlayers {
		if now.After(entry.Expires) {
			delete(sv.timeoutPlayers, key)
			sv.state.PlayerDrop(entry.PlayerID, game.DropTimeout)
		}
	}
}

// fanOutEvents drains world events and sends them to every ready client.
func (sv *Server) fanOutEvents() {
	evs := sv.state.EventsFor(game.EventScope{})
	if len(evs) == 0 {
		return
	}
	wire := make(map[game.StageID][]protocol.WireEvent, len(evs))
	for stage, list := range evs {
		ws := make([]protocol.WireEvent, 0, len(list))
		for _, ev := range list {
			x, y := ev.Pos.Floats()
			ws = append(ws, protocol.WireEvent{
				ID:     uint64(ev.ID),
				Kind:   uint8(ev.Kind),
				X:      int32(x * 256),
				Y:      int32(y * 256),
				Killer: ev.Killer,
				Victim: ev.Victim,
				Player: ev.Player,
				Weapon: uint8(ev.Weapon),
				Text:   ev.Text,
			})
		}
		wire[stage] = ws
	}
	msg := protocol.MsgSvEvents{GameMonotonicTick: sv.state.MonotonicTick(), Events: wire}
	for _, s := range sv.sessions {
		if s.state == stateReady {
			s.conn.Send(protocol.TypeEvents, protocol.ChannelInputs, msg)
		}
	}
	if sv.recorder != nil {
		// Serialization happens on the worker pool; frames carry their tick
		// so the reader does not depend on write order.
		tick := sv.state.MonotonicTick()
		rec := sv.recorder
		sv.workers.Submit(func() {
			if data, err := json.Marshal(msg); err == nil {
				rec.RecordEvent(tick, data)
			}
		})
	}
}

// fanOutSnapshots sends this tick's snapshot to every ready client, honoring
// the ticks-per-snapshot setting.
func (sv *Server) fanOutSnapshots(overhead time.Duration) {
	tick := sv.state.MonotonicTick()
	if sv.cfg.TicksPerSnapshot > 1 && tick%uint64(sv.cfg.TicksPerSnapshot) != 0 {
		return
	}
	for _, s := range sv.sessions {
		if s.state == stateReady {
			sv.sendSnapshot(s, overhead)
		}
	}
	if sv.recorder != nil {
		// The snapshot bytes are immutable once produced; only the disk
		// write leaves the loop.
		data := sv.state.SnapshotFor(game.SnapshotScope{})
		rec := sv.recorder
		sv.workers.Submit(func() { rec.RecordSnapshot(tick, data) })
	}
}

// sessionOfPlayer finds the session owning a player id.
func (sv *Server) sessionOfPlayer(pid game.PlayerID) (*Session, bool) {
	for _, s := range sv.sessions {
		if s.ownsPlayer(pid) {
			return s, true
		}
	}
	return nil, false
}

func (sv *Server) playerName(pid game.PlayerID) string {
	if info, ok := sv.state.InfoOf(pid); ok {
		return info.Name
	}
	return "unknown"
}

// banAndKickPlayer bans the owning connection's IP and drops its players.
func (sv *Server) banAndKickPlayer(pid game.PlayerID, dur time.Duration, cause string) {
	s, ok := sv.sessionOfPlayer(pid)
	if !ok {
		// Player has no live connection (timed out); just drop it.
		sv.state.PlayerDrop(pid, game.DropKicked)
		return
	}
	sv.bans[s.conn.ip] = banEntry{Until: time.Now().Add(dur), Cause: cause}
	log.Printf("banned %s for %s: %s", s.conn.ip, dur, cause)
	for _, owned := range s.players {
		sv.state.PlayerDrop(owned, game.DropBanned)
	}
	s.players = map[uint64]game.PlayerID{}
	s.conn.Close()
}

// loadMap broadcasts a map change. Clients reload against the new ServerInfo.
func (sv *Server) loadMap(name string) {
	if name == "" || len(name) > protocol.MaxMapLen {
		return
	}
	sv.mapName = name
	sv.mapHash = sha256Bytes([]byte(name))
	info := sv.serverInfo()
	log.Printf("loading map %s", name)
	for _, s := range sv.sessions {
		if s.state == stateReady || s.state == stateNetworkPending {
			s.conn.Send(protocol.TypeLoad, protocol.ChannelChat, info)
		}
	}
}

func (sv *Server) authFromSecret(secret []byte) console.AuthLevel {
	if len(secret) == 0 {
		return console.AuthNone
	}
	if sv.cfg.RconAdminSecret != "" &&
		subtle.ConstantTimeCompare(secret, []byte(sv.cfg.RconAdminSecret)) == 1 {
		return console.AuthAdmin
	}
	if sv.cfg.RconModeratorSecret != "" &&
		subtle.ConstantTimeCompare(secret, []byte(sv.cfg.RconModeratorSecret)) == 1 {
		return console.AuthModerator
	}
	return console.AuthNone
}

func (sv *Server) updateGauges() {
	ready := 0
	players := 0
	for _, s := range sv.sessions {
		if s.state == stateReady {
			ready++
			players += len(s.players)
		}
	}
	readyClients.Set(float64(ready))
	playerCount.Set(float64(players))
}

func (sv *Server) startDemo(path string) {
	opts, _ := json.Marshal(sv.state.Options())
	rec, err := demo.NewRecorder(path, demo.Header{
		Map:              sv.mapName,
		MapHash:          sv.mapHash,
		GameOptions:      opts,
		PhysicsMod:       "vanilla",
		RenderMod:        "default",
		PhysicsGroupName: "vanilla",
		TicksPerSecond:   game.TicksPerSecond,
	})
	if err != nil {
		log.Printf("demo recording disabled: %v", err)
		return
	}
	sv.recorder = rec
	log.Printf("recording demo to %s", path)
}

// registerServerCommands fills the server-side console chain.
func (sv *Server) registerServerCommands() {
	sv.serverChain.Register(&console.Command{
		Name: "ban_id",
		Help: "ban the connection with the given id for 15 minutes",
		Auth: console.AuthModerator,
		Args: []console.ArgSpec{{Name: "conn_id", Kind: console.ArgNumber}},
		Exec: func(args []console.Value) []string {
			s, ok := sv.sessions[uint64(args[0].Num)]
			if !ok {
				return []string{"no such connection"}
			}
			sv.bans[s.conn.ip] = banEntry{Until: time.Now().Add(KickBanDuration), Cause: "banned by rcon"}
			for _, pid := range s.players {
				sv.state.PlayerDrop(pid, game.DropBanned)
			}
			s.players = map[uint64]game.PlayerID{}
			s.conn.Close()
			return []string{fmt.Sprintf("banned %s", s.conn.ip)}
		},
	})
	sv.serverChain.Register(&console.Command{
		Name: "kick_id",
		Help: "kick the connection with the given id",
		Auth: console.AuthModerator,
		Args: []console.ArgSpec{{Name: "conn_id", Kind: console.ArgNumber}},
		Exec: func(args []console.Value) []string {
			s, ok := sv.sessions[uint64(args[0].Num)]
			if !ok {
				return []string{"no such connection"}
			}
			for _, pid := range s.players {
				sv.state.PlayerDrop(pid, game.DropKicked)
			}
			s.players = map[uint64]game.PlayerID{}
			s.conn.Close()
			return []string{"kicked"}
		},
	})
	sv.serverChain.Register(&console.Command{
		Name: "conn_status",
		Help: "list connections",
		Auth: console.AuthModerator,
		Exec: func([]console.Value) []string {
			ids := make([]uint64, 0, len(sv.sessions))
			for id := range sv.sessions {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			out := make([]string, 0, len(ids))
			for _, id := range ids {
				s := sv.sessions[id]
				out = append(out, fmt.Sprintf("conn %d ip=%s state=%d players=%d auth=%s",
					id, s.conn.ip, s.state, len(s.players), s.rconAuth))
			}
			return out
		},
	})
	sv.serverChain.Register(&console.Command{
		Name: "record_demo",
		Help: "start recording a demo",
		Auth: console.AuthAdmin,
		Args: []console.ArgSpec{{Name: "path", Kind: console.ArgText}},
		Exec: func(args []console.Value) []string {
			if sv.recorder != nil {
				return []string{"already recording"}
			}
			sv.startDemo(args[0].Text)
			if sv.recorder == nil {
				return []string{"failed to open demo file"}
			}
			return []string{"recording to " + args[0].Text}
		},
	})
}

func defaultVoteCatalogue(mapName string) map[string][]protocol.VoteListEntry {
	return map[string][]protocol.VoteListEntry{
		"map": {
			{Category: "vanilla", Name: "dm1", Command: "map dm1"},
			{Category: "vanilla", Name: "dm2", Command: "map dm2"},
			{Category: "vanilla", Name: "ctf1", Command: "map ctf1"},
		},
		"misc": {
			{Category: "match", Name: "pause", Command: "pause"},
			{Category: "match", Name: "unpause", Command: "unpause"},
		},
	}
}

func catalogueHash(entries []protocol.VoteListEntry) []byte {
	data, _ := json.Marshal(entries)
	return sha256Bytes(data)
}

func sha256Bytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
