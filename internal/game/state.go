package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"arena-core/internal/console"
	"arena-core/internal/game/collision"
	"arena-core/internal/input"
)

// Options configures a game state.
type Options struct {
	MapName string
	// MaxIngame caps the characters in stage 0; later joins spectate.
	MaxIngame           int
	FriendlyFire        bool
	Sided               bool
	ScoreLimit          int64
	TimeLimitSecs       int
	AutoSideBalanceSecs int
}

// DefaultOptions returns a solo deathmatch configuration.
func DefaultOptions() Options {
	return Options{
		MapName:    "dm1",
		MaxIngame:  16,
		ScoreLimit: 20,
	}
}

// ErrInvalidStage is returned for operations on a stage that does not exist.
var ErrInvalidStage = errors.New("game: invalid stage")

// JoinInfo carries the data needed to admit a player.
type JoinInfo struct {
	Info CharacterInfo
	// PingMS is the initial network stats sample.
	PingMS int
}

// SetInput is one player's input plus its consumable edge diff for a tick.
type SetInput struct {
	Input input.CharacterInput
	Diff  input.ConsumableDiff
}

// TickOptions modifies a tick. Future-tick prediction suppresses world
// events.
type TickOptions struct {
	IsFutureTickPrediction bool
}

// SnapshotScope selects which local-player hints a snapshot carries. A nil
// ForPlayers means Everything.
type SnapshotScope struct {
	ForPlayers map[PlayerID]struct{}
}

// EventScope filters events_for. A zero Stage means all stages.
type EventScope struct {
	Stage StageID
}

// CameraMode is the per-player spectator camera.
type CameraMode uint8

const (
	CameraDefault CameraMode = iota
	CameraFree
	CameraPhased
)

// ClientCmdKind tags a client command.
type ClientCmdKind uint8

const (
	CmdKill ClientCmdKind = iota
	CmdJoinSpectator
	CmdJoinStage
	CmdJoinSide
	CmdSetCameraMode
	CmdChat
	CmdEmoticon
	CmdChangeEyes
)

// ClientCmd is one client-issued game command.
type ClientCmd struct {
	Kind ClientCmdKind

	// JoinStage: empty name joins the default stage; OwnStage creates a
	// stage named after the player.
	StageName  string
	OwnStage   bool
	StageColor [3]uint8

	Side     Side
	Camera   CameraMode
	Chat     string
	Emoticon uint8
	Eye      Eye
}

// State aggregates the stages and player indices and exposes the operation
// surface used by the server session and the snapshot engine.
type State struct {
	gen   *IDGenerator
	grid  *collision.Grid
	tunes *TuneTable
	opts  Options

	stages map[StageID]*Stage
	stage0 StageID

	players    *Players
	spectators *SpectatorPlayers
	phased     *PhasedCharacters

	// specInfos keeps the character info of spectating players so they can
	// rejoin a stage with identity intact.
	specInfos map[PlayerID]CharacterInfo

	cameras map[PlayerID]CameraMode

	chain *console.Chain

	eventSeq uint64
	tick     uint64

	// prev holds the interpolation view rebuilt from an older snapshot.
	prev *SnapView
}

// NewState creates a game state with one permanent stage.
func NewState(grid *collision.Grid, tunes *TuneTable, opts Options, epoch uint64) *State {
	if opts.MaxIngame <= 0 {
		opts.MaxIngame = 16
	}
	s := &State{
		gen:        NewIDGenerator(epoch),
		grid:       grid,
		tunes:      tunes,
		opts:       opts,
		stages:     make(map[StageID]*Stage),
		players:    NewPlayers(),
		spectators: NewSpectatorPlayers(),
		phased:     NewPhasedCharacters(),
		specInfos:  make(map[PlayerID]CharacterInfo),
		cameras:    make(map[PlayerID]CameraMode),
		chain:      console.NewChain(),
	}
	st := newStage(s, s.gen.NextStageID(), "", [3]uint8{})
	s.stages[st.ID] = st
	s.stage0 = st.ID
	s.registerCommands()
	return s
}

func (s *State) nextEventID() EventID {
	s.eventSeq++
	return EventID(s.eventSeq)
}

// MonotonicTick returns the current tick counter.
func (s *State) MonotonicTick() uint64 { return s.tick }

// Options returns the game options.
func (s *State) Options() Options { return s.opts }

// Chain exposes the command chain for remote-console tab completion.
func (s *State) Chain() *console.Chain { return s.chain }

// Stage0 returns the id of the permanent stage.
func (s *State) Stage0() StageID { return s.stage0 }

// Stage returns a stage by id.
func (s *State) Stage(id StageID) (*Stage, bool) {
	st, ok := s.stages[id]
	return st, ok
}

// Players and Spectators expose the shared indices read-only.
func (s *State) Players() *Players                   { return s.players }
func (s *State) Spectators() *SpectatorPlayers       { return s.spectators }
func (s *State) Phased() *PhasedCharacters           { return s.phased }
func (s *State) Camera(id PlayerID) CameraMode       { return s.cameras[id] }

func (s *State) sortedStageIDs() []StageID {
	ids := make([]StageID, 0, len(s.stages))
	for id := range s.stages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })
	return ids
}

// characterOf finds a player's character across stages.
func (s *State) characterOf(id PlayerID) (*Stage, *Character, bool) {
	stID, ok := s.players.StageOf(id)
	if !ok {
		return nil, nil, false
	}
	st, ok := s.stages[stID]
	if !ok {
		return nil, nil, false
	}
	c, ok := st.World.CharacterOfPlayer(id)
	if !ok {
		return nil, nil, false
	}
	return st, c, true
}

// ForEachCharacter visits every character in creation order, across stages.
// Render paths use this; the simulation iterates internally.
func (s *State) ForEachCharacter(fn func(stage StageID, c *Character)) {
	for _, stID := range s.sortedStageIDs() {
		w := s.stages[stID].World
		for _, cid := range w.sortedCharacterIDs() {
			fn(stID, w.characters[cid])
		}
	}
}

// ForEachProjectile visits every projectile in creation order.
func (s *State) ForEachProjectile(fn func(stage StageID, p *Projectile)) {
	for _, stID := range s.sortedStageIDs() {
		w := s.stages[stID].World
		ids := make([]ProjectileID, 0, len(w.projectiles))
		for id := range w.projectiles {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })
		for _, id := range ids {
			fn(stID, w.projectiles[id])
		}
	}
}

// ForEachFlag visits every flag.
func (s *State) ForEachFlag(fn func(stage StageID, f *Flag)) {
	for _, stID := range s.sortedStageIDs() {
		w := s.stages[stID].World
		ids := make([]FlagID, 0, len(w.flags))
		for id := range w.flags {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })
		for _, id := range ids {
			fn(stID, w.flags[id])
		}
	}
}

// CharacterIDOf returns the character id a player currently owns.
func (s *State) CharacterIDOf(id PlayerID) (CharacterID, bool) {
	if _, c, ok := s.characterOf(id); ok {
		return c.ID, true
	}
	return CharacterID{}, false
}

// InfoOf returns a player's character info, whether ingame or spectating.
func (s *State) InfoOf(id PlayerID) (CharacterInfo, bool) {
	if _, c, ok := s.characterOf(id); ok {
		return c.Info, true
	}
	if info, ok := s.specInfos[id]; ok {
		return info, true
	}
	return CharacterInfo{}, false
}

// SideOf returns the side of a player's character.
func (s *State) SideOf(id PlayerID) (Side, bool) {
	if _, c, ok := s.characterOf(id); ok {
		return c.Side, true
	}
	return SideNone, false
}

// sideForJoin picks the side for a fresh character.
func (s *State) sideForJoin(st *Stage) Side {
	if !s.opts.Sided {
		return SideNone
	}
	return st.Match.SmallerSide(st.World)
}

// PlayerJoin admits a player: into stage 0 if it has room, otherwise into
// the spectators. Never fails.
func (s *State) PlayerJoin(info JoinInfo) PlayerID {
	id := s.gen.NextPlayerID()
	sanitizeInfo(&info.Info)
	st := s.stages[s.stage0]
	if st.World.CharacterCount() >= s.opts.MaxIngame {
		s.spectators.insert(id)
		s.specInfos[id] = info.Info
		return id
	}
	c := st.World.addCharacter(s.gen.NextCharacterID(), id, info.Info, s.sideForJoin(st))
	st.World.emit(WorldEvent{Kind: EventPlayerJoined, Player: id, Pos: c.Core.Pos, Text: info.Info.Name})
	return id
}

// PlayerDrop removes a player. Idempotent.
func (s *State) PlayerDrop(id PlayerID, reason DropReason) {
	if s.spectators.Contains(id) {
		s.spectators.remove(id)
		delete(s.specInfos, id)
		delete(s.cameras, id)
		return
	}
	st, c, ok := s.characterOf(id)
	if !ok {
		return
	}
	name := c.Info.Name
	st.World.removeCharacter(c.ID)
	delete(s.cameras, id)
	st.World.emit(WorldEvent{Kind: EventPlayerLeft, Player: id, Reason: reason, Text: name})
	s.collectEmptyStages()
}

// TryOverwriteCharacterInfo updates a player's rendered identity. A version
// older than the last applied one is ignored so reordered messages cannot
// roll the info back.
func (s *State) TryOverwriteCharacterInfo(id PlayerID, info CharacterInfo, version uint64) {
	sanitizeInfo(&info)
	if s.spectators.Contains(id) {
		s.specInfos[id] = info
		return
	}
	st, c, ok := s.characterOf(id)
	if !ok {
		return
	}
	if version <= c.InfoVersion {
		return
	}
	c.InfoVersion = version
	if c.Info != info {
		c.Info = info
		c.DefaultEye = info.Eye
		st.World.emit(WorldEvent{Kind: EventCharacterInfoChanged, Player: id, Text: info.Name})
	}
}

// SetPlayerInputs applies a batch of per-tick inputs. Unknown ids are
// skipped. Each call replaces the character's pending consumable diff; the
// simulation consumes each edge in it at most once.
func (s *State) SetPlayerInputs(inputs map[PlayerID]SetInput) {
	for id, in := range inputs {
		_, c, ok := s.characterOf(id)
		if !ok {
			continue
		}
		c.Input.Input = in.Input
		c.diff = in.Diff
	}
}

// Tick advances the whole game one tick. Prediction ticks suppress world
// events but are otherwise identical to authoritative ticks.
func (s *State) Tick(opts TickOptions) {
	s.tick++
	for _, id := range s.sortedStageIDs() {
		st := s.stages[id]
		st.events.suppressed = opts.IsFutureTickPrediction
		st.Tick(s.tick)
		st.events.suppressed = false
	}
	if !opts.IsFutureTickPrediction {
		s.collectEmptyStages()
	}
}

// collectEmptyStages destroys stages without player characters, except
// stage 0.
func (s *State) collectEmptyStages() {
	for id, st := range s.stages {
		if id == s.stage0 {
			continue
		}
		if st.World.CharacterCount() == 0 {
			delete(s.stages, id)
		}
	}
}

// EventsFor drains buffered world events, grouped by stage.
func (s *State) EventsFor(scope EventScope) map[StageID][]WorldEvent {
	out := make(map[StageID][]WorldEvent)
	for _, id := range s.sortedStageIDs() {
		if scope.Stage != (StageID{}) && scope.Stage != id {
			continue
		}
		if evs := s.stages[id].events.drain(); len(evs) > 0 {
			out[id] = evs
		}
	}
	return out
}

// ClientCommand executes a client game command, returning chat lines to send
// back to the issuing player.
func (s *State) ClientCommand(id PlayerID, cmd ClientCmd) []string {
	switch cmd.Kind {
	case CmdKill:
		if st, c, ok := s.characterOf(id); ok && !c.IsDead() {
			st.World.kill(c, id, WeaponNinja, true)
		}

	case CmdJoinSpectator:
		st, c, ok := s.characterOf(id)
		if !ok {
			return nil
		}
		info := c.Info
		st.World.removeCharacter(c.ID)
		st.World.emit(WorldEvent{Kind: EventPlayerLeft, Player: id, Reason: DropDisconnect, Text: info.Name})
		s.spectators.insert(id)
		s.specInfos[id] = info
		s.collectEmptyStages()

	case CmdJoinStage:
		return s.joinStage(id, cmd)

	case CmdJoinSide:
		if _, c, ok := s.characterOf(id); ok && s.opts.Sided {
			if cmd.Side == SideRed || cmd.Side == SideBlue {
				c.Side = cmd.Side
			}
		}

	case CmdSetCameraMode:
		s.cameras[id] = cmd.Camera

	case CmdChat:
		if strings.HasPrefix(cmd.Chat, "/") {
			out, err := s.chain.Exec(strings.TrimPrefix(cmd.Chat, "/"), console.AuthNone)
			if err != nil {
				return []string{err.Error()}
			}
			return out
		}

	case CmdEmoticon:
		if _, c, ok := s.characterOf(id); ok {
			c.ReusableCore.QueuedEmoticons = append(c.ReusableCore.QueuedEmoticons, cmd.Emoticon)
		}

	case CmdChangeEyes:
		if _, c, ok := s.characterOf(id); ok {
			c.DefaultEye = cmd.Eye
			c.setEye(cmd.Eye, eyeTicksDefault)
		}
	}
	return nil
}

// joinStage moves a player into an existing or freshly created stage.
func (s *State) joinStage(id PlayerID, cmd ClientCmd) []string {
	// Resolve identity and leave the current world/spectators.
	var info CharacterInfo
	if st, c, ok := s.characterOf(id); ok {
		info = c.Info
		st.World.removeCharacter(c.ID)
	} else if s.spectators.Contains(id) {
		info = s.specInfos[id]
		s.spectators.remove(id)
		delete(s.specInfos, id)
	} else {
		return nil
	}

	var target *Stage
	switch {
	case cmd.OwnStage:
		name := cmd.StageName
		if name == "" {
			name = info.Name
		}
		target = newStage(s, s.gen.NextStageID(), name, cmd.StageColor)
		s.stages[target.ID] = target
	case cmd.StageName != "":
		for _, stID := range s.sortedStageIDs() {
			if s.stages[stID].Name == cmd.StageName {
				target = s.stages[stID]
				break
			}
		}
		if target == nil {
			// Rejoin the default stage rather than dropping the player.
			target = s.stages[s.stage0]
			target.World.addCharacter(s.gen.NextCharacterID(), id, info, s.sideForJoin(target))
			s.collectEmptyStages()
			return []string{fmt.Sprintf("%v: %s", ErrInvalidStage, cmd.StageName)}
		}
	default:
		target = s.stages[s.stage0]
	}

	target.World.addCharacter(s.gen.NextCharacterID(), id, info, s.sideForJoin(target))
	s.collectEmptyStages()
	return nil
}

// RconCommand evaluates remote-console lines under an auth level, returning
// the textual results.
func (s *State) RconCommand(id *PlayerID, auth console.AuthLevel, cmds []string) []string {
	var out []string
	for _, line := range cmds {
		res, err := s.chain.Exec(line, auth)
		if err != nil {
			out = append(out, err.Error())
			continue
		}
		out = append(out, res...)
	}
	return out
}

// sanitizeInfo enforces the protocol string bounds on identity fields.
func sanitizeInfo(info *CharacterInfo) {
	if len(info.Name) > MaxNameLen {
		info.Name = info.Name[:MaxNameLen]
	}
	if info.Name == "" {
		info.Name = "nameless tee"
	}
	if len(info.Clan) > MaxClanLen {
		info.Clan = info.Clan[:MaxClanLen]
	}
	if len(info.Skin) > MaxSkinLen {
		info.Skin = info.Skin[:MaxSkinLen]
	}
}

// Protocol string bounds shared with the snapshot codec.
const (
	MaxNameLen = 16
	MaxClanLen = 12
	MaxSkinLen = 24
)
