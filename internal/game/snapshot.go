package game

import (
	"fmt"
	"math"
	"sort"

	"arena-core/internal/game/vmath"
	"arena-core/internal/input"
	"arena-core/internal/snap"
)

// Snapshot production and rebuild. A snapshot is a self-contained buffer:
// monotonic tick, per-stage match and world state, the shared indices and
// the local-player hint set. Rebuild is total — every attribute the server
// can set, the receiver can set — and preserves entity identity so
// interpolation against the previous build works.

// SnapshotFor serializes the authoritative state. The scope only selects the
// local-player hints; every stage is always serialized because prediction
// needs off-screen hook partners.
func (s *State) SnapshotFor(scope SnapshotScope) []byte {
	w := snap.NewWriter()
	w.WriteUvarint(s.tick)
	w.WriteUvarint(s.eventSeq)
	w.WriteUvarint(s.gen.epoch)
	w.WriteUvarint(s.gen.next.Load())

	stageIDs := s.sortedStageIDs()
	w.WriteUvarint(uint64(len(stageIDs)))
	for _, stID := range stageIDs {
		s.writeStage(w, s.stages[stID])
	}

	// Spectators with their retained infos.
	specIDs := make([]PlayerID, 0, s.spectators.Len())
	for id := range s.spectators.m {
		specIDs = append(specIDs, id)
	}
	sort.Slice(specIDs, func(i, j int) bool { return ID(specIDs[i]).Less(ID(specIDs[j])) })
	w.WriteUvarint(uint64(len(specIDs)))
	for _, id := range specIDs {
		w.WriteID(id.Hi, id.Lo)
		writeInfo(w, s.specInfos[id])
	}

	// Camera modes.
	camIDs := make([]PlayerID, 0, len(s.cameras))
	for id := range s.cameras {
		camIDs = append(camIDs, id)
	}
	sort.Slice(camIDs, func(i, j int) bool { return ID(camIDs[i]).Less(ID(camIDs[j])) })
	w.WriteUvarint(uint64(len(camIDs)))
	for _, id := range camIDs {
		w.WriteID(id.Hi, id.Lo)
		w.WriteUvarint(uint64(s.cameras[id]))
	}

	// Local-player hints.
	hints := make([]PlayerID, 0, len(scope.ForPlayers))
	for id := range scope.ForPlayers {
		hints = append(hints, id)
	}
	sort.Slice(hints, func(i, j int) bool { return ID(hints[i]).Less(ID(hints[j])) })
	w.WriteUvarint(uint64(len(hints)))
	for _, id := range hints {
		w.WriteID(id.Hi, id.Lo)
	}

	return w.Bytes()
}

func writeVec(w *snap.Writer, v vmath.Vec2) {
	w.WriteVarint(int64(v.X))
	w.WriteVarint(int64(v.Y))
}

func readVec(r *snap.Reader) (vmath.Vec2, error) {
	x, err := r.ReadVarint()
	if err != nil {
		return vmath.Vec2{}, err
	}
	y, err := r.ReadVarint()
	if err != nil {
		return vmath.Vec2{}, err
	}
	return vmath.V(vmath.Fixed(x), vmath.Fixed(y)), nil
}

func writeInfo(w *snap.Writer, info CharacterInfo) {
	w.WriteString(info.Name, MaxNameLen)
	w.WriteString(info.Clan, MaxClanLen)
	w.WriteString(info.Skin, MaxSkinLen)
	w.WriteUvarint(uint64(info.Eye))
}

func readInfo(r *snap.Reader) (CharacterInfo, error) {
	var info CharacterInfo
	var err error
	if info.Name, err = r.ReadString(MaxNameLen); err != nil {
		return info, err
	}
	if info.Clan, err = r.ReadString(MaxClanLen); err != nil {
		return info, err
	}
	if info.Skin, err = r.ReadString(MaxSkinLen); err != nil {
		return info, err
	}
	eye, err := r.ReadUvarint()
	if err != nil {
		return info, err
	}
	info.Eye = Eye(eye)
	return info, nil
}

func (s *State) writeStage(w *snap.Writer, st *Stage) {
	w.WriteID(st.ID.Hi, st.ID.Lo)
	w.WriteString(st.Name, MaxNameLen)
	for i := 0; i < 3; i++ {
		w.WriteUvarint(uint64(st.Color[i]))
	}

	m := st.Match
	w.WriteUvarint(uint64(m.State))
	w.WriteBool(m.Sided)
	w.WriteVarint(m.SideScores[0])
	w.WriteVarint(m.SideScores[1])
	w.WriteVarint(m.ScoreLimit)
	w.WriteUvarint(m.TimeLimitTicks)
	w.WriteUvarint(m.AutoBalanceTicks)
	w.WriteUvarint(m.startTick)
	w.WriteUvarint(m.gameOverAt)
	w.WriteVarint(m.sdEntryScores[0])
	w.WriteVarint(m.sdEntryScores[1])
	w.WriteUvarint(m.imbalanceSince)
	w.WriteBool(m.forceBalance)
	w.WriteID(ID(m.Leaderboard[0]).Hi, ID(m.Leaderboard[0]).Lo)
	w.WriteID(ID(m.Leaderboard[1]).Hi, ID(m.Leaderboard[1]).Lo)

	s.writeWorld(w, st.World)
}

func (s *State) writeWorld(w *snap.Writer, wo *World) {
	// Characters.
	charIDs := wo.sortedCharacterIDs()
	w.WriteUvarint(uint64(len(charIDs)))
	for _, cid := range charIDs {
		c := wo.characters[cid]
		w.WriteID(ID(c.ID).Hi, ID(c.ID).Lo)
		w.WriteID(ID(c.PlayerID).Hi, ID(c.PlayerID).Lo)
		w.WriteUvarint(c.InfoVersion)
		writeInfo(w, c.Info)

		writeVec(w, c.Core.Pos)
		writeVec(w, c.Core.Vel)
		w.WriteUvarint(uint64(c.Core.Jumped))
		w.WriteUvarint(uint64(c.Core.QueuedJumps))
		w.WriteUvarint(uint64(c.Core.QueuedHooks))
		w.WriteVarint(int64(c.Core.Direction))
		w.WriteUvarint(uint64(c.Core.Hook.State))
		writeVec(w, c.Core.Hook.Pos)
		writeVec(w, c.Core.Hook.Dir)
		w.WriteUvarint(c.Core.Hook.Tick)
		w.WriteID(ID(c.Core.Hook.HookedChar).Hi, ID(c.Core.Hook.HookedChar).Lo)

		w.WriteUvarint(uint64(c.ActiveWeapon))
		w.WriteUvarint(uint64(c.PrevWeapon))
		w.WriteBool(c.QueuedWeapon != nil)
		if c.QueuedWeapon != nil {
			w.WriteUvarint(uint64(*c.QueuedWeapon))
		}
		w.WriteVarint(int64(c.Health))
		w.WriteVarint(int64(c.Armor))
		w.WriteVarint(int64(c.AttackRecoil))
		w.WriteUvarint(uint64(c.Side))
		w.WriteUvarint(uint64(c.Eye))
		w.WriteUvarint(uint64(c.DefaultEye))
		w.WriteVarint(int64(c.EyeTicks))
		w.WriteUvarint(uint64(c.Phase.Kind))
		w.WriteVarint(int64(c.Phase.RespawnIn))
		w.WriteUvarint(math.Float64bits(c.LastDmgAngle))
		w.WriteID(ID(c.Killer).Hi, ID(c.Killer).Lo)
		w.WriteVarint(wo.CharacterScores[c.ID])
		w.WriteUvarint(c.Counter)
		w.WriteUvarint(uint64(c.TuneZone))

		// Reusable core, in sorted order.
		rc := c.ReusableCore
		wks := make([]WeaponKind, 0, len(rc.Weapons))
		for k := range rc.Weapons {
			wks = append(wks, k)
		}
		sort.Slice(wks, func(i, j int) bool { return wks[i] < wks[j] })
		w.WriteUvarint(uint64(len(wks)))
		for _, k := range wks {
			slot := rc.Weapons[k]
			w.WriteUvarint(uint64(k))
			w.WriteVarint(int64(slot.Ammo))
			w.WriteUvarint(slot.NextRegenTick)
		}
		bks := make([]BuffKind, 0, len(rc.Buffs))
		for k := range rc.Buffs {
			bks = append(bks, k)
		}
		sort.Slice(bks, func(i, j int) bool { return bks[i] < bks[j] })
		w.WriteUvarint(uint64(len(bks)))
		for _, k := range bks {
			w.WriteUvarint(uint64(k))
			w.WriteVarint(int64(rc.Buffs[k]))
		}
		dks := make([]DebuffKind, 0, len(rc.Debuffs))
		for k := range rc.Debuffs {
			dks = append(dks, k)
		}
		sort.Slice(dks, func(i, j int) bool { return dks[i] < dks[j] })
		w.WriteUvarint(uint64(len(dks)))
		for _, k := range dks {
			w.WriteUvarint(uint64(k))
			w.WriteVarint(int64(rc.Debuffs[k]))
		}
		w.WriteVarint(int64(rc.Ninja.BuffTicks))
		w.WriteVarint(int64(rc.Ninja.DashTicks))
		writeVec(w, rc.Ninja.DashDir)
		w.WriteBytes(rc.QueuedEmoticons)
		iks := make([]CharacterID, 0, len(rc.Interactions))
		for k := range rc.Interactions {
			iks = append(iks, k)
		}
		sort.Slice(iks, func(i, j int) bool { return ID(iks[i]).Less(ID(iks[j])) })
		w.WriteUvarint(uint64(len(iks)))
		for _, k := range iks {
			w.WriteID(ID(k).Hi, ID(k).Lo)
		}

		w.WriteBytes(c.Input.Input.Bytes())
		w.WriteUvarint(c.Input.Version)
	}

	// Projectiles.
	projIDs := make([]ProjectileID, 0, len(wo.projectiles))
	for id := range wo.projectiles {
		projIDs = append(projIDs, id)
	}
	sort.Slice(projIDs, func(i, j int) bool { return ID(projIDs[i]).Less(ID(projIDs[j])) })
	w.WriteUvarint(uint64(len(projIDs)))
	for _, id := range projIDs {
		p := wo.projectiles[id]
		w.WriteID(ID(p.ID).Hi, ID(p.ID).Lo)
		w.WriteID(ID(p.Owner).Hi, ID(p.Owner).Lo)
		w.WriteUvarint(uint64(p.Weapon))
		writeVec(w, p.StartPos)
		writeVec(w, p.Dir)
		w.WriteVarint(int64(p.Speed))
		w.WriteVarint(int64(p.Curvature))
		w.WriteUvarint(p.StartTick)
		w.WriteVarint(int64(p.LifeTicks))
		w.WriteBool(p.Explosive)
		w.WriteUvarint(p.Counter)
	}

	// Lasers.
	laserIDs := make([]LaserID, 0, len(wo.lasers))
	for id := range wo.lasers {
		laserIDs = append(laserIDs, id)
	}
	sort.Slice(laserIDs, func(i, j int) bool { return ID(laserIDs[i]).Less(ID(laserIDs[j])) })
	w.WriteUvarint(uint64(len(laserIDs)))
	for _, id := range laserIDs {
		l := wo.lasers[id]
		w.WriteID(ID(l.ID).Hi, ID(l.ID).Lo)
		w.WriteID(ID(l.Owner).Hi, ID(l.Owner).Lo)
		writeVec(w, l.From)
		writeVec(w, l.Pos)
		w.WriteUvarint(l.StartTick)
		w.WriteUvarint(l.EvalTick)
		w.WriteVarint(int64(l.Energy))
		w.WriteVarint(int64(l.Bounces))
		w.WriteUvarint(l.Counter)
	}

	// Flags.
	flagIDs := make([]FlagID, 0, len(wo.flags))
	for id := range wo.flags {
		flagIDs = append(flagIDs, id)
	}
	sort.Slice(flagIDs, func(i, j int) bool { return ID(flagIDs[i]).Less(ID(flagIDs[j])) })
	w.WriteUvarint(uint64(len(flagIDs)))
	for _, id := range flagIDs {
		f := wo.flags[id]
		w.WriteID(ID(f.ID).Hi, ID(f.ID).Lo)
		w.WriteUvarint(uint64(f.Side))
		writeVec(w, f.Stand)
		writeVec(w, f.Pos)
		writeVec(w, f.Vel)
		w.WriteUvarint(uint64(f.State))
		w.WriteID(ID(f.Carrier).Hi, ID(f.Carrier).Lo)
		w.WriteUvarint(f.DropTick)
		w.WriteUvarint(f.Counter)
	}

	// Pickups.
	pickIDs := make([]PickupID, 0, len(wo.pickups))
	for id := range wo.pickups {
		pickIDs = append(pickIDs, id)
	}
	sort.Slice(pickIDs, func(i, j int) bool { return ID(pickIDs[i]).Less(ID(pickIDs[j])) })
	w.WriteUvarint(uint64(len(pickIDs)))
	for _, id := range pickIDs {
		p := wo.pickups[id]
		w.WriteID(ID(p.ID).Hi, ID(p.ID).Lo)
		w.WriteUvarint(uint64(p.Kind))
		writeVec(w, p.Pos)
		w.WriteVarint(int64(p.RespawnIn))
		w.WriteUvarint(p.Counter)
	}

	// Spawn cursors keep respawn rotation deterministic across rebuilds.
	w.WriteUvarint(uint64(wo.spawnCursor[0]))
	w.WriteUvarint(uint64(wo.spawnCursor[1]))
	w.WriteUvarint(uint64(wo.spawnCursor[2]))
}

// --- decoded snapshot ---

// SnapView is a decoded snapshot. The main build path reconciles it into the
// live state; the prev path stores it as the interpolation source. Building a
// view touches no world, so it can never emit events.
type SnapView struct {
	Tick     uint64
	EventSeq uint64
	GenEpoch uint64
	GenNext  uint64

	Stages []SnapStage

	Spectators []SnapSpectator
	Cameras    []SnapCamera
	LocalHints []PlayerID
}

type SnapSpectator struct {
	ID   PlayerID
	Info CharacterInfo
}

type SnapCamera struct {
	ID   PlayerID
	Mode CameraMode
}

type SnapStage struct {
	ID    StageID
	Name  string
	Color [3]uint8

	Match SnapMatch

	Characters  []SnapCharacter
	Projectiles []Projectile
	Lasers      []Laser
	Flags       []Flag
	Pickups     []Pickup

	SpawnCursor [3]int
}

type SnapMatch struct {
	State            MatchState
	Sided            bool
	SideScores       [2]int64
	ScoreLimit       int64
	TimeLimitTicks   uint64
	AutoBalanceTicks uint64
	StartTick        uint64
	GameOverAt       uint64
	SDEntryScores    [2]int64
	ImbalanceSince   uint64
	ForceBalance     bool
	Leaderboard      [2]CharacterID
}

type SnapCharacter struct {
	ID          CharacterID
	PlayerID    PlayerID
	InfoVersion uint64
	Info        CharacterInfo

	Core Core

	ActiveWeapon WeaponKind
	PrevWeapon   WeaponKind
	QueuedWeapon *WeaponKind

	Health       int
	Armor        int
	AttackRecoil int
	Side         Side
	Eye          Eye
	DefaultEye   Eye
	EyeTicks     int
	Phase        Phase
	LastDmgAngle float64
	Killer       PlayerID
	Score        int64
	Counter      uint64
	TuneZone     uint8

	Weapons      []SnapWeaponSlot
	Buffs        []SnapBuff
	Debuffs      []SnapDebuff
	Ninja        NinjaState
	Emoticons    []uint8
	Interactions []CharacterID

	Input        input.CharacterInput
	InputVersion uint64
}

type SnapWeaponSlot struct {
	Kind WeaponKind
	Slot WeaponSlot
}

type SnapBuff struct {
	Kind  BuffKind
	Ticks int
}

type SnapDebuff struct {
	Kind  DebuffKind
	Ticks int
}

// ParseSnapshot decodes a snapshot buffer into a view.
func ParseSnapshot(buf []byte) (*SnapView, error) {
	r, err := snap.NewReader(buf)
	if err != nil {
		return nil, err
	}
	v := &SnapView{}
	if v.Tick, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if v.EventSeq, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if v.GenEpoch, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if v.GenNext, err = r.ReadUvarint(); err != nil {
		return nil, err
	}

	nStages, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nStages; i++ {
		st, err := readStage(r)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		v.Stages = append(v.Stages, st)
	}

	nSpec, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nSpec; i++ {
		hi, lo, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		info, err := readInfo(r)
		if err != nil {
			return nil, err
		}
		v.Spectators = append(v.Spectators, SnapSpectator{ID: PlayerID{hi, lo}, Info: info})
	}

	nCams, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nCams; i++ {
		hi, lo, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		mode, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		v.Cameras = append(v.Cameras, SnapCamera{ID: PlayerID{hi, lo}, Mode: CameraMode(mode)})
	}

	nHints, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nHints; i++ {
		hi, lo, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		v.LocalHints = append(v.LocalHints, PlayerID{hi, lo})
	}
	return v, nil
}

func readID(r *snap.Reader) (ID, error) {
	hi, lo, err := r.ReadID()
	return ID{hi, lo}, err
}

func readStage(r *snap.Reader) (SnapStage, error) {
	var st SnapStage
	id, err := readID(r)
	if err != nil {
		return st, err
	}
	st.ID = StageID(id)
	if st.Name, err = r.ReadString(MaxNameLen); err != nil {
		return st, err
	}
	for i := 0; i < 3; i++ {
		c, err := r.ReadUvarint()
		if err != nil {
			return st, err
		}
		st.Color[i] = uint8(c)
	}

	m := &st.Match
	u, err := r.ReadUvarint()
	if err != nil {
		return st, err
	}
	m.State = MatchState(u)
	if m.Sided, err = r.ReadBool(); err != nil {
		return st, err
	}
	if m.SideScores[0], err = r.ReadVarint(); err != nil {
		return st, err
	}
	if m.SideScores[1], err = r.ReadVarint(); err != nil {
		return st, err
	}
	if m.ScoreLimit, err = r.ReadVarint(); err != nil {
		return st, err
	}
	if m.TimeLimitTicks, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	if m.AutoBalanceTicks, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	if m.StartTick, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	if m.GameOverAt, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	if m.SDEntryScores[0], err = r.ReadVarint(); err != nil {
		return st, err
	}
	if m.SDEntryScores[1], err = r.ReadVarint(); err != nil {
		return st, err
	}
	if m.ImbalanceSince, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	if m.ForceBalance, err = r.ReadBool(); err != nil {
		return st, err
	}
	for i := 0; i < 2; i++ {
		lid, err := readID(r)
		if err != nil {
			return st, err
		}
		m.Leaderboard[i] = CharacterID(lid)
	}

	// Characters.
	n, err := r.ReadUvarint()
	if err != nil {
		return st, err
	}
	for i := uint64(0); i < n; i++ {
		c, err := readCharacter(r)
		if err != nil {
			return st, fmt.Errorf("character %d: %w", i, err)
		}
		st.Characters = append(st.Characters, c)
	}

	if n, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	for i := uint64(0); i < n; i++ {
		p, err := readProjectile(r)
		if err != nil {
			return st, err
		}
		st.Projectiles = append(st.Projectiles, p)
	}

	if n, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	for i := uint64(0); i < n; i++ {
		l, err := readLaser(r)
		if err != nil {
			return st, err
		}
		st.Lasers = append(st.Lasers, l)
	}

	if n, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	for i := uint64(0); i < n; i++ {
		f, err := readFlag(r)
		if err != nil {
			return st, err
		}
		st.Flags = append(st.Flags, f)
	}

	if n, err = r.ReadUvarint(); err != nil {
		return st, err
	}
	for i := uint64(0); i < n; i++ {
		p, err := readPickup(r)
		if err != nil {
			return st, err
		}
		st.Pickups = append(st.Pickups, p)
	}

	for i := 0; i < 3; i++ {
		cur, err := r.ReadUvarint()
		if err != nil {
			return st, err
		}
		st.SpawnCursor[i] = int(cur)
	}
	return st, nil
}

func readCharacter(r *snap.Reader) (SnapCharacter, error) {
	var c SnapCharacter
	id, err := readID(r)
	if err != nil {
		return c, err
	}
	c.ID = CharacterID(id)
	if id, err = readID(r); err != nil {
		return c, err
	}
	c.PlayerID = PlayerID(id)
	if c.InfoVersion, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	if c.Info, err = readInfo(r); err != nil {
		return c, err
	}

	if c.Core.Pos, err = readVec(r); err != nil {
		return c, err
	}
	if c.Core.Vel, err = readVec(r); err != nil {
		return c, err
	}
	var u uint64
	var v int64
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Core.Jumped = uint8(u)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Core.QueuedJumps = uint8(u)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Core.QueuedHooks = uint8(u)
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.Core.Direction = int8(v)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Core.Hook.State = HookState(u)
	if c.Core.Hook.Pos, err = readVec(r); err != nil {
		return c, err
	}
	if c.Core.Hook.Dir, err = readVec(r); err != nil {
		return c, err
	}
	if c.Core.Hook.Tick, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	if id, err = readID(r); err != nil {
		return c, err
	}
	c.Core.Hook.HookedChar = CharacterID(id)

	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.ActiveWeapon = WeaponKind(u)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.PrevWeapon = WeaponKind(u)
	hasQueued, err := r.ReadBool()
	if err != nil {
		return c, err
	}
	if hasQueued {
		if u, err = r.ReadUvarint(); err != nil {
			return c, err
		}
		qw := WeaponKind(u)
		c.QueuedWeapon = &qw
	}
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.Health = int(v)
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.Armor = int(v)
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.AttackRecoil = int(v)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Side = Side(u)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Eye = Eye(u)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.DefaultEye = Eye(u)
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.EyeTicks = int(v)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.Phase.Kind = PhaseKind(u)
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.Phase.RespawnIn = int(v)
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.LastDmgAngle = math.Float64frombits(u)
	if id, err = readID(r); err != nil {
		return c, err
	}
	c.Killer = PlayerID(id)
	if c.Score, err = r.ReadVarint(); err != nil {
		return c, err
	}
	if c.Counter, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	if u, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	c.TuneZone = uint8(u)

	var n uint64
	if n, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	for i := uint64(0); i < n; i++ {
		var slot SnapWeaponSlot
		if u, err = r.ReadUvarint(); err != nil {
			return c, err
		}
		slot.Kind = WeaponKind(u)
		if v, err = r.ReadVarint(); err != nil {
			return c, err
		}
		slot.Slot.Ammo = int(v)
		if slot.Slot.NextRegenTick, err = r.ReadUvarint(); err != nil {
			return c, err
		}
		c.Weapons = append(c.Weapons, slot)
	}
	if n, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	for i := uint64(0); i < n; i++ {
		var b SnapBuff
		if u, err = r.ReadUvarint(); err != nil {
			return c, err
		}
		b.Kind = BuffKind(u)
		if v, err = r.ReadVarint(); err != nil {
			return c, err
		}
		b.Ticks = int(v)
		c.Buffs = append(c.Buffs, b)
	}
	if n, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	for i := uint64(0); i < n; i++ {
		var d SnapDebuff
		if u, err = r.ReadUvarint(); err != nil {
			return c, err
		}
		d.Kind = DebuffKind(u)
		if v, err = r.ReadVarint(); err != nil {
			return c, err
		}
		d.Ticks = int(v)
		c.Debuffs = append(c.Debuffs, d)
	}
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.Ninja.BuffTicks = int(v)
	if v, err = r.ReadVarint(); err != nil {
		return c, err
	}
	c.Ninja.DashTicks = int(v)
	if c.Ninja.DashDir, err = readVec(r); err != nil {
		return c, err
	}
	emo, err := r.ReadBytes()
	if err != nil {
		return c, err
	}
	if len(emo) > 0 {
		c.Emoticons = append([]uint8(nil), emo...)
	}
	if n, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	for i := uint64(0); i < n; i++ {
		if id, err = readID(r); err != nil {
			return c, err
		}
		c.Interactions = append(c.Interactions, CharacterID(id))
	}

	inBytes, err := r.ReadBytes()
	if err != nil {
		return c, err
	}
	if c.Input, err = input.Decode(inBytes); err != nil {
		return c, err
	}
	if c.InputVersion, err = r.ReadUvarint(); err != nil {
		return c, err
	}
	return c, nil
}

func readProjectile(r *snap.Reader) (Projectile, error) {
	var p Projectile
	id, err := readID(r)
	if err != nil {
		return p, err
	}
	p.ID = ProjectileID(id)
	if id, err = readID(r); err != nil {
		return p, err
	}
	p.Owner = PlayerID(id)
	u, err := r.ReadUvarint()
	if err != nil {
		return p, err
	}
	p.Weapon = WeaponKind(u)
	if p.StartPos, err = readVec(r); err != nil {
		return p, err
	}
	if p.Dir, err = readVec(r); err != nil {
		return p, err
	}
	v, err := r.ReadVarint()
	if err != nil {
		return p, err
	}
	p.Speed = vmath.Fixed(v)
	if v, err = r.ReadVarint(); err != nil {
		return p, err
	}
	p.Curvature = vmath.Fixed(v)
	if p.StartTick, err = r.ReadUvarint(); err != nil {
		return p, err
	}
	if v, err = r.ReadVarint(); err != nil {
		return p, err
	}
	p.LifeTicks = int(v)
	if p.Explosive, err = r.ReadBool(); err != nil {
		return p, err
	}
	if p.Counter, err = r.ReadUvarint(); err != nil {
		return p, err
	}
	return p, nil
}

func readLaser(r *snap.Reader) (Laser, error) {
	var l Laser
	id, err := readID(r)
	if err != nil {
		return l, err
	}
	l.ID = LaserID(id)
	if id, err = readID(r); err != nil {
		return l, err
	}
	l.Owner = PlayerID(id)
	if l.From, err = readVec(r); err != nil {
		return l, err
	}
	if l.Pos, err = readVec(r); err != nil {
		return l, err
	}
	if l.StartTick, err = r.ReadUvarint(); err != nil {
		return l, err
	}
	if l.EvalTick, err = r.ReadUvarint(); err != nil {
		return l, err
	}
	v, err := r.ReadVarint()
	if err != nil {
		return l, err
	}
	l.Energy = vmath.Fixed(v)
	if v, err = r.ReadVarint(); err != nil {
		return l, err
	}
	l.Bounces = int(v)
	if l.Counter, err = r.ReadUvarint(); err != nil {
		return l, err
	}
	return l, nil
}

func readFlag(r *snap.Reader) (Flag, error) {
	var f Flag
	id, err := readID(r)
	if err != nil {
		return f, err
	}
	f.ID = FlagID(id)
	u, err := r.ReadUvarint()
	if err != nil {
		return f, err
	}
	f.Side = Side(u)
	if f.Stand, err = readVec(r); err != nil {
		return f, err
	}
	if f.Pos, err = readVec(r); err != nil {
		return f, err
	}
	if f.Vel, err = readVec(r); err != nil {
		return f, err
	}
	if u, err = r.ReadUvarint(); err != nil {
		return f, err
	}
	f.State = FlagState(u)
	if id, err = readID(r); err != nil {
		return f, err
	}
	f.Carrier = CharacterID(id)
	if f.DropTick, err = r.ReadUvarint(); err != nil {
		return f, err
	}
	if f.Counter, err = r.ReadUvarint(); err != nil {
		return f, err
	}
	return f, nil
}

func readPickup(r *snap.Reader) (Pickup, error) {
	var p Pickup
	id, err := readID(r)
	if err != nil {
		return p, err
	}
	p.ID = PickupID(id)
	u, err := r.ReadUvarint()
	if err != nil {
		return p, err
	}
	p.Kind = PickupKind(u)
	if p.Pos, err = readVec(r); err != nil {
		return p, err
	}
	v, err := r.ReadVarint()
	if err != nil {
		return p, err
	}
	p.RespawnIn = int(v)
	if p.Counter, err = r.ReadUvarint(); err != nil {
		return p, err
	}
	return p, nil
}

// BuildFromSnapshot rebuilds the live state from a snapshot, preserving the
// identity of entities that survive. Returns the local players recognized
// from the hint set.
func (s *State) BuildFromSnapshot(buf []byte) (map[PlayerID]struct{}, error) {
	v, err := ParseSnapshot(buf)
	if err != nil {
		return nil, err
	}
	s.applyView(v)

	local := make(map[PlayerID]struct{}, len(v.LocalHints))
	for _, id := range v.LocalHints {
		local[id] = struct{}{}
	}
	return local, nil
}

// BuildFromSnapshotForPrev rebuilds the "previous" world used for
// interpolation. It only decodes into a view, so no world events can ever be
// emitted.
func (s *State) BuildFromSnapshotForPrev(buf []byte) error {
	v, err := ParseSnapshot(buf)
	if err != nil {
		return err
	}
	s.prev = v
	return nil
}

// PrevView returns the interpolation source built by
// BuildFromSnapshotForPrev.
func (s *State) PrevView() *SnapView { return s.prev }

// applyView reconciles a decoded snapshot into the live state.
func (s *State) applyView(v *SnapView) {
	s.tick = v.Tick
	s.eventSeq = v.EventSeq

	// Stages: delete absent, upsert present.
	seen := make(map[StageID]struct{}, len(v.Stages))
	for i := range v.Stages {
		seen[v.Stages[i].ID] = struct{}{}
	}
	for id, st := range s.stages {
		if _, ok := seen[id]; !ok {
			for _, cid := range st.World.sortedCharacterIDs() {
				st.World.removeCharacter(cid)
			}
			delete(s.stages, id)
		}
	}
	// Two passes: every deletion first, so a player whose character moved
	// stages is not removed from the shared index after its new stage
	// re-inserted it.
	for i := range v.Stages {
		sv := &v.Stages[i]
		if st, ok := s.stages[sv.ID]; ok {
			s.applyWorldDeletes(st.World, sv)
		}
	}
	for i := range v.Stages {
		sv := &v.Stages[i]
		st, ok := s.stages[sv.ID]
		if !ok {
			st = newStage(s, sv.ID, sv.Name, sv.Color)
			s.stages[st.ID] = st
		}
		st.Name = sv.Name
		st.Color = sv.Color
		s.applyMatch(st.Match, &sv.Match)
		s.applyWorld(st.World, sv)
	}
	if len(v.Stages) > 0 {
		s.stage0 = v.Stages[0].ID
	}

	// Spectators.
	for id := range s.spectators.m {
		s.spectators.remove(id)
	}
	for k := range s.specInfos {
		delete(s.specInfos, k)
	}
	for _, sp := range v.Spectators {
		s.spectators.insert(sp.ID)
		s.specInfos[sp.ID] = sp.Info
	}

	// Cameras.
	for k := range s.cameras {
		delete(s.cameras, k)
	}
	for _, cam := range v.Cameras {
		s.cameras[cam.ID] = cam.Mode
	}

	// Restore the id generator last: creating missing stages above consumes
	// local ids, and the authoritative counter must win.
	s.gen.epoch = v.GenEpoch
	s.gen.next.Store(v.GenNext)
}

func (s *State) applyMatch(m *MatchManager, sv *SnapMatch) {
	m.State = sv.State
	m.Sided = sv.Sided
	m.SideScores = sv.SideScores
	m.ScoreLimit = sv.ScoreLimit
	m.TimeLimitTicks = sv.TimeLimitTicks
	m.AutoBalanceTicks = sv.AutoBalanceTicks
	m.startTick = sv.StartTick
	m.gameOverAt = sv.GameOverAt
	m.sdEntryScores = sv.SDEntryScores
	m.imbalanceSince = sv.ImbalanceSince
	m.forceBalance = sv.ForceBalance
	m.Leaderboard = sv.Leaderboard
}

// applyWorldDeletes removes every character absent from the snapshot stage.
func (s *State) applyWorldDeletes(w *World, sv *SnapStage) {
	present := make(map[CharacterID]struct{}, len(sv.Characters))
	for i := range sv.Characters {
		present[sv.Characters[i].ID] = struct{}{}
	}
	for _, cid := range w.sortedCharacterIDs() {
		if _, ok := present[cid]; !ok {
			w.removeCharacter(cid)
		}
	}
}

func (s *State) applyWorld(w *World, sv *SnapStage) {
	for i := range sv.Characters {
		cv := &sv.Characters[i]
		c, ok := w.characters[cv.ID]
		if !ok {
			c = &Character{ID: cv.ID, PlayerID: cv.PlayerID, ReusableCore: newReusableCore()}
			w.characters[cv.ID] = c
			w.players.insert(cv.PlayerID, w.stage)
			if cv.Phase.Kind == PhaseDead {
				w.phased.acquire(cv.ID)
			}
		} else {
			wasDead := c.Phase.Kind == PhaseDead
			nowDead := cv.Phase.Kind == PhaseDead
			if wasDead && !nowDead {
				w.phased.release(c.ID)
			}
			if !wasDead && nowDead {
				w.phased.acquire(c.ID)
			}
		}

		c.PlayerID = cv.PlayerID
		c.InfoVersion = cv.InfoVersion
		c.Info = cv.Info
		c.Core = cv.Core
		c.ActiveWeapon = cv.ActiveWeapon
		c.PrevWeapon = cv.PrevWeapon
		c.QueuedWeapon = nil
		if cv.QueuedWeapon != nil {
			qw := *cv.QueuedWeapon
			c.QueuedWeapon = &qw
		}
		c.Health = cv.Health
		c.Armor = cv.Armor
		c.AttackRecoil = cv.AttackRecoil
		c.Side = cv.Side
		c.Eye = cv.Eye
		c.DefaultEye = cv.DefaultEye
		c.EyeTicks = cv.EyeTicks
		c.Phase = cv.Phase
		c.LastDmgAngle = cv.LastDmgAngle
		c.Killer = cv.Killer
		c.Score = cv.Score
		c.Counter = cv.Counter
		c.TuneZone = cv.TuneZone
		w.CharacterScores[c.ID] = cv.Score

		rc := c.ReusableCore
		for k := range rc.Weapons {
			delete(rc.Weapons, k)
		}
		for _, slot := range cv.Weapons {
			cp := slot.Slot
			rc.Weapons[slot.Kind] = &cp
		}
		for k := range rc.Buffs {
			delete(rc.Buffs, k)
		}
		for _, b := range cv.Buffs {
			rc.Buffs[b.Kind] = b.Ticks
		}
		for k := range rc.Debuffs {
			delete(rc.Debuffs, k)
		}
		for _, d := range cv.Debuffs {
			rc.Debuffs[d.Kind] = d.Ticks
		}
		rc.Ninja = cv.Ninja
		rc.QueuedEmoticons = append([]uint8(nil), cv.Emoticons...)
		for k := range rc.Interactions {
			delete(rc.Interactions, k)
		}
		for _, ik := range cv.Interactions {
			rc.Interactions[ik] = struct{}{}
		}

		c.Input.Input = cv.Input
		c.Input.Version = cv.InputVersion
		c.diff = input.ConsumableDiff{}
	}

	// Rebuild the hook index from the authoritative hook states.
	w.Hooked = NewHookedCharacters()
	for _, cid := range w.sortedCharacterIDs() {
		c := w.characters[cid]
		if c.Core.Hook.State == HookGrabbedChar && !ID(c.Core.Hook.HookedChar).IsZero() {
			w.Hooked.Attach(c.ID, c.Core.Hook.HookedChar)
		}
	}

	// Entities: replace wholesale, preserving identity via the id keys.
	replaceEntities(w.projectiles, sv.Projectiles, func(p Projectile) ProjectileID { return p.ID })
	replaceEntities(w.lasers, sv.Lasers, func(l Laser) LaserID { return l.ID })
	replaceEntities(w.flags, sv.Flags, func(f Flag) FlagID { return f.ID })
	replaceEntities(w.pickups, sv.Pickups, func(p Pickup) PickupID { return p.ID })

	w.spawnCursor[0] = sv.SpawnCursor[0]
	w.spawnCursor[1] = sv.SpawnCursor[1]
	w.spawnCursor[2] = sv.SpawnCursor[2]

	// Drop scores of characters no longer present.
	for cid := range w.CharacterScores {
		if _, ok := w.characters[cid]; !ok {
			delete(w.CharacterScores, cid)
		}
	}
}

// replaceEntities updates a live entity map from snapshot values, keeping
// existing allocations for surviving ids.
func replaceEntities[K comparable, V any](live map[K]*V, snapVals []V, key func(V) K) {
	present := make(map[K]struct{}, len(snapVals))
	for _, v := range snapVals {
		present[key(v)] = struct{}{}
	}
	for k := range live {
		if _, ok := present[k]; !ok {
			delete(live, k)
		}
	}
	for _, v := range snapVals {
		k := key(v)
		if ex, ok := live[k]; ok {
			*ex = v
		} else {
			cp := v
			live[k] = &cp
		}
	}
}
