package game

import (
	"math"
	"sort"

	"arena-core/internal/game/collision"
	"arena-core/internal/game/vmath"
)

// World owns every entity of one stage: characters, projectiles, lasers,
// flags and pickups, plus the hook index and per-character scores. All
// mutation happens on the simulation goroutine.
type World struct {
	stage StageID
	gen   *IDGenerator
	grid  *collision.Grid
	tunes *TuneTable

	characters  map[CharacterID]*Character
	projectiles map[ProjectileID]*Projectile
	lasers      map[LaserID]*Laser
	flags       map[FlagID]*Flag
	pickups     map[PickupID]*Pickup

	Hooked *HookedCharacters
	phased *PhasedCharacters
	players *Players

	// CharacterScores is the per-character score table the match manager
	// reads each tick.
	CharacterScores map[CharacterID]int64

	events      *eventBuffer
	nextEventID func() EventID

	friendlyFire bool
	spawnCursor  map[collision.SpawnKind]int

	// balance, when set, may reassign a character's side right before it
	// respawns (auto side balancing).
	balance func(*Character)

	tick uint64
}

func newWorld(stage StageID, gen *IDGenerator, grid *collision.Grid, tunes *TuneTable,
	players *Players, phased *PhasedCharacters, events *eventBuffer, nextEventID func() EventID) *World {

	w := &World{
		stage:           stage,
		gen:             gen,
		grid:            grid,
		tunes:           tunes,
		characters:      make(map[CharacterID]*Character),
		projectiles:     make(map[ProjectileID]*Projectile),
		lasers:          make(map[LaserID]*Laser),
		flags:           make(map[FlagID]*Flag),
		pickups:         make(map[PickupID]*Pickup),
		Hooked:          NewHookedCharacters(),
		phased:          phased,
		players:         players,
		CharacterScores: make(map[CharacterID]int64),
		events:          events,
		nextEventID:     nextEventID,
		spawnCursor:     make(map[collision.SpawnKind]int),
	}
	w.placeMapEntities()
	return w
}

// placeMapEntities seeds flags and pickups from the map.
func (w *World) placeMapEntities() {
	if !w.grid.FlagStandRed.IsZero() {
		f := &Flag{ID: w.gen.NextFlagID(), Side: SideRed, Stand: w.grid.FlagStandRed, Pos: w.grid.FlagStandRed}
		w.flags[f.ID] = f
	}
	if !w.grid.FlagStandBlue.IsZero() {
		f := &Flag{ID: w.gen.NextFlagID(), Side: SideBlue, Stand: w.grid.FlagStandBlue, Pos: w.grid.FlagStandBlue}
		w.flags[f.ID] = f
	}
	for _, spot := range w.grid.PickupSpots {
		p := &Pickup{ID: w.gen.NextPickupID(), Kind: PickupKind(spot.Kind), Pos: spot.Pos}
		w.pickups[p.ID] = p
	}
}

// emit buffers a world event with a fresh id. Suppressed sections (future
// prediction) allocate no event ids so prediction stays idempotent.
func (w *World) emit(ev WorldEvent) {
	if w.events.suppressed {
		return
	}
	ev.ID = w.nextEventID()
	ev.Tick = w.tick
	w.events.emit(ev)
}

// sortedCharacterIDs returns the character ids in creation order. Tick and
// snapshot iteration both use this so the simulation stays deterministic.
func (w *World) sortedCharacterIDs() []CharacterID {
	ids := make([]CharacterID, 0, len(w.characters))
	for id := range w.characters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })
	return ids
}

// Character returns a character by id.
func (w *World) Character(id CharacterID) (*Character, bool) {
	c, ok := w.characters[id]
	return c, ok
}

// CharacterOfPlayer returns the character owned by a player.
func (w *World) CharacterOfPlayer(id PlayerID) (*Character, bool) {
	for _, c := range w.characters {
		if c.PlayerID == id {
			return c, true
		}
	}
	return nil, false
}

// CharacterCount returns the number of characters in the world.
func (w *World) CharacterCount() int { return len(w.characters) }

// spawnPos picks the next spawn point for a side, rotating through the map's
// spawn list deterministically.
func (w *World) spawnPos(side Side) vmath.Vec2 {
	kind := collision.SpawnDefault
	switch side {
	case SideRed:
		kind = collision.SpawnRed
	case SideBlue:
		kind = collision.SpawnBlue
	}
	spawns := w.grid.Spawns(kind)
	if len(spawns) == 0 {
		return vmath.TileCenter(w.grid.Width()/2, w.grid.Height()/2)
	}
	i := w.spawnCursor[kind] % len(spawns)
	w.spawnCursor[kind] = i + 1
	return spawns[i]
}

// addCharacter constructs a character for a player and inserts it into the
// world and the shared Players index.
func (w *World) addCharacter(id CharacterID, player PlayerID, info CharacterInfo, side Side) *Character {
	c := &Character{
		ID:           id,
		PlayerID:     player,
		Info:         info,
		ReusableCore: newReusableCore(),
		ActiveWeapon: WeaponGun,
		PrevWeapon:   WeaponHammer,
		Health:       MaxHealth,
		Side:         side,
		DefaultEye:   info.Eye,
		Eye:          info.Eye,
	}
	c.Core.Pos = w.spawnPos(side)
	w.characters[c.ID] = c
	w.CharacterScores[c.ID] = 0
	w.players.insert(player, w.stage)
	w.emit(WorldEvent{Kind: EventSpawn, Pos: c.Core.Pos, Player: player})
	return c
}

// removeCharacter drops a character, releasing every shared index entry it
// holds: Players, the hook index, the phased set and any carried flag.
func (w *World) removeCharacter(id CharacterID) {
	c, ok := w.characters[id]
	if !ok {
		return
	}
	for _, f := range w.flags {
		if f.State == FlagCarried && f.Carrier == id {
			w.dropFlag(f, c.Core.Pos)
		}
	}
	w.Hooked.Drop(id)
	if c.IsDead() {
		w.phased.release(id)
	}
	w.players.remove(c.PlayerID)
	delete(w.CharacterScores, id)
	delete(w.characters, id)
}

// Tick advances the world one tick.
func (w *World) Tick(tick uint64) {
	w.tick = tick
	ids := w.sortedCharacterIDs()

	for _, id := range ids {
		w.characters[id].preTick()
	}
	for _, id := range ids {
		w.tickCharacter(w.characters[id])
	}
	for _, id := range ids {
		w.tickDeferredCharacter(w.characters[id])
	}

	w.updateProjectiles()
	w.updateLasers()
	w.updateFlags()
	w.updatePickups()
}

// tickCharacter runs the main phase: input physics, tiles, buffs, weapons.
func (w *World) tickCharacter(c *Character) {
	if c.IsDead() {
		if c.Phase.RespawnIn > 0 {
			c.Phase.RespawnIn--
		}
		if c.Phase.RespawnIn == 0 {
			w.respawn(c)
		}
		return
	}

	tn := w.tunes.Zone(c.TuneZone)
	frozen := c.ReusableCore.Debuffs[DebuffFreeze] > 0

	w.physicsTick(c, tn, frozen)
	w.handleTiles(c)
	if c.IsDead() {
		return
	}
	w.handleBuffsAndDebuffs(c, tn)
	if !frozen {
		w.handleWeapons(c, tn)
	}

	// Drain one queued emoticon per tick.
	if q := c.ReusableCore.QueuedEmoticons; len(q) > 0 {
		w.emit(WorldEvent{Kind: EventEmoticon, Player: c.PlayerID, Pos: c.Core.Pos, Emoticon: q[0]})
		c.ReusableCore.QueuedEmoticons = q[1:]
	}
}

// physicsTick applies movement input, gravity and the hook.
func (w *World) physicsTick(c *Character, tn *Tunings, frozen bool) {
	core := &c.Core
	grounded := w.grid.TestBox(vmath.V(core.Pos.X, core.Pos.Y+2), vmath.V(PhysicalHalf, PhysicalHalf))

	dir := c.Input.Input.Dir
	if frozen {
		dir = 0
	}
	core.Direction = dir

	// Horizontal control.
	var controlSpeed, controlAccel, friction vmath.Fixed
	if grounded {
		controlSpeed, controlAccel, friction = tn.GroundControlSpeed, tn.GroundControlAccel, tn.GroundFriction
		core.Jumped = 0
	} else {
		controlSpeed, controlAccel, friction = tn.AirControlSpeed, tn.AirControlAccel, tn.AirFriction
	}

	target := controlSpeed.Mul(vmath.Fixed(int32(dir)) << vmath.FracBits)
	switch {
	case core.Vel.X < target:
		core.Vel.X += controlAccel
		if core.Vel.X > target {
			core.Vel.X = target
		}
	case core.Vel.X > target:
		core.Vel.X -= controlAccel
		if core.Vel.X < target {
			core.Vel.X = target
		}
	}
	if dir == 0 {
		core.Vel.X = core.Vel.X.Mul(friction)
	}

	core.Vel.Y += tn.Gravity

	// Jumps: queued edges from the consumable diff, ground jump first, then
	// one air jump.
	if !frozen {
		if c.diff.TakeJump() {
			core.QueuedJumps++
		}
		for core.QueuedJumps > 0 {
			core.QueuedJumps--
			if grounded {
				core.Vel.Y = -tn.GroundJumpImpulse
				core.Jumped = 1
			} else if core.Jumped < jumpAirMax {
				core.Vel.Y = -tn.AirJumpImpulse
				core.Jumped = jumpAirMax
			}
		}
	}

	w.physicsHook(c, tn, frozen)
}

// physicsHook advances the hook state machine.
func (w *World) physicsHook(c *Character, tn *Tunings, frozen bool) {
	core := &c.Core
	hook := &core.Hook

	if frozen || !c.Input.Input.Hook {
		if hook.State != HookIdle {
			w.Hooked.Detach(c.ID)
			*hook = Hook{}
		}
		// A press while frozen is consumed and lost.
		c.diff.TakeHook()
		return
	}

	if c.diff.TakeHook() {
		core.QueuedHooks++
	}
	if hook.State == HookIdle && core.QueuedHooks > 0 {
		core.QueuedHooks = 0
		hook.State = HookFlying
		hook.Pos = core.Pos
		hook.Dir = c.cursorDir()
		hook.Tick = w.tick
	}

	switch hook.State {
	case HookFlying:
		next := hook.Pos.Add(hook.Dir.Scale(tn.HookFireSpeed))
		if core.Pos.Distance(next) > tn.HookLength {
			// Out of rope: retract.
			w.Hooked.Detach(c.ID)
			*hook = Hook{}
			return
		}
		// Characters catch before tiles.
		if tn.PlayerHooking {
			if target := w.characterAlongSegment(hook.Pos, next, c.ID); target != nil {
				hook.State = HookGrabbedChar
				hook.HookedChar = target.ID
				hook.Pos = target.Core.Pos
				w.Hooked.Attach(c.ID, target.ID)
				return
			}
		}
		if hit, ok := w.grid.IntersectLine(hook.Pos, next); ok {
			if w.grid.IsHookBlocking(hit) {
				w.Hooked.Detach(c.ID)
				*hook = Hook{}
				return
			}
			hook.State = HookGrabbedTile
			hook.Pos = hit
			return
		}
		hook.Pos = next

	case HookGrabbedTile:
		// Drag the hooker toward the anchor.
		dragDir := hook.Pos.Sub(core.Pos).Normalize()
		core.Vel = core.Vel.Add(dragDir.Scale(tn.HookDragAccel))
		if vel := core.Vel.Length(); vel > tn.HookDragSpeed {
			core.Vel = core.Vel.Normalize().Scale(tn.HookDragSpeed)
		}

	case HookGrabbedChar:
		target, ok := w.characters[hook.HookedChar]
		if !ok || target.IsDead() {
			w.Hooked.Detach(c.ID)
			*hook = Hook{}
			return
		}
		hook.Pos = target.Core.Pos
		// Drag the grabbed character toward the hooker.
		dragDir := core.Pos.Sub(target.Core.Pos).Normalize()
		target.Core.Vel = target.Core.Vel.Add(dragDir.Scale(tn.HookDragAccel))
	}
}

// characterAlongSegment finds the first live, unphased character within grab
// distance of the segment, excluding the given id.
func (w *World) characterAlongSegment(a, b vmath.Vec2, exclude CharacterID) *Character {
	var best *Character
	var bestDist int64 = math.MaxInt64
	for _, id := range w.sortedCharacterIDs() {
		c := w.characters[id]
		if c.ID == exclude || c.IsDead() || w.phased.Contains(c.ID) {
			continue
		}
		d := segmentDistSq(a, b, c.Core.Pos)
		if d < int64(PhysicalHalf)*int64(PhysicalHalf) && d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// segmentDistSq returns the squared distance from point p to segment ab.
func segmentDistSq(a, b, p vmath.Vec2) int64 {
	ab := b.Sub(a)
	ap := p.Sub(a)
	lenSq := ab.LengthSq()
	if lenSq == 0 {
		return ap.LengthSq()
	}
	t := (int64(ap.X)*int64(ab.X) + int64(ap.Y)*int64(ab.Y))
	if t < 0 {
		return ap.LengthSq()
	}
	if t > lenSq {
		return p.Sub(b).LengthSq()
	}
	// Closest point = a + ab * t/lenSq.
	cx := int64(a.X) + int64(ab.X)*t/lenSq
	cy := int64(a.Y) + int64(ab.Y)*t/lenSq
	dx := int64(p.X) - cx
	dy := int64(p.Y) - cy
	return dx*dx + dy*dy
}

// handleTiles resolves the tile under the character: death tiles kill, tune
// tiles switch the active tuning zone.
func (w *World) handleTiles(c *Character) {
	if w.grid.IsDeath(c.Core.Pos) {
		w.kill(c, c.PlayerID, WeaponNinja, true)
		return
	}
	c.TuneZone = w.grid.TuneZoneAt(c.Core.Pos)
}

// handleBuffsAndDebuffs advances ninja dash and timers.
func (w *World) handleBuffsAndDebuffs(c *Character, tn *Tunings) {
	rc := c.ReusableCore

	for k, ticks := range rc.Debuffs {
		if ticks > 0 {
			rc.Debuffs[k] = ticks - 1
		}
	}
	for k, ticks := range rc.Buffs {
		if ticks > 0 {
			rc.Buffs[k] = ticks - 1
			if rc.Buffs[k] == 0 {
				delete(rc.Buffs, k)
			}
		}
	}

	// Advance an active ninja dash: constant velocity, damage everything
	// entered exactly once.
	if rc.Ninja.DashTicks > 0 {
		rc.Ninja.DashTicks--
		c.Core.Vel = rc.Ninja.DashDir.Scale(NinjaDashVelocity)
		radius := PhysicalSize * 2
		for _, id := range w.sortedCharacterIDs() {
			target := w.characters[id]
			if target.ID == c.ID || target.IsDead() || w.phased.Contains(target.ID) {
				continue
			}
			if _, hit := rc.Interactions[target.ID]; hit {
				continue
			}
			if target.Core.Pos.Distance(c.Core.Pos) < radius {
				rc.Interactions[target.ID] = struct{}{}
				w.damage(c, target, NinjaDamage, c.Core.Vel.Normalize(), WeaponNinja)
			}
		}
		if rc.Ninja.DashTicks == 0 {
			c.Core.Vel = vmath.Vec2{}
		}
	}
}

// tickDeferredCharacter runs the deferred phase: swept movement and grid
// quantization.
func (w *World) tickDeferredCharacter(c *Character) {
	if c.IsDead() {
		return
	}
	pos, vel := w.grid.MoveBox(c.Core.Pos, c.Core.Vel, vmath.V(PhysicalHalf, PhysicalHalf), 0)
	c.Core.Pos = pos
	c.Core.Vel = vel

	w.physicsQuantize(c)
}

// physicsQuantize snaps the core to the integer grid and keeps hook-partner
// pairs at least one unit apart so no two characters ever share an exact
// end-of-tick position.
func (w *World) physicsQuantize(c *Character) {
	// Positions and velocities are already integer fixed-point; the
	// remaining quantize concern is coincident positions.
	if partner, ok := w.Hooked.Partner(c.ID); ok {
		if p, alive := w.characters[partner]; alive && p.Core.Pos == c.Core.Pos {
			c.Core.Pos.X++
		}
	}
}

// effectiveDamage applies the friendly-fire matrix to a raw damage value.
func (w *World) effectiveDamage(attacker, victim *Character, dmg int) int {
	if dmg <= 0 {
		return 0
	}
	if attacker.ID == victim.ID {
		// Self damage is halved, floored at 1.
		if dmg /= 2; dmg < 1 {
			dmg = 1
		}
		return dmg
	}
	if attacker.Side != SideNone && attacker.Side == victim.Side {
		if !w.friendlyFire {
			return 0
		}
		// Halved, floored at 1 whenever the raw damage was positive.
		if dmg /= 2; dmg < 1 {
			dmg = 1
		}
		return dmg
	}
	return dmg
}

// damage applies knockback and the armor-then-health decrement order, emits
// the hit sound and damage indicators, and kills at zero health.
func (w *World) damage(attacker, victim *Character, dmg int, force vmath.Vec2, weapon WeaponKind) {
	victim.Core.Vel = victim.Core.Vel.Add(force)

	dmg = w.effectiveDamage(attacker, victim, dmg)
	if dmg == 0 {
		return
	}

	// Exact decrement order: one health first for multi-point hits, then
	// armor absorbs, then health takes the rest.
	if dmg > 1 {
		victim.Health--
		dmg--
	}
	armorConsumed := victim.Armor
	if dmg < armorConsumed {
		armorConsumed = dmg
	}
	victim.Armor -= armorConsumed
	dmg -= armorConsumed
	if dmg > victim.Health {
		dmg = victim.Health
	}
	victim.Health -= dmg

	victim.LastDmgAngle = force.Angle()
	victim.setEye(EyePain, eyeTicksDefault)

	w.emit(WorldEvent{Kind: EventHitSound, Pos: victim.Core.Pos, Victim: victim.PlayerID, Weapon: weapon})
	w.emit(WorldEvent{Kind: EventDamageIndicator, Pos: victim.Core.Pos, Victim: victim.PlayerID, Angle: victim.LastDmgAngle})

	if victim.Health <= 0 {
		victim.Killer = attacker.PlayerID
		w.kill(victim, attacker.PlayerID, weapon, false)
	}
}

// kill transitions a character to the dead phase and scores the kill.
func (w *World) kill(c *Character, killer PlayerID, weapon WeaponKind, selfKill bool) {
	if c.IsDead() {
		return
	}
	respawn := RespawnTicksDeath
	if selfKill || killer == c.PlayerID {
		respawn = RespawnTicksSelfKill
	}
	c.Phase = Phase{Kind: PhaseDead, RespawnIn: respawn}
	c.Health = 0
	c.Core.Vel = vmath.Vec2{}
	w.phased.acquire(c.ID)
	w.Hooked.Drop(c.ID)
	c.Core.Hook = Hook{}

	for _, f := range w.flags {
		if f.State == FlagCarried && f.Carrier == c.ID {
			w.dropFlag(f, c.Core.Pos)
		}
	}

	if killer != c.PlayerID {
		if kc, ok := w.CharacterOfPlayer(killer); ok {
			w.CharacterScores[kc.ID]++
			kc.Score = w.CharacterScores[kc.ID]
		}
	} else {
		if sc, ok := w.CharacterScores[c.ID]; ok {
			w.CharacterScores[c.ID] = sc - 1
			c.Score = sc - 1
		}
	}

	w.emit(WorldEvent{Kind: EventKill, Pos: c.Core.Pos, Killer: killer, Victim: c.PlayerID, Weapon: weapon})
}

// respawn revives a dead character at a fresh spawn point with reset vitals.
func (w *World) respawn(c *Character) {
	if w.balance != nil {
		w.balance(c)
	}
	c.Phase = Phase{Kind: PhaseNormal}
	w.phased.release(c.ID)
	c.Health = MaxHealth
	c.Armor = 0
	c.AttackRecoil = 0
	c.Core = Core{Pos: w.spawnPos(c.Side)}
	rc := c.ReusableCore
	rc.Weapons = map[WeaponKind]*WeaponSlot{
		WeaponHammer: {Ammo: -1},
		WeaponGun:    {Ammo: WeaponMaxAmmo},
	}
	for k := range rc.Buffs {
		delete(rc.Buffs, k)
	}
	for k := range rc.Debuffs {
		delete(rc.Debuffs, k)
	}
	rc.Ninja = NinjaState{}
	for k := range rc.Interactions {
		delete(rc.Interactions, k)
	}
	c.ActiveWeapon = WeaponGun
	c.PrevWeapon = WeaponHammer
	c.QueuedWeapon = nil
	c.Counter++
	w.emit(WorldEvent{Kind: EventSpawn, Pos: c.Core.Pos, Player: c.PlayerID})
}

// updateProjectiles advances every projectile, resolving tile and character
// hits along this tick's path segment.
func (w *World) updateProjectiles() {
	ids := make([]ProjectileID, 0, len(w.projectiles))
	for id := range w.projectiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })

	for _, id := range ids {
		p := w.projectiles[id]
		age := int(w.tick - p.StartTick)
		prev := p.PosAt(age - 1)
		cur := p.PosAt(age)

		owner, _ := w.CharacterOfPlayer(p.Owner)

		var victim *Character
		for _, cid := range w.sortedCharacterIDs() {
			c := w.characters[cid]
			if c.IsDead() || w.phased.Contains(c.ID) {
				continue
			}
			if owner != nil && c.ID == owner.ID && age <= 1 {
				continue // grace period leaving the muzzle
			}
			if segmentDistSq(prev, cur, c.Core.Pos) < int64(PhysicalHalf)*int64(PhysicalHalf) {
				victim = c
				break
			}
		}

		_, hitTile := w.grid.IntersectLine(prev, cur)
		expired := age >= p.LifeTicks

		if victim == nil && !hitTile && !expired {
			continue
		}

		if p.Explosive {
			at := cur
			if victim != nil {
				at = victim.Core.Pos
			}
			p.Counter++
			w.explode(at, p.Owner, WeaponGrenade)
		} else if victim != nil && owner != nil {
			dmg := weaponTable[p.Weapon].Damage
			force := p.Dir.Scale(vmath.FromFloat(0.1))
			w.damage(owner, victim, dmg, force, p.Weapon)
		}
		delete(w.projectiles, id)
	}
}

// explode applies radius damage with linear falloff and knockback away from
// the center.
func (w *World) explode(at vmath.Vec2, owner PlayerID, weapon WeaponKind) {
	tn := w.tunes.Zone(w.grid.TuneZoneAt(at))
	w.emit(WorldEvent{Kind: EventExplosion, Pos: at})

	attacker, ok := w.CharacterOfPlayer(owner)
	if !ok {
		return
	}
	radius := tn.ExplosionRadius
	for _, id := range w.sortedCharacterIDs() {
		c := w.characters[id]
		if c.IsDead() || w.phased.Contains(c.ID) {
			continue
		}
		diff := c.Core.Pos.Sub(at)
		dist := diff.Length()
		if dist >= radius {
			continue
		}
		// Linear falloff from full damage at center to 1 at the rim.
		maxDmg := weaponTable[WeaponGrenade].Damage
		strength := vmath.One - dist.Div(radius)
		dmg := int(int64(maxDmg) * int64(strength) >> vmath.FracBits)
		if dmg < 1 {
			dmg = 1
		}
		force := diff.Normalize().Scale(tn.ExplosionForce.Mul(strength))
		w.damage(attacker, c, dmg, force, weapon)
	}
}

// updateLasers retires beams whose bounce render delay elapsed.
func (w *World) updateLasers() {
	ids := make([]LaserID, 0, len(w.lasers))
	for id := range w.lasers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })

	for _, id := range ids {
		l := w.lasers[id]
		tn := w.tunes.Zone(w.grid.TuneZoneAt(l.Pos))
		ttl := uint64(tn.LaserBounceDelay * (tn.LaserBounceNum + 1))
		if w.tick-l.StartTick >= ttl {
			delete(w.lasers, id)
		}
	}
}

// updateFlags runs grab, drop-return and capture rules.
func (w *World) updateFlags() {
	ids := make([]FlagID, 0, len(w.flags))
	for id := range w.flags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })

	for _, id := range ids {
		f := w.flags[id]
		switch f.State {
		case FlagCarried:
			carrier, ok := w.characters[f.Carrier]
			if !ok || carrier.IsDead() {
				w.dropFlag(f, f.Pos)
				continue
			}
			f.Pos = carrier.Core.Pos
			// Capture: carrier stands on its own stand while its own
			// flag is home.
			if carrier.Side != f.Side && w.ownFlagHome(carrier.Side) {
				stand := w.standOf(carrier.Side)
				if carrier.Core.Pos.Distance(stand) < FlagGrabRadius {
					w.captureFlag(f, carrier)
				}
			}

		case FlagDropped:
			if w.tick-f.DropTick >= FlagReturnTicks {
				w.returnFlag(f)
				continue
			}
			w.flagTouch(f)

		case FlagAtStand:
			w.flagTouch(f)
		}
	}
}

// flagTouch resolves a character touching a resting flag: enemies grab it,
// owners return a dropped one.
func (w *World) flagTouch(f *Flag) {
	for _, id := range w.sortedCharacterIDs() {
		c := w.characters[id]
		if c.IsDead() || w.phased.Contains(c.ID) || c.Side == SideNone {
			continue
		}
		if c.Core.Pos.Distance(f.Pos) >= FlagGrabRadius {
			continue
		}
		if c.Side != f.Side {
			f.State = FlagCarried
			f.Carrier = c.ID
			w.emit(WorldEvent{Kind: EventFlagGrab, Pos: f.Pos, Player: c.PlayerID, Side: f.Side})
			return
		}
		if f.State == FlagDropped {
			w.returnFlag(f)
			return
		}
	}
}

func (w *World) dropFlag(f *Flag, at vmath.Vec2) {
	f.State = FlagDropped
	f.Carrier = CharacterID{}
	f.Pos = at
	f.DropTick = w.tick
}

func (w *World) returnFlag(f *Flag) {
	f.State = FlagAtStand
	f.Carrier = CharacterID{}
	f.Pos = f.Stand
	f.Counter++
	w.emit(WorldEvent{Kind: EventFlagReturn, Pos: f.Stand, Side: f.Side})
}

func (w *World) captureFlag(f *Flag, carrier *Character) {
	w.emit(WorldEvent{Kind: EventFlagCapture, Pos: f.Pos, Player: carrier.PlayerID, Side: carrier.Side})
	w.CharacterScores[carrier.ID] += FlagCaptureScore
	carrier.Score = w.CharacterScores[carrier.ID]
	f.State = FlagAtStand
	f.Carrier = CharacterID{}
	f.Pos = f.Stand
	f.Counter++
}

func (w *World) standOf(side Side) vmath.Vec2 {
	for _, f := range w.flags {
		if f.Side == side {
			return f.Stand
		}
	}
	return vmath.Vec2{}
}

func (w *World) ownFlagHome(side Side) bool {
	for _, f := range w.flags {
		if f.Side == side {
			return f.State == FlagAtStand
		}
	}
	return false
}

// updatePickups counts down respawns and applies collection.
func (w *World) updatePickups() {
	ids := make([]PickupID, 0, len(w.pickups))
	for id := range w.pickups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ID(ids[i]).Less(ID(ids[j])) })

	for _, id := range ids {
		p := w.pickups[id]
		if p.RespawnIn > 0 {
			p.RespawnIn--
			continue
		}
		for _, cid := range w.sortedCharacterIDs() {
			c := w.characters[cid]
			if c.IsDead() || w.phased.Contains(c.ID) {
				continue
			}
			if c.Core.Pos.Distance(p.Pos) >= PickupRadius {
				continue
			}
			if p.apply(c) {
				p.RespawnIn = p.respawnDelay()
				p.Counter++
			}
			break
		}
	}
}
