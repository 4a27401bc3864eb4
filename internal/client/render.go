package client

import (
	"time"

	"arena-core/internal/game"
	"arena-core/internal/game/vmath"
)

// RenderChar is one character prepared for drawing.
type RenderChar struct {
	Player game.PlayerID
	Stage  game.StageID
	Name   string
	Skin   string

	X, Y float64

	HookActive bool
	HookX      float64
	HookY      float64

	Health int
	Armor  int
	Weapon uint8
	Eye    uint8
	Side   game.Side

	// Dimmed marks phased (dead, awaiting respawn) characters.
	Dimmed bool
	// Predicted marks local players rendered from the predicted world.
	Predicted bool
}

// RenderFlag is one flag prepared for drawing.
type RenderFlag struct {
	Side game.Side
	X, Y float64
}

// RenderProjectile is one projectile prepared for drawing.
type RenderProjectile struct {
	Weapon uint8
	X, Y   float64
}

// RenderState is a full frame's worth of drawable state.
type RenderState struct {
	Tick        uint64
	Chars       []RenderChar
	Flags       []RenderFlag
	Projectiles []RenderProjectile
}

// RenderState assembles the drawable state. Remote characters lerp from the
// previous view (PrevView) to the current state by interpAlpha; with
// anti-ping off that factor is shifted by the measured ping within one tick
// interval. No older render tick is picked from the snapshot ring, so remote
// characters are not drawn whole ticks behind. Local players come from the
// predicted world so their own actions show no lag. Characters whose
// non-linear event counter changed between the two states snap instead of
// lerping. Flags and projectiles are drawn at their current positions
// without interpolation.
func (c *Client) RenderState(now time.Time) RenderState {
	out := RenderState{Tick: c.state.MonotonicTick()}

	prev := c.state.PrevView()
	alpha := c.interpAlpha(now)

	// Index the previous view by character id for interpolation and hook
	// partner lookups.
	type prevChar struct {
		pos     vmath.Vec2
		counter uint64
	}
	prevChars := make(map[game.CharacterID]prevChar)
	if prev != nil {
		for si := range prev.Stages {
			for ci := range prev.Stages[si].Characters {
				pc := &prev.Stages[si].Characters[ci]
				prevChars[pc.ID] = prevChar{pos: pc.Core.Pos, counter: pc.Counter}
			}
		}
	}

	interp := func(id game.CharacterID, cur vmath.Vec2, counter uint64) vmath.Vec2 {
		pc, ok := prevChars[id]
		if !ok || pc.counter != counter {
			// Discontinuity (respawn, teleport): render at current.
			return cur
		}
		return vmath.Lerp(pc.pos, cur, alpha)
	}

	phased := c.state.Phased()
	interpPos := make(map[game.CharacterID]vmath.Vec2)

	c.state.ForEachCharacter(func(stage game.StageID, ch *game.Character) {
		_, isLocal := c.localPlayers[ch.PlayerID]
		var pos vmath.Vec2
		if isLocal {
			// Local players render predicted, unconditionally.
			pos = ch.Core.Pos
		} else {
			pos = interp(ch.ID, ch.Core.Pos, ch.Counter)
		}
		interpPos[ch.ID] = pos

		x, y := pos.Floats()
		rc := RenderChar{
			Player:    ch.PlayerID,
			Stage:     stage,
			Name:      ch.Info.Name,
			Skin:      ch.Info.Skin,
			X:         x,
			Y:         y,
			Health:    ch.Health,
			Armor:     ch.Armor,
			Weapon:    uint8(ch.ActiveWeapon),
			Eye:       uint8(ch.Eye),
			Side:      ch.Side,
			Dimmed:    phased.Contains(ch.ID),
			Predicted: isLocal,
		}
		if ch.Core.Hook.State != game.HookIdle {
			rc.HookActive = true
			hx, hy := ch.Core.Hook.Pos.Floats()
			rc.HookX, rc.HookY = hx, hy
		}
		out.Chars = append(out.Chars, rc)
	})

	// Hook endpoints attached to a character follow the partner's
	// interpolated position.
	for i := range out.Chars {
		rc := &out.Chars[i]
		if !rc.HookActive {
			continue
		}
		cid, ok := c.state.CharacterIDOf(rc.Player)
		if !ok {
			continue
		}
		ch, ok := c.findCharacter(cid)
		if !ok || ch.Core.Hook.State != game.HookGrabbedChar {
			continue
		}
		if ppos, ok := interpPos[ch.Core.Hook.HookedChar]; ok {
			rc.HookX, rc.HookY = ppos.Floats()
		}
	}

	c.state.ForEachFlag(func(_ game.StageID, f *game.Flag) {
		x, y := f.Pos.Floats()
		out.Flags = append(out.Flags, RenderFlag{Side: f.Side, X: x, Y: y})
	})

	tick := c.state.MonotonicTick()
	c.state.ForEachProjectile(func(_ game.StageID, p *game.Projectile) {
		pos := p.PosAt(int(tick - p.StartTick))
		x, y := pos.Floats()
		out.Projectiles = append(out.Projectiles, RenderProjectile{Weapon: uint8(p.Weapon), X: x, Y: y})
	})

	return out
}

// findCharacter looks a character up across stages.
func (c *Client) findCharacter(id game.CharacterID) (*game.Character, bool) {
	var found *game.Character
	c.state.ForEachCharacter(func(_ game.StageID, ch *game.Character) {
		if ch.ID == id {
			found = ch
		}
	})
	return found, found != nil
}

// interpAlpha maps the wall clock position inside the current tick to a
// [0, One] interpolation factor, pulled back by the measured ping when
// anti-ping is off.
func (c *Client) interpAlpha(now time.Time) vmath.Fixed {
	frac := now.Sub(c.lastGameTick)
	if !c.cfg.AntiPing {
		frac -= c.timer.Ping()
	}
	for frac < 0 {
		frac += c.tickTime
	}
	a := float64(frac%c.tickTime) / float64(c.tickTime)
	return vmath.FromFloat(a)
}
