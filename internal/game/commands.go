package game

import (
	"fmt"

	"arena-core/internal/console"
	"arena-core/internal/game/vmath"
)

// registerCommands fills the command chain with the game-side remote console
// surface. The server layers its own commands (ban, kick, status of
// connections) on top of the same chain.
func (s *State) registerCommands() {
	s.chain.Register(&console.Command{
		Name: "status",
		Help: "list players and stages",
		Auth: console.AuthModerator,
		Exec: func([]console.Value) []string {
			var out []string
			for _, stID := range s.sortedStageIDs() {
				st := s.stages[stID]
				name := st.Name
				if stID == s.stage0 {
					name = "(default)"
				}
				out = append(out, fmt.Sprintf("stage %s: %d characters, match %s",
					name, st.World.CharacterCount(), st.Match.State))
				for _, cid := range st.World.sortedCharacterIDs() {
					c := st.World.characters[cid]
					out = append(out, fmt.Sprintf("  %-16s side=%s score=%d hp=%d",
						c.Info.Name, c.Side, st.World.CharacterScores[cid], c.Health))
				}
			}
			out = append(out, fmt.Sprintf("%d spectators", s.spectators.Len()))
			return out
		},
	})

	s.chain.Register(&console.Command{
		Name: "pause",
		Help: "pause the default stage's match",
		Auth: console.AuthModerator,
		Exec: func([]console.Value) []string {
			s.stages[s.stage0].Match.Pause()
			return []string{"match paused"}
		},
	})

	s.chain.Register(&console.Command{
		Name: "unpause",
		Help: "resume the default stage's match",
		Auth: console.AuthModerator,
		Exec: func([]console.Value) []string {
			s.stages[s.stage0].Match.Unpause()
			return []string{"match resumed"}
		},
	})

	s.chain.Register(&console.Command{
		Name: "cheats.all_weapons",
		Help: "give every weapon with full ammo to all characters",
		Auth: console.AuthAdmin,
		Exec: func([]console.Value) []string {
			n := 0
			for _, stID := range s.sortedStageIDs() {
				w := s.stages[stID].World
				for _, cid := range w.sortedCharacterIDs() {
					c := w.characters[cid]
					c.GiveWeapon(WeaponShotgun, WeaponMaxAmmo)
					c.GiveWeapon(WeaponGrenade, WeaponMaxAmmo)
					c.GiveWeapon(WeaponLaser, WeaponMaxAmmo)
					n++
				}
			}
			return []string{fmt.Sprintf("armed %d characters", n)}
		},
	})

	s.chain.Register(&console.Command{
		Name: "cheats.tune",
		Help: "override a zone-0 tuning",
		Auth: console.AuthAdmin,
		Args: []console.ArgSpec{
			{Name: "name", Kind: console.ArgTextFrom, Enum: tuningNames},
			{Name: "value", Kind: console.ArgFloat},
		},
		Exec: func(args []console.Value) []string {
			if !setTuning(s.tunes.Zone(0), args[0].Text, args[1].F) {
				return []string{fmt.Sprintf("unknown tuning: %s", args[0].Text)}
			}
			return []string{fmt.Sprintf("%s = %g", args[0].Text, args[1].F)}
		},
	})

	// Auto-registered config variable setters.
	s.chain.Register(&console.Command{
		Name: "sv.score_limit",
		Help: "set the match score limit",
		Auth: console.AuthAdmin,
		Args: []console.ArgSpec{{Name: "limit", Kind: console.ArgNumber}},
		Exec: func(args []console.Value) []string {
			s.opts.ScoreLimit = args[0].Num
			for _, st := range s.stages {
				st.Match.ScoreLimit = args[0].Num
			}
			return []string{fmt.Sprintf("score limit = %d", args[0].Num)}
		},
	})
	s.chain.Register(&console.Command{
		Name: "sv.time_limit",
		Help: "set the match time limit in seconds",
		Auth: console.AuthAdmin,
		Args: []console.ArgSpec{{Name: "seconds", Kind: console.ArgNumber}},
		Exec: func(args []console.Value) []string {
			s.opts.TimeLimitSecs = int(args[0].Num)
			for _, st := range s.stages {
				st.Match.TimeLimitTicks = uint64(args[0].Num) * TicksPerSecond
			}
			return []string{fmt.Sprintf("time limit = %ds", args[0].Num)}
		},
	})
	s.chain.Register(&console.Command{
		Name: "sv.friendly_fire",
		Help: "toggle friendly fire",
		Auth: console.AuthAdmin,
		Args: []console.ArgSpec{{Name: "on", Kind: console.ArgNumber}},
		Exec: func(args []console.Value) []string {
			on := args[0].Num != 0
			s.opts.FriendlyFire = on
			for _, st := range s.stages {
				st.World.friendlyFire = on
			}
			return []string{fmt.Sprintf("friendly fire = %v", on)}
		},
	})
	s.chain.Register(&console.Command{
		Name: "sv.auto_side_balance_secs",
		Help: "set the auto side balance threshold, 0 disables",
		Auth: console.AuthAdmin,
		Args: []console.ArgSpec{{Name: "seconds", Kind: console.ArgNumber}},
		Exec: func(args []console.Value) []string {
			s.opts.AutoSideBalanceSecs = int(args[0].Num)
			for _, st := range s.stages {
				st.Match.AutoBalanceTicks = uint64(args[0].Num) * TicksPerSecond
			}
			return []string{fmt.Sprintf("auto side balance = %ds", args[0].Num)}
		},
	})
}

var tuningNames = []string{
	"gravity",
	"ground_control_speed",
	"ground_jump_impulse",
	"air_control_speed",
	"air_jump_impulse",
	"hook_length",
	"hook_drag_speed",
	"gun_speed",
	"gun_lifetime",
	"shotgun_speed",
	"shotgun_speeddiff",
	"shotgun_lifetime",
	"grenade_speed",
	"grenade_lifetime",
	"laser_reach",
	"explosion_radius",
}

// setTuning writes one named tuning. Lifetimes are given in seconds and
// stored in ticks.
func setTuning(tn *Tunings, name string, v float64) bool {
	switch name {
	case "gravity":
		tn.Gravity = vmath.FromFloat(v)
	case "ground_control_speed":
		tn.GroundControlSpeed = vmath.FromFloat(v)
	case "ground_jump_impulse":
		tn.GroundJumpImpulse = vmath.FromFloat(v)
	case "air_control_speed":
		tn.AirControlSpeed = vmath.FromFloat(v)
	case "air_jump_impulse":
		tn.AirJumpImpulse = vmath.FromFloat(v)
	case "hook_length":
		tn.HookLength = vmath.FromFloat(v)
	case "hook_drag_speed":
		tn.HookDragSpeed = vmath.FromFloat(v)
	case "gun_speed":
		tn.GunSpeed = vmath.FromFloat(v)
	case "gun_lifetime":
		tn.GunLifetime = int(v * TicksPerSecond)
	case "shotgun_speed":
		tn.ShotgunSpeed = vmath.FromFloat(v)
	case "shotgun_speeddiff":
		tn.ShotgunSpeeddiff = vmath.FromFloat(v)
	case "shotgun_lifetime":
		tn.ShotgunLifetime = int(v * TicksPerSecond)
	case "grenade_speed":
		tn.GrenadeSpeed = vmath.FromFloat(v)
	case "grenade_lifetime":
		tn.GrenadeLifetime = int(v * TicksPerSecond)
	case "laser_reach":
		tn.LaserReach = vmath.FromFloat(v)
	case "explosion_radius":
		tn.ExplosionRadius = vmath.FromFloat(v)
	default:
		return false
	}
	return true
}

// VoteKind tags a vote command.
type VoteKind uint8

const (
	VoteKickPlayer VoteKind = iota
	VoteSpecPlayer
	VoteMap
	VoteRandomUnfinishedMap
	VoteMisc
)

// VoteCmd is the game-side effect of a passed vote.
type VoteCmd struct {
	Kind   VoteKind
	Target PlayerID
	Map    string
	Misc   string
}

// FollowUpKind tags a vote follow-up event the server must act on.
type FollowUpKind uint8

const (
	FollowLoadMap FollowUpKind = iota
	FollowKickPlayer
	FollowMiscOutput
)

// FollowUp is a server-side action produced by a passed vote.
type FollowUp struct {
	Kind   FollowUpKind
	Map    string
	Target PlayerID
	Output []string
}

// VoteCommand applies a passed vote to the game state and returns the
// follow-up events for the server. Kick votes are returned as follow-ups so
// the server can ban the connection; spec votes are applied here.
func (s *State) VoteCommand(cmd VoteCmd) []FollowUp {
	switch cmd.Kind {
	case VoteKickPlayer:
		return []FollowUp{{Kind: FollowKickPlayer, Target: cmd.Target}}

	case VoteSpecPlayer:
		s.ClientCommand(cmd.Target, ClientCmd{Kind: CmdJoinSpectator})
		return nil

	case VoteMap, VoteRandomUnfinishedMap:
		return []FollowUp{{Kind: FollowLoadMap, Map: cmd.Map}}

	case VoteMisc:
		out, err := s.chain.Exec(cmd.Misc, console.AuthModerator)
		if err != nil {
			out = []string{err.Error()}
		}
		return []FollowUp{{Kind: FollowMiscOutput, Output: out}}
	}
	return nil
}
