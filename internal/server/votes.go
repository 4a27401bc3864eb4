package server

import (
	"fmt"
	"log"
	"sort"
	"time"

	"arena-core/internal/console"
	"arena-core/internal/game"
	"arena-core/internal/protocol"
)

// Vote timing and ban rules.
const (
	VoteDurationTicks = 25 * game.TicksPerSecond
	KickBanDuration   = 15 * time.Minute
)

// activeVote is the single global vote, if any.
type activeVote struct {
	desc string
	cmd  game.VoteCmd

	starterSession uint64
	targetSession  uint64 // 0 when the vote has no player target

	yes, no int
	allowed int

	startedTick uint64

	// votedByIP and votedBySession both gate double votes; a disconnect
	// removes the vote again.
	votedByIP      map[string]bool
	votedBySession map[uint64]bool
}

// startVote validates the preconditions and opens a vote. The starter casts
// an implicit yes, a kick/spec target an implicit no.
func (sv *Server) startVote(s *Session, msg *protocol.MsgClPlayerMsg) protocol.StartVoteResult {
	if sv.vote != nil {
		return protocol.StartVoteAnotherActive
	}
	// Spectators cannot start votes.
	allSpec := true
	for _, pid := range s.players {
		if !sv.state.Spectators().Contains(pid) {
			allSpec = false
			break
		}
	}
	if len(s.players) == 0 || allSpec {
		return protocol.StartVoteSpectator
	}

	vote := &activeVote{
		starterSession: s.conn.id,
		startedTick:    sv.state.MonotonicTick(),
		votedByIP:      make(map[string]bool),
		votedBySession: make(map[uint64]bool),
	}

	switch msg.VoteKind {
	case protocol.VoteStartKick, protocol.VoteStartSpec:
		target, ok := sv.sessionOfPlayer(msg.VoteTarget)
		if !ok {
			return protocol.StartVoteUnknownTarget
		}
		if target == s {
			return protocol.StartVoteSelfVote
		}
		// Moderators and admins cannot be vote-kicked.
		if target.rconAuth >= console.AuthModerator {
			return protocol.StartVoteTargetImmune
		}
		vote.targetSession = target.conn.id
		verb := "kick"
		kind := game.VoteKickPlayer
		if msg.VoteKind == protocol.VoteStartSpec {
			verb = "move to spectators"
			kind = game.VoteSpecPlayer
		}
		vote.cmd = game.VoteCmd{Kind: kind, Target: msg.VoteTarget}
		vote.desc = fmt.Sprintf("%s %s", verb, sv.playerName(msg.VoteTarget))

	case protocol.VoteStartMap:
		if len(msg.VoteMap) > protocol.MaxMapLen {
			return protocol.StartVoteUnknownTarget
		}
		vote.cmd = game.VoteCmd{Kind: game.VoteMap, Map: msg.VoteMap}
		vote.desc = "change map to " + msg.VoteMap

	case protocol.VoteStartRandomUnfinished:
		vote.cmd = game.VoteCmd{Kind: game.VoteRandomUnfinishedMap}
		vote.desc = "random unfinished map"

	case protocol.VoteStartMisc:
		vote.cmd = game.VoteCmd{Kind: game.VoteMisc, Misc: msg.VoteMisc}
		vote.desc = msg.VoteMisc

	default:
		return protocol.StartVoteUnknownTarget
	}

	// The limiter only charges votes that pass validation.
	if !sv.voteStarts.Allow(s.conn.ip) {
		return protocol.StartVoteRateLimited
	}

	vote.allowed = sv.allowedToVoteCount()

	// Implicit votes.
	vote.yes = 1
	vote.votedByIP[s.conn.ip] = true
	vote.votedBySession[s.conn.id] = true
	if vote.targetSession != 0 {
		if ts, ok := sv.sessions[vote.targetSession]; ok {
			vote.no = 1
			vote.votedByIP[ts.conn.ip] = false
			vote.votedBySession[ts.conn.id] = false
		}
	}

	sv.vote = vote
	votesStarted.Inc()
	log.Printf("vote started by conn %d: %s", s.conn.id, vote.desc)
	sv.broadcastVoteState()
	sv.checkVoteEnd()
	return protocol.StartVoteOK
}

// allowedToVoteCount counts ready, non-queued connections with players.
func (sv *Server) allowedToVoteCount() int {
	n := 0
	for _, s := range sv.sessions {
		if s.state == stateReady && len(s.players) > 0 {
			n++
		}
	}
	return n
}

// castVote records one yes/no. Same connection and same source IP cannot
// vote twice.
func (sv *Server) castVote(s *Session, yes bool) {
	v := sv.vote
	if v == nil || s.state != stateReady {
		return
	}
	if _, voted := v.votedBySession[s.conn.id]; voted {
		return
	}
	if _, voted := v.votedByIP[s.conn.ip]; voted {
		return
	}
	v.votedBySession[s.conn.id] = yes
	v.votedByIP[s.conn.ip] = yes
	if yes {
		v.yes++
	} else {
		v.no++
	}
	sv.broadcastVoteState()
	sv.checkVoteEnd()
}

// dropVoterSession removes a disconnecting session's participation.
func (sv *Server) dropVoterSession(s *Session) {
	v := sv.vote
	if v == nil {
		return
	}
	if yes, ok := v.votedBySession[s.conn.id]; ok {
		delete(v.votedBySession, s.conn.id)
		delete(v.votedByIP, s.conn.ip)
		if yes {
			v.yes--
		} else {
			v.no--
		}
	}
	v.allowed = sv.allowedToVoteCount()
	if v.allowed > 0 {
		// Cancel once a yes-decision is impossible in the remaining time.
		undecided := v.allowed - v.yes - v.no
		if undecided < 0 {
			undecided = 0
		}
		if v.yes+undecided <= v.no {
			log.Printf("vote cancelled: quorum unreachable")
			sv.endVote(false)
			return
		}
	}
	if v.targetSession == s.conn.id && v.cmd.Kind == game.VoteKickPlayer {
		// The target left on its own; nothing to decide.
		sv.endVote(false)
		return
	}
	sv.broadcastVoteState()
	sv.checkVoteEnd()
}

// tickVote expires the vote after its 25 second window.
func (sv *Server) tickVote() {
	v := sv.vote
	if v == nil {
		return
	}
	if sv.state.MonotonicTick()-v.startedTick >= VoteDurationTicks {
		sv.endVote(v.yes > v.no)
	}
}

// checkVoteEnd applies the early-termination rules: yes ≥ allowed, no ≥
// allowed, or yes+no ≥ allowed.
func (sv *Server) checkVoteEnd() {
	v := sv.vote
	if v == nil {
		return
	}
	if v.yes >= v.allowed || v.no >= v.allowed || v.yes+v.no >= v.allowed {
		sv.endVote(v.yes > v.no)
	}
}

// endVote finishes the vote and, on pass, applies its command. Follow-ups
// are processed in a fixed order: kicks before map loads before misc output.
func (sv *Server) endVote(passed bool) {
	v := sv.vote
	sv.vote = nil
	sv.broadcastVoteState()

	if !passed {
		log.Printf("vote failed: %s (yes=%d no=%d)", v.desc, v.yes, v.no)
		return
	}
	votesPassed.Inc()
	log.Printf("vote passed: %s (yes=%d no=%d)", v.desc, v.yes, v.no)

	followUps := sv.state.VoteCommand(v.cmd)
	sort.SliceStable(followUps, func(i, j int) bool {
		return followUpOrder(followUps[i].Kind) < followUpOrder(followUps[j].Kind)
	})
	for _, fu := range followUps {
		switch fu.Kind {
		case game.FollowKickPlayer:
			sv.banAndKickPlayer(fu.Target, KickBanDuration, "vote kicked")
		case game.FollowLoadMap:
			sv.loadMap(fu.Map)
		case game.FollowMiscOutput:
			sv.broadcastChatLines("vote", fu.Output)
		}
	}
}

func followUpOrder(k game.FollowUpKind) int {
	switch k {
	case game.FollowKickPlayer:
		return 0
	case game.FollowLoadMap:
		return 1
	default:
		return 2
	}
}

// broadcastVoteState sends the vote tally (or its absence) to every ready
// connection.
func (sv *Server) broadcastVoteState() {
	var state *protocol.VoteState
	if v := sv.vote; v != nil {
		elapsed := sv.state.MonotonicTick() - v.startedTick
		remaining := 0
		if elapsed < VoteDurationTicks {
			remaining = int((VoteDurationTicks - elapsed) / game.TicksPerSecond)
		}
		state = &protocol.VoteState{
			Description:  v.desc,
			Yes:          v.yes,
			No:           v.no,
			Allowed:      v.allowed,
			RemainingSec: remaining,
		}
	}
	for _, s := range sv.sessions {
		if s.state == stateReady {
			s.conn.Send(protocol.TypeVote, protocol.ChannelVotes, protocol.MsgSvVote{State: state})
		}
	}
}
