package client

import (
	"time"

	"arena-core/internal/game"
)

// ViewportAnchor is the screen corner a miniscreen docks to.
type ViewportAnchor uint8

const (
	AnchorTopLeft ViewportAnchor = iota
	AnchorTopRight
	AnchorBottomLeft
	AnchorBottomRight
)

// ObservedViewport is one extra viewport: a dummy the active player watches,
// or the player currently targeted by a vote.
type ObservedViewport struct {
	Player game.PlayerID
	Anchor ViewportAnchor
	// VoteTarget viewports follow whoever the active vote names.
	VoteTarget bool
}

// ObserveDummy adds a miniscreen for a local dummy anchored to a corner.
func (c *Client) ObserveDummy(player game.PlayerID, anchor ViewportAnchor) {
	c.observed = append(c.observed, ObservedViewport{Player: player, Anchor: anchor})
}

// ObserveVoted adds a miniscreen following the currently voted player.
func (c *Client) ObserveVoted(player game.PlayerID, anchor ViewportAnchor) {
	c.observed = append(c.observed, ObservedViewport{Player: player, Anchor: anchor, VoteTarget: true})
}

// StopObserving removes every viewport watching the given player.
func (c *Client) StopObserving(player game.PlayerID) {
	n := 0
	for _, v := range c.observed {
		if v.Player != player {
			c.observed[n] = v
			n++
		}
	}
	c.observed = c.observed[:n]
}

// ObservedFrame is one miniscreen's render output: the shared world state
// re-centered on the observed player, with its own local-player info.
type ObservedFrame struct {
	Viewport ObservedViewport
	CenterX  float64
	CenterY  float64
	State    RenderState
}

// RenderObserved produces the miniscreen frames for this render pass.
// Viewports whose player vanished render nothing and are skipped.
func (c *Client) RenderObserved(now time.Time) []ObservedFrame {
	if len(c.observed) == 0 {
		return nil
	}
	state := c.RenderState(now)
	out := make([]ObservedFrame, 0, len(c.observed))
	for _, v := range c.observed {
		var center *RenderChar
		for i := range state.Chars {
			if state.Chars[i].Player == v.Player {
				center = &state.Chars[i]
				break
			}
		}
		if center == nil {
			continue
		}
		out = append(out, ObservedFrame{
			Viewport: v,
			CenterX:  center.X,
			CenterY:  center.Y,
			State:    state,
		})
	}
	return out
}
