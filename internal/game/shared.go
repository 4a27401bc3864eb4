package game

// Shared index structures. Players, SpectatorPlayers and PhasedCharacters are
// reference-counted interior-mutable maps owned by the game state and cloned
// by value into characters; every mutation happens on the single simulation
// goroutine. The mutator surface is deliberately minimal.

// Players is a weak index from PlayerID to the stage owning the player's
// character. Characters insert themselves on construction and remove
// themselves on drop.
type Players struct {
	m map[PlayerID]StageID
}

// NewPlayers returns an empty index.
func NewPlayers() *Players {
	return &Players{m: make(map[PlayerID]StageID)}
}

func (p *Players) insert(id PlayerID, stage StageID) { p.m[id] = stage }
func (p *Players) remove(id PlayerID)                { delete(p.m, id) }

// StageOf returns the stage the player's character lives in.
func (p *Players) StageOf(id PlayerID) (StageID, bool) {
	s, ok := p.m[id]
	return s, ok
}

// Contains reports whether the player has a character.
func (p *Players) Contains(id PlayerID) bool {
	_, ok := p.m[id]
	return ok
}

// Len returns the number of indexed players.
func (p *Players) Len() int { return len(p.m) }

// SpectatorPlayers indexes players without a character.
type SpectatorPlayers struct {
	m map[PlayerID]struct{}
}

// NewSpectatorPlayers returns an empty index.
func NewSpectatorPlayers() *SpectatorPlayers {
	return &SpectatorPlayers{m: make(map[PlayerID]struct{})}
}

func (p *SpectatorPlayers) insert(id PlayerID) { p.m[id] = struct{}{} }
func (p *SpectatorPlayers) remove(id PlayerID) { delete(p.m, id) }

// Contains reports whether the player is spectating.
func (p *SpectatorPlayers) Contains(id PlayerID) bool {
	_, ok := p.m[id]
	return ok
}

// Len returns the number of spectators.
func (p *SpectatorPlayers) Len() int { return len(p.m) }

// PhasedCharacters is the single source of truth for characters in a
// non-interactive phase (dead, awaiting respawn). Renderers dim them and the
// physics skips them for collisions. The set is reference counted: a
// character can be phased for more than one reason at once.
type PhasedCharacters struct {
	m map[CharacterID]int
}

// NewPhasedCharacters returns an empty set.
func NewPhasedCharacters() *PhasedCharacters {
	return &PhasedCharacters{m: make(map[CharacterID]int)}
}

func (p *PhasedCharacters) acquire(id CharacterID) { p.m[id]++ }

func (p *PhasedCharacters) release(id CharacterID) {
	if n := p.m[id]; n <= 1 {
		delete(p.m, id)
	} else {
		p.m[id] = n - 1
	}
}

// Contains reports whether the character is currently phased.
func (p *PhasedCharacters) Contains(id CharacterID) bool {
	_, ok := p.m[id]
	return ok
}

// hookEntry records who is hooking a character and whom that character hooks.
type hookEntry struct {
	hookers map[CharacterID]struct{}
	partner CharacterID
}

// HookedCharacters models the cyclic character-to-hook-partner relation with
// an index instead of back-pointers. Hook state inside a character stores a
// CharacterID only; insertion, update and removal all go through here, and a
// dropping character removes itself from its partner's hooker set atomically.
type HookedCharacters struct {
	m map[CharacterID]*hookEntry
}

// NewHookedCharacters returns an empty index.
func NewHookedCharacters() *HookedCharacters {
	return &HookedCharacters{m: make(map[CharacterID]*hookEntry)}
}

func (h *HookedCharacters) entry(id CharacterID) *hookEntry {
	e, ok := h.m[id]
	if !ok {
		e = &hookEntry{hookers: make(map[CharacterID]struct{})}
		h.m[id] = e
	}
	return e
}

// Attach records hooker grabbing target.
func (h *HookedCharacters) Attach(hooker, target CharacterID) {
	h.entry(target).hookers[hooker] = struct{}{}
	h.entry(hooker).partner = target
}

// Detach releases hooker's grab, if any.
func (h *HookedCharacters) Detach(hooker CharacterID) {
	e, ok := h.m[hooker]
	if !ok || e.partner == (CharacterID{}) {
		return
	}
	if te, ok := h.m[e.partner]; ok {
		delete(te.hookers, hooker)
	}
	e.partner = CharacterID{}
}

// Partner returns the character hooker currently grabs.
func (h *HookedCharacters) Partner(hooker CharacterID) (CharacterID, bool) {
	e, ok := h.m[hooker]
	if !ok || e.partner == (CharacterID{}) {
		return CharacterID{}, false
	}
	return e.partner, true
}

// Hookers returns the characters currently grabbing target.
func (h *HookedCharacters) Hookers(target CharacterID) []CharacterID {
	e, ok := h.m[target]
	if !ok {
		return nil
	}
	out := make([]CharacterID, 0, len(e.hookers))
	for id := range e.hookers {
		out = append(out, id)
	}
	return out
}

// Drop removes a character from the index entirely: its own grab and every
// grab on it.
func (h *HookedCharacters) Drop(id CharacterID) {
	h.Detach(id)
	if e, ok := h.m[id]; ok {
		for hooker := range e.hookers {
			if he, ok := h.m[hooker]; ok && he.partner == id {
				he.partner = CharacterID{}
			}
		}
	}
	delete(h.m, id)
}
