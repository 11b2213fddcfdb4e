package state

import (
	"sync"

	"github.com/divotmaker/flighthook/internal/schema"
)

// GameState is the single-writer store for the current player, club, and
// mode. Every actor may read it; only the holder of the
// WriteHandle returned by NewGameState may mutate it.
type GameState struct {
	mu     sync.RWMutex
	player schema.PlayerInfo
	club   schema.Club
	mode   schema.Mode
}

// Snapshot returns a read-only copy of the current game state.
func (g *GameState) Snapshot() schema.GameSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return schema.GameSnapshot{Player: g.player, Club: g.club, Mode: g.mode}
}

// noCopy causes `go vet` to flag accidental copies of WriteHandle, the same
// idiom the standard library uses internally (e.g. sync.WaitGroup) to mark
// a type as move-only in spirit even though Go cannot enforce it statically.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// WriteHandle grants exclusive mutation rights over a GameState. Exactly one
// handle is issued, by NewGameState, and it is meant to be held by a single
// actor (the system actor) for the process lifetime; do not copy.
type WriteHandle struct {
	_  noCopy
	gs *GameState
}

// NewGameState constructs a GameState and its sole WriteHandle.
func NewGameState() (*GameState, WriteHandle) {
	gs := &GameState{}
	return gs, WriteHandle{gs: gs}
}

// SetPlayer updates the player info.
func (w *WriteHandle) SetPlayer(p schema.PlayerInfo) {
	w.gs.mu.Lock()
	defer w.gs.mu.Unlock()
	w.gs.player = p
}

// SetClub updates the club in play. Returns the mode implied by the new
// club so the caller (system actor) can decide whether to also SetMode.
func (w *WriteHandle) SetClub(c schema.Club) schema.Mode {
	w.gs.mu.Lock()
	defer w.gs.mu.Unlock()
	w.gs.club = c
	return schema.ModeFor(c)
}

// SetMode updates the detection mode.
func (w *WriteHandle) SetMode(m schema.Mode) {
	w.gs.mu.Lock()
	defer w.gs.mu.Unlock()
	w.gs.mode = m
}
