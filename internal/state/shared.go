package state

// Shared bundles the two global stores every actor receives at Start and
// Reconfigure time. Actors hold only read access (Config.Snapshot,
// Game.Snapshot); the WriteHandle for GameState is never placed here — it
// is constructed once in main and handed solely to the system actor.
type Shared struct {
	Config *ConfigStore
	Game   *GameState
}

// NewShared constructs a Shared bundle from existing stores.
func NewShared(cfg *ConfigStore, game *GameState) *Shared {
	return &Shared{Config: cfg, Game: game}
}
