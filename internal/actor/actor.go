// Package actor defines the lifecycle contract every long-lived actor
// implements, and the result type its Reconfigure hook returns to the
// supervisor.
package actor

import (
	"context"

	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
)

// ReconfigureResult tells the supervisor what to do after a config section
// changes underneath a running actor.
type ReconfigureResult int

const (
	// NoChange means the section is unchanged; nothing to do.
	NoChange ReconfigureResult = iota
	// Applied means the actor was notified in place (typically via a
	// ConfigChanged bus event it will consume itself) and needs no restart.
	Applied
	// RestartRequired means the supervisor must stop and recreate the actor.
	RestartRequired
)

func (r ReconfigureResult) String() string {
	switch r {
	case NoChange:
		return "no_change"
	case Applied:
		return "applied"
	case RestartRequired:
		return "restart_required"
	default:
		return "unknown"
	}
}

// Actor is the lifecycle contract every device, simulator-bridge, web, and
// system actor implements.
type Actor interface {
	// Start spawns a dedicated goroutine owning the actor's protocol state
	// and network resources exclusively. It returns once the goroutine has
	// been launched, not once it has finished.
	Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error

	// Stop is an optional hook invoked in addition to raising the shutdown
	// flag; the default behavior (most actors) is a no-op because the run
	// loop already observes receiver.IsShutdown() at each loop head.
	Stop()

	// Reconfigure is called by the supervisor when this actor's config
	// section changes. It must not block on network I/O.
	Reconfigure(shared *state.Shared, sender bus.Sender) ReconfigureResult
}

// Section bundles an actor's config-derived identity for construction.
type Section struct {
	ID   schema.ActorID
	Name string
}
