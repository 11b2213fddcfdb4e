// Package registry tracks the set of actors currently running, keyed by
// ActorID: for every running actor there is exactly one registry entry
// (id -> (actor, shutdown_flag)).
package registry

import (
	"sync"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
)

// Entry pairs a running actor with its bus receiver and shutdown control.
type Entry struct {
	Actor    actor.Actor
	Name     string
	Receiver *bus.Receiver
}

// Registry is a reader-writer-locked map of running actors. Registration,
// lookup, and removal are the only operations.
type Registry struct {
	mu      sync.RWMutex
	entries map[schema.ActorID]Entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[schema.ActorID]Entry)}
}

// Register adds or replaces the entry for id.
func (r *Registry) Register(id schema.ActorID, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

// Lookup returns the entry for id, if any.
func (r *Registry) Lookup(id schema.ActorID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Remove deletes the entry for id. Safe to call on a missing id.
func (r *Registry) Remove(id schema.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// CurrentIDs returns every id currently registered; when excludeSystem is
// set the always-on system actor is left out (the supervisor excludes it
// from reconciliation).
func (r *Registry) CurrentIDs(excludeSystem bool) map[schema.ActorID]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[schema.ActorID]struct{}, len(r.entries))
	for id := range r.entries {
		if excludeSystem && id == schema.SystemActorID {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// Stop raises the shutdown flag on id's receiver and calls its optional
// Stop hook, matching the process-wide shutdown path's per-actor step.
func (r *Registry) Stop(id schema.ActorID) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.Receiver.Shutdown()
	e.Actor.Stop()
}

// StopAll raises every registered actor's shutdown flag and calls its Stop
// hook, used by the process-wide shutdown path before the bus is closed.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.Receiver.Shutdown()
		e.Actor.Stop()
	}
}

// Names returns id -> human name for every registered actor.
func (r *Registry) Names() map[schema.ActorID]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[schema.ActorID]string, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.Name
	}
	return out
}
