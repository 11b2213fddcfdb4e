// Package supervisor materializes actors from configuration and
// reconciles the running actor set against config changes.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/device"
	"github.com/divotmaker/flighthook/internal/mock"
	"github.com/divotmaker/flighthook/internal/registry"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/simbridge"
	"github.com/divotmaker/flighthook/internal/state"
	"github.com/divotmaker/flighthook/internal/web"
)

// restartGrace is the short pause between stopping and recreating an actor
// that returned RestartRequired.
const restartGrace = 200 * time.Millisecond

// ResolvedActor pairs an id with the concrete actor implementation and
// display name materialized from one config section.
type ResolvedActor struct {
	ID   schema.ActorID
	Name string
	Impl actor.Actor
}

// Resolve materializes concrete actors from every section of cfg. A device
// or simulator section with an empty address is logged and skipped — that
// section yields no actor in this epoch. Addresses are not parsed here.
func Resolve(cfg *schema.Config, logger *slog.Logger) []ResolvedActor {
	var out []ResolvedActor

	for idx, section := range cfg.Device {
		id := schema.NewActorID("device", idx)
		if section.Address == "" {
			logger.Warn("device section has no address, skipping", "id", id)
			continue
		}
		out = append(out, ResolvedActor{ID: id, Name: section.Name, Impl: device.New(id, section.Name, section, nil, logger)})
	}
	for idx, section := range cfg.MockDevice {
		id := schema.NewActorID("mock_device", idx)
		out = append(out, ResolvedActor{ID: id, Name: section.Name, Impl: mock.NewDevice(id, section.Name, section, logger)})
	}
	for idx, section := range cfg.Simulator {
		id := schema.NewActorID("sim", idx)
		if section.Address == "" {
			logger.Warn("simulator section has no address, skipping", "id", id)
			continue
		}
		out = append(out, ResolvedActor{ID: id, Name: section.Name, Impl: simbridge.New(id, section.Name, section, nil, logger)})
	}
	for idx, section := range cfg.MockSimulator {
		id := schema.NewActorID("mock_simulator", idx)
		out = append(out, ResolvedActor{ID: id, Name: section.Name, Impl: mock.NewSimulator(id, section.Name, section, logger)})
	}

	return out
}

// Result reports what a reconciliation did, mirroring schema.ConfigOutcome.
type Result struct {
	Restarted []schema.ActorID
	Stopped   []schema.ActorID
	Started   []schema.ActorID
}

// Supervisor owns the actor registry and drives reconciliation.
type Supervisor struct {
	reg    *registry.Registry
	bus    *bus.Bus
	shared *state.Shared
	logger *slog.Logger
	ctx    context.Context
}

// New constructs a Supervisor.
func New(ctx context.Context, reg *registry.Registry, b *bus.Bus, shared *state.Shared, logger *slog.Logger) *Supervisor {
	return &Supervisor{reg: reg, bus: b, shared: shared, logger: logger, ctx: ctx}
}

func (s *Supervisor) resolveAll(cfg *schema.Config) []ResolvedActor {
	out := Resolve(cfg, s.logger)
	for idx, section := range cfg.Webserver {
		id := schema.NewActorID("web", idx)
		out = append(out, ResolvedActor{ID: id, Name: section.Name, Impl: web.New(id, section.Name, section, s.logger)})
	}
	return out
}

func (s *Supervisor) startActor(ra ResolvedActor) error {
	sender := s.bus.NewSender(ra.ID)
	receiver := s.bus.Subscribe()
	if err := ra.Impl.Start(s.ctx, s.shared, sender, receiver); err != nil {
		receiver.Unsubscribe()
		return err
	}
	s.reg.Register(ra.ID, registry.Entry{Actor: ra.Impl, Name: ra.Name, Receiver: receiver})
	return nil
}

func (s *Supervisor) stopActor(id schema.ActorID) {
	s.reg.Stop(id)
	s.reg.Remove(id)
}

// StartAll starts every actor resolved from the current config snapshot,
// used once at process startup after the system actor signals ready.
func (s *Supervisor) StartAll() Result {
	cfg := s.shared.Config.Snapshot()
	resolved := s.resolveAll(cfg)

	var started []schema.ActorID
	for _, ra := range resolved {
		if err := s.startActor(ra); err != nil {
			s.logger.Error("failed to start actor", "id", ra.ID, "error", err)
			continue
		}
		started = append(started, ra.ID)
	}
	return Result{Started: started}
}

// ApplyConfigReload reconciles the running actor set against the current
// config snapshot. scope is nil for a global reload, or a single id to
// touch only that actor. The always-on system id is never
// part of the resolved set and is therefore untouched by reconciliation.
func (s *Supervisor) ApplyConfigReload(scope *schema.ActorID) Result {
	cfg := s.shared.Config.Snapshot()
	resolved := s.resolveAll(cfg)

	expected := make(map[schema.ActorID]ResolvedActor, len(resolved))
	for _, ra := range resolved {
		expected[ra.ID] = ra
	}
	current := s.reg.CurrentIDs(true)

	var result Result

	for id := range current {
		if scope != nil && *scope != id {
			continue
		}
		if _, ok := expected[id]; !ok {
			s.stopActor(id)
			result.Stopped = append(result.Stopped, id)
		}
	}

	for id := range current {
		if scope != nil && *scope != id {
			continue
		}
		ra, ok := expected[id]
		if !ok {
			continue
		}
		entry, ok := s.reg.Lookup(id)
		if !ok {
			continue
		}
		sender := s.bus.NewSender(id)
		switch entry.Actor.Reconfigure(s.shared, sender) {
		case actor.Applied:
			// actor handled it in place
		case actor.RestartRequired:
			s.stopActor(id)
			time.Sleep(restartGrace)
			if err := s.startActor(ra); err != nil {
				s.logger.Error("failed to restart actor", "id", id, "error", err)
				continue
			}
			result.Restarted = append(result.Restarted, id)
		case actor.NoChange:
			// nothing to do
		}
	}

	for id, ra := range expected {
		if scope != nil && *scope != id {
			continue
		}
		if _, ok := current[id]; ok {
			continue
		}
		if err := s.startActor(ra); err != nil {
			s.logger.Error("failed to start actor", "id", id, "error", err)
			continue
		}
		result.Started = append(result.Started, id)
	}

	return result
}
