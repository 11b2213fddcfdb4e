// Package system implements the always-on system actor: the sole writer
// of game state, the ConfigCommand processor, and the reconciliation
// driver. Unlike every other actor it is not config-driven
// and is never touched by supervisor.ApplyConfigReload.
package system

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/config"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
	"github.com/divotmaker/flighthook/internal/supervisor"
)

// Reconciler is the subset of *supervisor.Supervisor the system actor
// depends on, narrowed so this package does not need the full supervisor
// construction surface to be testable with a fake.
type Reconciler interface {
	ApplyConfigReload(scope *schema.ActorID) supervisor.Result
}

// Actor is the system actor.
type Actor struct {
	writeHandle state.WriteHandle
	supervisor  Reconciler
	configPath  string
	logger      *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// New constructs the system actor. writeHandle must be the sole
// state.WriteHandle issued by state.NewGameState; configPath is where
// ConfigCommand mutations are persisted.
func New(writeHandle state.WriteHandle, sup Reconciler, configPath string, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		writeHandle: writeHandle,
		supervisor:  sup,
		configPath:  configPath,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

// Ready returns a channel closed the moment the system actor begins
// polling the bus. Supervised startup waits on this before spawning any
// other actor, eliminating missed-initial-event races.
func (a *Actor) Ready() <-chan struct{} {
	return a.ready
}

// Start launches the system actor's run loop in its own goroutine.
func (a *Actor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	go a.run(ctx, shared, sender, receiver)
	return nil
}

// Stop is a no-op; the run loop observes the shutdown flag each iteration.
func (a *Actor) Stop() {}

// Reconfigure always reports NoChange: the system actor is not
// config-driven and is excluded from the supervisor's reconciliation scan
//. It implements actor.Actor only so it can share the
// registry's uniform shutdown path.
func (a *Actor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	return actor.NoChange
}

func (a *Actor) run(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) {
	a.readyOnce.Do(func() { close(a.ready) })

	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}
		res := receiver.Poll()
		if res.Shutdown {
			return
		}
		if res.Message == nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		a.handle(*res.Message, shared, sender)
	}
}

func (a *Actor) handle(msg bus.Message, shared *state.Shared, sender bus.Sender) {
	switch msg.Event.Kind {
	case schema.KindSetPlayerInfo:
		if msg.Event.SetPlayerInfo != nil {
			a.writeHandle.SetPlayer(*msg.Event.SetPlayerInfo)
		}
	case schema.KindSetClubInfo:
		if msg.Event.SetClubInfo != nil {
			mode := a.writeHandle.SetClub(msg.Event.SetClubInfo.Club)
			sender.Send(schema.Event{Kind: schema.KindSetMode, SetMode: &mode})
		}
	case schema.KindSetMode:
		if msg.Event.SetMode != nil {
			a.writeHandle.SetMode(*msg.Event.SetMode)
		}
	case schema.KindConfigCommand:
		if msg.Event.ConfigCommand != nil {
			a.handleConfigCommand(*msg.Event.ConfigCommand, shared, sender)
		}
	}
}

// handleConfigCommand mutates the cached config, persists it atomically,
// reconciles the running actor set, and (if a request id was supplied)
// emits a matching ConfigOutcome. ConfigCommand events
// arrive one at a time off the bus poll loop, so mutations are already
// serialized without an additional lock.
func (a *Actor) handleConfigCommand(cmd schema.ConfigCommand, shared *state.Shared, sender bus.Sender) {
	var scope *schema.ActorID

	switch cmd.Action {
	case schema.ActionReplaceAll:
		if cmd.Replacement == nil {
			a.logger.Warn("config command: replace_all with no replacement, ignoring", "request_id", cmd.RequestID)
			return
		}
		shared.Config.Replace(cmd.Replacement)

	case schema.ActionUpsert:
		if !a.applyUpsert(shared, cmd) {
			a.logger.Warn("config command: upsert with unrecognized section kind/type",
				"kind", cmd.SectionKind, "index", cmd.SectionIndex)
			return
		}
		id := schema.NewActorID(cmd.SectionKind, cmd.SectionIndex)
		scope = &id

	case schema.ActionRemove:
		parts := splitID(cmd.RemoveID)
		shared.Config.Remove(parts.kind, parts.index)
		id := cmd.RemoveID
		scope = &id

	default:
		a.logger.Warn("config command: unknown action, ignoring", "action", cmd.Action)
		return
	}

	if err := config.Save(a.configPath, shared.Config.Snapshot()); err != nil {
		a.logger.Error("failed to persist configuration", "error", err)
		sender.Send(schema.Event{Kind: schema.KindAlert, Alert: &schema.Alert{
			Level: schema.AlertError, Message: "failed to persist configuration: " + err.Error(),
		}})
	}

	result := a.supervisor.ApplyConfigReload(scope)

	if cmd.RequestID != "" {
		sender.Send(schema.Event{Kind: schema.KindConfigOutcome, ConfigOutcome: &schema.ConfigOutcome{
			RequestID: cmd.RequestID,
			Restarted: result.Restarted,
			Stopped:   result.Stopped,
			Started:   result.Started,
		}})
	}
}

// applyUpsert type-switches on SectionKind to recover the concrete section
// type carried in cmd.Section. Returns false if the kind is unrecognized
// or the type assertion fails.
func (a *Actor) applyUpsert(shared *state.Shared, cmd schema.ConfigCommand) bool {
	switch cmd.SectionKind {
	case "device":
		sec, ok := cmd.Section.(schema.DeviceSection)
		if !ok {
			return false
		}
		shared.Config.UpsertDevice(false, cmd.SectionIndex, sec)
	case "mock_device":
		sec, ok := cmd.Section.(schema.DeviceSection)
		if !ok {
			return false
		}
		shared.Config.UpsertDevice(true, cmd.SectionIndex, sec)
	case "simulator":
		sec, ok := cmd.Section.(schema.SimulatorSection)
		if !ok {
			return false
		}
		shared.Config.UpsertSimulator(false, cmd.SectionIndex, sec)
	case "mock_simulator":
		sec, ok := cmd.Section.(schema.SimulatorSection)
		if !ok {
			return false
		}
		shared.Config.UpsertSimulator(true, cmd.SectionIndex, sec)
	case "webserver":
		sec, ok := cmd.Section.(schema.WebserverSection)
		if !ok {
			return false
		}
		shared.Config.UpsertWebserver(cmd.SectionIndex, sec)
	default:
		return false
	}
	return true
}

type idParts struct{ kind, index string }

func splitID(id schema.ActorID) idParts {
	s := string(id)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return idParts{kind: s[:i], index: s[i+1:]}
		}
	}
	return idParts{kind: s}
}
