package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
)

// SimulatorActor exercises routing and partial-shot policy decisions
// without a real TCP socket: it logs every shot it would have forwarded,
// so routing configuration can be validated against bus traffic alone.
type SimulatorActor struct {
	id     schema.ActorID
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	section schema.SimulatorSection
}

// NewSimulator constructs a mock simulator actor.
func NewSimulator(id schema.ActorID, name string, section schema.SimulatorSection, logger *slog.Logger) *SimulatorActor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatorActor{id: id, name: name, section: section, logger: logger}
}

func (s *SimulatorActor) currentSection() schema.SimulatorSection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.section
}

func (s *SimulatorActor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	go s.run(ctx, sender, receiver)
	return nil
}

func (s *SimulatorActor) Stop() {}

// Reconfigure always applies in place: there is no socket to tear down.
func (s *SimulatorActor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	cfg := shared.Config.Snapshot()
	parts := splitID(s.id)
	if next, ok := cfg.MockSimulator[parts.index]; ok {
		s.mu.Lock()
		s.section = next
		s.mu.Unlock()
	}
	return actor.Applied
}

type idParts struct{ kind, index string }

func splitID(id schema.ActorID) idParts {
	str := string(id)
	for i := len(str) - 1; i >= 0; i-- {
		if str[i] == '.' {
			return idParts{kind: str[:i], index: str[i+1:]}
		}
	}
	return idParts{kind: str}
}

func (s *SimulatorActor) run(ctx context.Context, sender bus.Sender, receiver *bus.Receiver) {
	sender.Send(schema.Event{Kind: schema.KindActorStatus, ActorStatus: &schema.ActorStatusPayload{
		Status: schema.StatusConnected, Telemetry: map[string]string{"mock": "true"},
	}})

	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}
		res := receiver.Poll()
		if res.Message == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if res.Message.Event.Kind != schema.KindShotResult || res.Message.Event.ShotResult == nil {
			continue
		}
		shot := res.Message.Event.ShotResult
		section := s.currentSection()
		mode := modeForRouting(section.Routing, shot.Source)
		if mode == "" {
			s.logger.Debug("mock simulator: shot not routed",
				"source", shot.Source, "simulator", s.id, "routing", section.Routing)
			continue
		}
		if shot.Estimated && !partialAllowed(section.PartialPolicy, mode) {
			s.logger.Debug("mock simulator: estimated shot dropped by partial policy",
				"source", shot.Source, "simulator", s.id, "mode", mode)
			continue
		}
		s.logger.Info("mock simulator would forward shot",
			"source", shot.Source, "simulator", s.id, "mode", mode, "shot_number", shot.ShotNumber)
	}
}

func modeForRouting(r schema.Routing, source schema.ActorID) schema.Mode {
	if matches(r.Full, source) {
		return schema.ModeFull
	}
	if matches(r.Chipping, source) {
		return schema.ModeChipping
	}
	if matches(r.Putting, source) {
		return schema.ModePutting
	}
	return ""
}

func matches(route *schema.ActorID, source schema.ActorID) bool {
	return route == nil || *route == source
}

func partialAllowed(policy schema.PartialPolicy, mode schema.Mode) bool {
	switch policy {
	case schema.PartialAlways:
		return true
	case schema.PartialChippingOnly, "":
		return mode == schema.ModeChipping
	default:
		return false
	}
}
