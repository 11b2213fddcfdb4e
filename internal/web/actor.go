// Package web implements the web actor: REST endpoints, a WebSocket
// stream, and the request-reply path for configuration mutations
//. It is the only actor hosting a cooperative HTTP
// server; all other actors use ordinary blocking loops.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
)

// configReplyTimeout bounds how long POST /api/settings waits for a
// matching ConfigOutcome before returning an empty result.
const configReplyTimeout = 10 * time.Second

// actorProjection is the cached view of one actor's last-known status,
// keyed by source id.
type actorProjection struct {
	Name      string            `json:"name"`
	Status    schema.ActorStatusKind `json:"status"`
	Telemetry map[string]string `json:"telemetry,omitempty"`
}

// Actor is the web actor.
type Actor struct {
	id     schema.ActorID
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	section schema.WebserverSection

	shared *state.Shared
	sender bus.Sender
	server *http.Server

	projMu     sync.RWMutex
	projection map[schema.ActorID]actorProjection
	mode       schema.Mode

	ring *shotRing

	pendingMu sync.Mutex
	pending   map[string]chan schema.ConfigOutcome

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	hub *wsHub
}

// New constructs a web Actor for the given config section.
func New(id schema.ActorID, name string, section schema.WebserverSection, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		id:         id,
		name:       name,
		section:    section,
		logger:     logger,
		projection: make(map[schema.ActorID]actorProjection),
		ring:       newShotRing(),
		pending:    make(map[string]chan schema.ConfigOutcome),
		limiters:   make(map[string]*rate.Limiter),
		hub:        newWSHub(),
		mode:       schema.ModeFull,
	}
}

func (a *Actor) currentSection() schema.WebserverSection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.section
}

// Start launches the HTTP server and the bus-draining projection loop,
// each in its own goroutine.
func (a *Actor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	a.shared = shared
	a.sender = sender

	section := a.currentSection()
	a.server = &http.Server{Addr: section.Bind, Handler: a.routes()}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("web server exited", "id", a.id, "error", err)
		}
	}()
	go a.pollLoop(ctx, receiver)

	return nil
}

// Stop shuts down the HTTP server; the poll loop exits on its own once it
// observes the shutdown flag.
func (a *Actor) Stop() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(ctx)
	}
}

// Reconfigure returns RestartRequired iff the bind address changes.
func (a *Actor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	cfg := shared.Config.Snapshot()
	parts := splitID(a.id)
	next, ok := cfg.Webserver[parts.index]
	if !ok {
		return actor.RestartRequired
	}
	if a.currentSection().Bind != next.Bind {
		return actor.RestartRequired
	}
	a.mu.Lock()
	a.section = next
	a.mu.Unlock()
	return actor.NoChange
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

// pollLoop drains the bus into the status projection and shot ring,
// fans every message out to connected WebSocket clients, resolves
// pending ConfigOutcome waiters, and shuts the HTTP server down once the
// shutdown flag is observed.
func (a *Actor) pollLoop(ctx context.Context, receiver *bus.Receiver) {
	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			a.Stop()
			return
		}
		res := receiver.Poll()
		if res.Shutdown {
			a.Stop()
			return
		}
		if res.Message == nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		a.apply(*res.Message)
		a.hub.broadcast(*res.Message)
	}
}

func (a *Actor) apply(msg bus.Message) {
	switch msg.Event.Kind {
	case schema.KindActorStatus:
		if msg.Event.ActorStatus == nil {
			return
		}
		a.projMu.Lock()
		entry := a.projection[msg.Source]
		entry.Status = msg.Event.ActorStatus.Status
		entry.Telemetry = msg.Event.ActorStatus.Telemetry
		a.projection[msg.Source] = entry
		a.projMu.Unlock()
	case schema.KindShotResult:
		if msg.Event.ShotResult != nil {
			a.ring.push(*msg.Event.ShotResult)
		}
	case schema.KindSetMode:
		if msg.Event.SetMode != nil {
			a.projMu.Lock()
			a.mode = *msg.Event.SetMode
			a.projMu.Unlock()
		}
	case schema.KindConfigOutcome:
		if msg.Event.ConfigOutcome == nil || msg.Event.ConfigOutcome.RequestID == "" {
			return
		}
		a.pendingMu.Lock()
		ch, ok := a.pending[msg.Event.ConfigOutcome.RequestID]
		if ok {
			delete(a.pending, msg.Event.ConfigOutcome.RequestID)
		}
		a.pendingMu.Unlock()
		if ok {
			select {
			case ch <- *msg.Event.ConfigOutcome:
			default:
			}
		}
	}
}

// awaitOutcome registers a request id and blocks until a matching
// ConfigOutcome arrives or configReplyTimeout elapses: the request-reply
// pattern layered over an otherwise fire-and-forget broadcast bus.
func (a *Actor) awaitOutcome(requestID string) (schema.ConfigOutcome, bool) {
	ch := make(chan schema.ConfigOutcome, 1)
	a.pendingMu.Lock()
	a.pending[requestID] = ch
	a.pendingMu.Unlock()

	select {
	case outcome := <-ch:
		return outcome, true
	case <-time.After(configReplyTimeout):
		a.pendingMu.Lock()
		delete(a.pending, requestID)
		a.pendingMu.Unlock()
		return schema.ConfigOutcome{}, false
	}
}

// newRequestID generates a ConfigCommand request id.
func newRequestID() string {
	return uuid.NewString()
}
