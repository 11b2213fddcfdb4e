// Package simbridge implements the simulator bridge actor: it forwards
// canonical shots to a simulator over JSON-over-TCP, relays the
// simulator's responses back onto the bus, and maintains liveness via
// periodic and edge-triggered heartbeats.
package simbridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/simwire"
	"github.com/divotmaker/flighthook/internal/state"
)

const (
	dialTimeout      = 5 * time.Second
	readPollInterval = 50 * time.Millisecond
	heartbeatPeriod  = 10 * time.Second
	backoffInitial   = 1 * time.Second
	backoffMax       = 30 * time.Second
)

// ConnFactory constructs a Conn; production code passes NewTCPConn, tests
// pass a fake.
type ConnFactory func() Conn

// Actor is the simulator bridge actor. One Actor per
// configured simulator or mock_simulator section.
type Actor struct {
	id      schema.ActorID
	name    string
	newConn ConnFactory
	logger  *slog.Logger

	mu      sync.RWMutex
	section schema.SimulatorSection

	readyMu sync.Mutex
	ready   map[schema.ActorID]schema.ReadyState
}

// New constructs a simulator bridge Actor. newConn defaults to NewTCPConn
// if nil.
func New(id schema.ActorID, name string, section schema.SimulatorSection, newConn ConnFactory, logger *slog.Logger) *Actor {
	if newConn == nil {
		newConn = func() Conn { return NewTCPConn() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		id: id, name: name, section: section, newConn: newConn, logger: logger,
		ready: make(map[schema.ActorID]schema.ReadyState),
	}
}

func (a *Actor) currentSection() schema.SimulatorSection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.section
}

// Start spawns the bridge's run loop in its own goroutine.
func (a *Actor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	go a.run(ctx, shared, sender, receiver)
	return nil
}

// Stop is a no-op; the run loop polls receiver.IsShutdown().
func (a *Actor) Stop() {}

// Reconfigure returns RestartRequired if the address or any routing
// mapping changes: the bridge keeps no shared state worth preserving
// across such a change.
func (a *Actor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	cfg := shared.Config.Snapshot()
	parts := splitID(a.id)
	var next schema.SimulatorSection
	var ok bool
	if parts.kind == "mock_simulator" {
		next, ok = cfg.MockSimulator[parts.index]
	} else {
		next, ok = cfg.Simulator[parts.index]
	}
	if !ok {
		return actor.RestartRequired
	}

	prev := a.currentSection()
	if prev.Address != next.Address || !routingEqual(prev.Routing, next.Routing) {
		return actor.RestartRequired
	}
	if prev.PartialPolicy != next.PartialPolicy {
		a.mu.Lock()
		a.section = next
		a.mu.Unlock()
		return actor.Applied
	}
	return actor.NoChange
}

func routingEqual(a, b schema.Routing) bool {
	return idPtrEqual(a.Full, b.Full) && idPtrEqual(a.Chipping, b.Chipping) && idPtrEqual(a.Putting, b.Putting)
}

func idPtrEqual(a, b *schema.ActorID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
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

func (a *Actor) run(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) {
	backoff := backoffInitial
	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}

		conn := a.newConn()
		err := a.session(ctx, sender, receiver, conn)
		conn.Close()

		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}
		if !errors.Is(err, errGracefulClose) {
			sender.Send(schema.Event{Kind: schema.KindAlert, Alert: &schema.Alert{
				Level: schema.AlertError, Message: "simulator " + string(a.id) + ": " + err.Error(),
			}})
		}

		if !a.sleepBackoff(receiver, backoff) {
			return
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

var errGracefulClose = errors.New("simulator connection closed gracefully")

func (a *Actor) sleepBackoff(receiver *bus.Receiver, d time.Duration) bool {
	const tick = 500 * time.Millisecond
	elapsed := time.Duration(0)
	for elapsed < d {
		if receiver.IsShutdown() {
			return false
		}
		step := tick
		if remaining := d - elapsed; remaining < tick {
			step = remaining
		}
		time.Sleep(step)
		elapsed += step
	}
	return !receiver.IsShutdown()
}

func (a *Actor) session(ctx context.Context, sender bus.Sender, receiver *bus.Receiver, conn Conn) error {
	section := a.currentSection()
	if err := conn.Dial(section.Address, dialTimeout); err != nil {
		return err
	}

	lastHeartbeat := time.Now()
	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return nil
		}

		section := a.currentSection()
		readyChanged, err := a.drainBus(sender, receiver, section, conn)
		if err != nil {
			return err
		}

		if readyChanged || time.Since(lastHeartbeat) >= heartbeatPeriod {
			ready, ballDetected := a.currentReadiness(section)
			if err := conn.Write(simwire.Heartbeat(string(a.id), ready, ballDetected)); err != nil {
				return err
			}
			lastHeartbeat = time.Now()
		}

		resp, err := conn.ReadResponse(readPollInterval)
		if err == nil {
			a.handleResponse(sender, resp)
			continue
		}
		if isTimeout(err) {
			continue
		}
		return err
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// drainBus applies Shot, ReadyState, and ActorStatus events from the bus:
// forwards eligible shots, tracks per-monitor readiness, and reports
// whether readiness changed (triggering an edge-triggered heartbeat). A
// non-nil error means the simulator write failed and the session must
// reconnect.
func (a *Actor) drainBus(sender bus.Sender, receiver *bus.Receiver, section schema.SimulatorSection, conn Conn) (bool, error) {
	changed := false
	for {
		res := receiver.Poll()
		if res.Message == nil {
			return changed, nil
		}
		msg := res.Message
		switch msg.Event.Kind {
		case schema.KindShotResult:
			if err := a.maybeForward(conn, section, msg.Source, msg.Event.ShotResult); err != nil {
				return changed, err
			}
		case schema.KindReadyState:
			if msg.Event.ReadyState != nil {
				a.setReadiness(msg.Source, *msg.Event.ReadyState)
				changed = true
			}
		case schema.KindActorStatus:
			if msg.Event.ActorStatus != nil &&
				(msg.Event.ActorStatus.Status == schema.StatusDisconnected || msg.Event.ActorStatus.Status == schema.StatusReconnecting) {
				a.setReadiness(msg.Source, schema.ReadyState{})
				changed = true
			}
		}
	}
}

func (a *Actor) setReadiness(source schema.ActorID, rs schema.ReadyState) {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()
	a.ready[source] = rs
}

// currentReadiness derives the bridge's reported (armed, ball_detected)
// pair from the last-known per-monitor readiness via routing: Full mode's
// monitor wins ties arbitrarily when multiple modes route to different
// monitors, since a single simulator session represents one physical bay.
func (a *Actor) currentReadiness(section schema.SimulatorSection) (armed, ballDetected bool) {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()
	for _, id := range []*schema.ActorID{section.Routing.Full, section.Routing.Chipping, section.Routing.Putting} {
		if id == nil {
			continue
		}
		if rs, ok := a.ready[*id]; ok && rs.Armed {
			return rs.Armed, rs.BallDetected
		}
	}
	return false, false
}

// maybeForward applies the routing and partial-shot policy laws and writes
// the shot if eligible.
func (a *Actor) maybeForward(conn Conn, section schema.SimulatorSection, source schema.ActorID, shot *schema.Shot) error {
	if shot == nil {
		return nil
	}
	mode := modeForRouting(section.Routing, source)
	if mode == "" {
		a.logger.Debug("shot not routed", "source", source, "simulator", a.id, "routing", section.Routing)
		return nil
	}
	if shot.Estimated && !partialAllowed(section.PartialPolicy, mode) {
		return nil
	}
	return conn.Write(outboundFrom(shot, mode))
}

func modeForRouting(r schema.Routing, source schema.ActorID) schema.Mode {
	if matchesRoute(r.Full, source) {
		return schema.ModeFull
	}
	if matchesRoute(r.Chipping, source) {
		return schema.ModeChipping
	}
	if matchesRoute(r.Putting, source) {
		return schema.ModePutting
	}
	return ""
}

func matchesRoute(route *schema.ActorID, source schema.ActorID) bool {
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

func (a *Actor) handleResponse(sender bus.Sender, resp simwire.InboundResponse) {
	if resp.Code < 200 || resp.Code >= 300 {
		sender.Send(schema.Event{Kind: schema.KindAlert, Alert: &schema.Alert{
			Level: schema.AlertWarn, Message: resp.Message,
		}})
	}
	if resp.Player == nil {
		return
	}
	if resp.Player.Handed != nil {
		handed := *resp.Player.Handed
		sender.Send(schema.Event{Kind: schema.KindSetPlayerInfo, SetPlayerInfo: &schema.PlayerInfo{Handed: handed}})
	}
	if resp.Player.Club != nil {
		club, ok := schema.ParseClub(*resp.Player.Club)
		if !ok {
			sender.Send(schema.Event{Kind: schema.KindAlert, Alert: &schema.Alert{
				Level: schema.AlertWarn, Message: "unknown club code from simulator: " + *resp.Player.Club,
			}})
			return
		}
		sender.Send(schema.Event{Kind: schema.KindSetClubInfo, SetClubInfo: &schema.ClubInfo{Club: club}})
	}
}

func outboundFrom(shot *schema.Shot, mode schema.Mode) simwire.OutboundShot {
	speed := shot.Ball.LaunchSpeed.ToMPH()
	out := simwire.OutboundShot{
		DeviceID:   string(shot.Source),
		Units:      "Yards",
		ShotNumber: shot.ShotNumber,
		APIVersion: "1",
		BallData: simwire.BallData{
			Speed: speed.Value,
			HLA:   shot.Ball.LaunchAzimuth,
			VLA:   shot.Ball.LaunchElevation,
		},
		ShotDataOptions: simwire.ShotDataOptions{
			ContainsBallData:     true,
			LaunchMonitorIsReady: true,
		},
	}
	if shot.Ball.CarryDistance != nil {
		yd := shot.Ball.CarryDistance.ToYards().Value
		out.BallData.CarryDistance = &yd
	}
	if shot.Ball.Backspin != nil {
		out.BallData.BackSpin = *shot.Ball.Backspin
	}
	if shot.Ball.Sidespin != nil {
		out.BallData.SideSpin = *shot.Ball.Sidespin
	}
	if shot.Spin != nil {
		if shot.Spin.SpinAxis != nil {
			out.BallData.SpinAxis = *shot.Spin.SpinAxis
		}
		if shot.Spin.TotalSpin != nil {
			out.BallData.TotalSpin = *shot.Spin.TotalSpin
		}
	}
	if shot.Club != nil {
		out.ShotDataOptions.ContainsClubData = true
		if shot.Club.Speed != nil {
			out.ClubData.Speed = shot.Club.Speed.ToMPH().Value
		}
		if shot.Club.AngleOfAttack != nil {
			out.ClubData.AngleOfAttack = *shot.Club.AngleOfAttack
		}
		if shot.Club.FaceToTarget != nil {
			out.ClubData.FaceToTarget = *shot.Club.FaceToTarget
		}
		if shot.Club.Loft != nil {
			out.ClubData.Loft = *shot.Club.Loft
		}
		if shot.Club.Path != nil {
			out.ClubData.Path = *shot.Club.Path
		}
	}
	return out
}
