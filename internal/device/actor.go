// Package device implements the device actor: a reconnecting session to a
// single launch monitor that produces canonical ShotResult events and
// applies mode/configuration changes observed on the bus.
package device

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/config"
	"github.com/divotmaker/flighthook/internal/devicewire"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
)

const (
	connectTimeout        = 5 * time.Second
	handshakeTimeout      = 5 * time.Second
	recvTimeout           = 900 * time.Millisecond
	keepaliveFailureLimit = 6
	backoffInitial        = 1 * time.Second
	backoffMax            = 30 * time.Second
)

// ClientFactory constructs a Client for the given address; production code
// passes devicewire.NewTCPClient, tests pass a fake.
type ClientFactory func(addr string) devicewire.Client

// telemetrySnapshot is the last-known battery/power/orientation/temperature
// reading, seeded at handshake and refreshed by every successful keepalive.
type telemetrySnapshot struct {
	BatteryPct    float64
	ExternalPower bool
	TiltDeg       float64
	RollDeg       float64
	TempC         float64
}

// Actor is the device actor. One Actor per configured
// device or mock_device section.
type Actor struct {
	id      schema.ActorID
	name    string
	newClient ClientFactory
	logger  *slog.Logger

	mu      sync.RWMutex
	section schema.DeviceSection

	mode       atomic.Value // schema.Mode
	telemetry  atomic.Value // telemetrySnapshot
	deviceInfo atomic.Value // string
}

// New constructs a device Actor for the given config section. newClient
// defaults to devicewire.NewTCPClient if nil.
func New(id schema.ActorID, name string, section schema.DeviceSection, newClient ClientFactory, logger *slog.Logger) *Actor {
	if newClient == nil {
		newClient = func(addr string) devicewire.Client { return devicewire.NewTCPClient(addr) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Actor{id: id, name: name, section: section, newClient: newClient, logger: logger}
	a.mode.Store(schema.ModeFull)
	a.telemetry.Store(telemetrySnapshot{})
	a.deviceInfo.Store("")
	return a
}

func (a *Actor) currentSection() schema.DeviceSection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.section
}

// Start spawns the device actor's run loop in its own goroutine.
func (a *Actor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	go a.run(ctx, shared, sender, receiver)
	return nil
}

// Stop is a no-op: the run loop observes receiver.IsShutdown() at each loop
// head and between blocking operations.
func (a *Actor) Stop() {}

// Reconfigure returns RestartRequired if the address changed; otherwise it
// updates the cached section and publishes ConfigChanged so the running
// loop re-configures and rearms in place.
func (a *Actor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	cfg := shared.Config.Snapshot()
	next, ok := lookupSection(cfg, a.id)
	if !ok {
		return actor.RestartRequired
	}

	a.mu.Lock()
	prev := a.section
	if prev.Address != next.Address {
		a.mu.Unlock()
		return actor.RestartRequired
	}
	a.section = next
	a.mu.Unlock()

	sender.Send(schema.Event{
		Kind:          schema.KindConfigChanged,
		ConfigChanged: &schema.ConfigChangedPayload{DeviceIndex: splitID(a.id).index, Device: next},
	})
	return actor.Applied
}

func lookupSection(cfg *schema.Config, id schema.ActorID) (schema.DeviceSection, bool) {
	parts := splitID(id)
	switch parts.kind {
	case "device":
		s, ok := cfg.Device[parts.index]
		return s, ok
	case "mock_device":
		s, ok := cfg.MockDevice[parts.index]
		return s, ok
	default:
		return schema.DeviceSection{}, false
	}
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

type phase int

const (
	phaseStarting phase = iota
	phaseConnected
	phaseArmed
	phaseRunning
	phaseReconnecting
)

func (a *Actor) run(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) {
	backoff := backoffInitial
	everConnected := false

	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}

		client := a.newClient(a.currentSection().Address)
		err := a.session(ctx, shared, sender, receiver, client)
		client.Shutdown()

		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}
		if err == nil {
			return // graceful shutdown requested mid-session
		}

		status := schema.StatusDisconnected
		if everConnected {
			status = schema.StatusReconnecting
		}
		a.publishStatus(sender, status, false)
		sender.Send(schema.Event{Kind: schema.KindReadyState, ReadyState: &schema.ReadyState{}})
		sender.Send(schema.Event{Kind: schema.KindAlert, Alert: &schema.Alert{
			Level: schema.AlertWarn, Message: "device " + string(a.id) + " disconnected: " + err.Error(),
		}})

		if !a.sleepBackoff(receiver, backoff) {
			return
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
		continue
	}
}

// sleepBackoff sleeps for d in short increments so the shutdown flag is
// observed promptly. Returns false if
// shutdown was observed.
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

// session runs one connect/handshake/arm/event-loop cycle. A returned error
// signals a disconnect that should trigger reconnection (nil error, nil
// return path covers planned shutdown).
func (a *Actor) session(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver, client devicewire.Client) error {
	if err := client.Connect(connectTimeout); err != nil {
		return err
	}

	info, err := client.Handshake(handshakeTimeout)
	if err != nil {
		return err
	}
	a.telemetry.Store(telemetrySnapshot{
		BatteryPct:    info.BatteryPct,
		ExternalPower: info.ExternalPower,
		TiltDeg:       info.TiltDeg,
		RollDeg:       info.RollDeg,
	})
	if info.ProductName != "" {
		a.deviceInfo.Store(formatDeviceInfo(info))
	}
	a.publishStatus(sender, schema.StatusConnected, false)

	section := a.currentSection()
	mode := a.mode.Load().(schema.Mode)
	if err := a.configureAndArm(client, section, mode); err != nil {
		return err
	}
	a.publishStatus(sender, schema.StatusConnected, true)
	sender.Send(schema.Event{Kind: schema.KindReadyState, ReadyState: &schema.ReadyState{Armed: true, BallDetected: true}})

	return a.eventLoop(ctx, shared, sender, receiver, client)
}

func (a *Actor) configureAndArm(client devicewire.Client, section schema.DeviceSection, mode schema.Mode) error {
	cfg := devicewire.SessionConfig{
		Mode:         string(mode),
		BallType:     section.BallType,
		TeeHeightM:   section.TeeHeightM,
		TrackingPct:  section.TrackingPct,
		RadarRangeM:  section.RadarRangeM,
		RadarHeightM: section.RadarHeightM,
	}
	if err := client.Configure(cfg); err != nil {
		return err
	}
	return client.Arm()
}

func (a *Actor) eventLoop(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver, client devicewire.Client) error {
	acc := &accumulator{}
	shotNumber := 0
	keepaliveFailures := 0

	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return nil
		}

		a.drainBus(shared, sender, client, receiver)

		frame, err := client.ReadFrame(recvTimeout)
		switch {
		case err == nil:
			keepaliveFailures = 0
			a.routeFrame(frame, acc, sender, &shotNumber, client)
		case isTimeout(err):
			status, kerr := client.Keepalive()
			if kerr != nil {
				keepaliveFailures++
				if keepaliveFailures >= keepaliveFailureLimit {
					return kerr
				}
				continue
			}
			keepaliveFailures = 0
			a.telemetry.Store(telemetrySnapshot{
				BatteryPct:    status.BatteryPct,
				ExternalPower: status.ExternalPower,
				TiltDeg:       status.TiltDeg,
				RollDeg:       status.RollDeg,
				TempC:         status.TempC,
			})
			a.publishStatus(sender, schema.StatusConnected, status.Armed)
		default:
			return err
		}
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// drainBus applies ConfigChanged and SetMode events, highest priority in
// each loop iteration. All other events are ignored.
func (a *Actor) drainBus(shared *state.Shared, sender bus.Sender, client devicewire.Client, receiver *bus.Receiver) {
	for {
		res := receiver.Poll()
		if res.Message == nil {
			return
		}
		switch res.Message.Event.Kind {
		case schema.KindConfigChanged:
			if res.Message.Event.ConfigChanged == nil || res.Message.Source != a.id {
				continue
			}
			a.mu.Lock()
			a.section = res.Message.Event.ConfigChanged.Device
			section := a.section
			a.mu.Unlock()
			mode := a.mode.Load().(schema.Mode)
			a.configureAndArm(client, section, mode)
		case schema.KindSetMode:
			if res.Message.Event.SetMode == nil {
				continue
			}
			if *res.Message.Event.SetMode != a.mode.Load().(schema.Mode) {
				a.mode.Store(*res.Message.Event.SetMode)
				section := a.currentSection()
				a.configureAndArm(client, section, *res.Message.Event.SetMode)
			}
		}
	}
}

func (a *Actor) routeFrame(frame devicewire.Frame, acc *accumulator, sender bus.Sender, shotNumber *int, client devicewire.Client) {
	switch frame.Type {
	case devicewire.TypeShotText:
		sub, err := devicewire.DecodeShotText(frame.Payload)
		if err != nil {
			a.warnProtocol(sender, err)
			return
		}
		switch sub {
		case devicewire.ShotTextTrigger:
			acc.reset()
		case devicewire.ShotTextProcessed:
			acc.autoActivate()
			*shotNumber++
			shot := acc.finalize(a.id, *shotNumber)
			sender.Send(schema.Event{Kind: schema.KindShotResult, ShotResult: &shot})
			client.CompleteShot()
			acc.reset()
			acc.active = false
		}
	case devicewire.TypeFullFlight:
		f, err := devicewire.DecodeFullFlight(frame.Payload)
		if err != nil {
			a.warnProtocol(sender, err)
			return
		}
		acc.applyFullFlight(f)
	case devicewire.TypePartialFlight:
		p, err := devicewire.DecodePartialFlight(frame.Payload)
		if err != nil {
			a.warnProtocol(sender, err)
			return
		}
		acc.applyPartialFlight(p)
	case devicewire.TypeClub:
		c, err := devicewire.DecodeClub(frame.Payload)
		if err != nil {
			a.warnProtocol(sender, err)
			return
		}
		acc.applyClub(c)
	case devicewire.TypeSpin:
		s, err := devicewire.DecodeSpin(frame.Payload)
		if err != nil {
			a.warnProtocol(sender, err)
			return
		}
		acc.applySpin(s)
	default:
		a.logger.Log(context.Background(), config.LevelTrace, "audit: unrecognized device wire type", "type", frame.Type, "device", a.id)
	}
}

func (a *Actor) warnProtocol(sender bus.Sender, err error) {
	sender.Send(schema.Event{Kind: schema.KindAlert, Alert: &schema.Alert{
		Level: schema.AlertWarn, Message: "device " + string(a.id) + " protocol violation: " + err.Error(),
	}})
}

// publishStatus emits an ActorStatus event. On Connected, telemetry always
// carries battery_pct, tilt, roll, temp_c, external_power, armed, and mode;
// device_info is added once the handshake has identified the unit. Other
// statuses (Starting/Disconnected/Reconnecting) carry no telemetry, since
// none of it is current once the session has dropped.
func (a *Actor) publishStatus(sender bus.Sender, status schema.ActorStatusKind, armed bool) {
	telemetry := map[string]string{}
	if status == schema.StatusConnected {
		snap := a.telemetry.Load().(telemetrySnapshot)
		telemetry["battery_pct"] = strconv.FormatFloat(snap.BatteryPct, 'f', 1, 64)
		telemetry["tilt"] = strconv.FormatFloat(snap.TiltDeg, 'f', 1, 64)
		telemetry["roll"] = strconv.FormatFloat(snap.RollDeg, 'f', 1, 64)
		telemetry["temp_c"] = strconv.FormatFloat(snap.TempC, 'f', 1, 64)
		telemetry["external_power"] = boolStr(snap.ExternalPower)
		telemetry["armed"] = boolStr(armed)
		telemetry["mode"] = string(a.mode.Load().(schema.Mode))
		if info, _ := a.deviceInfo.Load().(string); info != "" {
			telemetry["device_info"] = info
		}
	}
	sender.Send(schema.Event{Kind: schema.KindActorStatus, ActorStatus: &schema.ActorStatusPayload{
		Status: status, Telemetry: telemetry,
	}})
}

// formatDeviceInfo renders the handshake's product/serial pair into the
// single device_info telemetry string.
func formatDeviceInfo(info devicewire.HandshakeInfo) string {
	if info.SerialNumber == "" {
		return info.ProductName
	}
	return info.ProductName + " (" + info.SerialNumber + ")"
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
