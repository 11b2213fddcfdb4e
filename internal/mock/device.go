// Package mock implements the synthetic shot producer and routing
// exerciser actors used to drive the bridge without real hardware.
package mock

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
)

// shotInterval is how often the mock device emits a synthetic shot.
const shotInterval = 4 * time.Second

// DeviceActor produces synthetic ShotResult events at a fixed cadence,
// exercising the same bus contract a real device actor would, without any
// wire protocol or socket.
type DeviceActor struct {
	id      schema.ActorID
	name    string
	section schema.DeviceSection
	logger  *slog.Logger
	mode    atomic.Value // schema.Mode
}

// NewDevice constructs a mock device actor.
func NewDevice(id schema.ActorID, name string, section schema.DeviceSection, logger *slog.Logger) *DeviceActor {
	if logger == nil {
		logger = slog.Default()
	}
	d := &DeviceActor{id: id, name: name, section: section, logger: logger}
	d.mode.Store(schema.ModeFull)
	return d
}

func (d *DeviceActor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	go d.run(ctx, sender, receiver)
	return nil
}

func (d *DeviceActor) Stop() {}

// Reconfigure always applies in place: the mock device has no address or
// hardware dependency to make a restart meaningful.
func (d *DeviceActor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	return actor.Applied
}

func (d *DeviceActor) run(ctx context.Context, sender bus.Sender, receiver *bus.Receiver) {
	sender.Send(schema.Event{Kind: schema.KindActorStatus, ActorStatus: &schema.ActorStatusPayload{
		Status: schema.StatusConnected, Telemetry: map[string]string{"mock": "true"},
	}})
	sender.Send(schema.Event{Kind: schema.KindReadyState, ReadyState: &schema.ReadyState{Armed: true, BallDetected: true}})

	ticker := time.NewTicker(shotInterval)
	defer ticker.Stop()
	shotNumber := 0

	for {
		if receiver.IsShutdown() || ctx.Err() != nil {
			return
		}
		d.drainBus(receiver)

		select {
		case <-ticker.C:
			shotNumber++
			shot := d.synthesize(shotNumber)
			sender.Send(schema.Event{Kind: schema.KindShotResult, ShotResult: &shot})
		case <-time.After(200 * time.Millisecond):
			// short wake-up so the shutdown flag is checked promptly
		}
	}
}

func (d *DeviceActor) drainBus(receiver *bus.Receiver) {
	for {
		res := receiver.Poll()
		if res.Message == nil {
			return
		}
		if res.Message.Event.Kind == schema.KindSetMode && res.Message.Event.SetMode != nil {
			d.mode.Store(*res.Message.Event.SetMode)
		}
	}
}

// synthesize produces a plausible full-flight shot so the bridge's
// routing, partial policy, and unit conversion paths all have realistic
// traffic to exercise end to end.
func (d *DeviceActor) synthesize(shotNumber int) schema.Shot {
	speed := 45 + rand.Float64()*15
	carry := 120 + rand.Float64()*60
	backspin := 4500 + rand.Float64()*2000
	return schema.Shot{
		Source:     d.id,
		ShotNumber: shotNumber,
		Ball: schema.BallFlight{
			LaunchSpeed:     schema.Velocity{Unit: schema.MetersPerSecond, Value: speed},
			LaunchElevation: 12 + rand.Float64()*10,
			LaunchAzimuth:   rand.Float64()*4 - 2,
			CarryDistance:   &schema.Distance{Unit: schema.Meters, Value: carry},
			Backspin:        &backspin,
		},
		Club: &schema.ClubData{
			Speed: &schema.Velocity{Unit: schema.MetersPerSecond, Value: speed * 0.68},
		},
	}
}
