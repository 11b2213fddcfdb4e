package device

import (
	"testing"

	"github.com/divotmaker/flighthook/internal/devicewire"
	"github.com/divotmaker/flighthook/internal/schema"
)

func TestAccumulator_FullFlightOnly(t *testing.T) {
	var a accumulator
	a.reset()
	a.applyFullFlight(devicewire.FullFlightPayload{
		LaunchSpeedMPS: 60, CarryM: 180, TotalM: 195, HeightM: 28,
		BackspinRPM: 2500, SidespinRPM: 300,
		HasClub: true, ClubSpeed: 45, Loft: 11,
	})

	shot := a.finalize(schema.NewActorID("device", "0"), 1)

	if shot.Estimated {
		t.Error("full-flight shot should not be marked estimated")
	}
	if shot.Ball.CarryDistance == nil || shot.Ball.CarryDistance.Value != 180 {
		t.Fatalf("carry distance = %v, want 180", shot.Ball.CarryDistance)
	}
	if shot.Ball.Sidespin == nil || *shot.Ball.Sidespin != 300 {
		t.Errorf("sidespin = %v, want 300", shot.Ball.Sidespin)
	}
	if shot.Club == nil || shot.Club.Loft == nil || *shot.Club.Loft != 11 {
		t.Fatalf("expected embedded club data to populate Club, got %+v", shot.Club)
	}
}

func TestAccumulator_PartialFlightOnly_SidespinAbsentNotZero(t *testing.T) {
	var a accumulator
	a.reset()
	a.applyPartialFlight(devicewire.PartialFlightPayload{
		LaunchSpeedMPS: 30, CarryM: 40, BackspinRPM: 6000,
		HasClubPath: true, ClubPath: -2.5,
	})

	shot := a.finalize(schema.NewActorID("device", "0"), 2)

	if !shot.Estimated {
		t.Error("partial-flight-only shot must be marked estimated")
	}
	if shot.Ball.Sidespin != nil {
		t.Errorf("sidespin must be absent (nil), not zero, on the partial-only path; got %v", *shot.Ball.Sidespin)
	}
	if shot.Ball.TotalDistance != nil {
		t.Errorf("partial flight carries no total distance; got %v", shot.Ball.TotalDistance)
	}
	if shot.Club == nil || shot.Club.Path == nil || *shot.Club.Path != -2.5 {
		t.Fatalf("expected club path from partial flight's embedded field, got %+v", shot.Club)
	}
}

func TestAccumulator_DedicatedClubFragmentWinsOverEmbedded(t *testing.T) {
	var a accumulator
	a.reset()
	a.applyFullFlight(devicewire.FullFlightPayload{
		LaunchSpeedMPS: 60, HasClub: true, ClubSpeed: 45, Loft: 11,
	})
	a.applyClub(devicewire.ClubPayload{SpeedMPS: 50, Loft: 13.5, Path: 1.2})

	shot := a.finalize(schema.NewActorID("device", "0"), 3)

	if shot.Club == nil {
		t.Fatal("expected club data")
	}
	if shot.Club.Loft == nil || *shot.Club.Loft != 13.5 {
		t.Errorf("dedicated club fragment should win, loft = %v, want 13.5", shot.Club.Loft)
	}
	if shot.Club.Path == nil || *shot.Club.Path != 1.2 {
		t.Errorf("dedicated club fragment should carry path, got %v", shot.Club.Path)
	}
}

func TestAccumulator_ClubFragmentPrecedenceRegardlessOfOrder(t *testing.T) {
	var a accumulator
	a.reset()
	// Dedicated club fragment arrives before the flight fragment.
	a.applyClub(devicewire.ClubPayload{SpeedMPS: 50, Loft: 13.5})
	a.applyFullFlight(devicewire.FullFlightPayload{
		LaunchSpeedMPS: 60, HasClub: true, ClubSpeed: 45, Loft: 11,
	})

	shot := a.finalize(schema.NewActorID("device", "0"), 4)

	if shot.Club == nil || shot.Club.Loft == nil || *shot.Club.Loft != 13.5 {
		t.Errorf("dedicated club fragment should win regardless of arrival order, got %+v", shot.Club)
	}
}

func TestAccumulator_SpinFragmentBackfillsMissingPartialSpin(t *testing.T) {
	var a accumulator
	a.reset()
	a.applyPartialFlight(devicewire.PartialFlightPayload{LaunchSpeedMPS: 30, CarryM: 40, BackspinRPM: 6000})
	a.applySpin(devicewire.SpinPayload{BackspinRPM: 6200, SidespinRPM: 450, SpinAxis: 4.1, TotalSpin: 6216})

	shot := a.finalize(schema.NewActorID("device", "0"), 5)

	if shot.Spin == nil {
		t.Fatal("expected dedicated Spin data to be populated")
	}
	if shot.Spin.Sidespin == nil || *shot.Spin.Sidespin != 450 {
		t.Errorf("spin.sidespin = %v, want 450", shot.Spin.Sidespin)
	}
	// Backspin already present from the partial-flight fragment: the spin
	// fragment must not override it.
	if shot.Ball.Backspin == nil || *shot.Ball.Backspin != 6000 {
		t.Errorf("ball.backspin should keep the partial-flight value, got %v", shot.Ball.Backspin)
	}
	// Sidespin was absent on the partial path: the spin fragment back-fills it.
	if shot.Ball.Sidespin == nil || *shot.Ball.Sidespin != 450 {
		t.Errorf("ball.sidespin should be back-filled from the spin fragment, got %v", shot.Ball.Sidespin)
	}
}

func TestAccumulator_PreTriggerAutoStart(t *testing.T) {
	var a accumulator
	if a.active {
		t.Fatal("freshly zero-valued accumulator should not be active")
	}
	a.applyPartialFlight(devicewire.PartialFlightPayload{LaunchSpeedMPS: 10})
	if !a.active {
		t.Error("applying a fragment before any trigger marker must auto-activate the accumulator")
	}
	if !a.preTriggerAutoStart {
		t.Error("expected preTriggerAutoStart to be recorded")
	}
}

func TestAccumulator_ResetClearsStaleFragments(t *testing.T) {
	var a accumulator
	a.reset()
	a.applyFullFlight(devicewire.FullFlightPayload{LaunchSpeedMPS: 60, CarryM: 180})
	a.applyClub(devicewire.ClubPayload{SpeedMPS: 50})
	a.applySpin(devicewire.SpinPayload{BackspinRPM: 6000})

	a.reset()
	if a.full != nil || a.partial != nil || a.club != nil || a.spin != nil {
		t.Fatal("reset must clear all previously stored fragments")
	}
	if !a.active {
		t.Error("reset must mark the accumulator active")
	}

	a.applyPartialFlight(devicewire.PartialFlightPayload{LaunchSpeedMPS: 25, CarryM: 20})
	shot := a.finalize(schema.NewActorID("device", "0"), 6)

	if shot.Club != nil {
		t.Errorf("expected no stale club data to survive reset, got %+v", shot.Club)
	}
	if shot.Spin != nil {
		t.Errorf("expected no stale spin data to survive reset, got %+v", shot.Spin)
	}
	if shot.Ball.CarryDistance == nil || shot.Ball.CarryDistance.Value != 20 {
		t.Errorf("expected fresh carry distance after reset, got %v", shot.Ball.CarryDistance)
	}
}
