package device

import (
	"github.com/divotmaker/flighthook/internal/devicewire"
	"github.com/divotmaker/flighthook/internal/schema"
)

// accumulator assembles the device's out-of-order wire fragments into one
// canonical Shot. A device may emit full/partial flight,
// club, and spin fragments in any order around a trigger/processed marker
// pair; the accumulator tracks only the latest fragment of each kind seen
// since the last reset.
type accumulator struct {
	full    *devicewire.FullFlightPayload
	partial *devicewire.PartialFlightPayload
	club    *devicewire.ClubPayload
	spin    *devicewire.SpinPayload
	active  bool

	preTriggerAutoStart bool
}

// reset clears the accumulator and marks it active, invoked by a trigger
// marker.
func (a *accumulator) reset() {
	*a = accumulator{active: true}
}

// autoActivate marks the accumulator active without clearing any fragment
// already stored, used when a fragment arrives before its trigger marker
// ("pre-trigger auto-start").
func (a *accumulator) autoActivate() {
	if !a.active {
		a.active = true
		a.preTriggerAutoStart = true
	}
}

func (a *accumulator) applyFullFlight(f devicewire.FullFlightPayload) {
	a.autoActivate()
	a.full = &f
}

func (a *accumulator) applyPartialFlight(f devicewire.PartialFlightPayload) {
	a.autoActivate()
	a.partial = &f
}

func (a *accumulator) applyClub(c devicewire.ClubPayload) {
	a.autoActivate()
	a.club = &c
}

func (a *accumulator) applySpin(s devicewire.SpinPayload) {
	a.autoActivate()
	a.spin = &s
}

// finalize builds the canonical Shot from whatever fragments are present.
// Full flight is preferred over partial for ball data; the dedicated club
// fragment is preferred over club fields embedded in the flight fragment;
// estimated is true iff no full-flight fragment was present.
func (a *accumulator) finalize(source schema.ActorID, shotNumber int) schema.Shot {
	shot := schema.Shot{Source: source, ShotNumber: shotNumber}

	switch {
	case a.full != nil:
		f := a.full
		shot.Ball = schema.BallFlight{
			LaunchSpeed:     schema.Velocity{Unit: schema.MetersPerSecond, Value: f.LaunchSpeedMPS},
			LaunchElevation: f.LaunchElevation,
			LaunchAzimuth:   f.LaunchAzimuth,
			CarryDistance:   meters(f.CarryM),
			TotalDistance:   meters(f.TotalM),
			Height:          meters(f.HeightM),
			FlightTime:      ptrF(f.FlightTimeS),
			Roll:            meters(f.RollM),
			Backspin:        ptrF(f.BackspinRPM),
			Sidespin:        ptrF(f.SidespinRPM),
		}
		if f.HasClub && a.club == nil {
			shot.Club = &schema.ClubData{
				Speed:         velocityPtr(f.ClubSpeed),
				AngleOfAttack: ptrF(f.AttackAngle),
				FaceToTarget:  ptrF(f.FaceAngle),
				Loft:          ptrF(f.Loft),
				SmashFactor:   ptrF(f.SmashFactor),
			}
		}
	case a.partial != nil:
		p := a.partial
		shot.Ball = schema.BallFlight{
			LaunchSpeed:     schema.Velocity{Unit: schema.MetersPerSecond, Value: p.LaunchSpeedMPS},
			LaunchElevation: p.LaunchElevation,
			LaunchAzimuth:   p.LaunchAzimuth,
			CarryDistance:   meters(p.CarryM),
			Backspin:        ptrF(p.BackspinRPM),
			// Sidespin intentionally left nil: the partial-flight path never
			// carries sidespin, and absent is the mandated representation
			//, not a serialized zero.
		}
		if p.HasClubPath && a.club == nil {
			shot.Club = &schema.ClubData{Path: ptrF(p.ClubPath)}
		}
		shot.Estimated = true
	}

	if a.club != nil {
		c := a.club
		shot.Club = &schema.ClubData{
			Speed:         velocityPtr(c.SpeedMPS),
			AngleOfAttack: ptrF(c.AttackAngle),
			FaceToTarget:  ptrF(c.FaceAngle),
			Loft:          ptrF(c.Loft),
			Path:          ptrF(c.Path),
			SmashFactor:   ptrF(c.SmashFactor),
		}
	}

	if a.spin != nil {
		s := a.spin
		shot.Spin = &schema.SpinData{
			Backspin:  ptrF(s.BackspinRPM),
			Sidespin:  ptrF(s.SidespinRPM),
			SpinAxis:  ptrF(s.SpinAxis),
			TotalSpin: ptrF(s.TotalSpin),
		}
		if shot.Ball.Backspin == nil {
			shot.Ball.Backspin = ptrF(s.BackspinRPM)
		}
		if shot.Ball.Sidespin == nil {
			shot.Ball.Sidespin = ptrF(s.SidespinRPM)
		}
	}

	return shot
}

func meters(v float64) *schema.Distance {
	d := schema.Distance{Unit: schema.Meters, Value: v}
	return &d
}

func velocityPtr(v float64) *schema.Velocity {
	vel := schema.Velocity{Unit: schema.MetersPerSecond, Value: v}
	return &vel
}

func ptrF(v float64) *float64 {
	return &v
}
