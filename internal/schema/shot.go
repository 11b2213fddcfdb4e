package schema

import "strings"

// Mode selects device configuration and simulator routing.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeChipping Mode = "chipping"
	ModePutting  Mode = "putting"
)

// Club is the canonical two-character club code.
type Club string

const (
	ClubDriver Club = "DR"
	Club3Wood  Club = "3W"
	Club5Wood  Club = "5W"
	Club7Wood  Club = "7W"
	Club3Hyb   Club = "3H"
	Club4Hyb   Club = "4H"
	Club5Hyb   Club = "5H"
	Club3Iron  Club = "3I"
	Club4Iron  Club = "4I"
	Club5Iron  Club = "5I"
	Club6Iron  Club = "6I"
	Club7Iron  Club = "7I"
	Club8Iron  Club = "8I"
	Club9Iron  Club = "9I"
	ClubPW     Club = "PW"
	ClubGW     Club = "GW"
	ClubSW     Club = "SW"
	ClubLW     Club = "LW"
	ClubPutter Club = "PT"
)

var validClubs = map[Club]struct{}{
	ClubDriver: {}, Club3Wood: {}, Club5Wood: {}, Club7Wood: {},
	Club3Hyb: {}, Club4Hyb: {}, Club5Hyb: {},
	Club3Iron: {}, Club4Iron: {}, Club5Iron: {}, Club6Iron: {}, Club7Iron: {}, Club8Iron: {}, Club9Iron: {},
	ClubPW: {}, ClubGW: {}, ClubSW: {}, ClubLW: {}, ClubPutter: {},
}

// ParseClub parses a club code case-insensitively. Unknown tokens return
// ("", false) rather than an error (there is no from_code(x) for any
// non-enumerated token).
func ParseClub(s string) (Club, bool) {
	c := Club(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validClubs[c]; !ok {
		return "", false
	}
	return c, true
}

// ModeFor derives the shot-detection mode implied by a club selection:
// putter -> Putting, gap/sand/lob wedge -> Chipping, everything else -> Full.
func ModeFor(c Club) Mode {
	switch c {
	case ClubPutter:
		return ModePutting
	case ClubGW, ClubSW, ClubLW:
		return ModeChipping
	default:
		return ModeFull
	}
}

// BallFlight carries the launch and (if available) flight data for a shot.
// launch_speed/elevation/azimuth are always present; the rest are optional
// and use pointer-to-value to distinguish "absent" from "zero": a missing
// sidespin reading must stay absent, never serialized as zero.
type BallFlight struct {
	LaunchSpeed     Velocity
	LaunchElevation float64 // degrees
	LaunchAzimuth   float64 // degrees

	CarryDistance *Distance
	TotalDistance *Distance
	Height        *Distance
	FlightTime    *float64 // seconds
	Roll          *Distance
	Backspin      *float64 // rpm
	Sidespin      *float64 // rpm, signed; absent means unknown, not zero
}

// ClubData carries club-head measurements, when the device provides them.
type ClubData struct {
	Speed        *Velocity
	AngleOfAttack *float64 // degrees
	FaceToTarget  *float64 // degrees
	Loft          *float64 // degrees
	Path          *float64 // degrees
	SmashFactor   *float64
}

// SpinData carries a dedicated spin-axis fragment when the device emits
// spin as a separate wire message (0xEF) rather than embedded in the
// flight fragment.
type SpinData struct {
	Backspin  *float64 // rpm
	Sidespin  *float64 // rpm
	SpinAxis  *float64 // degrees
	TotalSpin *float64 // rpm
}

// Shot is the bridge's internal, unit-tagged canonical shot record,
// independent of any wire format.
type Shot struct {
	Source     ActorID
	ShotNumber int
	Ball       BallFlight
	Club       *ClubData
	Spin       *SpinData
	// Estimated is true iff no authoritative full-flight fragment was
	// present when the shot was finalized (synthesized from a partial
	// device message).
	Estimated bool
}
