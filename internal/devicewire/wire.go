// Package devicewire implements the framed binary wire protocol of the
// launch-monitor device, a pluggable boundary behind the Client interface.
// Frames are [type byte][uint16 big-endian length][payload].
// Canonical type ids: 0xD4 full flight, 0xE8 partial flight, 0xED club,
// 0xEF spin, 0xE5 shot-text marker (trigger/processed). Unrecognized types
// are consumed transparently and logged to an audit channel rather than
// treated as a protocol violation.
package devicewire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	TypeFullFlight    byte = 0xD4
	TypePartialFlight byte = 0xE8
	TypeClub          byte = 0xED
	TypeSpin          byte = 0xEF
	TypeShotText      byte = 0xE5
)

// ShotTextSubtype discriminates the two 0xE5 marker payloads.
type ShotTextSubtype byte

const (
	ShotTextTrigger   ShotTextSubtype = 0x01
	ShotTextProcessed ShotTextSubtype = 0x02
)

// Frame is one decoded wire message: a type tag and its raw payload. The
// accumulator (internal/device) interprets the payload according to Type.
type Frame struct {
	Type    byte
	Payload []byte
}

// ReadFrame reads one length-prefixed frame from r. Returns io.EOF (or a
// wrapped io.ErrUnexpectedEOF) when the connection closes mid-frame.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	typ := header[0]
	length := binary.BigEndian.Uint16(header[1:3])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload (type %#x, len %d): %w", typ, length, err)
		}
	}
	return Frame{Type: typ, Payload: payload}, nil
}

// WriteFrame writes a length-prefixed frame to w.
func WriteFrame(w io.Writer, typ byte, payload []byte) error {
	header := make([]byte, 3)
	header[0] = typ
	binary.BigEndian.PutUint16(header[1:3], uint16(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// rawFullFlight mirrors the device's little-endian export layout for a
// 0xD4 frame. HasClub is a byte (0/1) rather than bool so binary.Read can
// decode it directly.
type rawFullFlight struct {
	LaunchSpeedMPS  float64
	LaunchElevation float64
	LaunchAzimuth   float64
	CarryM          float64
	TotalM          float64
	HeightM         float64
	FlightTimeS     float64
	RollM           float64
	BackspinRPM     float64
	SidespinRPM     float64
	HasClub         uint8
	_               [7]byte // pad to 8-byte alignment, matches device export
	ClubSpeedMPS    float64
	AttackAngle     float64
	FaceAngle       float64
	Loft            float64
	SmashFactor     float64
}

// FullFlightPayload is the decoded 0xD4 body: full ball-flight telemetry
// plus the club fields the device embeds alongside it.
type FullFlightPayload struct {
	LaunchSpeedMPS  float64
	LaunchElevation float64
	LaunchAzimuth   float64
	CarryM          float64
	TotalM          float64
	HeightM         float64
	FlightTimeS     float64
	RollM           float64
	BackspinRPM     float64
	SidespinRPM     float64

	HasClub     bool
	ClubSpeed   float64
	AttackAngle float64
	FaceAngle   float64
	Loft        float64
	SmashFactor float64
}

// DecodeFullFlight parses a 0xD4 payload.
func DecodeFullFlight(payload []byte) (FullFlightPayload, error) {
	var raw rawFullFlight
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &raw); err != nil {
		return FullFlightPayload{}, fmt.Errorf("decode full flight: %w", err)
	}
	return FullFlightPayload{
		LaunchSpeedMPS:  raw.LaunchSpeedMPS,
		LaunchElevation: raw.LaunchElevation,
		LaunchAzimuth:   raw.LaunchAzimuth,
		CarryM:          raw.CarryM,
		TotalM:          raw.TotalM,
		HeightM:         raw.HeightM,
		FlightTimeS:     raw.FlightTimeS,
		RollM:           raw.RollM,
		BackspinRPM:     raw.BackspinRPM,
		SidespinRPM:     raw.SidespinRPM,
		HasClub:         raw.HasClub != 0,
		ClubSpeed:       raw.ClubSpeedMPS,
		AttackAngle:     raw.AttackAngle,
		FaceAngle:       raw.FaceAngle,
		Loft:            raw.Loft,
		SmashFactor:     raw.SmashFactor,
	}, nil
}

// rawPartialFlight mirrors a 0xE8 frame: carry-only, no total/sidespin.
type rawPartialFlight struct {
	LaunchSpeedMPS  float64
	LaunchElevation float64
	LaunchAzimuth   float64
	CarryM          float64
	BackspinRPM     float64
	HasClubPath     uint8
	_               [7]byte
	ClubPath        float64
}

// PartialFlightPayload is the decoded 0xE8 body.
type PartialFlightPayload struct {
	LaunchSpeedMPS  float64
	LaunchElevation float64
	LaunchAzimuth   float64
	CarryM          float64
	BackspinRPM     float64

	HasClubPath bool
	ClubPath    float64
}

// DecodePartialFlight parses a 0xE8 payload.
func DecodePartialFlight(payload []byte) (PartialFlightPayload, error) {
	var raw rawPartialFlight
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &raw); err != nil {
		return PartialFlightPayload{}, fmt.Errorf("decode partial flight: %w", err)
	}
	return PartialFlightPayload{
		LaunchSpeedMPS:  raw.LaunchSpeedMPS,
		LaunchElevation: raw.LaunchElevation,
		LaunchAzimuth:   raw.LaunchAzimuth,
		CarryM:          raw.CarryM,
		BackspinRPM:     raw.BackspinRPM,
		HasClubPath:     raw.HasClubPath != 0,
		ClubPath:        raw.ClubPath,
	}, nil
}

// ClubPayload is the decoded 0xED body: a dedicated club-measurement
// fragment, preferred over any club fields embedded in a flight fragment.
type ClubPayload struct {
	SpeedMPS    float64
	AttackAngle float64
	FaceAngle   float64
	Loft        float64
	Path        float64
	SmashFactor float64
}

// DecodeClub parses a 0xED payload.
func DecodeClub(payload []byte) (ClubPayload, error) {
	var c ClubPayload
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &c); err != nil {
		return ClubPayload{}, fmt.Errorf("decode club: %w", err)
	}
	return c, nil
}

// SpinPayload is the decoded 0xEF body: a dedicated spin-axis fragment.
type SpinPayload struct {
	BackspinRPM float64
	SidespinRPM float64
	SpinAxis    float64
	TotalSpin   float64
}

// DecodeSpin parses a 0xEF payload.
func DecodeSpin(payload []byte) (SpinPayload, error) {
	var s SpinPayload
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &s); err != nil {
		return SpinPayload{}, fmt.Errorf("decode spin: %w", err)
	}
	return s, nil
}

// DecodeShotText parses a 0xE5 payload: a single subtype byte.
func DecodeShotText(payload []byte) (ShotTextSubtype, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("decode shot text: empty payload")
	}
	return ShotTextSubtype(payload[0]), nil
}

// rawDeviceStatus mirrors the 0x01 handshake response: DSP battery/power
// telemetry.
type rawDeviceStatus struct {
	BatteryPct    float64
	ExternalPower uint8
	_             [7]byte
}

// DeviceStatusPayload is the decoded 0x01 body.
type DeviceStatusPayload struct {
	BatteryPct    float64
	ExternalPower bool
}

// DecodeDeviceStatus parses a 0x01 payload.
func DecodeDeviceStatus(payload []byte) (DeviceStatusPayload, error) {
	var raw rawDeviceStatus
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &raw); err != nil {
		return DeviceStatusPayload{}, fmt.Errorf("decode device status: %w", err)
	}
	return DeviceStatusPayload{BatteryPct: raw.BatteryPct, ExternalPower: raw.ExternalPower != 0}, nil
}

// rawAnalogueStatus mirrors the 0x02 handshake response: radar orientation.
type rawAnalogueStatus struct {
	TiltDeg float64
	RollDeg float64
}

// AnalogueStatusPayload is the decoded 0x02 body.
type AnalogueStatusPayload struct {
	TiltDeg float64
	RollDeg float64
}

// DecodeAnalogueStatus parses a 0x02 payload. Roll is reported inverted from
// the device's display convention and negated here.
func DecodeAnalogueStatus(payload []byte) (AnalogueStatusPayload, error) {
	var raw rawAnalogueStatus
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &raw); err != nil {
		return AnalogueStatusPayload{}, fmt.Errorf("decode analogue status: %w", err)
	}
	return AnalogueStatusPayload{TiltDeg: raw.TiltDeg, RollDeg: -raw.RollDeg}, nil
}

// ProductInfoPayload is the decoded 0x03 body: device identification.
type ProductInfoPayload struct {
	ProductName  string
	SerialNumber string
	HasBallTray  bool
}

// DecodeProductInfo parses a 0x03 payload:
// [u16 name_len][name][u16 serial_len][serial][1 byte has_ball_tray].
func DecodeProductInfo(payload []byte) (ProductInfoPayload, error) {
	r := bytes.NewReader(payload)
	name, err := readLengthPrefixedString(r)
	if err != nil {
		return ProductInfoPayload{}, fmt.Errorf("decode product info name: %w", err)
	}
	serial, err := readLengthPrefixedString(r)
	if err != nil {
		return ProductInfoPayload{}, fmt.Errorf("decode product info serial: %w", err)
	}
	var hasBallTray uint8
	if err := binary.Read(r, binary.LittleEndian, &hasBallTray); err != nil {
		return ProductInfoPayload{}, fmt.Errorf("decode product info ball tray flag: %w", err)
	}
	return ProductInfoPayload{ProductName: name, SerialNumber: serial, HasBallTray: hasBallTray != 0}, nil
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// rawKeepaliveStatus mirrors the keepalive response: armed flag plus
// battery/power/temperature/orientation telemetry.
type rawKeepaliveStatus struct {
	Armed         uint8
	_             [7]byte
	BatteryPct    float64
	ExternalPower uint8
	_             [7]byte
	TempC         float64
	TiltDeg       float64
	RollDeg       float64
}

// KeepaliveStatusPayload is the decoded keepalive response body.
type KeepaliveStatusPayload struct {
	Armed         bool
	BatteryPct    float64
	ExternalPower bool
	TempC         float64
	TiltDeg       float64
	RollDeg       float64
}

// DecodeKeepaliveStatus parses a keepalive response payload. Roll is
// reported inverted from the device's display convention and negated here.
func DecodeKeepaliveStatus(payload []byte) (KeepaliveStatusPayload, error) {
	var raw rawKeepaliveStatus
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &raw); err != nil {
		return KeepaliveStatusPayload{}, fmt.Errorf("decode keepalive status: %w", err)
	}
	return KeepaliveStatusPayload{
		Armed:         raw.Armed != 0,
		BatteryPct:    raw.BatteryPct,
		ExternalPower: raw.ExternalPower != 0,
		TempC:         raw.TempC,
		TiltDeg:       raw.TiltDeg,
		RollDeg:       -raw.RollDeg,
	}, nil
}
