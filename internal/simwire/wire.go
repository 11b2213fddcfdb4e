// Package simwire defines the JSON-over-TCP wire shapes of the simulator's
// Open Connect-family protocol, a pluggable boundary behind the Conn
// interface. The bridge writes concatenated OutboundShot objects and reads
// concatenated InboundResponse objects from the same stream.
package simwire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// BallData is the outbound ball-flight block, always in mph/yards per the
// simulator's wire convention.
type BallData struct {
	Speed          float64  `json:"Speed"`
	SpinAxis       float64  `json:"SpinAxis"`
	TotalSpin      float64  `json:"TotalSpin"`
	BackSpin       float64  `json:"BackSpin"`
	SideSpin       float64  `json:"SideSpin"`
	HLA            float64  `json:"HLA"`
	VLA            float64  `json:"VLA"`
	CarryDistance  *float64 `json:"CarryDistance,omitempty"`
}

// ClubData is the outbound club-measurement block.
type ClubData struct {
	Speed         float64 `json:"Speed"`
	AngleOfAttack float64 `json:"AngleOfAttack"`
	FaceToTarget  float64 `json:"FaceToTarget"`
	Loft          float64 `json:"Loft"`
	Path          float64 `json:"Path"`
}

// ShotDataOptions flags which blocks are populated and the current
// readiness, carried on every outbound message including heartbeats.
type ShotDataOptions struct {
	ContainsBallData          bool `json:"ContainsBallData"`
	ContainsClubData          bool `json:"ContainsClubData"`
	LaunchMonitorIsReady      bool `json:"LaunchMonitorIsReady"`
	LaunchMonitorBallDetected bool `json:"LaunchMonitorBallDetected"`
	IsHeartBeat               bool `json:"IsHeartBeat"`
}

// OutboundShot is the fixed top-level shape written to the simulator.
type OutboundShot struct {
	DeviceID        string          `json:"DeviceID"`
	Units           string          `json:"Units"`
	ShotNumber      int             `json:"ShotNumber"`
	APIVersion      string          `json:"APIversion"`
	BallData        BallData        `json:"BallData"`
	ClubData        ClubData        `json:"ClubData"`
	ShotDataOptions ShotDataOptions `json:"ShotDataOptions"`
}

// Heartbeat builds a zero-data outbound message with IsHeartBeat=true,
// carrying only the current readiness.
func Heartbeat(deviceID string, ready, ballDetected bool) OutboundShot {
	return OutboundShot{
		DeviceID:   deviceID,
		Units:      "Yards",
		APIVersion: "1",
		ShotDataOptions: ShotDataOptions{
			LaunchMonitorIsReady:      ready,
			LaunchMonitorBallDetected: ballDetected,
			IsHeartBeat:               true,
		},
	}
}

// PlayerUpdate is the optional player block of an InboundResponse.
type PlayerUpdate struct {
	Handed *string `json:"Handed,omitempty"`
	Club   *string `json:"Club,omitempty"`
}

// InboundResponse is a response object read back from the simulator.
type InboundResponse struct {
	Code    int           `json:"Code"`
	Message string        `json:"Message"`
	Player  *PlayerUpdate `json:"Player,omitempty"`
}

// Encode marshals v for writing to the wire. The simulator protocol is a
// stream of concatenated (not delimited) JSON objects; json.Marshal output
// never itself requires a delimiter since object boundaries are
// self-describing to the decoder on the far end.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode simulator message: %w", err)
	}
	return data, nil
}

// Decoder reads a stream of concatenated JSON objects non-blockingly,
// buffering partial reads across calls so a read that lands mid-object
// is picked back up on the next call rather than discarded.
type Decoder struct {
	r   io.Reader
	dec *json.Decoder
}

// NewDecoder wraps r for repeated, non-blocking-friendly decode attempts.
// Callers pair this with a read-deadline on the underlying connection.
func NewDecoder(r *bufio.Reader) *Decoder {
	return &Decoder{r: r, dec: json.NewDecoder(r)}
}

// Next decodes the next concatenated InboundResponse object, or returns an
// error (including io.EOF or a deadline-exceeded net.Error) if none is
// available yet.
func (d *Decoder) Next() (InboundResponse, error) {
	var resp InboundResponse
	if err := d.dec.Decode(&resp); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			// json.Decoder keeps returning its first error, so continue with a
			// fresh one over the bytes already buffered plus the rest of r.
			d.dec = json.NewDecoder(io.MultiReader(d.dec.Buffered(), d.r))
		}
		return InboundResponse{}, err
	}
	return resp, nil
}
