package devicewire

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// HandshakeInfo is the product/session information returned by a successful
// handshake (device status, analogue/radar status, product info requests).
type HandshakeInfo struct {
	ProductName   string
	SerialNumber  string
	HasBallTray   bool
	BatteryPct    float64
	ExternalPower bool
	TiltDeg       float64
	RollDeg       float64
}

// DeviceStatus is the periodic telemetry snapshot returned by Keepalive.
type DeviceStatus struct {
	BatteryPct     float64
	TiltDeg        float64
	RollDeg        float64
	TempC          float64
	ExternalPower  bool
	Armed          bool
}

// SessionConfig is the configuration sent to the device on entry into the
// Armed state: mode, ball type, tee height, tracking
// percent, and radar placement.
type SessionConfig struct {
	Mode         string
	BallType     string
	TeeHeightM   float64
	TrackingPct  float64
	RadarRangeM  float64
	RadarHeightM float64
}

// Client is the injected abstraction the device actor drives; it hides the
// concrete wire transport so the actor's state machine and shot accumulator
// can be exercised without a real socket.
type Client interface {
	Connect(timeout time.Duration) error
	Handshake(timeout time.Duration) (HandshakeInfo, error)
	Configure(cfg SessionConfig) error
	Arm() error
	ReadFrame(timeout time.Duration) (Frame, error)
	Keepalive() (DeviceStatus, error)
	CompleteShot() error
	Shutdown() error
}

// TCPClient is the concrete Client implementation: a single TCP connection
// carrying the length-prefixed frame protocol decoded by this package.
type TCPClient struct {
	addr string
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPClient returns a Client that dials addr on Connect.
func NewTCPClient(addr string) *TCPClient {
	return &TCPClient{addr: addr}
}

func (c *TCPClient) Connect(timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", c.addr, timeout)
	if err != nil {
		return fmt.Errorf("dial device %s: %w", c.addr, err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

const (
	cmdDeviceStatus byte = 0x01
	cmdAnalogue     byte = 0x02
	cmdProductInfo  byte = 0x03
	cmdConfigure    byte = 0x10
	cmdArm          byte = 0x11
	cmdKeepalive    byte = 0x12
	cmdCompleteShot byte = 0x13
)

// Handshake runs the fixed request sequence (device status, analogue/radar
// status, product info) and must complete within timeout. The device and
// analogue responses seed the handshake's battery/power/orientation
// telemetry; temperature is only available from Keepalive.
func (c *TCPClient) Handshake(timeout time.Duration) (HandshakeInfo, error) {
	c.conn.SetDeadline(time.Now().Add(timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := WriteFrame(c.conn, cmdDeviceStatus, nil); err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake request %#x: %w", cmdDeviceStatus, err)
	}
	statusFrame, err := ReadFrame(c.r)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake response %#x: %w", cmdDeviceStatus, err)
	}
	status, err := DecodeDeviceStatus(statusFrame.Payload)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake device status: %w", err)
	}

	if err := WriteFrame(c.conn, cmdAnalogue, nil); err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake request %#x: %w", cmdAnalogue, err)
	}
	analogueFrame, err := ReadFrame(c.r)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake response %#x: %w", cmdAnalogue, err)
	}
	analogue, err := DecodeAnalogueStatus(analogueFrame.Payload)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake analogue status: %w", err)
	}

	if err := WriteFrame(c.conn, cmdProductInfo, nil); err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake request %#x: %w", cmdProductInfo, err)
	}
	productFrame, err := ReadFrame(c.r)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake response %#x: %w", cmdProductInfo, err)
	}
	product, err := DecodeProductInfo(productFrame.Payload)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("handshake product info: %w", err)
	}

	return HandshakeInfo{
		ProductName:   product.ProductName,
		SerialNumber:  product.SerialNumber,
		HasBallTray:   product.HasBallTray,
		BatteryPct:    status.BatteryPct,
		ExternalPower: status.ExternalPower,
		TiltDeg:       analogue.TiltDeg,
		RollDeg:       analogue.RollDeg,
	}, nil
}

// Configure sends mode, ball type, tee height, tracking percent, and radar
// placement ahead of Arm.
func (c *TCPClient) Configure(cfg SessionConfig) error {
	payload := []byte(fmt.Sprintf("%s|%s|%.4f|%.2f|%.2f|%.2f",
		cfg.Mode, cfg.BallType, cfg.TeeHeightM, cfg.TrackingPct, cfg.RadarRangeM, cfg.RadarHeightM))
	return WriteFrame(c.conn, cmdConfigure, payload)
}

// Arm sends the arm command.
func (c *TCPClient) Arm() error {
	return WriteFrame(c.conn, cmdArm, nil)
}

// ReadFrame performs a bounded-timeout receive of the next wire frame.
func (c *TCPClient) ReadFrame(timeout time.Duration) (Frame, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	return ReadFrame(c.r)
}

// Keepalive sends a keepalive request and parses the device status reply:
// armed flag plus battery/power/temperature/orientation telemetry.
func (c *TCPClient) Keepalive() (DeviceStatus, error) {
	if err := WriteFrame(c.conn, cmdKeepalive, nil); err != nil {
		return DeviceStatus{}, fmt.Errorf("send keepalive: %w", err)
	}
	frame, err := c.ReadFrame(2 * time.Second)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("keepalive response: %w", err)
	}
	status, err := DecodeKeepaliveStatus(frame.Payload)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("decode keepalive status: %w", err)
	}
	return DeviceStatus{
		BatteryPct:    status.BatteryPct,
		TiltDeg:       status.TiltDeg,
		RollDeg:       status.RollDeg,
		TempC:         status.TempC,
		ExternalPower: status.ExternalPower,
		Armed:         status.Armed,
	}, nil
}

// CompleteShot acknowledges a finalized shot to the device.
func (c *TCPClient) CompleteShot() error {
	return WriteFrame(c.conn, cmdCompleteShot, nil)
}

// Shutdown closes the underlying connection.
func (c *TCPClient) Shutdown() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
