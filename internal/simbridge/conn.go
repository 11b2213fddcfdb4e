package simbridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/divotmaker/flighthook/internal/simwire"
)

// Conn is the injected transport abstraction a bridge drives, mirroring
// device.ClientFactory's role: it hides the concrete socket so the routing
// and heartbeat logic can be exercised without a real simulator listening.
type Conn interface {
	Dial(addr string, timeout time.Duration) error
	Write(shot simwire.OutboundShot) error
	ReadResponse(timeout time.Duration) (simwire.InboundResponse, error)
	Close() error
}

// TCPConn is the concrete Conn implementation over a real TCP socket.
type TCPConn struct {
	conn net.Conn
	dec  *simwire.Decoder
}

// NewTCPConn returns an unconnected TCPConn.
func NewTCPConn() *TCPConn { return &TCPConn{} }

func (c *TCPConn) Dial(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial simulator %s: %w", addr, err)
	}
	c.conn = conn
	c.dec = simwire.NewDecoder(bufio.NewReader(conn))
	return nil
}

func (c *TCPConn) Write(shot simwire.OutboundShot) error {
	data, err := simwire.Encode(shot)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write simulator message: %w", err)
	}
	return nil
}

// ReadResponse applies a read deadline (reference 50ms non-blocking poll)
// and attempts to decode one concatenated JSON response.
func (c *TCPConn) ReadResponse(timeout time.Duration) (simwire.InboundResponse, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	resp, err := c.dec.Next()
	if errors.Is(err, io.EOF) {
		return resp, errGracefulClose
	}
	return resp, err
}

func (c *TCPConn) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
