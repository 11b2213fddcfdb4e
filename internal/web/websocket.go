package web

import (
	"encoding/hex"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsClientBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Dashboard clients are same-origin by construction; cross-origin
	// browser tools connecting directly are the intended use case too, so
	// no origin check is enforced here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one connected dashboard/tool session.
type wsClient struct {
	sourceID schema.ActorID
	conn     *websocket.Conn
	send     chan bus.Message
}

// wsHub fans bus messages out to every connected WebSocket client,
// dropping on a client whose send buffer is full rather than blocking the
// poll loop, the same lossy-subscriber discipline as the bus itself.
type wsHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *wsHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *wsHub) broadcast(msg bus.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

type wsStartMessage struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type wsInitMessage struct {
	Type        string             `json:"type"`
	SourceID    schema.ActorID     `json:"source_id"`
	GlobalState schema.GameSnapshot `json:"global_state"`
}

type wsClientCommand struct {
	Cmd  string      `json:"cmd"`
	Mode schema.Mode `json:"mode,omitempty"`
}

// handleWebSocket implements the two-phase handshake: the
// client sends {"type":"start"}, the server replies with a source id and a
// snapshot of the current game state, then streams every subsequent bus
// message as JSON until the client disconnects.
func (a *Actor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var start wsStartMessage
	if err := conn.ReadJSON(&start); err != nil {
		conn.Close()
		return
	}

	sourceID := schema.ActorID("ws." + randomHex(6))
	client := &wsClient{sourceID: sourceID, conn: conn, send: make(chan bus.Message, wsClientBuffer)}

	init := wsInitMessage{Type: "init", SourceID: sourceID}
	if a.shared != nil {
		init.GlobalState = a.shared.Game.Snapshot()
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return
	}

	a.hub.register(client)
	go a.wsWritePump(client)
	a.wsReadPump(client)
}

// wsReadPump consumes client commands until the connection closes, then
// unregisters the client and tears down its write pump.
func (a *Actor) wsReadPump(c *wsClient) {
	defer func() {
		a.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var cmd wsClientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("websocket read error", "source", c.sourceID, "error", err)
			}
			return
		}
		if cmd.Cmd == "mode" && cmd.Mode != "" {
			a.sender.Send(schema.Event{Kind: schema.KindSetMode, SetMode: &cmd.Mode})
		}
	}
}

// wsWritePump streams broadcast messages and periodic pings to the client.
func (a *Actor) wsWritePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func randomHex(n int) string {
	buf := make([]byte, n)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
