package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crewmate/internal/app"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send channel buffer
	sendBufferSize = 256

	// Time allowed for one client command against the stores
	commandTimeout = 10 * time.Second
)

// Client represents a WebSocket client connection
type Client struct {
	conn     *websocket.Conn
	hub      *app.Hub
	session  *app.Session
	playerID string
	send     chan []byte
	done     chan struct{}
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *app.Hub, playerID string, logger *slog.Logger) *Client {
	return &Client{
		conn:     conn,
		hub:      hub,
		playerID: playerID,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		logger:   logger.With("playerID", playerID),
	}
}

// GetPlayerID returns the player ID for this client
func (c *Client) GetPlayerID() string {
	return c.playerID
}

// Send implements app.ClientConnection interface
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, message dropped; the client's sync guard pulls the state
		c.logger.Warn("send buffer full, message dropped")
		return nil
	}
}

// Close implements app.ClientConnection interface
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Run greets the client and starts its read and write pumps for an opened
// session. It returns when the connection is gone.
func (c *Client) Run(session *app.Session) {
	c.session = session
	c.sendConnected()
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.CloseSession(c.session)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		if leave := c.handleMessage(message); leave {
			break
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued, such as a ROOM_CLOSED event, before
// the connection goes away. Errors are ignored; the peer may be gone.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// handleMessage processes an incoming message from the client. It reports
// whether the client left the room.
func (c *Client) handleMessage(data []byte) bool {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	engine := c.session.Engine()
	var err error

	switch msg.Type {
	case MsgConfirmRole:
		err = engine.ConfirmRole(ctx)
	case MsgCastVote:
		var p TargetPayload
		if !c.decode(msg.Payload, &p) {
			return false
		}
		err = engine.CastVote(ctx, p.TargetPlayerID)
	case MsgNightAction:
		var p TargetPayload
		if !c.decode(msg.Payload, &p) {
			return false
		}
		err = c.session.SubmitNightAction(ctx, p.TargetPlayerID)
	case MsgLeave:
		if err := c.session.Leave(ctx); err != nil {
			c.logger.Warn("leave failed", "error", err)
		}
		return true
	case MsgRefresh:
		err = c.session.Refresh(ctx)
	case MsgStartGame:
		err = c.hostCommand(ctx, engine.StartGame)
	case MsgStartVoting:
		err = c.hostCommand(ctx, engine.StartVoting)
	case MsgAdvance:
		err = c.hostCommand(ctx, engine.Advance)
	case MsgResetGame:
		err = c.hostCommand(ctx, engine.ResetGame)
	case MsgCloseRoom:
		err = c.hostCommand(ctx, engine.CloseRoom)
	case MsgUpdateSettings:
		var p SettingsPayload
		if !c.decode(msg.Payload, &p) {
			return false
		}
		err = c.hostCommand(ctx, func(ctx context.Context) error {
			return engine.UpdateSettings(ctx, p.Settings)
		})
	case MsgPing:
		c.sendPong()
	default:
		c.sendError(ErrCodeInvalidMessage, "Unknown message type")
	}

	if err != nil {
		c.logger.Debug("command failed", "type", msg.Type, "error", err)
		c.sendError(ErrorCode(err), err.Error())
	}
	return false
}

// hostCommand runs a host control. The engine ignores non-hosts silently;
// the client is told why nothing happened.
func (c *Client) hostCommand(ctx context.Context, fn func(context.Context) error) error {
	host, err := c.session.Engine().IsHost(ctx)
	if err != nil {
		return err
	}
	if !host {
		c.sendError(ErrCodeNotHost, "Only the host can do this")
		return nil
	}
	return fn(ctx)
}

func (c *Client) decode(raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 || json.Unmarshal(raw, v) != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid payload")
		return false
	}
	return true
}

// sendConnected sends the connected message to the client
func (c *Client) sendConnected() {
	payload := &ConnectedPayload{
		PlayerID: c.playerID,
		RoomCode: c.session.RoomCode(),
		IsHost:   c.session.IsHost(),
	}

	msg := NewServerMessage(MsgConnected, payload)
	c.Send(msg)
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	payload := &ErrorPayload{
		Code:    code,
		Message: message,
	}

	msg := NewServerMessage(MsgError, payload)
	c.Send(msg)
}

// sendPong sends a pong message in response to ping
func (c *Client) sendPong() {
	msg := NewServerMessage(MsgPong, nil)
	c.Send(msg)
}
