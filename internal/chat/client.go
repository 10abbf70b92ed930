package chat

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 8192
)

var validate = validator.New()

// Client is the middleman between one websocket connection and its session.
type Client struct {
	Session *Session
	Conn    *websocket.Conn
	// Send carries error frames; snapshots come straight from the session.
	Send chan []byte
	Log  *slog.Logger
}

// ReadPump decodes inbound frames and turns them into session commands.
// It returns when the connection drops.
func (c *Client) ReadPump() {
	defer c.Conn.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Log.Warn("websocket read failed", "error", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.fail("malformed frame")
			continue
		}
		if err := validate.Struct(in); err != nil {
			c.fail("invalid " + in.Type + " frame")
			continue
		}
		c.dispatch(in)
	}
}

func (c *Client) dispatch(in Inbound) {
	switch in.Type {
	case FrameSend:
		c.Session.Send(in.Text)
	case FrameLanguage:
		if err := c.Session.SetLanguage(in.Language); err != nil {
			c.fail(err.Error())
		}
	case FrameAPIKey:
		c.Session.SetAPIKey(in.APIKey)
	case FrameCustomLanguage:
		if !c.Session.AddLanguage(in.Name, in.Code) {
			c.fail("language code already exists")
		}
	}
}

func (c *Client) fail(msg string) {
	frame, _ := json.Marshal(Outbound{Type: FrameError, Error: msg})
	select {
	case c.Send <- frame:
	default:
		c.Log.Debug("dropping error frame", "error", msg)
	}
}

// WritePump pushes snapshots and error frames to the connection until the
// session ends or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	updates := c.Session.Updates()
	for {
		select {
		case snap := <-updates:
			frame, err := json.Marshal(Outbound{Type: FrameSnapshot, Snapshot: &snap})
			if err != nil {
				c.Log.Error("encoding snapshot", "error", err)
				continue
			}
			if !c.write(frame) {
				return
			}

		case frame := <-c.Send:
			if !c.write(frame) {
				return
			}

		case <-c.Session.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(frame []byte) bool {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.Log.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}
