package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // 500 runes of UTF-8 plus the JSON envelope.
	eventQueueSize = 256                 // Must stay above HistoryLimit.
)

// Client is a middleman between one websocket connection and the hub. It
// hosts exactly one Session for its whole life.
type Client struct {
	ID      string
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	history Store
	limiter *rate.Limiter

	// events is written by the hub (and by join, before registration) and
	// closed by the hub on unregister.
	events chan Event
	// replies carries direct answers to this client's own frames.
	replies chan OutboundFrame

	ctx    context.Context
	cancel context.CancelFunc
}

// readPump pumps frames from the websocket connection into the session.
func (c *Client) readPump() {
	defer func() {
		// Teardown order matters: stop delivery, then forget the key.
		c.hub.Unregister(c)
		c.session.Leave()
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("client", c.ID).Warn("websocket read failed")
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(OutboundFrame{Type: "error", Reason: "bad_frame"})
			continue
		}
		if !c.handle(frame) {
			return
		}
	}
}

// handle runs one inbound frame. It returns false when the connection
// should close.
func (c *Client) handle(frame InboundFrame) bool {
	switch frame.Type {
	case "join":
		c.join(frame.Key)

	case "send":
		if c.limiter != nil && !c.limiter.Allow() {
			messagesRejected.WithLabelValues(rejectionReason(ErrRateLimited)).Inc()
			c.reject(ErrRateLimited)
			return true
		}
		msg, err := c.session.Send(c.ctx, frame.Content)
		if err != nil {
			c.reject(err)
			return true
		}
		c.reply(OutboundFrame{Type: "sent", ID: msg.ID})

	case "delete":
		if err := c.session.Delete(c.ctx, frame.ID); err != nil {
			c.reject(err)
			return true
		}
		c.reply(OutboundFrame{Type: "deleted", ID: frame.ID})

	case "rename":
		name, err := c.session.Regenerate()
		if err != nil {
			c.reject(err)
			return true
		}
		c.reply(OutboundFrame{Type: "renamed", DisplayName: name})

	case "leave":
		return false

	default:
		c.reply(OutboundFrame{Type: "error", Reason: "unknown_frame"})
	}
	return true
}

// join derives the key, queues the recent history and only then registers
// with the hub, so history always precedes live traffic.
func (c *Client) join(passphrase string) {
	if err := c.session.Join(passphrase); err != nil {
		c.reject(err)
		return
	}
	c.reply(OutboundFrame{Type: "joined", DisplayName: c.session.DisplayName()})

	history, err := c.history.Recent(c.ctx, c.hub.now(), HistoryLimit)
	if err != nil {
		logrus.WithError(err).WithField("client", c.ID).Warn("history load failed")
	}
	for _, m := range history {
		c.events <- Event{Kind: EventInsert, Message: m}
	}

	if !c.hub.Register(c) {
		c.cancel()
	}
}

// writePump pumps events and replies to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the queue.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			frames := c.render(nil, ev)
			// Batch whatever else is already queued into the same write.
			for n := len(c.events); n > 0; n-- {
				next, ok := <-c.events
				if !ok {
					break
				}
				frames = c.render(frames, next)
			}
			if len(frames) == 0 {
				continue
			}
			if err := c.write(frames...); err != nil {
				return
			}

		case frame := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.write(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// render appends the frame for ev, if this session may see it.
func (c *Client) render(frames []OutboundFrame, ev Event) []OutboundFrame {
	switch ev.Kind {
	case EventInsert:
		if d, ok := c.session.Receive(ev.Message); ok {
			frames = append(frames, messageFrame(d))
		}
	case EventDelete:
		frames = append(frames, OutboundFrame{Type: "retract", ID: ev.ID})
	}
	return frames
}

// write sends frames as newline-delimited JSON in a single websocket
// message.
func (c *Client) write(frames ...OutboundFrame) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func (c *Client) reply(frame OutboundFrame) {
	select {
	case c.replies <- frame:
	case <-c.ctx.Done():
	}
}

func (c *Client) reject(err error) {
	reason := rejectionReason(err)
	if reason == "internal" {
		logrus.WithError(err).WithField("client", c.ID).Error("chat operation failed")
	}
	c.reply(OutboundFrame{Type: "rejected", Reason: reason})
}
