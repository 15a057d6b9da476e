package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mediconsult/pkg/models"
)

const (
	// sendBuffer bounds the per-connection outbound queue. A client that
	// cannot drain this many events is considered too slow.
	sendBuffer = 64

	writeWait = 10 * time.Second
)

// ErrSendBufferFull is returned when a client's outbound queue overflows.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn wraps one websocket connection. All writes go through a buffered
// channel drained by a single write pump, so Send is safe from any
// goroutine and never blocks a broadcast.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan models.Envelope
	once   sync.Once
	done   chan struct{}
	logger zerolog.Logger
}

func newConn(id, userID string, ws *websocket.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan models.Envelope, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user this connection belongs to.
func (c *Conn) UserID() string { return c.userID }

// Send queues an event for delivery. It drops the event and reports an
// error when the client is too slow or already gone.
func (c *Conn) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envelope := models.Envelope{Event: event, Data: data}

	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.send <- envelope:
		return nil
	default:
		c.logger.Warn().Str("event", event).Msg("dropping event, send buffer full")
		return ErrSendBufferFull
	}
}

// writePump is the single writer to the underlying socket.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case envelope := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(envelope); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing connection")
				c.close()
				return
			}
		}
	}
}

// close shuts the connection down exactly once.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}
