package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CommandHandler processes raw inbound frames from a reading participant.
type CommandHandler interface {
	Handle(ctx context.Context, readingID uuid.UUID, sender string, raw []byte) ([]byte, error)
}

const (
	// Inbound frames are small JSON commands; chat text fits comfortably, so
	// anything larger is a misbehaving client.
	maxFrameBytes = 16 * 1024
	pongWait      = 60 * time.Second
	sendQueueSize = 16
)

// frame is one queued outbound message. kind is a gorilla message type; a
// close frame terminates the write pump after delivery.
type frame struct {
	kind    int
	payload []byte
}

// Connection represents one participant attached to a reading over WebSocket.
// All writes to the socket go through the out queue so the write pump is the
// only writer.
type Connection struct {
	readingID    uuid.UUID
	sender       string
	ws           *websocket.Conn
	out          chan frame
	logger       *zap.Logger
	handler      CommandHandler
	writeTimeout time.Duration
	onClose      func(*Connection)
}

// NewConnection builds connection wrapper.
func NewConnection(readingID uuid.UUID, sender string, ws *websocket.Conn, handler CommandHandler, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		readingID:    readingID,
		sender:       sender,
		ws:           ws,
		out:          make(chan frame, sendQueueSize),
		logger:       logger,
		handler:      handler,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// ReadingID returns the reading this connection is attached to.
func (c *Connection) ReadingID() uuid.UUID {
	return c.readingID
}

// Start launches read/write pumps.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(maxFrameBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.String("reading_id", c.readingID.String()), zap.Error(err))
			return
		}

		response, err := c.handler.Handle(ctx, c.readingID, c.sender, message)
		if err != nil {
			c.logger.Warn("failed to process command", zap.String("reading_id", c.readingID.String()), zap.Error(err))
			continue
		}
		if response != nil {
			c.Send(response)
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-c.out:
			if !ok {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.write(f.kind, f.payload); err != nil {
				return
			}
			if f.kind == websocket.CloseMessage {
				// The peer answers with its own close frame; the read pump
				// finishes the teardown.
				return
			}
		}
	}
}

// Send enqueues a text message for writing.
func (c *Connection) Send(msg []byte) {
	c.enqueue(frame{kind: websocket.TextMessage, payload: msg})
}

// CloseWithReason delivers a close frame to the participant and stops the
// write pump. Used when the reading itself is over rather than the transport.
func (c *Connection) CloseWithReason(code int, reason string) {
	c.enqueue(frame{kind: websocket.CloseMessage, payload: websocket.FormatCloseMessage(code, reason)})
}

// Ping enqueues a keepalive.
func (c *Connection) Ping() {
	c.enqueue(frame{kind: websocket.PingMessage, payload: []byte("ping")})
}

func (c *Connection) enqueue(f frame) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("attempted to send on closed connection", zap.String("reading_id", c.readingID.String()))
		}
	}()
	select {
	case c.out <- f:
	default:
		c.logger.Warn("dropping outgoing frame, buffer full", zap.String("reading_id", c.readingID.String()))
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	close(c.out)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}
