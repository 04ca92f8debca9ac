package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/auth"
	"github.com/karthikraju391/go-nats-chat-sync/models"
	"github.com/karthikraju391/go-nats-chat-sync/session"
)

const identityKey = "identity"

type SocketSettings struct {
	MaxMessageSize int64
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
}

// Gateway serves browser sockets. Every socket gets its own session
// controller and therefore its own backbone connection.
type Gateway struct {
	dialer    session.Dialer
	snapshots session.SnapshotProvider
	auth      *auth.Authenticator
	settings  *session.Settings
	socket    SocketSettings
	log       *zap.Logger
}

func NewGateway(
	dialer session.Dialer,
	snapshots session.SnapshotProvider,
	authenticator *auth.Authenticator,
	settings *session.Settings,
	socket SocketSettings,
	log *zap.Logger,
) *Gateway {
	return &Gateway{
		dialer:    dialer,
		snapshots: snapshots,
		auth:      authenticator,
		settings:  settings,
		socket:    socket,
		log:       log,
	}
}

// Upgrade only lets websocket upgrades through and resolves the caller's
// identity before the connection is upgraded.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token = c.Get(fiber.HeaderAuthorization)
	}
	id, err := g.auth.Identify(token)
	if err != nil {
		g.log.Info("Rejected websocket upgrade", zap.String("ip", c.IP()), zap.Error(err))
		return fiber.ErrUnauthorized
	}
	c.Locals(identityKey, id)
	return c.Next()
}

// HandleWebSocket manages the lifecycle of one browser socket.
func (g *Gateway) HandleWebSocket(conn *websocket.Conn) {
	id, ok := conn.Locals(identityKey).(models.Identity)
	if !ok {
		g.log.Error("Websocket without identity")
		_ = conn.Close()
		return
	}
	log := g.log.With(zap.String("user", id.UserID))

	ctrl := session.NewController(g.dialer, g.snapshots, session.StaticIdentity(id), g.settings, log)
	client := NewClient(conn, ctrl, id, g.socket, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		log.Info("Cleaning up client")
		cancel()
		ctrl.Close()
		_ = conn.Close()
	}()

	if err := ctrl.OnChange(func(session.View) { client.markChanged() }); err != nil {
		log.Error("Failed to observe session", zap.Error(err))
		return
	}
	client.markChanged()
	log.Info("Client connected")

	if convID := conn.Params("conversationID"); convID != "" {
		client.respond(ctx, ClientFrame{Type: FrameSelect, ConversationID: convID})
	}

	// the socket is released once this handler returns, so wait for the writer
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.HandleWrite()
	}()
	client.HandleRead(ctx)
	<-writerDone

	log.Info("HandleWebSocket finished")
}

type Client struct {
	Conn     *websocket.Conn
	Session  *session.Controller
	Identity models.Identity

	MessageChan chan ServerFrame // rejections, written in order
	ChangedChan chan struct{}    // coalesced "view changed" signal
	DoneChan    chan struct{}    // closed when the reader exits

	socket SocketSettings
	log    *zap.Logger
}

func NewClient(conn *websocket.Conn, ctrl *session.Controller, id models.Identity, socket SocketSettings, log *zap.Logger) *Client {
	return &Client{
		Conn:        conn,
		Session:     ctrl,
		Identity:    id,
		MessageChan: make(chan ServerFrame, 64),
		ChangedChan: make(chan struct{}, 1),
		DoneChan:    make(chan struct{}),
		socket:      socket,
		log:         log,
	}
}

// markChanged runs on the controller goroutine and must never block.
func (c *Client) markChanged() {
	select {
	case c.ChangedChan <- struct{}{}:
	default:
	}
}

// HandleRead reads client frames from the socket and applies them to the session.
func (c *Client) HandleRead(ctx context.Context) {
	defer func() {
		c.log.Debug("Reader closed")
		close(c.DoneChan)
	}()
	if c.socket.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.socket.MaxMessageSize)
	}
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.socket.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.socket.PongWait))
	})

	for {
		var frame ClientFrame
		if err := c.Conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", zap.Error(err))
			} else {
				c.log.Debug("WebSocket closed", zap.Error(err))
			}
			return
		}
		c.respond(ctx, frame)
	}
}

func (c *Client) respond(ctx context.Context, frame ClientFrame) {
	err := c.dispatch(ctx, frame)
	if err == nil {
		return
	}
	c.log.Debug("Client frame rejected", zap.String("type", frame.Type), zap.Error(err))
	select {
	case c.MessageChan <- errorFrame(frame.Type, err):
	case <-time.After(time.Second):
		c.log.Warn("Timeout queueing error frame", zap.String("type", frame.Type))
	}
}

// dispatch applies one client frame. Rejections come back as errors and never
// end the socket.
func (c *Client) dispatch(ctx context.Context, frame ClientFrame) error {
	switch strings.ToLower(frame.Type) {
	case FrameSelect:
		selectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return c.Session.Select(selectCtx, frame.ConversationID)
	case FrameSend:
		return c.Session.SendAttachment(frame.Content, frame.Attachment)
	case FrameEdit:
		return c.Session.Edit(frame.MessageID, frame.Content)
	case FrameDelete:
		return c.Session.Delete(frame.MessageID)
	default:
		return fmt.Errorf("%w: %q", errUnknownFrame, frame.Type)
	}
}

// HandleWrite writes views and error frames to the socket and keeps it alive with pings.
func (c *Client) HandleWrite() {
	ticker := time.NewTicker(c.socket.PingPeriod)
	defer func() {
		ticker.Stop()
		c.log.Debug("Writer closed")
		// unblocks the reader
		_ = c.Conn.Close()
	}()

	for {
		select {
		case frame := <-c.MessageChan:
			if err := c.write(frame); err != nil {
				c.log.Warn("WebSocket write error", zap.Error(err))
				return
			}

		case <-c.ChangedChan:
			if err := c.write(viewFrame(c.Session.Snapshot())); err != nil {
				c.log.Warn("WebSocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.socket.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("WebSocket ping error", zap.Error(err))
				return
			}

		case <-c.DoneChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.socket.WriteWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) write(frame ServerFrame) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.socket.WriteWait))
	return c.Conn.WriteJSON(frame)
}
