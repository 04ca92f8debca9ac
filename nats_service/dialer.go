package nats_service

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/session"
)

// Dialer opens one NATS connection per session. The client library reconnects
// on its own with a fixed wait; its callbacks are surfaced as session.ConnEvent.
type Dialer struct {
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	Log           *zap.Logger
}

func NewDialer(name string, timeout, reconnectWait time.Duration, log *zap.Logger) *Dialer {
	return &Dialer{
		Name:          name,
		Timeout:       timeout,
		ReconnectWait: reconnectWait,
		Log:           log,
	}
}

func (d *Dialer) Dial(ctx context.Context, url string, notify func(session.ConnEvent)) (session.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nc, err := nats.Connect(url,
		nats.Name(d.Name),
		nats.Timeout(d.Timeout),
		nats.ReconnectWait(d.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			d.Log.Info("NATS disconnected", zap.Error(err))
			notify(session.ConnDown)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			d.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			notify(session.ConnUp)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			notify(session.ConnLost)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &natsConn{nc: nc}, nil
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) Publish(subject string, payload []byte) error {
	return c.nc.Publish(subject, payload)
}

func (c *natsConn) Subscribe(subject string, handler func([]byte)) (session.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *natsConn) Close() {
	c.nc.Close()
}
