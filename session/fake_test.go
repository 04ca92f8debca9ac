package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

type published struct {
	subject string
	payload []byte
}

// fakeBackbone is an in-memory Dialer. failures > 0 fails that many dials,
// failures < 0 fails every dial.
type fakeBackbone struct {
	mu            sync.Mutex
	failures      int
	failSubscribe string
	gate          chan struct{} // when set, dials wait for it to close
	dials         int
	conns         []*fakeConn
	published     []published
}

func (b *fakeBackbone) Dial(ctx context.Context, url string, notify func(ConnEvent)) (Conn, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.failures != 0 {
		if b.failures > 0 {
			b.failures--
		}
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{
		backbone:      b,
		notify:        notify,
		failSubscribe: b.failSubscribe,
		handlers:      make(map[string]map[int]func([]byte)),
		all:           make(map[string][]func([]byte)),
	}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBackbone) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBackbone) conn(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.conns) {
		return nil
	}
	return b.conns[i]
}

func (b *fakeBackbone) commands() []models.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Command
	for _, p := range b.published {
		var cmd models.Command
		if err := json.Unmarshal(p.payload, &cmd); err == nil {
			out = append(out, cmd)
		}
	}
	return out
}

func (b *fakeBackbone) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.published {
		out = append(out, p.subject)
	}
	return out
}

type fakeConn struct {
	backbone      *fakeBackbone
	notify        func(ConnEvent)
	failSubscribe string

	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]func([]byte)
	all      map[string][]func([]byte)
	closed   bool
}

func (c *fakeConn) Publish(subject string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("connection closed")
	}
	c.backbone.mu.Lock()
	c.backbone.published = append(c.backbone.published, published{subject: subject, payload: payload})
	c.backbone.mu.Unlock()
	return nil
}

func (c *fakeConn) Subscribe(subject string, handler func([]byte)) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subject == c.failSubscribe {
		return nil, errors.New("permissions violation")
	}
	c.nextID++
	if c.handlers[subject] == nil {
		c.handlers[subject] = make(map[int]func([]byte))
	}
	c.handlers[subject][c.nextID] = handler
	c.all[subject] = append(c.all[subject], handler)
	return &fakeSub{conn: c, subject: subject, id: c.nextID}, nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) subscribers(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[subject])
}

// everSubscribed returns every handler registered for subject, including released ones.
func (c *fakeConn) everSubscribed(subject string) []func([]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]func([]byte){}, c.all[subject]...)
}

func (c *fakeConn) deliver(subject string, payload []byte) {
	c.mu.Lock()
	var hs []func([]byte)
	for _, h := range c.handlers[subject] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (c *fakeConn) deliverJSON(t *testing.T, subject string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	c.deliver(subject, data)
}

type fakeSub struct {
	conn    *fakeConn
	subject string
	id      int
}

func (s *fakeSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if _, ok := s.conn.handlers[s.subject][s.id]; !ok {
		return errors.New("invalid subscription")
	}
	delete(s.conn.handlers[s.subject], s.id)
	return nil
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
