package session

import (
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

type stateLog struct {
	mu     sync.Mutex
	states []ConnState
}

func (l *stateLog) record(gen uint64, s ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ConnState{}, l.states...)
}

func newTestManager(b *fakeBackbone, l *stateLog) *ConnectionManager {
	return NewConnectionManager(b, &ConnectionSettings{
		URL:           "nats://test",
		RetryInterval: 10 * time.Millisecond,
	}, zap.NewNop(), l.record)
}

func TestConnectionRetriesUntilOpen(t *testing.T) {
	b := &fakeBackbone{failures: 2}
	l := &stateLog{}
	m := newTestManager(b, l)
	defer m.Close()

	m.Open("g1")
	eventually(t, func() bool { return len(l.snapshot()) == 2 })
	assert.Equal(t, m.State(), StateOpen)
	assert.Equal(t, b.dialCount(), 3)
	assert.Equal(t, l.snapshot(), []ConnState{StateClosed, StateOpen})
}

func TestConnectionRejectsPublishUnlessOpen(t *testing.T) {
	b := &fakeBackbone{failures: -1}
	m := newTestManager(b, &stateLog{})
	defer m.Close()

	assert.Equal(t, m.Publish("conversation.g1.commands", []byte("{}")), models.ErrNotConnected)

	m.Open("g1")
	eventually(t, func() bool { return b.dialCount() >= 2 })
	assert.Equal(t, m.State(), StateClosed)
	assert.Equal(t, m.Publish("conversation.g1.commands", []byte("{}")), models.ErrNotConnected)
	assert.Equal(t, len(b.subjects()), 0)
}

func TestConnectionDownAndUp(t *testing.T) {
	b := &fakeBackbone{}
	l := &stateLog{}
	m := newTestManager(b, l)
	defer m.Close()

	m.Open("g1")
	eventually(t, func() bool { return len(l.snapshot()) == 1 })
	conn := b.conn(0)

	conn.notify(ConnDown)
	assert.Equal(t, m.State(), StateClosed)
	assert.Equal(t, m.Active(), nil)

	conn.notify(ConnUp)
	assert.Equal(t, m.State(), StateOpen)
	assert.Equal(t, m.Publish("conversation.g1.commands", []byte("{}")), nil)
	assert.Equal(t, l.snapshot(), []ConnState{StateOpen, StateClosed, StateOpen})
}

func TestConnectionLostRedials(t *testing.T) {
	b := &fakeBackbone{}
	m := newTestManager(b, &stateLog{})
	defer m.Close()

	m.Open("g1")
	eventually(t, func() bool { return m.State() == StateOpen })
	first := b.conn(0)

	first.notify(ConnLost)
	eventually(t, func() bool { return b.dialCount() == 2 && m.State() == StateOpen })
	assert.Equal(t, first.isClosed(), true)
	assert.Equal(t, m.Active() == Conn(b.conn(1)), true)
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	b := &fakeBackbone{}
	l := &stateLog{}
	m := newTestManager(b, l)

	m.Open("g1")
	eventually(t, func() bool { return len(l.snapshot()) == 1 })
	conn := b.conn(0)

	m.Close()
	m.Close()
	assert.Equal(t, m.State(), StateClosed)
	assert.Equal(t, conn.isClosed(), true)

	// signals from the torn down handle are ignored
	before := len(l.snapshot())
	conn.notify(ConnUp)
	conn.notify(ConnDown)
	assert.Equal(t, len(l.snapshot()), before)
	assert.Equal(t, m.State(), StateClosed)
}

func TestConnectionReopenDropsPrevious(t *testing.T) {
	b := &fakeBackbone{}
	m := newTestManager(b, &stateLog{})
	defer m.Close()

	first := m.Open("g1")
	eventually(t, func() bool { return m.State() == StateOpen })
	second := m.Open("g2")

	assert.NotEqual(t, first, second)
	assert.Equal(t, b.conn(0).isClosed(), true)
	eventually(t, func() bool { return m.State() == StateOpen && b.dialCount() == 2 })
}
