package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
)

// ConnState is the externally visible state of a ConnectionManager.
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ConnectionSettings struct {
	URL           string
	RetryInterval time.Duration
}

// ConnectionManager keeps one backbone connection alive for the conversation
// passed to Open. Dial failures and lost connections are retried after a fixed
// interval until Open or Close is called again; they are only observable as
// StateClosed.
//
// Transitions made by the manager's own goroutines are reported to onState with
// the generation returned by the Open that started them. Open and Close never
// call onState themselves.
type ConnectionManager struct {
	dialer   Dialer
	settings *ConnectionSettings
	log      *zap.Logger
	onState  func(gen uint64, state ConnState)

	// serializes state changes with their notification
	notifyMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	attempt uint64
	state   ConnState
	conn    Conn
	cancel  context.CancelFunc
}

func NewConnectionManager(
	dialer Dialer,
	settings *ConnectionSettings,
	log *zap.Logger,
	onState func(gen uint64, state ConnState),
) *ConnectionManager {
	return &ConnectionManager{
		dialer:   dialer,
		settings: settings,
		log:      log,
		onState:  onState,
		state:    StateClosed,
	}
}

// Open tears down any current connection and starts connecting for conversationID.
// The returned generation tags every later state notification of this connection.
func (m *ConnectionManager) Open(conversationID string) uint64 {
	m.mu.Lock()
	m.stopLocked()
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = StateConnecting
	m.mu.Unlock()

	go m.run(ctx, gen, conversationID)
	return gen
}

// Close tears the connection down. Safe to call repeatedly.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.gen++
	m.state = StateClosed
}

func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the current connection, or nil unless the state is open.
func (m *ConnectionManager) Active() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return nil
	}
	return m.conn
}

// Publish sends payload on the current connection. Nothing is queued while the
// connection is not open.
func (m *ConnectionManager) Publish(subject string, payload []byte) error {
	conn := m.Active()
	if conn == nil {
		return models.ErrNotConnected
	}
	return conn.Publish(subject, payload)
}

func (m *ConnectionManager) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *ConnectionManager) run(ctx context.Context, gen uint64, conversationID string) {
	log := m.log.With(zap.String("conversation", conversationID), zap.Uint64("gen", gen))

	for {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.attempt++
		attempt := m.attempt
		m.mu.Unlock()

		lost := make(chan struct{}, 1)
		notify := func(ev ConnEvent) {
			switch ev {
			case ConnUp:
				m.setState(gen, attempt, StateOpen)
			case ConnDown:
				m.setState(gen, attempt, StateClosed)
			case ConnLost:
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		}

		conn, err := m.dialer.Dial(ctx, m.settings.URL, notify)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Info("Connect failed, retrying", zap.Error(err), zap.Duration("in", m.settings.RetryInterval))
			m.setState(gen, attempt, StateClosed)
			if !m.wait(ctx) {
				return
			}
			continue
		}

		m.mu.Lock()
		if gen != m.gen || attempt != m.attempt {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()

		log.Info("Connected", zap.String("url", m.settings.URL))
		m.setState(gen, attempt, StateOpen)

		select {
		case <-ctx.Done():
			return
		case <-lost:
		}

		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		conn.Close()

		log.Info("Connection lost, reconnecting", zap.Duration("in", m.settings.RetryInterval))
		m.setState(gen, attempt, StateClosed)
		if !m.wait(ctx) {
			return
		}
	}
}

func (m *ConnectionManager) wait(ctx context.Context) bool {
	timer := time.NewTimer(m.settings.RetryInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *ConnectionManager) setState(gen, attempt uint64, state ConnState) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if gen != m.gen || attempt != m.attempt || m.state == state {
		m.mu.Unlock()
		return
	}
	// open is only reported once run has stored the handle
	if state == StateOpen && m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()

	if m.onState != nil {
		m.onState(gen, state)
	}
}
