package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/karthikraju391/go-nats-chat-sync/models"
	"github.com/karthikraju391/go-nats-chat-sync/reconcile"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSeeded
	PhaseLive
	PhaseTornDown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSeeded:
		return "seeded"
	case PhaseLive:
		return "live"
	case PhaseTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// View is what the controller exposes to a renderer after every change.
// Messages must be treated as read-only.
type View struct {
	ConversationID string           `json:"conversationId"`
	Phase          Phase            `json:"phase"`
	Connection     ConnState        `json:"connection"`
	Messages       []models.Message `json:"messages"`
}

type Settings struct {
	URL           string
	RetryInterval time.Duration
	EventBuffer   int
}

func DefaultSettings(url string) *Settings {
	return &Settings{
		URL:           url,
		RetryInterval: 5 * time.Second,
		EventBuffer:   256,
	}
}

// Controller runs one conversation at a time: it seeds the list, keeps the
// connection and subscriptions of the selected conversation, and folds every
// inbound event and local send into the list.
//
// All controller state is owned by a single goroutine. Public methods and
// backbone callbacks post work to it and inputs are processed strictly in
// arrival order, one at a time.
type Controller struct {
	log       *zap.Logger
	identity  IdentityProvider
	snapshots SnapshotProvider

	manager *ConnectionManager
	subs    *SubscriptionSet
	pub     *Publisher

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
	selectSeq atomic.Uint64
	last      atomic.Pointer[View]

	// owned by the loop goroutine
	phase          Phase
	conversationID string
	connGen        uint64
	connState      ConnState
	subGen         uint64
	seededSeq      uint64
	state          reconcile.State
	observers      []func(View)
}

func NewController(
	dialer Dialer,
	snapshots SnapshotProvider,
	identity IdentityProvider,
	settings *Settings,
	log *zap.Logger,
) *Controller {
	buffer := settings.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}
	c := &Controller{
		log:       log,
		identity:  identity,
		snapshots: snapshots,
		subs:      NewSubscriptionSet(log),
		inbox:     make(chan func(), buffer),
		done:      make(chan struct{}),
		phase:     PhaseIdle,
	}
	c.manager = NewConnectionManager(dialer, &ConnectionSettings{
		URL:           settings.URL,
		RetryInterval: settings.RetryInterval,
	}, log, c.onConnState)
	c.pub = NewPublisher(c.manager, identity, log)
	c.last.Store(&View{Phase: PhaseIdle, Connection: StateClosed})

	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for fn := range c.inbox {
		fn()
		if c.phase == PhaseTornDown {
			return
		}
	}
}

// post queues fn for the loop. It reports false once the controller is torn down.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(fn func() error) error {
	errc := make(chan error, 1)
	if !c.post(func() { errc <- fn() }) {
		return models.ErrTornDown
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return models.ErrTornDown
		}
	}
}

// Select switches the controller to conversationID. The snapshot is fetched on
// the caller's goroutine; the old conversation is then torn down and the new
// one seeded and connected. When Select calls overlap, the last one started wins.
func (c *Controller) Select(ctx context.Context, conversationID string) error {
	if err := models.ValidateConversationID(conversationID); err != nil {
		return err
	}
	if c.closed() {
		return models.ErrTornDown
	}
	seq := c.selectSeq.Add(1)

	snapshot, err := c.snapshots.Snapshot(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot for '%s': %w", conversationID, err)
	}

	return c.call(func() error {
		if c.phase == PhaseTornDown {
			return models.ErrTornDown
		}
		if seq < c.seededSeq {
			c.log.Debug("Dropping superseded selection", zap.String("conversation", conversationID))
			return nil
		}
		c.seededSeq = seq
		c.leaveConversation()

		c.conversationID = conversationID
		c.state = reconcile.Seed(c.identity.Identity(), snapshot)
		c.phase = PhaseSeeded
		c.connGen = c.manager.Open(conversationID)
		c.connState = StateConnecting
		c.log.Info("Seeded conversation",
			zap.String("conversation", conversationID),
			zap.Int("messages", c.state.Len()))
		c.notify()
		return nil
	})
}

// Send publishes text as a new message and shows it as pending right away.
func (c *Controller) Send(text string) error {
	return c.SendAttachment(text, nil)
}

// SendAttachment is Send with an optional attachment; text may then be empty.
func (c *Controller) SendAttachment(text string, attachment *models.Attachment) error {
	return c.call(func() error {
		if err := c.usable(); err != nil {
			return err
		}
		msg, err := c.pub.Send(c.conversationID, text, attachment)
		if err != nil {
			return err
		}
		c.state = reconcile.Reduce(c.state, reconcile.LocalSent{Message: msg})
		c.notify()
		return nil
	})
}

// Edit publishes an edit of a locally authored message. The list changes only
// when the edit comes back as an inbound event.
func (c *Controller) Edit(messageID, content string) error {
	return c.call(func() error {
		if err := c.usable(); err != nil {
			return err
		}
		target, ok := c.state.Find(messageID)
		if !ok {
			return models.ErrUnknownMessage
		}
		return c.pub.Edit(c.conversationID, target, content)
	})
}

// Delete publishes a deletion of a locally authored message. The entry stays
// until the deletion comes back as an inbound event.
func (c *Controller) Delete(messageID string) error {
	return c.call(func() error {
		if err := c.usable(); err != nil {
			return err
		}
		target, ok := c.state.Find(messageID)
		if !ok {
			return models.ErrUnknownMessage
		}
		return c.pub.Delete(c.conversationID, target)
	})
}

// OnChange registers fn to be called on the controller goroutine after every
// change. fn must not call back into the controller synchronously.
func (c *Controller) OnChange(fn func(View)) error {
	return c.call(func() error {
		c.observers = append(c.observers, fn)
		return nil
	})
}

// Snapshot returns the most recent view.
func (c *Controller) Snapshot() View {
	return *c.last.Load()
}

// Close tears the controller down: subscriptions are released, the connection
// is closed and every later event or call is ignored. Safe to call repeatedly.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.call(func() error {
			c.leaveConversation()
			c.phase = PhaseTornDown
			c.log.Info("Session torn down")
			c.notify()
			return nil
		})
	})
	<-c.done
}

func (c *Controller) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// usable gates user intents on the loop's phase rather than the manager's
// state, which turns open before the loop has subscribed.
func (c *Controller) usable() error {
	switch c.phase {
	case PhaseTornDown:
		return models.ErrTornDown
	case PhaseLive:
		return nil
	default:
		return models.ErrNotConnected
	}
}

// leaveConversation drops everything that belongs to the current conversation.
func (c *Controller) leaveConversation() {
	c.subs.Unsubscribe()
	c.subGen++
	c.manager.Close()
	c.connGen = 0
	c.connState = StateClosed
	c.conversationID = ""
	c.state = reconcile.State{}
	c.phase = PhaseIdle
}

func (c *Controller) onConnState(gen uint64, state ConnState) {
	c.post(func() { c.handleConnState(gen, state) })
}

func (c *Controller) handleConnState(gen uint64, state ConnState) {
	if c.phase == PhaseTornDown || gen != c.connGen {
		return
	}
	c.connState = state

	switch state {
	case StateOpen:
		c.goLive()
	default:
		if c.phase == PhaseLive {
			c.subs.Unsubscribe()
			c.subGen++
			c.phase = PhaseSeeded
		}
	}
	c.notify()
}

func (c *Controller) goLive() {
	if c.phase == PhaseLive && c.subs.Active() {
		return
	}
	conn := c.manager.Active()
	if conn == nil {
		return
	}
	c.subGen++
	subGen := c.subGen
	conversationID := c.conversationID

	err := c.subs.Subscribe(conn, conversationID,
		func(ev models.MessageEvent) {
			c.post(func() { c.handleMessage(conversationID, subGen, ev) })
		},
		func(ev models.DeletionEvent) {
			c.post(func() { c.handleDeletion(conversationID, subGen, ev) })
		},
	)
	if err != nil {
		// stays seeded; the next open retries
		c.log.Warn("Subscribe failed", zap.String("conversation", conversationID), zap.Error(err))
		return
	}
	c.phase = PhaseLive
}

func (c *Controller) accepts(conversationID string, subGen uint64) bool {
	return c.phase == PhaseLive && conversationID == c.conversationID && subGen == c.subGen
}

func (c *Controller) handleMessage(conversationID string, subGen uint64, ev models.MessageEvent) {
	if !c.accepts(conversationID, subGen) {
		c.log.Debug("Dropping stale message event", zap.String("conversation", conversationID))
		return
	}
	if ev.ConversationID != "" && ev.ConversationID != conversationID {
		c.log.Warn("Dropping message event for another conversation",
			zap.String("conversation", conversationID),
			zap.String("event_conversation", ev.ConversationID))
		return
	}
	msg := ev.Message()
	msg.ConversationID = conversationID
	c.state = reconcile.Reduce(c.state, reconcile.MessageReceived{Message: msg})
	c.notify()
}

func (c *Controller) handleDeletion(conversationID string, subGen uint64, ev models.DeletionEvent) {
	if !c.accepts(conversationID, subGen) {
		c.log.Debug("Dropping stale deletion event", zap.String("conversation", conversationID))
		return
	}
	c.state = reconcile.Reduce(c.state, reconcile.DeletionReceived{ID: ev.ID})
	c.notify()
}

func (c *Controller) notify() {
	v := View{
		ConversationID: c.conversationID,
		Phase:          c.phase,
		Connection:     c.connState,
		Messages:       c.state.Messages,
	}
	c.last.Store(&v)
	for _, fn := range c.observers {
		fn(v)
	}
}
