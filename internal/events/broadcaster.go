package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize is the number of envelopes buffered per connection.
const DefaultQueueSize = 256

// ErrUnknownConnection is returned for operations on unregistered connections.
var ErrUnknownConnection = errors.New("unknown connection")

// Conn is a live observer connection.
type Conn interface {
	ID() string
	Send(Envelope) error
	Close() error
}

// Observer receives every published envelope in publish order. It is called
// synchronously by Publish and must not block.
type Observer func(projectID string, env Envelope)

// client is a registered connection with its outbound queue. The queue is
// drained by a single goroutine so envelopes reach the connection in the
// order they were enqueued.
type client struct {
	conn      Conn
	queue     chan Envelope
	projects  map[string]struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}

// Broadcaster fans events out to the subscribers of each project.
type Broadcaster struct {
	queueSize int
	now       func() time.Time

	mu     sync.RWMutex
	conns  map[string]*client
	topics map[string]map[string]*client

	obsMu     sync.Mutex
	observers []Observer
}

// NewBroadcaster creates a broadcaster with queueSize envelopes buffered per
// connection.
func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		queueSize: queueSize,
		now:       func() time.Time { return time.Now().UTC() },
		conns:     make(map[string]*client),
		topics:    make(map[string]map[string]*client),
	}
}

// Register adds conn to the directory and sends connection:established.
func (b *Broadcaster) Register(conn Conn) {
	c := &client{
		conn:     conn,
		queue:    make(chan Envelope, b.queueSize),
		projects: make(map[string]struct{}),
	}

	b.mu.Lock()
	if old, ok := b.conns[conn.ID()]; ok {
		b.removeLocked(old)
	}
	b.conns[conn.ID()] = c
	b.mu.Unlock()

	go b.drain(c)

	b.sendTo(conn.ID(), TypeConnectionEstablished, ConnectionEstablishedPayload{ConnectionID: conn.ID()})
}

func (b *Broadcaster) drain(c *client) {
	defer c.close()
	for env := range c.queue {
		if err := c.conn.Send(env); err != nil {
			slog.Debug("dropping observer connection", "conn_id", c.conn.ID(), "error", err)
			b.disconnect(c)
			return
		}
	}
}

// Subscribe adds the connection to projectID's subscriber set.
func (b *Broadcaster) Subscribe(connID, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("subscribe: project id required")
	}
	b.mu.Lock()
	c, ok := b.conns[connID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", connID, ErrUnknownConnection)
	}
	subs := b.topics[projectID]
	if subs == nil {
		subs = make(map[string]*client)
		b.topics[projectID] = subs
	}
	subs[connID] = c
	c.projects[projectID] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Unsubscribe removes the connection from projectID's subscriber set.
func (b *Broadcaster) Unsubscribe(connID, projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.conns[connID]; ok {
		delete(c.projects, projectID)
	}
	if subs := b.topics[projectID]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(b.topics, projectID)
		}
	}
}

// Disconnect removes the connection and all of its subscriptions. Envelopes
// already queued are still sent before the connection is closed.
func (b *Broadcaster) Disconnect(connID string) {
	b.mu.Lock()
	c, ok := b.conns[connID]
	if ok {
		b.removeLocked(c)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) disconnect(c *client) {
	b.mu.Lock()
	if cur, ok := b.conns[c.conn.ID()]; ok && cur == c {
		b.removeLocked(c)
	}
	b.mu.Unlock()
}

// removeLocked must be called with b.mu held. Closing the queue under the
// write lock guarantees no Publish is sending on it.
func (b *Broadcaster) removeLocked(c *client) {
	id := c.conn.ID()
	for projectID := range c.projects {
		if subs := b.topics[projectID]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.topics, projectID)
			}
		}
	}
	c.projects = map[string]struct{}{}
	delete(b.conns, id)
	close(c.queue)
}

// Publish delivers an event to every subscriber of projectID and to all
// observers. It never blocks on a connection; a subscriber whose queue is
// full is disconnected. It returns the number of subscribers the envelope
// was queued for.
func (b *Broadcaster) Publish(projectID string, typ Type, payload any) int {
	env := Envelope{Type: typ, Payload: payload, Timestamp: b.now()}

	b.notifyObservers(projectID, env)

	var overflow []*client
	delivered := 0

	b.mu.RLock()
	for _, c := range b.topics[projectID] {
		select {
		case c.queue <- env:
			delivered++
		default:
			overflow = append(overflow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range overflow {
		slog.Warn("observer queue full, dropping connection", "conn_id", c.conn.ID(), "project_id", projectID)
		b.disconnect(c)
	}
	return delivered
}

// Observe registers an in-process observer.
func (b *Broadcaster) Observe(fn Observer) {
	b.obsMu.Lock()
	b.observers = append(b.observers, fn)
	b.obsMu.Unlock()
}

func (b *Broadcaster) notifyObservers(projectID string, env Envelope) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	for _, fn := range b.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event observer panicked", "type", env.Type, "panic", r)
				}
			}()
			fn(projectID, env)
		}()
	}
}

// HandleClientMessage processes a raw message from connection connID.
func (b *Broadcaster) HandleClientMessage(connID string, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.sendTo(connID, TypeError, ErrorPayload{Error: "malformed message"})
		return fmt.Errorf("decode client message: %w", err)
	}

	switch msg.Type {
	case ClientSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ProjectID == "" {
			b.sendTo(connID, TypeError, ErrorPayload{Error: "subscribe:project requires projectId"})
			return fmt.Errorf("subscribe: invalid payload")
		}
		if err := b.Subscribe(connID, p.ProjectID); err != nil {
			return err
		}
		slog.Debug("observer subscribed", "conn_id", connID, "project_id", p.ProjectID, "user_id", p.UserID)
		b.sendTo(connID, TypeSubscriptionConfirmed, SubscriptionConfirmedPayload{ProjectID: p.ProjectID})

	case ClientUnsubscribe:
		var p UnsubscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		b.Unsubscribe(connID, p.ProjectID)

	case ClientPing:
		b.sendTo(connID, TypePong, map[string]any{})

	default:
		b.sendTo(connID, TypeError, ErrorPayload{Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// sendTo queues an envelope for a single connection.
func (b *Broadcaster) sendTo(connID string, typ Type, payload any) {
	env := Envelope{Type: typ, Payload: payload, Timestamp: b.now()}

	b.mu.RLock()
	c, ok := b.conns[connID]
	full := false
	if ok {
		select {
		case c.queue <- env:
		default:
			full = true
		}
	}
	b.mu.RUnlock()

	if full {
		b.disconnect(c)
	}
}

// Subscribers returns the number of connections subscribed to projectID.
func (b *Broadcaster) Subscribers(projectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[projectID])
}

// Connections returns the number of registered connections.
func (b *Broadcaster) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Close disconnects every connection.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		b.removeLocked(c)
	}
}
