package ws

import (
	"context"
	"sync"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/metrics"
	"github.com/teamchat/internal/service"
	"github.com/teamchat/internal/storage"
)

const (
	authorizeTimeout   = 5 * time.Second
	maxTopicsPerClient = 256
)

// Authorizer decides whether a user may receive events for a topic.
type Authorizer interface {
	CanSubscribe(ctx context.Context, userID, topic string) (bool, error)
}

// Hub fans invalidation events out to clients subscribed to the event topic.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	topics     map[string]map[*Client]struct{}
	maxConns   int
	limits     Limits
	auth       Authorizer
	register   chan *Client
	unregister chan *Client
	// quit is closed when shutdown starts; done once Run has returned.
	quit chan struct{}
	done chan struct{}
	// rechecks tracks background revalidations started by Run.
	rechecks sync.WaitGroup
}

func NewHub(auth Authorizer, maxConns int, limits Limits) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		limits:     limits.withDefaults(),
		auth:       auth,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and delivers events until ctx is cancelled.
// A closed events channel stops delivery but keeps the hub serving connections.
func (h *Hub) Run(ctx context.Context, events <-chan storage.Event) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case ev, ok := <-events:
			if !ok {
				logger.Error("ws: invalidation stream closed")
				events = nil
				continue
			}
			h.deliver(ctx, ev)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.quit)
	h.rechecks.Wait()
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.topics = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
		metrics.WSDisconnected()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	select {
	case <-c.done:
		// already gone before registration was processed
		h.dropTopics(c)
		return
	default:
	}
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		h.dropTopics(c)
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnected()
	logger.Debugf("ws connected user=%s", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, registered := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	// Network I/O outside the lock. Close before dropping topics so that a
	// concurrent handleSubscribe sees c.done closed and does not re-attach.
	c.Close()
	h.dropTopics(c)
	if registered {
		metrics.WSDisconnected()
		logger.Debugf("ws disconnected user=%s", c.userID)
	}
}

func (h *Hub) dropTopics(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for t := range c.topics {
		h.detach(c, t)
	}
}

// detach must be called with h.mu held.
func (h *Hub) detach(c *Client, topic string) {
	delete(c.topics, topic)
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSubscribe:
		h.handleSubscribe(ctx, c, msg.Topic)
	case EventUnsubscribe:
		h.handleUnsubscribe(c, msg.Topic)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, topic string) {
	defer logger.DeferLogDuration("ws.handleSubscribe", time.Now())()
	if _, _, ok := service.ParseTopic(topic); !ok {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "invalid topic"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()
	allowed, err := h.auth.CanSubscribe(ctx, c.userID, topic)
	if err != nil {
		logger.Errorf("ws authorize topic=%s user=%s: %v", topic, c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "internal error"})
		return
	}
	if !allowed {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not allowed: " + topic})
		return
	}

	h.mu.Lock()
	select {
	case <-c.done:
		// removed while authorizing
		h.mu.Unlock()
		return
	default:
	}
	if _, ok := c.topics[topic]; !ok && len(c.topics) >= maxTopicsPerClient {
		h.mu.Unlock()
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "too many subscriptions"})
		return
	}
	c.topics[topic] = struct{}{}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()

	h.sendToClient(c, OutgoingMessage{Type: EventSubscribed, Payload: TopicPayload{Topic: topic}})
}

func (h *Hub) handleUnsubscribe(c *Client, topic string) {
	h.mu.Lock()
	h.detach(c, topic)
	h.mu.Unlock()
	h.sendToClient(c, OutgoingMessage{Type: EventUnsubscribed, Payload: TopicPayload{Topic: topic}})
}

func (h *Hub) subscribers(topic string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.topics[topic]
	out := make([]*Client, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// deliver sends ev to every subscriber of its topic. A deleted channel drops
// its subscriptions; a removed member or deleted workspace re-authorizes the
// workspace subscribers in the background.
func (h *Hub) deliver(ctx context.Context, ev storage.Event) {
	out := OutgoingMessage{Type: EventInvalidate, Payload: InvalidatePayload{Topic: ev.Topic, Kind: ev.Kind, ID: ev.ID}}
	targets := h.subscribers(ev.Topic)
	for _, c := range targets {
		h.sendToClient(c, out)
	}

	kind, _, _ := service.ParseTopic(ev.Topic)
	switch {
	case kind == service.TopicChannel && ev.Kind == service.KindChannelDeleted:
		h.closeTopic(ev.Topic)
	case kind == service.TopicWorkspace && (ev.Kind == service.KindMemberRemoved || ev.Kind == service.KindWorkspaceDeleted):
		if len(targets) == 0 {
			return
		}
		h.rechecks.Add(1)
		go func() {
			defer h.rechecks.Done()
			h.revalidate(ctx, targets)
		}()
	}
}

func (h *Hub) closeTopic(topic string) {
	h.mu.Lock()
	subs := h.topics[topic]
	for c := range subs {
		delete(c.topics, topic)
	}
	delete(h.topics, topic)
	h.mu.Unlock()
}

// revalidate re-checks every subscription of clients and drops the ones that
// are no longer allowed.
func (h *Hub) revalidate(ctx context.Context, clients []*Client) {
	defer logger.DeferLogDuration("ws.revalidate", time.Now())()
	for _, c := range clients {
		h.mu.RLock()
		topics := make([]string, 0, len(c.topics))
		for t := range c.topics {
			topics = append(topics, t)
		}
		h.mu.RUnlock()

		for _, t := range topics {
			actx, cancel := context.WithTimeout(ctx, authorizeTimeout)
			allowed, err := h.auth.CanSubscribe(actx, c.userID, t)
			cancel()
			if err != nil {
				logger.Errorf("ws revalidate topic=%s user=%s: %v", t, c.userID, err)
				continue
			}
			if allowed {
				continue
			}
			h.mu.Lock()
			h.detach(c, t)
			h.mu.Unlock()
			h.sendToClient(c, OutgoingMessage{Type: EventUnsubscribed, Payload: TopicPayload{Topic: t}})
		}
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }
