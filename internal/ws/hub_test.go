package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/service"
	"github.com/teamchat/internal/storage"
)

type fakeAuth struct {
	mu      sync.Mutex
	allowed map[string]bool
}

func (a *fakeAuth) allow(userID, topic string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[userID+"|"+topic] = ok
}

func (a *fakeAuth) CanSubscribe(_ context.Context, userID, topic string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allowed[userID+"|"+topic], nil
}

type received struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type testEnv struct {
	hub    *Hub
	auth   *fakeAuth
	events chan storage.Event
	srv    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth := &fakeAuth{allowed: map[string]bool{}}
	hub := NewHub(auth, 10, Limits{})
	events := make(chan storage.Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx, events)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, r.URL.Query().Get("user"))
		c.Start(cctx, ccancel)
		hub.Register(c)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return &testEnv{hub: hub, auth: auth, events: events, srv: srv}
}

func (e *testEnv) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg IncomingMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var r received
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func topicOf(t *testing.T, r received) string {
	t.Helper()
	var p TopicPayload
	require.NoError(t, json.Unmarshal(r.Payload, &p))
	return p.Topic
}

func TestSubscribeAndReceiveInvalidation(t *testing.T) {
	env := newTestEnv(t)
	env.auth.allow("u1", "channel:c1", true)
	conn := env.dial(t, "u1")

	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "channel:c1"})
	got := next(t, conn)
	require.Equal(t, EventSubscribed, got.Type)
	assert.Equal(t, "channel:c1", topicOf(t, got))

	env.events <- storage.Event{Topic: "channel:c2", Kind: service.KindMessageCreated, ID: "other"}
	env.events <- storage.Event{Topic: "channel:c1", Kind: service.KindMessageCreated, ID: "m1"}

	got = next(t, conn)
	require.Equal(t, EventInvalidate, got.Type)
	var p InvalidatePayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	assert.Equal(t, InvalidatePayload{Topic: "channel:c1", Kind: service.KindMessageCreated, ID: "m1"}, p)
}

func TestSubscribeRejected(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "u1")

	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "conversation:x"})
	got := next(t, conn)
	assert.Equal(t, EventError, got.Type)

	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "bogus"})
	got = next(t, conn)
	assert.Equal(t, EventError, got.Type)
	assert.JSONEq(t, `"invalid topic"`, string(got.Payload))

	send(t, conn, IncomingMessage{Type: "typing"})
	got = next(t, conn)
	assert.Equal(t, EventError, got.Type)
	assert.JSONEq(t, `"unknown event type"`, string(got.Payload))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.auth.allow("u1", "workspace:w1", true)
	conn := env.dial(t, "u1")

	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "workspace:w1"})
	require.Equal(t, EventSubscribed, next(t, conn).Type)
	send(t, conn, IncomingMessage{Type: EventUnsubscribe, Topic: "workspace:w1"})
	require.Equal(t, EventUnsubscribed, next(t, conn).Type)

	assert.Empty(t, env.hub.subscribers("workspace:w1"))
}

func TestDeletedChannelDropsSubscribers(t *testing.T) {
	env := newTestEnv(t)
	env.auth.allow("u1", "channel:c1", true)
	conn := env.dial(t, "u1")

	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "channel:c1"})
	require.Equal(t, EventSubscribed, next(t, conn).Type)

	env.events <- storage.Event{Topic: "channel:c1", Kind: service.KindChannelDeleted, ID: "c1"}
	require.Equal(t, EventInvalidate, next(t, conn).Type)

	assert.Eventually(t, func() bool { return len(env.hub.subscribers("channel:c1")) == 0 },
		time.Second, 10*time.Millisecond)
}

func TestMemberRemovalRevalidates(t *testing.T) {
	env := newTestEnv(t)
	env.auth.allow("u1", "workspace:w1", true)
	env.auth.allow("u1", "channel:c1", true)
	conn := env.dial(t, "u1")

	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "workspace:w1"})
	require.Equal(t, EventSubscribed, next(t, conn).Type)
	send(t, conn, IncomingMessage{Type: EventSubscribe, Topic: "channel:c1"})
	require.Equal(t, EventSubscribed, next(t, conn).Type)

	env.auth.allow("u1", "workspace:w1", false)
	env.auth.allow("u1", "channel:c1", false)
	env.events <- storage.Event{Topic: "workspace:w1", Kind: service.KindMemberRemoved, ID: "m1"}

	require.Equal(t, EventInvalidate, next(t, conn).Type)
	dropped := map[string]bool{}
	for i := 0; i < 2; i++ {
		got := next(t, conn)
		require.Equal(t, EventUnsubscribed, got.Type)
		dropped[topicOf(t, got)] = true
	}
	assert.Equal(t, map[string]bool{"workspace:w1": true, "channel:c1": true}, dropped)
}

func TestConnectionLimit(t *testing.T) {
	auth := &fakeAuth{allowed: map[string]bool{}}
	hub := NewHub(auth, 1, Limits{})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-hub.Done()
	}()
	go hub.Run(ctx, nil)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, "u")
		c.Start(cctx, ccancel)
		hub.Register(c)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = second.ReadMessage()
	assert.Error(t, err)
}

func TestSubscribeAfterRemovalDoesNotAttach(t *testing.T) {
	auth := &fakeAuth{allowed: map[string]bool{}}
	auth.allow("u1", "channel:c1", true)
	hub := NewHub(auth, 10, Limits{})
	c := &Client{
		hub:    hub,
		send:   make(chan OutgoingMessage, 4),
		userID: "u1",
		topics: make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	// connection already closed by the read pump
	c.once.Do(func() { close(c.done) })

	hub.removeClient(c)
	hub.handleSubscribe(context.Background(), c, "channel:c1")

	assert.Empty(t, hub.subscribers("channel:c1"))
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.topics)
	assert.Empty(t, c.topics)
}
