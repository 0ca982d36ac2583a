package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "go-securechat/internal/middleware"
)

// fakeAuth trusts ?uid= so tests can skip token issuing.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := strconv.Atoi(r.URL.Query().Get("uid"))
		if uid == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := myMiddleware.WithIdentity(r.Context(), myMiddleware.Identity{ID: uid})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type chatServer struct {
	t     *testing.T
	url   string
	feed  *memFeed
	store *memStore
}

func newChatServer(t *testing.T, limit SendLimit) *chatServer {
	t.Helper()
	feed := newMemFeed()
	store := newMemStore()
	hub, _ := startHub(t, feed, nil)
	h := NewHandler(hub, NewFeedStore(store, feed), nil, limit)

	r := chi.NewRouter()
	r.Use(fakeAuth)
	r.Get("/ws", h.ServeWs)
	r.Delete("/api/messages/{id}", h.DeleteMessage)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &chatServer{t: t, url: srv.URL, feed: feed, store: store}
}

type peer struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []OutboundFrame
}

func (s *chatServer) dial(uid int) *peer {
	s.t.Helper()
	u := "ws" + strings.TrimPrefix(s.url, "http") + "/ws?uid=" + strconv.Itoa(uid)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close() })
	return &peer{t: s.t, conn: conn}
}

func (p *peer) send(frame InboundFrame) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(frame))
}

// await returns the first frame of type typ, keeping any other frames for
// later calls.
func (p *peer) await(typ string) OutboundFrame {
	p.t.Helper()
	for {
		for i, f := range p.pending {
			if f.Type == typ {
				p.pending = append(p.pending[:i], p.pending[i+1:]...)
				return f
			}
		}

		p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := p.conn.ReadMessage()
		require.NoError(p.t, err, "waiting for %q frame", typ)

		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var f OutboundFrame
			err := dec.Decode(&f)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(p.t, err)
			p.pending = append(p.pending, f)
		}
	}
}

func (p *peer) join(key string) OutboundFrame {
	p.t.Helper()
	p.send(InboundFrame{Type: "join", Key: key})
	return p.await("joined")
}

func TestServeWs_RoomsOverWebsocket(t *testing.T) {
	srv := newChatServer(t, SendLimit{})

	a := srv.dial(1)
	joined := a.join("alpha")
	assert.NotEmpty(t, joined.DisplayName)

	b := srv.dial(2)
	b.join("beta")

	a.send(InboundFrame{Type: "send", Content: "hello"})
	sent := a.await("sent")
	require.NotEmpty(t, sent.ID)

	echo := a.await("message")
	assert.Equal(t, sent.ID, echo.ID)
	assert.Equal(t, "hello", echo.Content)
	assert.Equal(t, joined.DisplayName, echo.AuthorName)
	assert.True(t, echo.IsAnonymous)
	require.NotNil(t, echo.ExpiresAt)
	assert.True(t, echo.ExpiresAt.After(*echo.CreatedAt))

	// nothing readable reached b before its own room's traffic
	other := srv.dial(3)
	other.join("beta")
	other.send(InboundFrame{Type: "send", Content: "beta only"})
	assert.Equal(t, "beta only", b.await("message").Content)

	// late alpha joiner gets the history, and only alpha's half of it
	c := srv.dial(4)
	c.join("alpha")
	first := c.await("message")
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, sent.ID, first.ID)

	a.send(InboundFrame{Type: "delete", ID: sent.ID})
	assert.Equal(t, sent.ID, a.await("deleted").ID)
	assert.Equal(t, sent.ID, c.await("retract").ID)

	rows := srv.store.all()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotContains(t, row.Content, "hello")
		assert.NotContains(t, row.Content, "beta only")
	}
}

func TestServeWs_Rejections(t *testing.T) {
	srv := newChatServer(t, SendLimit{})
	p := srv.dial(1)

	p.send(InboundFrame{Type: "send", Content: "too early"})
	assert.Equal(t, "not_joined", p.await("rejected").Reason)

	p.join("")

	p.send(InboundFrame{Type: "join", Key: "again"})
	assert.Equal(t, "already_joined", p.await("rejected").Reason)

	p.send(InboundFrame{Type: "send", Content: " \t "})
	assert.Equal(t, "empty", p.await("rejected").Reason)

	p.send(InboundFrame{Type: "send", Content: "call 010-1234-5678"})
	assert.Equal(t, "sensitive", p.await("rejected").Reason)

	p.send(InboundFrame{Type: "delete", ID: uuid.NewString()})
	assert.Equal(t, "not_found", p.await("rejected").Reason)

	p.send(InboundFrame{Type: "dance"})
	assert.Equal(t, "unknown_frame", p.await("error").Reason)

	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "bad_frame", p.await("error").Reason)

	p.send(InboundFrame{Type: "rename"})
	assert.NotEmpty(t, p.await("renamed").DisplayName)

	assert.Empty(t, srv.store.all())
}

func TestServeWs_RateLimit(t *testing.T) {
	srv := newChatServer(t, SendLimit{Rate: 0.01, Burst: 1})
	p := srv.dial(1)
	p.join("alpha")

	p.send(InboundFrame{Type: "send", Content: "one"})
	p.await("sent")
	p.send(InboundFrame{Type: "send", Content: "two"})
	assert.Equal(t, "rate_limited", p.await("rejected").Reason)
	assert.Len(t, srv.store.all(), 1)
}

func TestServeWs_LeaveClosesConnection(t *testing.T) {
	srv := newChatServer(t, SendLimit{})
	p := srv.dial(1)
	p.join("alpha")

	p.send(InboundFrame{Type: "leave"})
	p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection still open after leave")
			}
			return
		}
	}
}

func TestServeWs_RequiresIdentity(t *testing.T) {
	srv := newChatServer(t, SendLimit{})
	u := "ws" + strings.TrimPrefix(srv.url, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeleteMessage(t *testing.T) {
	srv := newChatServer(t, SendLimit{})

	author := NewSession(srv.store, asUser(1))
	require.NoError(t, author.Join("alpha"))
	msg, err := author.Send(context.Background(), "regret")
	require.NoError(t, err)

	del := func(id string, uid int) int {
		req, err := http.NewRequest(http.MethodDelete, srv.url+"/api/messages/"+id+"?uid="+strconv.Itoa(uid), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, del(msg.ID, 0))
	assert.Equal(t, http.StatusBadRequest, del("nope", 1))
	assert.Equal(t, http.StatusNotFound, del(msg.ID, 2))
	assert.False(t, srv.store.all()[0].IsDeleted)

	events, err := srv.feed.Subscribe(t.Context())
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, del(msg.ID, 1))
	assert.True(t, srv.store.all()[0].IsDeleted)

	ev := recvEvent(t, events)
	assert.Equal(t, EventDelete, ev.Kind)
	assert.Equal(t, msg.ID, ev.ID)
}

func TestActiveUsers(t *testing.T) {
	presence := &recordingPresence{joined: map[string]bool{"a": true, "b": true, "c": true}}

	rec := httptest.NewRecorder()
	NewHandler(nil, nil, presence, SendLimit{}).ActiveUsers(rec, httptest.NewRequest(http.MethodGet, "/api/presence", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active_users": 3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHandler(nil, nil, nil, SendLimit{}).ActiveUsers(rec, httptest.NewRequest(http.MethodGet, "/api/presence", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
