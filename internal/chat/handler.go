package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	myMiddleware "go-securechat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the configured frontend origin once it has one
	},
}

// SendLimit is the per-connection token bucket for send frames.
type SendLimit struct {
	Rate  float64 // messages per second; zero disables limiting
	Burst int
}

type Handler struct {
	hub         *Hub
	store       Store
	presence    Presence
	sessionOpts []SessionOption
	limit       SendLimit
}

// NewHandler wires the HTTP surface. store should be the FeedStore so that
// writes reach other instances. presence may be nil.
func NewHandler(hub *Hub, store Store, presence Presence, limit SendLimit, opts ...SessionOption) *Handler {
	return &Handler{
		hub:         hub,
		store:       store,
		presence:    presence,
		sessionOpts: opts,
		limit:       limit,
	}
}

// ServeWs upgrades an authenticated request and starts the client pumps.
// The room is chosen later by the client's join frame.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	if _, ok := myMiddleware.CurrentUser(r.Context()); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	// The request context dies when this handler returns; keep its values
	// (the identity) but give the connection its own lifetime.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))

	var limiter *rate.Limiter
	if h.limit.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.limit.Rate), max(h.limit.Burst, 1))
	}

	client := &Client{
		ID:      uuid.NewString(),
		hub:     h.hub,
		conn:    conn,
		session: NewSession(h.store, myMiddleware.ContextIdentity{}, h.sessionOpts...),
		history: h.store,
		limiter: limiter,
		events:  make(chan Event, eventQueueSize),
		replies: make(chan OutboundFrame, 16),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Note: These run in new goroutines, ServeWs returns immediately.
	go client.writePump()
	go client.readPump()
}

// DeleteMessage soft-deletes one of the caller's messages.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := myMiddleware.CurrentUser(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	err := h.store.SoftDelete(r.Context(), id, user.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "message not found", http.StatusNotFound)
	case err != nil:
		logrus.WithError(err).WithField("message_id", id).Error("soft delete failed")
		http.Error(w, "could not delete message", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ActiveUsers reports how many connections are alive across all instances.
func (h *Handler) ActiveUsers(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		http.Error(w, "presence disabled", http.StatusServiceUnavailable)
		return
	}
	n, err := h.presence.Count(r.Context())
	if err != nil {
		logrus.WithError(err).Error("presence count failed")
		http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"active_users": n})
}
