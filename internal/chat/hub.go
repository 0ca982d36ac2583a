package chat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	presenceHeartbeat  = 15 * time.Second
	presenceTimeout    = 2 * time.Second
	maxResubscribeWait = 30 * time.Second
)

// Presence tracks which connections are alive across all instances.
type Presence interface {
	Join(ctx context.Context, id string) error
	Leave(ctx context.Context, id string) error
	Heartbeat(ctx context.Context, ids ...string) error
	Count(ctx context.Context) (int64, error)
}

// Hub fans feed events out to every registered connection. Run is the only
// goroutine that touches clients, so the map needs no lock.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event   // Feed -> Clients
	register   chan *Client // Connection joined a room
	unregister chan *Client // Connection left or died
	done       chan struct{}

	feed     Feed
	presence Presence
	now      func() time.Time
}

// NewHub builds a hub. presence may be nil.
func NewHub(feed Feed, presence Presence) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		feed:       feed,
		presence:   presence,
		now:        time.Now,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var beat <-chan time.Time
	if h.presence != nil {
		ticker := time.NewTicker(presenceHeartbeat)
		defer ticker.Stop()
		beat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(ctx, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			activeConnections.Inc()
			h.touchPresence(ctx, func(pctx context.Context) error {
				return h.presence.Join(pctx, client.ID)
			})

		case client := <-h.unregister:
			// Always check if they exist to avoid double-close panics
			if _, ok := h.clients[client]; ok {
				h.drop(ctx, client)
			}

		case ev := <-h.broadcast:
			h.dispatch(ev)

		case <-beat:
			ids := make([]string, 0, len(h.clients))
			for client := range h.clients {
				ids = append(ids, client.ID)
			}
			h.touchPresence(ctx, func(pctx context.Context) error {
				return h.presence.Heartbeat(pctx, ids...)
			})
		}
	}
}

// dispatch forwards ev to every client in arrival order. A client whose
// queue is full is cut off rather than allowed to stall everyone else.
func (h *Hub) dispatch(ev Event) {
	switch ev.Kind {
	case EventInsert:
		if ev.Message == nil || !ev.Message.Live(h.now()) {
			feedDropped.Inc()
			return
		}
	case EventDelete:
		if ev.ID == "" {
			return
		}
	default:
		return
	}

	for client := range h.clients {
		select {
		case client.events <- ev:
		default:
			logrus.WithField("client", client.ID).Warn("client too slow, disconnecting")
			h.drop(context.Background(), client)
		}
	}
}

func (h *Hub) drop(ctx context.Context, client *Client) {
	delete(h.clients, client)
	close(client.events)
	activeConnections.Dec()
	h.touchPresence(ctx, func(pctx context.Context) error {
		return h.presence.Leave(pctx, client.ID)
	})
}

func (h *Hub) touchPresence(ctx context.Context, op func(context.Context) error) {
	if h.presence == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()
	if err := op(pctx); err != nil {
		logrus.WithError(err).Warn("presence update failed")
	}
}

// Register hands a joined client to the hub. It reports false if the hub
// has already stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client and closes its event queue. Unknown clients are
// ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SubscribeToFeed keeps exactly one feed subscription alive for this hub,
// resubscribing whenever it drops. Events published while disconnected are
// lost; the feed has no replay.
func (h *Hub) SubscribeToFeed(ctx context.Context) {
	wait := time.Second
	for {
		events, err := h.feed.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logrus.WithError(err).WithField("retry_in", wait).Error("feed subscribe failed")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			wait = min(wait*2, maxResubscribeWait)
			continue
		}
		wait = time.Second

		for ev := range events {
			select {
			case h.broadcast <- ev:
			case <-ctx.Done():
				return
			case <-h.done:
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		feedResubscribes.Inc()
		logrus.Warn("feed subscription lost, resubscribing")
	}
}
