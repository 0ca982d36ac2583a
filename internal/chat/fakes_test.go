package chat

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	myMiddleware "go-securechat/internal/middleware"
)

// memStore is an in-memory Store with the same predicates as Repository.
type memStore struct {
	mu        sync.Mutex
	rows      []*Message
	inserts   int
	insertErr error
}

func newMemStore() *memStore { return &memStore{} }

func (s *memStore) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := *m
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memStore) SoftDelete(_ context.Context, id string, authorID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id && r.AuthorID == authorID {
			r.IsDeleted = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) Recent(_ context.Context, now time.Time, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var live []*Message
	for _, r := range s.rows {
		if r.Live(now) {
			cp := *r
			live = append(live, &cp)
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })
	if len(live) > limit {
		live = live[len(live)-limit:]
	}
	return live, nil
}

func (s *memStore) all() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.rows))
	copy(out, s.rows)
	return out
}

// memFeed is an in-process Feed. drop simulates losing the connection.
type memFeed struct {
	mu   sync.Mutex
	subs []chan Event
}

func newMemFeed() *memFeed { return &memFeed{} }

func (f *memFeed) Publish(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
	return nil
}

func (f *memFeed) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 128)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(ch)
	}()
	return ch, nil
}

func (f *memFeed) remove(ch chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.subs {
		if c == ch {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (f *memFeed) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func (f *memFeed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *memFeed) waitForSubscribers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.subscribers() >= n }, 2*time.Second, 5*time.Millisecond)
}

type staticIdentity struct {
	user *myMiddleware.Identity
}

func asUser(id int) staticIdentity {
	return staticIdentity{user: &myMiddleware.Identity{ID: id, Email: "agent@example.com"}}
}

func (s staticIdentity) CurrentUser(context.Context) (*myMiddleware.Identity, bool) {
	return s.user, s.user != nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}
