package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	myMiddleware "go-securechat/internal/middleware"
	"go-securechat/internal/roomcrypto"
	"go-securechat/internal/sanitize"
)

// PublicPassphrase is the room everyone lands in when they join without a
// key. It is a labelled public channel, not a secret.
const PublicPassphrase = "public-channel"

type State int

const (
	StateUnjoined State = iota
	StateJoining
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IdentityProvider tells the session who is sending.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (*myMiddleware.Identity, bool)
}

// Delivery is a message as one session sees it, decrypted.
type Delivery struct {
	ID          string
	Content     string
	AuthorName  string
	IsAnonymous bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Session binds one connection to one derived room key. It owns the key and
// the pseudonym; nothing else is shared with other sessions.
type Session struct {
	store    Store
	identity IdentityProvider

	publicKey string
	now       func() time.Time
	names     func() string

	mu          sync.RWMutex
	state       State
	key         *roomcrypto.Key
	displayName string
}

type SessionOption func(*Session)

// WithPublicPassphrase overrides the passphrase used for an empty join key.
func WithPublicPassphrase(p string) SessionOption {
	return func(s *Session) {
		if p != "" {
			s.publicKey = p
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithNameGenerator(f func() string) SessionOption {
	return func(s *Session) { s.names = f }
}

func NewSession(store Store, identity IdentityProvider, opts ...SessionOption) *Session {
	s := &Session{
		store:     store,
		identity:  identity,
		publicKey: PublicPassphrase,
		now:       time.Now,
		names:     NewPseudonym,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// Join derives the room key for passphrase and assigns a pseudonym. The
// derivation runs outside the lock; a Leave that lands meanwhile wins.
func (s *Session) Join(passphrase string) error {
	s.mu.Lock()
	switch s.state {
	case StateUnjoined:
	case StateLeft:
		s.mu.Unlock()
		return ErrSessionClosed
	default:
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.state = StateJoining
	s.mu.Unlock()

	if passphrase == "" {
		passphrase = s.publicKey
	}
	key := roomcrypto.DeriveKey(passphrase)
	name := s.names()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoining {
		return ErrSessionClosed
	}
	s.key = key
	s.displayName = name
	s.state = StateJoined
	return nil
}

// joined returns the key and pseudonym if the session is Joined.
func (s *Session) joined() (*roomcrypto.Key, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateJoined {
		return nil, "", false
	}
	return s.key, s.displayName, true
}

// Send validates, encrypts and stores plaintext. Validation and identity
// failures happen before anything touches the store.
func (s *Session) Send(ctx context.Context, plaintext string) (*Message, error) {
	key, name, ok := s.joined()
	if !ok {
		return nil, ErrNotJoined
	}

	clean, err := sanitize.Check(plaintext)
	if err != nil {
		messagesRejected.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	user, ok := s.identity.CurrentUser(ctx)
	if !ok || user == nil {
		messagesRejected.WithLabelValues(rejectionReason(ErrUnauthenticated)).Inc()
		return nil, ErrUnauthenticated
	}

	content, err := roomcrypto.Encrypt(clean, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	// left while we were encrypting: drop it
	if _, _, ok := s.joined(); !ok {
		return nil, ErrNotJoined
	}

	now := s.now().UTC()
	msg := &Message{
		ID:          uuid.NewString(),
		Content:     content,
		AuthorID:    user.ID,
		AuthorName:  name,
		IsAnonymous: true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(MessageTTL),
	}
	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, err
	}
	messagesSent.Inc()
	return msg, nil
}

// Receive turns a stored row into something renderable for this session.
// ok is false when the row is deleted, expired, sealed under another key, or
// the session is no longer joined. Callers treat all of those the same.
func (s *Session) Receive(row *Message) (Delivery, bool) {
	key, _, ok := s.joined()
	if !ok || row == nil || !row.Live(s.now()) {
		deliveries.WithLabelValues("suppressed").Inc()
		return Delivery{}, false
	}

	plain, ok := roomcrypto.Decrypt(row.Content, key)
	if !ok {
		deliveries.WithLabelValues("suppressed").Inc()
		return Delivery{}, false
	}

	if _, _, ok := s.joined(); !ok {
		return Delivery{}, false
	}

	deliveries.WithLabelValues("visible").Inc()
	return Delivery{
		ID:          row.ID,
		Content:     plain,
		AuthorName:  row.AuthorName,
		IsAnonymous: row.IsAnonymous,
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
	}, true
}

// Delete soft-deletes one of the caller's own messages.
func (s *Session) Delete(ctx context.Context, id string) error {
	if _, _, ok := s.joined(); !ok {
		return ErrNotJoined
	}
	user, ok := s.identity.CurrentUser(ctx)
	if !ok || user == nil {
		return ErrUnauthenticated
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.store.SoftDelete(ctx, id, user.ID)
}

// Regenerate swaps the pseudonym. Messages already sent keep the old one.
func (s *Session) Regenerate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return "", ErrNotJoined
	}
	s.displayName = s.names()
	return s.displayName, nil
}

// Leave drops the key. It is terminal and safe to call more than once.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
	s.state = StateLeft
}
