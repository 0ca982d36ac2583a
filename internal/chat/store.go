package chat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the durable side of the chat. Every method is one statement;
// nothing here retries.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	SoftDelete(ctx context.Context, id string, authorID int) error
	Recent(ctx context.Context, now time.Time, limit int) ([]*Message, error)
}

// FeedStore announces successful writes on a Feed so every Hub hears about
// them.
type FeedStore struct {
	Store
	feed Feed
}

func NewFeedStore(store Store, feed Feed) *FeedStore {
	return &FeedStore{Store: store, feed: feed}
}

// Insert persists m and then publishes it. A failed publish is only
// logged: the row is already durable and a resubmit would duplicate it.
func (s *FeedStore) Insert(ctx context.Context, m *Message) error {
	if err := s.Store.Insert(ctx, m); err != nil {
		return err
	}
	if err := s.feed.Publish(ctx, Event{Kind: EventInsert, Message: m}); err != nil {
		feedPublishFailures.Inc()
		logrus.WithError(err).WithField("message_id", m.ID).Warn("feed publish failed after insert")
	}
	return nil
}

func (s *FeedStore) SoftDelete(ctx context.Context, id string, authorID int) error {
	if err := s.Store.SoftDelete(ctx, id, authorID); err != nil {
		return err
	}
	if err := s.feed.Publish(ctx, Event{Kind: EventDelete, ID: id}); err != nil {
		feedPublishFailures.Inc()
		logrus.WithError(err).WithField("message_id", id).Warn("feed publish failed after delete")
	}
	return nil
}
