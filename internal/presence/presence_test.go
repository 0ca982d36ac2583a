package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *clock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := &clock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	tr := NewTracker(rdb, "chat:presence", 45*time.Second)
	tr.now = c.now
	return tr, c, mr
}

func TestTracker_JoinLeaveCount(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "conn-a"))
	require.NoError(t, tr.Join(ctx, "conn-b"))
	require.NoError(t, tr.Join(ctx, "conn-a"))

	n, err := tr.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, tr.Leave(ctx, "conn-a"))
	require.NoError(t, tr.Leave(ctx, "never-joined"))
	n, err = tr.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTracker_MembersExpireWithoutHeartbeat(t *testing.T) {
	tr, c, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "kept"))
	require.NoError(t, tr.Join(ctx, "crashed"))

	c.advance(30 * time.Second)
	require.NoError(t, tr.Heartbeat(ctx, "kept"))

	c.advance(30 * time.Second)
	n, err := tr.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	members, err := mr.ZMembers("chat:presence")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, members)
}

func TestTracker_EmptyHeartbeat(t *testing.T) {
	tr, _, mr := newTestTracker(t)
	require.NoError(t, tr.Heartbeat(context.Background()))
	assert.False(t, mr.Exists("chat:presence"))
}

func TestTracker_RedisDown(t *testing.T) {
	tr, _, mr := newTestTracker(t)
	mr.Close()

	_, err := tr.Count(context.Background())
	assert.Error(t, err)
	assert.Error(t, tr.Join(context.Background(), "x"))
}
