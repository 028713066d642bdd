package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

var ethBTC = domain.NewPair("ETH", "BTC")

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func levels(pairs ...string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.NewPriceLevel(decimal.RequireFromString(pairs[i]), decimal.RequireFromString(pairs[i+1])))
	}
	return out
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "exec:ETH-BTC", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:exec:ETH-BTC"))

	_, err = lm.Acquire(ctx, "exec:ETH-BTC", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:exec:ETH-BTC"))

	again, err := lm.Acquire(ctx, "exec:ETH-BTC", time.Minute)
	require.NoError(t, err)
	defer again()
}

func TestLockUnlockKeepsForeignToken(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(context.Background(), "exec:ETH-BTC", time.Second)
	require.NoError(t, err)

	// The lock expired and another instance took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:exec:ETH-BTC", "someone-else"))

	unlock()
	got, err := mr.Get("lock:exec:ETH-BTC")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	clock := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "binance", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "binance", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "other", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	clock = clock.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "binance", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "window slid")
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	clock := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return clock }

	require.NoError(t, rl.Wait(context.Background(), "binance", 1, time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "binance", 1, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exact, err := bus.Subscribe(ctx, domain.ChannelExecutions)
	require.NoError(t, err)
	pattern, err := bus.Subscribe(ctx, "arb:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelExecutions, []byte(`{"state":"done"}`)))

	for name, ch := range map[string]<-chan []byte{"exact": exact, "pattern": pattern} {
		select {
		case got := <-ch:
			assert.JSONEq(t, `{"state":"done"}`, string(got), name)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s subscriber got nothing", name)
		}
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-exact
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalBusStreams(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	msgs, err := bus.StreamRead(ctx, "arb:journal", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, "arb:journal", []byte("one")))
	require.NoError(t, bus.StreamAppend(ctx, "arb:journal", []byte("two")))

	msgs, err = bus.StreamRead(ctx, "arb:journal", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, "arb:journal", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "two", string(rest[0].Payload))
}

func TestBookMirrorRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	m := NewBookMirror(c)
	ctx := context.Background()

	asks := domain.Snapshot{SequenceID: 10, Levels: levels("0.051", "2", "0.05", "1.5")}
	bids := domain.Snapshot{SequenceID: 10, Levels: levels("0.049", "3", "0.0495", "1")}
	require.NoError(t, m.MirrorSide(ctx, "binance", ethBTC, domain.SideAsks, asks))
	require.NoError(t, m.MirrorSide(ctx, "binance", ethBTC, domain.SideBids, bids))
	assert.True(t, mr.Exists("book:binance:ETH-BTC:asks"))

	got, err := m.LoadSide(ctx, "binance", ethBTC, domain.SideAsks)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.SequenceID)
	require.Len(t, got.Levels, 2)
	assert.Equal(t, "0.05", got.Levels[0].Price().String(), "asks ascend")
	assert.Equal(t, "1.5", got.Levels[0].BaseAmount().String())

	got, err = m.LoadSide(ctx, "binance", ethBTC, domain.SideBids)
	require.NoError(t, err)
	require.Len(t, got.Levels, 2)
	assert.Equal(t, "0.0495", got.Levels[0].Price().String(), "bids descend")
}

func TestBookMirrorRefusesOlderSequence(t *testing.T) {
	c, _ := newTestClient(t)
	m := NewBookMirror(c)
	ctx := context.Background()

	ok, err := m.Mirror(ctx, "binance", ethBTC, domain.SideAsks, domain.Snapshot{SequenceID: 20, Levels: levels("0.05", "1")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Mirror(ctx, "binance", ethBTC, domain.SideAsks, domain.Snapshot{SequenceID: 19, Levels: levels("0.04", "1")})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Mirror(ctx, "binance", ethBTC, domain.SideAsks, domain.Snapshot{SequenceID: 20, Levels: levels("0.06", "1")})
	require.NoError(t, err)
	assert.True(t, ok, "equal sequence replaces")

	got, err := m.LoadSide(ctx, "binance", ethBTC, domain.SideAsks)
	require.NoError(t, err)
	require.Len(t, got.Levels, 1)
	assert.Equal(t, "0.06", got.Levels[0].Price().String())

	// The bids sequence is tracked separately.
	ok, err = m.Mirror(ctx, "binance", ethBTC, domain.SideBids, domain.Snapshot{SequenceID: 1})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBookMirrorMissingSide(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := NewBookMirror(c).LoadSide(context.Background(), "binance", ethBTC, domain.SideAsks)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
