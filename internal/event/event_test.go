package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversByType(t *testing.T) {
	bus := NewMemoryBus()
	var resolved, claimed int
	bus.Subscribe(MarketResolved, func(ctx context.Context, evt Event) error {
		resolved++
		return nil
	})
	bus.Subscribe(WinningsClaimed, func(ctx context.Context, evt Event) error {
		claimed++
		return nil
	})

	evt := NewMarketResolvedEvent(MarketResolvedPayloadV1{MarketID: "rain", Outcome: "YES", ResolvedTimestamp: 10})
	require.NoError(t, bus.Publish(context.Background(), evt))
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 0, claimed)

	// No subscribers is not an error
	require.NoError(t, bus.Publish(context.Background(), NewProtocolEvent(ProtocolPaused, "tg:1", true, 10)))
}

func TestMemoryBusJoinsHandlerErrors(t *testing.T) {
	bus := NewMemoryBus()
	errA := errors.New("a failed")
	calls := 0
	bus.Subscribe(MarketCreated, func(ctx context.Context, evt Event) error {
		calls++
		return errA
	})
	bus.Subscribe(MarketCreated, func(ctx context.Context, evt Event) error {
		calls++
		return nil
	})

	err := bus.Publish(context.Background(), NewMarketCreatedEvent(MarketCreatedPayloadV1{ID: "rain"}))
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 2, calls)
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, Event) error { return p.err }

func TestMultiPublishesToAll(t *testing.T) {
	bus := NewMemoryBus()
	delivered := false
	bus.Subscribe(PredictionPlaced, func(ctx context.Context, evt Event) error {
		delivered = true
		return nil
	})
	boom := errors.New("boom")

	m := Multi{failingPublisher{err: boom}, nil, bus}
	err := m.Publish(context.Background(), NewPredictionPlacedEvent(PredictionPlacedPayloadV1{MarketID: "rain"}))
	assert.ErrorIs(t, err, boom)
	assert.True(t, delivered)

	assert.NoError(t, Discard{}.Publish(context.Background(), Event{}))
}

func TestNewEventEnvelope(t *testing.T) {
	evt := NewWinningsClaimedEvent(WinningsClaimedPayloadV1{MarketID: "rain", User: "tg:1", Winnings: 40, Timestamp: 99})
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, SchemaVersion, evt.Version)
	assert.Equal(t, "rain", evt.MarketID)
	assert.Equal(t, int64(99), evt.Timestamp)

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"winnings.claimed"`)
	assert.Contains(t, string(data), `"winnings":40`)

	other := NewWinningsClaimedEvent(WinningsClaimedPayloadV1{MarketID: "rain"})
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestRedisPublisherChannel(t *testing.T) {
	p := newRedisPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	defer p.Close()
	assert.Equal(t, "ledger.events.market.resolved", p.Channel(MarketResolved))

	custom := newRedisPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "prod.")
	defer custom.Close()
	assert.Equal(t, "prod.winnings.claimed", custom.Channel(WinningsClaimed))
}

func TestRedisPublisherUnreachable(t *testing.T) {
	p := newRedisPublisher(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}), "")
	defer p.Close()

	err := p.Publish(context.Background(), NewProtocolEvent(ProtocolInitialized, "tg:1", false, 1))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.events.protocol.initialized")
}
