package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictionledger/internal/ledger"
	"predictionledger/internal/storage"
)

func setupWorkerStore(t *testing.T) (*storage.Store, *ledger.Engine, *stepClock) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &stepClock{now: 100}
	engine := ledger.NewEngine(store, clock, nil)
	_, err = engine.Initialize(context.Background(), "tg:1")
	require.NoError(t, err)
	return store, engine, clock
}

func createMarket(t *testing.T, engine *ledger.Engine, id, creator string, end int64) {
	t.Helper()
	_, err := engine.CreateMarket(context.Background(), ledger.CreateMarketParams{
		ID: id, Description: "Q " + id, EndTimestamp: end, MinBetAmount: 1, Creator: creator,
	})
	require.NoError(t, err)
}

func TestNotifyExpiredMarkets(t *testing.T) {
	store, engine, clock := setupWorkerStore(t)
	createMarket(t, engine, "early", "tg:5", 150)
	createMarket(t, engine, "late", "tg:6", 500)

	sender := &fakeSender{}
	ns := NewNotificationService(sender, store, "")
	w := NewMarketWorker(store, ns, clock, time.Hour, 10)
	ctx := context.Background()

	// Nothing has expired yet
	assert.Equal(t, 0, w.NotifyExpiredMarkets(ctx))

	clock.set(150)
	assert.Equal(t, 1, w.NotifyExpiredMarkets(ctx))
	require.Len(t, sender.messagesTo("5"), 1)

	// Already notified markets are not repeated
	assert.Equal(t, 0, w.NotifyExpiredMarkets(ctx))

	clock.set(600)
	assert.Equal(t, 1, w.NotifyExpiredMarkets(ctx))
	assert.Len(t, sender.messagesTo("6"), 1)
	assert.Len(t, sender.messagesTo("5"), 1)
}

func TestNotifyExpiredMarketsSkipsResolved(t *testing.T) {
	store, engine, clock := setupWorkerStore(t)
	createMarket(t, engine, "m", "tg:5", 150)

	clock.set(150)
	_, err := engine.ResolveMarket(context.Background(), "m", "tg:5", ledger.OutcomeNo)
	require.NoError(t, err)

	sender := &fakeSender{}
	w := NewMarketWorker(store, NewNotificationService(sender, store, ""), clock, time.Hour, 10)
	assert.Equal(t, 0, w.NotifyExpiredMarkets(context.Background()))
	assert.Empty(t, sender.sent)
}

func TestNotifyExpiredMarketsRetriesFailedSends(t *testing.T) {
	store, engine, clock := setupWorkerStore(t)
	createMarket(t, engine, "m", "tg:5", 150)
	clock.set(200)

	sender := &fakeSender{failTo: "5"}
	w := NewMarketWorker(store, NewNotificationService(sender, store, ""), clock, time.Hour, 10)
	assert.Equal(t, 0, w.NotifyExpiredMarkets(context.Background()))

	sender.failTo = ""
	assert.Equal(t, 1, w.NotifyExpiredMarkets(context.Background()))
}

func TestMarketWorkerStartStop(t *testing.T) {
	store, engine, clock := setupWorkerStore(t)
	createMarket(t, engine, "m", "tg:5", 150)
	clock.set(200)

	sender := &fakeSender{}
	w := NewMarketWorker(store, NewNotificationService(sender, store, ""), clock, 10*time.Millisecond, 10)
	w.Start()
	defer w.Stop()

	// Start runs a pass immediately
	assert.Len(t, sender.messagesTo("5"), 1)

	createMarket(t, engine, "later", "tg:6", 250)
	clock.set(300)
	assert.Eventually(t, func() bool { return len(sender.messagesTo("6")) == 1 }, time.Second, 5*time.Millisecond)
}
