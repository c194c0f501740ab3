package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictionledger/internal/event"
	"predictionledger/internal/ledger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	// Use in-memory database for tests
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMarket(id string) *ledger.Market {
	return &ledger.Market{
		ID:               id,
		Description:      "Will it rain tomorrow?",
		EndTimestamp:     2000,
		CreatedTimestamp: 1000,
		MinBetAmount:     10,
		Authority:        "tg:1",
	}
}

func insertMarket(t *testing.T, s *Store, m *ledger.Market) {
	t.Helper()
	err := s.Atomic(context.Background(), func(tx ledger.Tx) error {
		return tx.InsertMarket(context.Background(), m)
	})
	require.NoError(t, err)
}

func TestOpenAccount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	acct, created, err := s.OpenAccount(ctx, "tg:42", 1000)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "tg:42", acct.Identity)
	assert.Equal(t, int64(1000), acct.Balance)

	// Second open is a no-op and does not pay the bonus again
	acct, created, err = s.OpenAccount(ctx, "tg:42", 1000)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(1000), acct.Balance)

	entries, err := s.Transfers(ctx, "tg:42", ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, MintIdentity, entries[0].From)
	assert.Equal(t, string(ledger.TransferWelcomeBonus), entries[0].Kind)
}

func TestOpenAccountRejectsReservedIdentities(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, identity := range []string{"", "  ", "market:abc", MintIdentity} {
		_, _, err := s.OpenAccount(ctx, identity, 10)
		assert.ErrorIs(t, err, ledger.ErrInvalidIdentity, "identity %q", identity)
	}
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	s := setupTestStore(t)

	balance, err := s.Balance(context.Background(), "tg:nobody")
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = s.Account(context.Background(), "tg:nobody")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestProtocolStateSingleton(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Atomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.ProtocolState(ctx)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrProtocolNotInitialized)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertProtocolState(ctx, &ledger.ProtocolState{Authority: "tg:1"})
	})
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertProtocolState(ctx, &ledger.ProtocolState{Authority: "tg:2"})
	})
	assert.ErrorIs(t, err, ledger.ErrProtocolAlreadyInitialized)

	var ps *ledger.ProtocolState
	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		var err error
		ps, err = tx.ProtocolState(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "tg:1", ps.Authority)
}

func TestInsertMarketCollision(t *testing.T) {
	s := setupTestStore(t)
	insertMarket(t, s, testMarket("rain"))

	err := s.Atomic(context.Background(), func(tx ledger.Tx) error {
		return tx.InsertMarket(context.Background(), testMarket("rain"))
	})
	assert.ErrorIs(t, err, ledger.ErrMarketAlreadyExists)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertMarket(ctx, testMarket("rain")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Market(ctx, "rain")
	assert.ErrorIs(t, err, ledger.ErrMarketNotFound)
}

func TestTransfer(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, err := s.OpenAccount(ctx, "tg:1", 100)
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, ledger.Transfer{From: "tg:1", To: "market:rain", Amount: 60, Kind: ledger.TransferStake, MarketID: "rain"})
	})
	require.NoError(t, err)

	balance, err := s.Balance(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
	pool, err := s.Balance(ctx, "market:rain")
	require.NoError(t, err)
	assert.Equal(t, int64(60), pool)

	t.Run("insufficient funds leaves balances unchanged", func(t *testing.T) {
		err := s.Atomic(ctx, func(tx ledger.Tx) error {
			return tx.Transfer(ctx, ledger.Transfer{From: "tg:1", To: "market:rain", Amount: 41, Kind: ledger.TransferStake})
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, ledger.KindCollaborator, ledger.KindOf(err))

		balance, err := s.Balance(ctx, "tg:1")
		require.NoError(t, err)
		assert.Equal(t, int64(40), balance)
	})

	t.Run("unknown source account", func(t *testing.T) {
		err := s.Atomic(ctx, func(tx ledger.Tx) error {
			return tx.Transfer(ctx, ledger.Transfer{From: "tg:ghost", To: "tg:1", Amount: 1})
		})
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		err := s.Atomic(ctx, func(tx ledger.Tx) error {
			return tx.Transfer(ctx, ledger.Transfer{From: "tg:1", To: "tg:2", Amount: 0})
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidTransferValue)
	})

	entries, err := s.Transfers(ctx, "market:rain", ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(60), entries[0].Amount)
	assert.Equal(t, "rain", entries[0].MarketID)
}

func TestStakeRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	insertMarket(t, s, testMarket("rain"))

	stake := &ledger.StakeRecord{MarketID: "rain", User: "tg:7", Amount: 25, Prediction: ledger.OutcomeNo, Timestamp: 1500}
	err := s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertStake(ctx, stake)
	})
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.InsertStake(ctx, stake)
	})
	assert.ErrorIs(t, err, ledger.ErrUserAlreadyPredicted)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		got, err := tx.Stake(ctx, "rain", "tg:7")
		if err != nil {
			return err
		}
		got.Claimed = true
		got.Winnings = 50
		return tx.UpdateStake(ctx, got)
	})
	require.NoError(t, err)

	stakes, err := s.ListStakes(ctx, "rain")
	require.NoError(t, err)
	require.Len(t, stakes, 1)
	assert.Equal(t, ledger.OutcomeNo, stakes[0].Prediction)
	assert.True(t, stakes[0].Claimed)
	assert.Equal(t, int64(50), stakes[0].Winnings)

	mine, err := s.ListUserStakes(ctx, "tg:7", ListOpts{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		_, err := tx.Stake(ctx, "rain", "tg:8")
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrStakeNotFound)
}

func TestResolvedMarketIsCached(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := testMarket("rain")
	insertMarket(t, s, m)

	// Open markets are never cached
	_, err := s.Market(ctx, "rain")
	require.NoError(t, err)
	assert.Equal(t, 0, s.frozen.Len())

	m.IsResolved = true
	m.Outcome = ledger.OutcomeYes
	m.ResolvedTimestamp = 2100
	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.UpdateMarket(ctx, m)
	})
	require.NoError(t, err)

	got, err := s.Market(ctx, "rain")
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, 1, s.frozen.Len())

	// Cached copy is served even if the row changes underneath
	_, err = s.DB().Exec(`UPDATE markets SET description = 'changed' WHERE id = 'rain'`)
	require.NoError(t, err)
	got, err = s.Market(ctx, "rain")
	require.NoError(t, err)
	assert.Equal(t, "Will it rain tomorrow?", got.Description)
}

func TestListMarkets(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	early := testMarket("early")
	early.EndTimestamp = 1500
	late := testMarket("late")
	late.EndTimestamp = 3000
	done := testMarket("done")
	done.IsResolved = true
	done.Outcome = ledger.OutcomeNo
	for _, m := range []*ledger.Market{late, early, done} {
		insertMarket(t, s, m)
	}

	all, err := s.ListMarkets(ctx, false, 1600, ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "early", all[0].ID)

	open, err := s.ListMarkets(ctx, true, 1600, ListOpts{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "late", open[0].ID)

	page, err := s.ListMarkets(ctx, false, 0, ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "done", page[0].ID)
}

func TestMarketsAwaitingResolution(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	expired := testMarket("expired")
	expired.EndTimestamp = 1500
	open := testMarket("open")
	open.EndTimestamp = 5000
	insertMarket(t, s, expired)
	insertMarket(t, s, open)

	due, err := s.MarketsAwaitingResolution(ctx, 2000, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "expired", due[0].ID)

	require.NoError(t, s.MarkDeadlineNotified(ctx, "expired", 2000))
	// Marking twice is harmless
	require.NoError(t, s.MarkDeadlineNotified(ctx, "expired", 2001))

	due, err = s.MarketsAwaitingResolution(ctx, 2000, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestEventsOutbox(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := event.NewProtocolEvent(event.ProtocolInitialized, "tg:1", false, 100)
	second := event.NewProtocolEvent(event.ProtocolPaused, "tg:1", true, 200)
	err := s.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.AppendEvent(ctx, first); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, second)
	})
	require.NoError(t, err)

	events, err := s.Events(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, string(event.ProtocolPaused), events[1].Type)
	assert.JSONEq(t, `{"authority":"tg:1","is_paused":true}`, string(events[1].Payload))

	after, err := s.Events(ctx, events[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, second.ID, after[0].ID)
}

func TestTopAccountsExcludesPools(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, err := s.OpenAccount(ctx, "tg:rich", 500)
	require.NoError(t, err)
	_, _, err = s.OpenAccount(ctx, "tg:poor", 10)
	require.NoError(t, err)
	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.Transfer(ctx, ledger.Transfer{From: "tg:rich", To: ledger.PoolAccount("rain"), Amount: 100})
	})
	require.NoError(t, err)

	top, err := s.TopAccounts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "tg:rich", top[0].Identity)
	assert.Equal(t, int64(400), top[0].Balance)
	assert.Equal(t, "tg:poor", top[1].Identity)
}
