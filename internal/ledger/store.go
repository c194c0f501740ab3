package ledger

import (
	"context"
	"time"

	"predictionledger/internal/event"
)

// Store hosts ledger entities. Atomic runs fn with exclusive access to every
// entity it touches; if fn returns an error nothing fn wrote is persisted.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of storage, value transfer and the event outbox inside one transition
type Tx interface {
	// ProtocolState returns ErrProtocolNotInitialized when the singleton is absent
	ProtocolState(ctx context.Context) (*ProtocolState, error)
	// InsertProtocolState returns ErrProtocolAlreadyInitialized when the singleton exists
	InsertProtocolState(ctx context.Context, ps *ProtocolState) error
	UpdateProtocolState(ctx context.Context, ps *ProtocolState) error

	// InsertMarket returns ErrMarketAlreadyExists on id collision
	InsertMarket(ctx context.Context, m *Market) error
	// Market returns ErrMarketNotFound when absent
	Market(ctx context.Context, id string) (*Market, error)
	UpdateMarket(ctx context.Context, m *Market) error

	// InsertStake returns ErrUserAlreadyPredicted when a record exists for (market, user)
	InsertStake(ctx context.Context, s *StakeRecord) error
	// Stake returns ErrStakeNotFound when absent
	Stake(ctx context.Context, marketID, user string) (*StakeRecord, error)
	UpdateStake(ctx context.Context, s *StakeRecord) error

	// Transfer moves value between accounts; ErrInsufficientFunds when the source cannot cover it
	Transfer(ctx context.Context, t Transfer) error

	// AppendEvent records evt in the outbox of this transaction
	AppendEvent(ctx context.Context, evt event.Event) error
}

// Clock supplies the current unix timestamp in seconds
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// FixedClock always returns the same timestamp
type FixedClock int64

// Now implements Clock
func (c FixedClock) Now() int64 {
	return int64(c)
}
