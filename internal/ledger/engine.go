package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"predictionledger/internal/event"
	"predictionledger/internal/logger"
	"predictionledger/internal/metrics"
)

// Operation names used in logs and metrics
const (
	OpInitialize      = "initialize"
	OpSetPaused       = "set_paused"
	OpCreateMarket    = "create_market"
	OpPlacePrediction = "place_prediction"
	OpResolveMarket   = "resolve_market"
	OpClaimWinnings   = "claim_winnings"
)

// Engine applies the ledger's state transitions. Every transition runs in a
// single Store.Atomic call together with its value transfer and outbox event;
// the event is handed to the publisher only after the transaction commits.
type Engine struct {
	store     Store
	clock     Clock
	publisher event.Publisher
}

// NewEngine creates a new transition engine. A nil publisher discards events
// after they are written to the outbox.
func NewEngine(store Store, clock Clock, publisher event.Publisher) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if publisher == nil {
		publisher = event.Discard{}
	}
	return &Engine{store: store, clock: clock, publisher: publisher}
}

// CreateMarketParams are the inputs of CreateMarket
type CreateMarketParams struct {
	ID           string
	Description  string
	EndTimestamp int64
	MinBetAmount int64
	Creator      string
}

// transition runs fn atomically, records its event in the outbox and
// publishes the event once the transaction has committed.
func (e *Engine) transition(ctx context.Context, op string, fn func(tx Tx, now int64) (event.Event, error)) error {
	now := e.clock.Now()

	var evt event.Event
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		evt, err = fn(tx, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	metrics.RecordTransition(op, CodeOf(err))
	if err != nil {
		logger.FromContext(ctx).Debug("Transition rejected",
			"operation", op,
			"code", CodeOf(err),
			"kind", KindOf(err).String(),
			"error", err)
		return err
	}

	e.publish(ctx, evt)
	return nil
}

func (e *Engine) publish(ctx context.Context, evt event.Event) {
	if err := e.publisher.Publish(ctx, evt); err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(evt.Type)).Inc()
		logger.FromContext(ctx).Warn("Failed to publish event",
			"event_id", evt.ID,
			"type", evt.Type,
			"error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
}

func validateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrInvalidIdentity
	}
	if strings.HasPrefix(identity, PoolAccountPrefix) {
		return fmt.Errorf("%w: %q is reserved for market pools", ErrInvalidIdentity, identity)
	}
	return nil
}

// Initialize creates the protocol singleton administered by authority
func (e *Engine) Initialize(ctx context.Context, authority string) (*ProtocolState, error) {
	var ps *ProtocolState
	err := e.transition(ctx, OpInitialize, func(tx Tx, now int64) (event.Event, error) {
		if err := validateIdentity(authority); err != nil {
			return event.Event{}, err
		}
		ps = &ProtocolState{Authority: authority}
		if err := tx.InsertProtocolState(ctx, ps); err != nil {
			return event.Event{}, err
		}
		return event.NewProtocolEvent(event.ProtocolInitialized, authority, false, now), nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Protocol initialized", "authority", authority)
	return ps, nil
}

// SetPaused sets the pause flag. Only the protocol authority may call it.
func (e *Engine) SetPaused(ctx context.Context, caller string, paused bool) (*ProtocolState, error) {
	var ps *ProtocolState
	err := e.transition(ctx, OpSetPaused, func(tx Tx, now int64) (event.Event, error) {
		var err error
		if ps, err = tx.ProtocolState(ctx); err != nil {
			return event.Event{}, err
		}
		if caller != ps.Authority {
			return event.Event{}, ErrUnauthorized
		}
		ps.IsPaused = paused
		if err := tx.UpdateProtocolState(ctx, ps); err != nil {
			return event.Event{}, err
		}
		t := event.ProtocolUnpaused
		if paused {
			t = event.ProtocolPaused
		}
		return event.NewProtocolEvent(t, ps.Authority, paused, now), nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Protocol pause flag set", "paused", paused)
	return ps, nil
}

// CreateMarket allocates a new market whose authority is the creator
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (*Market, error) {
	var m *Market
	err := e.transition(ctx, OpCreateMarket, func(tx Tx, now int64) (event.Event, error) {
		ps, err := tx.ProtocolState(ctx)
		if err != nil {
			return event.Event{}, err
		}
		if ps.IsPaused {
			return event.Event{}, ErrProtocolPaused
		}
		if p.ID == "" {
			return event.Event{}, ErrInvalidMarketID
		}
		if len(p.ID) > MaxMarketIDLength {
			return event.Event{}, fmt.Errorf("%w: %d bytes", ErrMarketIDTooLong, len(p.ID))
		}
		if len(p.Description) > MaxDescriptionLength {
			return event.Event{}, fmt.Errorf("%w: %d bytes", ErrDescriptionTooLong, len(p.Description))
		}
		if p.MinBetAmount <= 0 {
			return event.Event{}, ErrInvalidMinBetAmount
		}
		if p.EndTimestamp <= now {
			return event.Event{}, fmt.Errorf("%w: %d is not after %d", ErrInvalidEndTime, p.EndTimestamp, now)
		}
		if err := validateIdentity(p.Creator); err != nil {
			return event.Event{}, err
		}

		total, err := CheckedAdd(ps.TotalMarkets, 1)
		if err != nil {
			return event.Event{}, err
		}

		m = &Market{
			ID:               p.ID,
			Description:      p.Description,
			EndTimestamp:     p.EndTimestamp,
			CreatedTimestamp: now,
			MinBetAmount:     p.MinBetAmount,
			Outcome:          OutcomeUnset,
			Authority:        p.Creator,
		}
		if err := tx.InsertMarket(ctx, m); err != nil {
			return event.Event{}, err
		}
		ps.TotalMarkets = total
		if err := tx.UpdateProtocolState(ctx, ps); err != nil {
			return event.Event{}, err
		}

		return event.NewMarketCreatedEvent(event.MarketCreatedPayloadV1{
			ID:           m.ID,
			Description:  m.Description,
			EndTimestamp: m.EndTimestamp,
			MinBetAmount: m.MinBetAmount,
			Authority:    m.Authority,
			Timestamp:    now,
		}), nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Market created",
		"market_id", m.ID,
		"authority", m.Authority,
		"end_timestamp", m.EndTimestamp,
		"min_bet_amount", m.MinBetAmount)
	return m, nil
}

// PlacePrediction stakes amount on one side of a market. The returned market
// carries the pool totals after the stake.
func (e *Engine) PlacePrediction(ctx context.Context, marketID, user string, amount int64, prediction Outcome) (*StakeRecord, *Market, error) {
	var (
		s *StakeRecord
		m *Market
	)
	err := e.transition(ctx, OpPlacePrediction, func(tx Tx, now int64) (event.Event, error) {
		if !prediction.Valid() {
			return event.Event{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, prediction)
		}
		if err := validateIdentity(user); err != nil {
			return event.Event{}, err
		}

		var err error
		if m, err = tx.Market(ctx, marketID); err != nil {
			return event.Event{}, err
		}
		if m.IsResolved {
			return event.Event{}, ErrMarketAlreadyResolved
		}
		if now >= m.EndTimestamp {
			return event.Event{}, ErrMarketExpired
		}
		if amount < m.MinBetAmount {
			return event.Event{}, fmt.Errorf("%w: %d < %d", ErrBetAmountTooLow, amount, m.MinBetAmount)
		}
		if _, err := tx.Stake(ctx, m.ID, user); err == nil {
			return event.Event{}, ErrUserAlreadyPredicted
		} else if !errors.Is(err, ErrStakeNotFound) {
			return event.Event{}, err
		}

		yes, no := m.TotalYesAmount, m.TotalNoAmount
		if prediction == OutcomeYes {
			yes, err = CheckedAdd(yes, amount)
		} else {
			no, err = CheckedAdd(no, amount)
		}
		if err != nil {
			return event.Event{}, err
		}
		participants, err := CheckedAdd(m.TotalParticipants, 1)
		if err != nil {
			return event.Event{}, err
		}

		if err := tx.Transfer(ctx, Transfer{
			From:     user,
			To:       m.PoolAccount(),
			Amount:   amount,
			Kind:     TransferStake,
			MarketID: m.ID,
		}); err != nil {
			return event.Event{}, fmt.Errorf("transfer stake: %w", err)
		}

		m.TotalYesAmount, m.TotalNoAmount, m.TotalParticipants = yes, no, participants
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return event.Event{}, err
		}
		s = &StakeRecord{
			MarketID:   m.ID,
			User:       user,
			Amount:     amount,
			Prediction: prediction,
			Timestamp:  now,
		}
		if err := tx.InsertStake(ctx, s); err != nil {
			return event.Event{}, err
		}

		return event.NewPredictionPlacedEvent(event.PredictionPlacedPayloadV1{
			MarketID:       m.ID,
			User:           user,
			Amount:         amount,
			Prediction:     string(prediction),
			Timestamp:      now,
			TotalYesAmount: m.TotalYesAmount,
			TotalNoAmount:  m.TotalNoAmount,
		}), nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.ValueStaked.Add(float64(amount))
	logger.FromContext(ctx).Info("Prediction placed",
		"market_id", marketID,
		"user", user,
		"prediction", prediction,
		"amount", amount)
	return s, m, nil
}

// ResolveMarket sets the outcome of a market once its stake window has closed.
// The outcome is trusted input from the market authority.
func (e *Engine) ResolveMarket(ctx context.Context, marketID, caller string, outcome Outcome) (*Market, error) {
	var m *Market
	err := e.transition(ctx, OpResolveMarket, func(tx Tx, now int64) (event.Event, error) {
		if !outcome.Valid() {
			return event.Event{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
		}

		var err error
		if m, err = tx.Market(ctx, marketID); err != nil {
			return event.Event{}, err
		}
		if caller != m.Authority {
			return event.Event{}, ErrUnauthorized
		}
		if m.IsResolved {
			return event.Event{}, ErrMarketAlreadyResolved
		}
		if now < m.EndTimestamp {
			return event.Event{}, ErrMarketNotExpired
		}

		m.IsResolved = true
		m.Outcome = outcome
		m.ResolvedTimestamp = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return event.Event{}, err
		}

		return event.NewMarketResolvedEvent(event.MarketResolvedPayloadV1{
			MarketID:          m.ID,
			Outcome:           string(outcome),
			Authority:         m.Authority,
			ResolvedTimestamp: now,
			TotalYesAmount:    m.TotalYesAmount,
			TotalNoAmount:     m.TotalNoAmount,
		}), nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Market resolved",
		"market_id", m.ID,
		"outcome", outcome,
		"total_yes", m.TotalYesAmount,
		"total_no", m.TotalNoAmount)
	return m, nil
}

// ClaimWinnings pays a winning stake its share of the market's total pool
func (e *Engine) ClaimWinnings(ctx context.Context, marketID, user string) (*StakeRecord, error) {
	var s *StakeRecord
	err := e.transition(ctx, OpClaimWinnings, func(tx Tx, now int64) (event.Event, error) {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return event.Event{}, err
		}
		if !m.IsResolved {
			return event.Event{}, ErrMarketNotResolved
		}
		if s, err = tx.Stake(ctx, m.ID, user); err != nil {
			return event.Event{}, err
		}
		if s.MarketID != m.ID {
			return event.Event{}, ErrStakeNotFound
		}
		if s.Claimed {
			return event.Event{}, ErrAlreadyClaimed
		}
		if s.Prediction != m.Outcome {
			return event.Event{}, ErrUserLost
		}

		winnings, err := CalculateWinnings(s.Amount, m.TotalYesAmount, m.TotalNoAmount, m.Outcome)
		if err != nil {
			return event.Event{}, err
		}

		if err := tx.Transfer(ctx, Transfer{
			From:     m.PoolAccount(),
			To:       user,
			Amount:   winnings,
			Kind:     TransferPayout,
			MarketID: m.ID,
		}); err != nil {
			return event.Event{}, fmt.Errorf("transfer payout: %w", err)
		}

		s.Claimed = true
		s.Winnings = winnings
		if err := tx.UpdateStake(ctx, s); err != nil {
			return event.Event{}, err
		}

		return event.NewWinningsClaimedEvent(event.WinningsClaimedPayloadV1{
			MarketID:   m.ID,
			User:       user,
			Amount:     s.Amount,
			Prediction: string(s.Prediction),
			Winnings:   winnings,
			Timestamp:  now,
		}), nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ValuePaidOut.Add(float64(s.Winnings))
	logger.FromContext(ctx).Info("Winnings claimed",
		"market_id", marketID,
		"user", user,
		"amount", s.Amount,
		"winnings", s.Winnings)
	return s, nil
}

// Protocol returns the protocol singleton
func (e *Engine) Protocol(ctx context.Context) (*ProtocolState, error) {
	var ps *ProtocolState
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		ps, err = tx.ProtocolState(ctx)
		return err
	})
	return ps, err
}

// Market returns a market by id
func (e *Engine) Market(ctx context.Context, id string) (*Market, error) {
	var m *Market
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		m, err = tx.Market(ctx, id)
		return err
	})
	return m, err
}

// Stake returns the stake record of user on a market
func (e *Engine) Stake(ctx context.Context, marketID, user string) (*StakeRecord, error) {
	var s *StakeRecord
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		s, err = tx.Stake(ctx, marketID, user)
		return err
	})
	return s, err
}
