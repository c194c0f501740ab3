package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"predictionledger/internal/event"
	"predictionledger/internal/ledger"
)

// sqlTx implements ledger.Tx on a single sqlite transaction
type sqlTx struct {
	tx    *sql.Tx
	store *Store
}

type rowScanner interface {
	Scan(dest ...any) error
}

const marketColumns = `id, description, end_timestamp, created_timestamp, resolved_timestamp,
	min_bet_amount, is_resolved, outcome, total_yes_amount, total_no_amount, total_participants, authority`

const stakeColumns = `market_id, participant, amount, prediction, timestamp, claimed, winnings`

func scanMarket(row rowScanner) (*ledger.Market, error) {
	var m ledger.Market
	var outcome string
	err := row.Scan(
		&m.ID,
		&m.Description,
		&m.EndTimestamp,
		&m.CreatedTimestamp,
		&m.ResolvedTimestamp,
		&m.MinBetAmount,
		&m.IsResolved,
		&outcome,
		&m.TotalYesAmount,
		&m.TotalNoAmount,
		&m.TotalParticipants,
		&m.Authority,
	)
	if err != nil {
		return nil, err
	}
	m.Outcome = ledger.Outcome(outcome)
	return &m, nil
}

func scanStake(row rowScanner) (*ledger.StakeRecord, error) {
	var s ledger.StakeRecord
	var prediction string
	err := row.Scan(
		&s.MarketID,
		&s.User,
		&s.Amount,
		&prediction,
		&s.Timestamp,
		&s.Claimed,
		&s.Winnings,
	)
	if err != nil {
		return nil, err
	}
	s.Prediction = ledger.Outcome(prediction)
	return &s, nil
}

// ProtocolState implements ledger.Tx
func (t *sqlTx) ProtocolState(ctx context.Context) (*ledger.ProtocolState, error) {
	var ps ledger.ProtocolState
	err := t.tx.QueryRowContext(ctx, `
		SELECT authority, total_markets, is_paused
		FROM protocol_state
		WHERE id = 1
	`).Scan(&ps.Authority, &ps.TotalMarkets, &ps.IsPaused)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrProtocolNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol state: %w", err)
	}
	return &ps, nil
}

// InsertProtocolState implements ledger.Tx
func (t *sqlTx) InsertProtocolState(ctx context.Context, ps *ledger.ProtocolState) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO protocol_state (id, authority, total_markets, is_paused)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ps.Authority, ps.TotalMarkets, ps.IsPaused)
	if err != nil {
		return fmt.Errorf("failed to insert protocol state: %w", err)
	}
	return requireInserted(res, ledger.ErrProtocolAlreadyInitialized)
}

// UpdateProtocolState implements ledger.Tx
func (t *sqlTx) UpdateProtocolState(ctx context.Context, ps *ledger.ProtocolState) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE protocol_state
		SET authority = ?, total_markets = ?, is_paused = ?
		WHERE id = 1
	`, ps.Authority, ps.TotalMarkets, ps.IsPaused)
	if err != nil {
		return fmt.Errorf("failed to update protocol state: %w", err)
	}
	return nil
}

// InsertMarket implements ledger.Tx
func (t *sqlTx) InsertMarket(ctx context.Context, m *ledger.Market) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO markets (`+marketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		m.ID,
		m.Description,
		m.EndTimestamp,
		m.CreatedTimestamp,
		m.ResolvedTimestamp,
		m.MinBetAmount,
		m.IsResolved,
		string(m.Outcome),
		m.TotalYesAmount,
		m.TotalNoAmount,
		m.TotalParticipants,
		m.Authority,
	)
	if err != nil {
		return fmt.Errorf("failed to insert market: %w", err)
	}
	return requireInserted(res, ledger.ErrMarketAlreadyExists)
}

// Market implements ledger.Tx. Resolved markets are served from the cache
// when present since they can no longer change.
func (t *sqlTx) Market(ctx context.Context, id string) (*ledger.Market, error) {
	if cached, ok := t.store.frozen.Get(id); ok {
		return &cached, nil
	}

	m, err := scanMarket(t.tx.QueryRowContext(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrMarketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

// UpdateMarket implements ledger.Tx
func (t *sqlTx) UpdateMarket(ctx context.Context, m *ledger.Market) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE markets
		SET resolved_timestamp = ?, is_resolved = ?, outcome = ?,
			total_yes_amount = ?, total_no_amount = ?, total_participants = ?
		WHERE id = ?
	`,
		m.ResolvedTimestamp,
		m.IsResolved,
		string(m.Outcome),
		m.TotalYesAmount,
		m.TotalNoAmount,
		m.TotalParticipants,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update market: %w", err)
	}
	return requireUpdated(res, ledger.ErrMarketNotFound)
}

// InsertStake implements ledger.Tx
func (t *sqlTx) InsertStake(ctx context.Context, s *ledger.StakeRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO stakes (`+stakeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, participant) DO NOTHING
	`, s.MarketID, s.User, s.Amount, string(s.Prediction), s.Timestamp, s.Claimed, s.Winnings)
	if err != nil {
		return fmt.Errorf("failed to insert stake: %w", err)
	}
	return requireInserted(res, ledger.ErrUserAlreadyPredicted)
}

// Stake implements ledger.Tx
func (t *sqlTx) Stake(ctx context.Context, marketID, user string) (*ledger.StakeRecord, error) {
	s, err := scanStake(t.tx.QueryRowContext(ctx, `
		SELECT `+stakeColumns+`
		FROM stakes
		WHERE market_id = ? AND participant = ?
	`, marketID, user))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrStakeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stake: %w", err)
	}
	return s, nil
}

// UpdateStake implements ledger.Tx. Only the claim state is mutable.
func (t *sqlTx) UpdateStake(ctx context.Context, s *ledger.StakeRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE stakes
		SET claimed = ?, winnings = ?
		WHERE market_id = ? AND participant = ?
	`, s.Claimed, s.Winnings, s.MarketID, s.User)
	if err != nil {
		return fmt.Errorf("failed to update stake: %w", err)
	}
	return requireUpdated(res, ledger.ErrStakeNotFound)
}

// Transfer implements ledger.Tx
func (t *sqlTx) Transfer(ctx context.Context, tr ledger.Transfer) error {
	if tr.Amount <= 0 {
		return fmt.Errorf("%w: %d", ledger.ErrInvalidTransferValue, tr.Amount)
	}
	if err := debit(ctx, t.tx, tr.From, tr.Amount); err != nil {
		return err
	}
	if err := credit(ctx, t.tx, tr.To, tr.Amount); err != nil {
		return err
	}
	return journal(ctx, t.tx, tr)
}

// AppendEvent implements ledger.Tx
func (t *sqlTx) AppendEvent(ctx context.Context, evt event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO events (id, type, market_id, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`, evt.ID, string(evt.Type), evt.MarketID, evt.Timestamp, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func debit(ctx context.Context, tx *sql.Tx, identity string, amount int64) error {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = ?`, identity).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, identity)
	}
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	if balance < amount {
		return fmt.Errorf("%w: balance %d, need %d", ledger.ErrInsufficientFunds, balance, amount)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE identity = ?`, balance-amount, identity); err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	return nil
}

// credit adds amount to an account, opening it at zero when absent
func credit(ctx context.Context, tx *sql.Tx, identity string, amount int64) error {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE identity = ?`, identity).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts (identity, balance, created_at)
			VALUES (?, ?, ?)
		`, identity, amount, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to open account: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to get balance: %w", err)
	}

	next, err := ledger.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE identity = ?`, next, identity); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

func journal(ctx context.Context, tx *sql.Tx, tr ledger.Transfer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transfers (from_identity, to_identity, amount, kind, market_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tr.From, tr.To, tr.Amount, string(tr.Kind), tr.MarketID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to journal transfer: %w", err)
	}
	return nil
}

func requireInserted(res sql.Result, collision error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return collision
	}
	return nil
}

func requireUpdated(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
