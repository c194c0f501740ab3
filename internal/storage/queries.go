package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"predictionledger/internal/ledger"
)

// Market returns a market by id. Resolved markets are cached.
func (s *Store) Market(ctx context.Context, id string) (*ledger.Market, error) {
	if cached, ok := s.frozen.Get(id); ok {
		return &cached, nil
	}

	m, err := scanMarket(s.db.QueryRowContext(ctx, `
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

	if m.IsResolved {
		s.frozen.Add(m.ID, *m)
	}
	return m, nil
}

// ListMarkets returns markets ordered by end timestamp. With openOnly set,
// only unresolved markets still accepting stakes at now are returned.
func (s *Store) ListMarkets(ctx context.Context, openOnly bool, now int64, opts ListOpts) ([]ledger.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	args := []any{}
	if openOnly {
		query += ` WHERE is_resolved = 0 AND end_timestamp > ?`
		args = append(args, now)
	}
	query += ` ORDER BY end_timestamp ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, opts.limit(), opts.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// MarketsAwaitingResolution returns unresolved markets whose stake window has
// closed and whose authority has not been notified yet.
func (s *Store) MarketsAwaitingResolution(ctx context.Context, now int64, limit int) ([]ledger.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE is_resolved = 0
		AND end_timestamp <= ?
		AND id NOT IN (SELECT market_id FROM deadline_notices)
		ORDER BY end_timestamp ASC
		LIMIT ?
	`, now, ListOpts{Limit: limit}.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// MarkDeadlineNotified records that the authority of a market was told it can resolve
func (s *Store) MarkDeadlineNotified(ctx context.Context, marketID string, at int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deadline_notices (market_id, notified_at)
		VALUES (?, ?)
		ON CONFLICT(market_id) DO NOTHING
	`, marketID, at)
	if err != nil {
		return fmt.Errorf("failed to mark deadline notified: %w", err)
	}
	return nil
}

func collectMarkets(rows *sql.Rows) ([]ledger.Market, error) {
	var markets []ledger.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating markets: %w", err)
	}
	return markets, nil
}

// ListStakes returns every stake record of a market
func (s *Store) ListStakes(ctx context.Context, marketID string) ([]ledger.StakeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stakeColumns+`
		FROM stakes
		WHERE market_id = ?
		ORDER BY timestamp ASC, participant ASC
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stakes: %w", err)
	}
	defer rows.Close()
	return collectStakes(rows)
}

// ListUserStakes returns the stake records of a participant, newest first
func (s *Store) ListUserStakes(ctx context.Context, user string, opts ListOpts) ([]ledger.StakeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stakeColumns+`
		FROM stakes
		WHERE participant = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, user, opts.limit(), opts.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list user stakes: %w", err)
	}
	defer rows.Close()
	return collectStakes(rows)
}

func collectStakes(rows *sql.Rows) ([]ledger.StakeRecord, error) {
	var stakes []ledger.StakeRecord
	for rows.Next() {
		s, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stake: %w", err)
		}
		stakes = append(stakes, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stakes: %w", err)
	}
	return stakes, nil
}

// Events returns outbox events with seq greater than afterSeq, oldest first
func (s *Store) Events(ctx context.Context, afterSeq int64, limit int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, type, market_id, timestamp, payload
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, ListOpts{Limit: limit}.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &e.MarketID, &e.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
