package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"predictionledger/internal/ledger"
)

// MintIdentity is the source recorded for value created by welcome bonuses
const MintIdentity = "mint"

// OpenAccount creates an account for identity credited with bonus. It is
// idempotent: an existing account is returned unchanged with created=false.
func (s *Store) OpenAccount(ctx context.Context, identity string, bonus int64) (*Account, bool, error) {
	if strings.TrimSpace(identity) == "" || strings.HasPrefix(identity, ledger.PoolAccountPrefix) || identity == MintIdentity {
		return nil, false, fmt.Errorf("%w: %q", ledger.ErrInvalidIdentity, identity)
	}
	if bonus < 0 {
		return nil, false, fmt.Errorf("%w: negative bonus", ledger.ErrInvalidTransferValue)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (identity, balance, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(identity) DO NOTHING
	`, identity, bonus, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	created := n == 1

	if created && bonus > 0 {
		if err := journal(ctx, tx, ledger.Transfer{
			From:   MintIdentity,
			To:     identity,
			Amount: bonus,
			Kind:   ledger.TransferWelcomeBonus,
		}); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	acct, err := s.Account(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	return acct, created, nil
}

// Account returns the account of identity
func (s *Store) Account(ctx context.Context, identity string) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, balance, created_at
		FROM accounts
		WHERE identity = ?
	`, identity).Scan(&a.Identity, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// Balance returns the balance of identity, zero when it has no account
func (s *Store) Balance(ctx context.Context, identity string) (int64, error) {
	a, err := s.Account(ctx, identity)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// Transfers returns journal entries touching identity, newest first
func (s *Store) Transfers(ctx context.Context, identity string, opts ListOpts) ([]TransferEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_identity, to_identity, amount, kind, market_id, created_at
		FROM transfers
		WHERE from_identity = ? OR to_identity = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, identity, identity, opts.limit(), opts.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var entries []TransferEntry
	for rows.Next() {
		var e TransferEntry
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Amount, &e.Kind, &e.MarketID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return entries, nil
}

// TopAccounts returns participant accounts ordered by balance, excluding market pools
func (s *Store) TopAccounts(ctx context.Context, limit int) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, balance, created_at
		FROM accounts
		WHERE identity NOT LIKE ?
		ORDER BY balance DESC, created_at ASC
		LIMIT ?
	`, ledger.PoolAccountPrefix+"%", ListOpts{Limit: limit}.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to list top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Identity, &a.Balance, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}
