package main

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// ShareRecord is a user's cumulative share count and scaled pool percentage
// (percent is scaled by sharePercentScale, so 1_000_000 == 100%).
type ShareRecord struct {
	UserID  int64
	Shares  int64
	Percent int64
}

type Payment struct {
	TimestampMS int64
	Amount      int64
	Hash        string
}

// ledgerStore covers the append-only pool data written by the external pool
// core: shares, payments, pings, and per-round wallet snapshots.
type ledgerStore struct {
	db      *sql.DB
	timeout time.Duration
}

func newLedgerStore(db *sql.DB, timeout time.Duration) *ledgerStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ledgerStore{db: db, timeout: timeout}
}

func (s *ledgerStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ShareByUser returns the user's share row or errNotFound. A missing row is
// an error, never a silent zero record.
func (s *ledgerStore) ShareByUser(ctx context.Context, userID int64) (ShareRecord, error) {
	if s == nil || s.db == nil {
		return ShareRecord{}, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var rec ShareRecord
	if err := s.db.QueryRowContext(ctx, `
		SELECT user_id, shares, percent FROM shares WHERE user_id = ? LIMIT 1
	`, userID).Scan(&rec.UserID, &rec.Shares, &rec.Percent); err != nil {
		if err == sql.ErrNoRows {
			return ShareRecord{}, errNotFound
		}
		return ShareRecord{}, mapStorageErr(err, false)
	}
	return rec, nil
}

func (s *ledgerStore) SetShares(ctx context.Context, userID, shares, percent int64, now time.Time) error {
	if s == nil || s.db == nil {
		return errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (user_id, shares, percent, updated_at_unix)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			shares = excluded.shares,
			percent = excluded.percent,
			updated_at_unix = excluded.updated_at_unix
	`, userID, shares, percent, now.Unix())
	return mapStorageErr(err, true)
}

// PaymentsByUser returns the user's payout ledger, newest first.
func (s *ledgerStore) PaymentsByUser(ctx context.Context, userID int64) ([]Payment, error) {
	if s == nil || s.db == nil {
		return nil, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, amount, hash FROM payments
		WHERE user_id = ? ORDER BY timestamp_ms DESC
	`, userID)
	if err != nil {
		return nil, mapStorageErr(err, false)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.TimestampMS, &p.Amount, &p.Hash); err != nil {
			return nil, mapStorageErr(err, false)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err, false)
	}
	return out, nil
}

func (s *ledgerStore) RecordPayment(ctx context.Context, userID, timestampMS, amount int64, hash string) error {
	if s == nil || s.db == nil {
		return errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (user_id, timestamp_ms, amount, hash)
		VALUES (?, ?, ?, ?)
	`, userID, timestampMS, amount, strings.TrimSpace(hash))
	return mapStorageErr(err, true)
}

func (s *ledgerStore) RecordPing(ctx context.Context, ip string, timestampMS int64) error {
	if s == nil || s.db == nil {
		return errUnavailable
	}
	ip = strings.TrimSpace(ip)
	if ip == "" || timestampMS <= 0 {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "INSERT INTO pings (ip, timestamp_ms) VALUES (?, ?)", ip, timestampMS)
	return mapStorageErr(err, true)
}

// RoundAmounts returns the wallet snapshot amounts recorded under the given
// round nonce.
func (s *ledgerStore) RoundAmounts(ctx context.Context, nonce string) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT amount FROM wallet WHERE nonce = ? ORDER BY entry_id", strings.TrimSpace(nonce))
	if err != nil {
		return nil, mapStorageErr(err, false)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount); err != nil {
			return nil, mapStorageErr(err, false)
		}
		out = append(out, amount)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err, false)
	}
	return out, nil
}

func (s *ledgerStore) AddRoundAmount(ctx context.Context, nonce string, amount int64) error {
	if s == nil || s.db == nil {
		return errUnavailable
	}
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "INSERT INTO wallet (nonce, amount) VALUES (?, ?)", nonce, amount)
	return mapStorageErr(err, true)
}
