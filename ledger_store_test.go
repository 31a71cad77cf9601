package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLedgerShareByUserMissingRow(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedgerStore(db, time.Second)

	if _, err := ledger.ShareByUser(context.Background(), 12345); !errors.Is(err, errNotFound) {
		t.Fatalf("missing share row: got %v want errNotFound", err)
	}
}

func TestLedgerSetSharesUpserts(t *testing.T) {
	db := newTestDB(t)
	users := newUserStore(db, time.Second)
	ledger := newLedgerStore(db, time.Second)

	id, err := users.Create(context.Background(), testUser("shares@example.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := ledger.SetShares(context.Background(), id, 10, 50000, time.Now()); err != nil {
		t.Fatalf("SetShares: %v", err)
	}
	if err := ledger.SetShares(context.Background(), id, 25, 120000, time.Now()); err != nil {
		t.Fatalf("SetShares update: %v", err)
	}

	rec, err := ledger.ShareByUser(context.Background(), id)
	if err != nil {
		t.Fatalf("ShareByUser: %v", err)
	}
	if rec.Shares != 25 || rec.Percent != 120000 {
		t.Fatalf("share row not updated: %+v", rec)
	}
}

func TestLedgerPaymentsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	users := newUserStore(db, time.Second)
	ledger := newLedgerStore(db, time.Second)

	id, err := users.Create(context.Background(), testUser("payments@example.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	base := time.Now().UnixMilli()
	if err := ledger.RecordPayment(context.Background(), id, base-1000, 100, "tx-old"); err != nil {
		t.Fatalf("RecordPayment old: %v", err)
	}
	if err := ledger.RecordPayment(context.Background(), id, base, 200, "tx-new"); err != nil {
		t.Fatalf("RecordPayment new: %v", err)
	}

	out, err := ledger.PaymentsByUser(context.Background(), id)
	if err != nil {
		t.Fatalf("PaymentsByUser: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("payment count: got %d want 2", len(out))
	}
	if out[0].Hash != "tx-new" || out[1].Hash != "tx-old" {
		t.Fatalf("payments not newest first: %q, %q", out[0].Hash, out[1].Hash)
	}
}

func TestLedgerRoundAmountsScopedByNonce(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedgerStore(db, time.Second)

	now := time.Now()
	current := roundNonce(now)
	previous := roundNonce(now.Add(-time.Hour))

	if err := ledger.AddRoundAmount(context.Background(), current, 100000000); err != nil {
		t.Fatalf("AddRoundAmount: %v", err)
	}
	if err := ledger.AddRoundAmount(context.Background(), current, 50000000); err != nil {
		t.Fatalf("AddRoundAmount: %v", err)
	}
	if err := ledger.AddRoundAmount(context.Background(), previous, 999999999); err != nil {
		t.Fatalf("AddRoundAmount previous: %v", err)
	}

	amounts, err := ledger.RoundAmounts(context.Background(), current)
	if err != nil {
		t.Fatalf("RoundAmounts: %v", err)
	}
	if len(amounts) != 2 {
		t.Fatalf("round amounts: got %d rows want 2", len(amounts))
	}
	var sum int64
	for _, a := range amounts {
		sum += a
	}
	if sum != 150000000 {
		t.Fatalf("round sum: got %d want 150000000", sum)
	}

	empty, err := ledger.RoundAmounts(context.Background(), roundNonce(now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("RoundAmounts empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("future round should be empty, got %d rows", len(empty))
	}
}

func TestLedgerRecordPingIgnoresBlankIP(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedgerStore(db, time.Second)

	if err := ledger.RecordPing(context.Background(), "  ", time.Now().UnixMilli()); err != nil {
		t.Fatalf("blank ip should be a no-op: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM pings").Scan(&count); err != nil {
		t.Fatalf("count pings: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no ping rows, got %d", count)
	}
}
