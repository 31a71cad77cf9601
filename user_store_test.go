package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openStateDB(t.TempDir() + "/state.db")
	if err != nil {
		t.Fatalf("openStateDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testUser(email string) User {
	return User{
		Email:         email,
		PasswordHash:  "$2a$10$examplehashexamplehashexamplehashexampleha",
		Wallet:        "LCexamplewalletaddress",
		Name:          "Test User",
		Role:          "user",
		ValidationKey: "00112233445566778899aabbccddeeff",
	}
}

func TestUserStoreCreateMakesZeroShareRow(t *testing.T) {
	db := newTestDB(t)
	store := newUserStore(db, time.Second)

	id, err := store.Create(context.Background(), testUser("alice@example.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive user id, got %d", id)
	}

	ledger := newLedgerStore(db, time.Second)
	rec, err := ledger.ShareByUser(context.Background(), id)
	if err != nil {
		t.Fatalf("ShareByUser after signup: %v", err)
	}
	if rec.Shares != 0 || rec.Percent != 0 {
		t.Fatalf("new account share row should be zero, got %+v", rec)
	}
}

func TestUserStoreDuplicateEmailConflicts(t *testing.T) {
	db := newTestDB(t)
	store := newUserStore(db, time.Second)

	if _, err := store.Create(context.Background(), testUser("bob@example.com")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	// Same address with different case must hit the same UNIQUE row.
	_, err := store.Create(context.Background(), testUser("BOB@Example.com"))
	if !errors.Is(err, errConflict) {
		t.Fatalf("duplicate email: got %v want errConflict", err)
	}
}

func TestUserStoreByEmailNormalizes(t *testing.T) {
	db := newTestDB(t)
	store := newUserStore(db, time.Second)

	id, err := store.Create(context.Background(), testUser("carol@example.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	u, err := store.ByEmail(context.Background(), "  Carol@Example.COM ")
	if err != nil {
		t.Fatalf("ByEmail: %v", err)
	}
	if u.ID != id {
		t.Fatalf("ByEmail id: got %d want %d", u.ID, id)
	}
	if u.Email != "carol@example.com" {
		t.Fatalf("stored email not lowercased: %q", u.Email)
	}
}

func TestUserStoreMissingUser(t *testing.T) {
	db := newTestDB(t)
	store := newUserStore(db, time.Second)

	if _, err := store.ByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, errNotFound) {
		t.Fatalf("ByEmail missing: got %v want errNotFound", err)
	}
	if _, err := store.ByID(context.Background(), 999); !errors.Is(err, errNotFound) {
		t.Fatalf("ByID missing: got %v want errNotFound", err)
	}
}

func TestUserStoreTouchSeen(t *testing.T) {
	db := newTestDB(t)
	store := newUserStore(db, time.Second)

	id, err := store.Create(context.Background(), testUser("dave@example.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seen := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := store.TouchSeen(context.Background(), id, seen); err != nil {
		t.Fatalf("TouchSeen: %v", err)
	}
	u, err := store.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if !u.Seen.Equal(seen) {
		t.Fatalf("seen: got %v want %v", u.Seen, seen)
	}
}
