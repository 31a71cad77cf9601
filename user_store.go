package main

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type User struct {
	ID            int64
	Email         string
	PasswordHash  string
	Wallet        string
	Name          string
	Role          string
	ValidationKey string
	Seen          time.Time
	CreatedAt     time.Time
}

type userStore struct {
	db      *sql.DB
	timeout time.Duration
}

func newUserStore(db *sql.DB, timeout time.Duration) *userStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &userStore{db: db, timeout: timeout}
}

func (s *userStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Create inserts the user and its zero-valued share row in one transaction.
// A duplicate email surfaces as errConflict without a separate lookup; the
// UNIQUE constraint is the arbiter.
func (s *userStore) Create(ctx context.Context, u User) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapStorageErr(err, true)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, wallet, name, role, validation_key, seen_unix, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.Wallet, u.Name, u.Role, u.ValidationKey, now.Unix(), now.Unix())
	if err != nil {
		return 0, mapStorageErr(err, true)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, mapStorageErr(err, true)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO shares (user_id, shares, percent, updated_at_unix)
		VALUES (?, 0, 0, ?)
	`, id, now.Unix()); err != nil {
		return 0, mapStorageErr(err, true)
	}
	if err := tx.Commit(); err != nil {
		return 0, mapStorageErr(err, true)
	}
	return id, nil
}

func (s *userStore) ByEmail(ctx context.Context, email string) (User, error) {
	if s == nil || s.db == nil {
		return User{}, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, password_hash, wallet, name, role, validation_key, seen_unix, created_at_unix
		FROM users WHERE email = ? LIMIT 1
	`, email)
	return scanUser(row)
}

func (s *userStore) ByID(ctx context.Context, id int64) (User, error) {
	if s == nil || s.db == nil {
		return User{}, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, password_hash, wallet, name, role, validation_key, seen_unix, created_at_unix
		FROM users WHERE user_id = ? LIMIT 1
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var (
		u           User
		seenUnix    int64
		createdUnix int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Wallet, &u.Name, &u.Role, &u.ValidationKey, &seenUnix, &createdUnix); err != nil {
		if err == sql.ErrNoRows {
			return User{}, errNotFound
		}
		return User{}, mapStorageErr(err, false)
	}
	if seenUnix > 0 {
		u.Seen = time.Unix(seenUnix, 0)
	}
	if createdUnix > 0 {
		u.CreatedAt = time.Unix(createdUnix, 0)
	}
	return u, nil
}

func (s *userStore) TouchSeen(ctx context.Context, id int64, now time.Time) error {
	if s == nil || s.db == nil {
		return errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "UPDATE users SET seen_unix = ? WHERE user_id = ?", now.Unix(), id)
	return mapStorageErr(err, true)
}
