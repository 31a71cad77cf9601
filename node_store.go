package main

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

type Node struct {
	ID               int64
	UserID           int64
	IP               string
	Port             int
	ConnectionString string
	CreatedAt        time.Time
}

type nodeStore struct {
	db      *sql.DB
	timeout time.Duration
}

func newNodeStore(db *sql.DB, timeout time.Duration) *nodeStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &nodeStore{db: db, timeout: timeout}
}

func (s *nodeStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Add registers a node endpoint for the user and returns its stable id.
// The UNIQUE(user_id, ip) constraint turns a duplicate IP into errConflict
// atomically; the port is not part of the identity.
func (s *nodeStore) Add(ctx context.Context, userID int64, ip string, port int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ip = strings.TrimSpace(ip)
	connectionString := ip + ":" + strconv.Itoa(port)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (user_id, ip, port, connection_string, created_at_unix)
		VALUES (?, ?, ?, ?, ?)
	`, userID, ip, port, connectionString, time.Now().Unix())
	if err != nil {
		return 0, mapStorageErr(err, true)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, mapStorageErr(err, true)
	}
	return id, nil
}

// ByUser returns the user's nodes in insertion order.
func (s *nodeStore) ByUser(ctx context.Context, userID int64) ([]Node, error) {
	if s == nil || s.db == nil {
		return nil, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, user_id, ip, port, connection_string, created_at_unix
		FROM nodes WHERE user_id = ? ORDER BY node_id
	`, userID)
	if err != nil {
		return nil, mapStorageErr(err, false)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var (
			n           Node
			createdUnix int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.IP, &n.Port, &n.ConnectionString, &createdUnix); err != nil {
			return nil, mapStorageErr(err, false)
		}
		if createdUnix > 0 {
			n.CreatedAt = time.Unix(createdUnix, 0)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err, false)
	}
	return out, nil
}

// Remove deletes the node only when it belongs to userID. Removal is keyed
// by the stable node id handed out at registration, never by list position.
func (s *nodeStore) Remove(ctx context.Context, userID, nodeID int64) error {
	if s == nil || s.db == nil {
		return errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM nodes WHERE node_id = ? AND user_id = ?", nodeID, userID)
	if err != nil {
		return mapStorageErr(err, true)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errNotFound
	}
	return nil
}

func (s *nodeStore) CountAll(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&count); err != nil {
		return 0, mapStorageErr(err, false)
	}
	return count, nil
}

// LastSeen returns the most recent ping for the IP. ok is false when no
// ping was ever recorded. Matching is by raw IP string; duplicate IPs
// across users share one heartbeat history.
func (s *nodeStore) LastSeen(ctx context.Context, ip string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, errUnavailable
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(timestamp_ms) FROM pings WHERE ip = ?", strings.TrimSpace(ip)).Scan(&latest); err != nil {
		return time.Time{}, false, mapStorageErr(err, false)
	}
	if !latest.Valid || latest.Int64 <= 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(latest.Int64), true, nil
}
