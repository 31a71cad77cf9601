package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/minio/sha256-simd"
)

const sessionCookieName = "senseinode_session"

// sessionService issues and validates signed session tokens. Tokens are
// HS256 JWTs; only their SHA-256 digest is stored, so the table supports
// revocation without ever holding a usable credential.
type sessionService struct {
	db      *sql.DB
	secret  []byte
	ttl     time.Duration
	timeout time.Duration
}

func newSessionService(db *sql.DB, secret string, ttl, timeout time.Duration) *sessionService {
	return &sessionService{
		db:      db,
		secret:  []byte(secret),
		ttl:     ttl,
		timeout: timeout,
	}
}

func (s *sessionService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a session token for the user and records its digest.
func (s *sessionService) Issue(ctx context.Context, userID int64) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    softwareName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err = s.db.ExecContext(opCtx,
		`INSERT INTO sessions (token_sha256, user_id, expires_at_unix) VALUES (?, ?, ?)`,
		tokenDigest(token), userID, expires.Unix())
	if err != nil {
		return "", time.Time{}, mapStorageErr(err, true)
	}
	return token, expires, nil
}

// UserID validates a presented token: signature, issuer, expiry, and the
// revocation table. Any failure is errUnauthorized; callers never learn why.
func (s *sessionService) UserID(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, errUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(softwareName),
	)
	if err != nil || !parsed.Valid {
		return 0, errUnauthorized
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errUnauthorized
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	var expiresUnix int64
	err = s.db.QueryRowContext(opCtx,
		`SELECT expires_at_unix FROM sessions WHERE token_sha256 = ?`,
		tokenDigest(token)).Scan(&expiresUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errUnauthorized
		}
		return 0, mapStorageErr(err, false)
	}
	if time.Now().Unix() >= expiresUnix {
		return 0, errUnauthorized
	}
	return userID, nil
}

// Revoke removes the digest row; the token stops working immediately even
// though its signature stays valid until expiry.
func (s *sessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(opCtx,
		`DELETE FROM sessions WHERE token_sha256 = ?`, tokenDigest(token))
	return mapStorageErr(err, true)
}

func (s *sessionService) purgeExpired(ctx context.Context) (int64, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(opCtx,
		`DELETE FROM sessions WHERE expires_at_unix <= ?`, time.Now().Unix())
	if err != nil {
		return 0, mapStorageErr(err, true)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// startSessionJanitor deletes expired session rows hourly until ctx ends.
func (s *sessionService) startSessionJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := s.purgeExpired(ctx)
				if err != nil {
					logger.Warn("session purge failed", "error", err)
					continue
				}
				if purged > 0 {
					logger.Debug("purged expired sessions", "count", purged)
				}
			}
		}
	}()
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
