package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/martinhoefling/goxkcdpwgen/xkcdpwgen"
	"golang.org/x/crypto/bcrypt"
)

type signupInput struct {
	Name          string
	Email         string
	Wallet        string
	Password      string
	Confirm       string
	AcceptedTerms bool
}

// signupResult carries the created user plus the recovery phrase, which is
// shown once at signup and never persisted or logged.
type signupResult struct {
	User           User
	RecoveryPhrase string
}

func generateValidationKey() string {
	buf := make([]byte, validationKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		fatal("validation key entropy", err)
	}
	return hex.EncodeToString(buf)
}

func generateRecoveryPhraseXKCD() string {
	g := xkcdpwgen.NewGenerator()
	g.SetNumWords(4)
	g.SetCapitalize(false)
	g.SetDelimiter("-")
	return strings.TrimSpace(g.GeneratePasswordString())
}

var recoveryPhraseGenerator = generateRecoveryPhraseXKCD

// registerUser validates the signup form, hashes the password, and persists
// the user with a fresh validation key. All field problems are collected
// into one validationFailure so the form can show every message at once.
func registerUser(ctx context.Context, users *userStore, cfg Config, in signupInput) (signupResult, error) {
	if !cfg.RegistrationOpen {
		return signupResult{}, newValidationFailure("Registration is currently closed. Please check back another time.")
	}

	var msgs []string
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Wallet = strings.TrimSpace(in.Wallet)

	if in.Name == "" {
		msgs = append(msgs, "Please enter a valid name.")
	}
	if in.Email == "" {
		msgs = append(msgs, "Please enter a valid email.")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		msgs = append(msgs, "Please enter a valid email.")
	}
	if err := validateWalletAddress(in.Wallet, cfg.WalletAddressPrefix, cfg.WalletAddressLength); err != nil {
		msgs = append(msgs, "Please enter a valid "+coinTicker+" address.")
	}
	if len(in.Password) < passwordMinLen || len(in.Password) > passwordMaxLen {
		msgs = append(msgs, "Please enter a valid password.")
	}
	if in.Confirm == "" || in.Confirm != in.Password {
		msgs = append(msgs, "Please confirm your new password.")
	}
	if !in.AcceptedTerms {
		msgs = append(msgs, "Please accept the terms.")
	}
	if len(msgs) > 0 {
		return signupResult{}, &validationFailure{msgs: msgs}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cfg.BcryptCost)
	if err != nil {
		return signupResult{}, err
	}

	u := User{
		Email:         strings.ToLower(in.Email),
		PasswordHash:  string(hash),
		Wallet:        in.Wallet,
		Name:          in.Name,
		Role:          "user",
		ValidationKey: generateValidationKey(),
	}
	id, err := users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, errConflict) {
			return signupResult{}, errConflict
		}
		return signupResult{}, err
	}
	u.ID = id

	return signupResult{
		User:           u,
		RecoveryPhrase: recoveryPhraseGenerator(),
	}, nil
}

// dummyPasswordHash is compared against when no user matches the email, so
// login latency does not reveal whether an account exists.
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// loginUser authenticates by email and password. Unknown email and wrong
// password return the same errUnauthorized; nothing distinguishes the two.
func loginUser(ctx context.Context, users *userStore, email, password string) (User, error) {
	u, err := users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return User{}, errUnauthorized
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, errUnauthorized
	}
	if err := users.TouchSeen(ctx, u.ID, time.Now()); err != nil {
		logger.Warn("update last-seen failed", "error", err)
	}
	return u, nil
}
