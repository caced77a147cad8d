package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/mail"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	resetTokenTTL     = 10 * time.Minute
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetActiveByID(ctx context.Context, id bson.ObjectID) (types.Account, error)
	GetActiveByEmail(ctx context.Context, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, id bson.ObjectID, update store.AccountUpdate) (types.Account, error)
	SetPassword(ctx context.Context, id bson.ObjectID, hash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id bson.ObjectID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id bson.ObjectID) error
	RedeemResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (types.Account, error)
	Deactivate(ctx context.Context, id bson.ObjectID) error
	List(ctx context.Context, opts query.Options) ([]types.Account, int, error)
	Delete(ctx context.Context, id bson.ObjectID) error
}

// AccountService encapsulates account and credential use-cases.
//
// Two mail senders are injected on purpose: notify is the queue-backed
// fire-and-forget path for welcome mail, while resetMail must be
// synchronous because a failed send has to roll the pending reset back.
type AccountService struct {
	repo      AccountRepository
	notify    mail.Sender
	resetMail mail.Sender
	logger    *slog.Logger
	now       func() time.Time
}

func NewAccountService(repo AccountRepository, notify, resetMail mail.Sender, logger *slog.Logger, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		repo:      repo,
		notify:    notify,
		resetMail: resetMail,
		logger:    logger,
		now:       now,
	}
}

// Signup creates a new account with the default role. The client cannot
// choose a role. A welcome mail is dispatched fire-and-forget.
func (s *AccountService) Signup(ctx context.Context, name, email, password, accountURL string) (types.Account, error) {
	name = strings.TrimSpace(name)
	email, err := normalizeEmail(email)
	if err != nil {
		return types.Account{}, err
	}
	if name == "" {
		return types.Account{}, invalidf("name is required")
	}
	if err := validatePassword(password); err != nil {
		return types.Account{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Account{}, err
	}

	account, err := s.repo.Create(ctx, types.Account{
		Name:         name,
		Email:        email,
		Role:         types.RoleUser,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.Account{}, err
	}

	if s.notify != nil {
		msg := mail.Message{
			Kind: mail.KindWelcome,
			To:   account.Email,
			Name: account.Name,
			URL:  accountURL,
		}
		if err := s.notify.Send(ctx, msg); err != nil {
			s.logger.Warn("welcome mail dispatch failed", "email", account.Email, "err", err)
		}
	}
	return account, nil
}

// Authenticate verifies an email/password pair. An unknown email and a
// wrong password are indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (types.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return types.Account{}, auth.ErrInvalidCredential
	}

	account, err := s.repo.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, auth.ErrInvalidCredential
		}
		return types.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return types.Account{}, auth.ErrInvalidCredential
	}
	return account, nil
}

// ResolveSession loads the account a verified session credential refers to
// and applies the revocation rules: the account must still be active, and
// the password must not have changed after the credential was issued.
func (s *AccountService) ResolveSession(ctx context.Context, sess auth.Session) (types.Account, error) {
	id, err := bson.ObjectIDFromHex(sess.AccountID)
	if err != nil {
		return types.Account{}, auth.ErrAccountNotFound
	}

	account, err := s.repo.GetActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, auth.ErrAccountNotFound
		}
		return types.Account{}, err
	}
	if account.PasswordChangedAfter(sess.IssuedAt) {
		return types.Account{}, auth.ErrStaleCredential
	}
	return account, nil
}

// ChangePassword replaces the password of an authenticated account after
// verifying the current one. Every credential issued before this moment
// becomes stale.
func (s *AccountService) ChangePassword(ctx context.Context, id bson.ObjectID, current, replacement string) (types.Account, error) {
	account, err := s.repo.GetActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, auth.ErrAccountNotFound
		}
		return types.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return types.Account{}, auth.ErrInvalidCredential
	}
	if err := validatePassword(replacement); err != nil {
		return types.Account{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(replacement), bcrypt.DefaultCost)
	if err != nil {
		return types.Account{}, err
	}

	// JWT issued-at has second precision, so the change time is truncated
	// to seconds; a token minted right after the change is never stale.
	changedAt := s.now().Truncate(time.Second)
	if err := s.repo.SetPassword(ctx, id, string(hashed), changedAt); err != nil {
		return types.Account{}, err
	}
	account.PasswordHash = string(hashed)
	account.PasswordChangedAt = changedAt
	return account, nil
}

// RequestPasswordReset starts the reset flow: it stores the hash of a
// fresh one-time secret with a short expiry and mails the plaintext inside
// a redemption URL. If the mail cannot be sent the pending reset is rolled
// back so it can never be redeemed.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email, resetBaseURL string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return store.ErrNotFound
	}
	account, err := s.repo.GetActiveByEmail(ctx, email)
	if err != nil {
		return err
	}

	plaintext, tokenHash, err := auth.NewResetSecret()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(resetTokenTTL)
	if err := s.repo.SetResetToken(ctx, account.ID, tokenHash, expiresAt); err != nil {
		return err
	}

	msg := mail.Message{
		Kind: mail.KindPasswordReset,
		To:   account.Email,
		Name: account.Name,
		URL:  fmt.Sprintf("%s/%s", strings.TrimRight(resetBaseURL, "/"), plaintext),
	}
	if err := s.resetMail.Send(ctx, msg); err != nil {
		if clearErr := s.repo.ClearResetToken(ctx, account.ID); clearErr != nil {
			s.logger.Error("reset rollback failed", "email", account.Email, "err", clearErr)
		}
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// RedeemPasswordReset consumes a reset secret exactly once: the new
// password is set and the reset fields cleared in a single store
// operation. A wrong and an expired secret produce the same error.
func (s *AccountService) RedeemPasswordReset(ctx context.Context, plaintext, password string) (types.Account, error) {
	if err := validatePassword(password); err != nil {
		return types.Account{}, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Account{}, err
	}

	account, err := s.repo.RedeemResetToken(
		ctx,
		auth.HashResetSecret(plaintext),
		string(hashed),
		s.now().Truncate(time.Second),
	)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, auth.ErrInvalidOrExpiredToken
		}
		return types.Account{}, err
	}
	return account, nil
}

// UpdateProfile changes name, email, or photo. Password and role updates
// go through their dedicated operations.
func (s *AccountService) UpdateProfile(ctx context.Context, id bson.ObjectID, name, email, photo *string) (types.Account, error) {
	update := store.AccountUpdate{Name: name, Photo: photo}
	if email != nil {
		normalized, err := normalizeEmail(*email)
		if err != nil {
			return types.Account{}, err
		}
		update.Email = &normalized
	}
	return s.repo.Update(ctx, id, update)
}

// Deactivate soft-deletes the account.
func (s *AccountService) Deactivate(ctx context.Context, id bson.ObjectID) error {
	return s.repo.Deactivate(ctx, id)
}

func (s *AccountService) Get(ctx context.Context, id bson.ObjectID) (types.Account, error) {
	return s.repo.GetActiveByID(ctx, id)
}

func (s *AccountService) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return types.Account{}, store.ErrNotFound
	}
	return s.repo.GetActiveByEmail(ctx, normalized)
}

func (s *AccountService) List(ctx context.Context, opts query.Options) ([]types.Account, int, error) {
	return s.repo.List(ctx, opts)
}

// AdminUpdate lets staff change name, email, role, or the active flag.
func (s *AccountService) AdminUpdate(ctx context.Context, id bson.ObjectID, update store.AccountUpdate) (types.Account, error) {
	if update.Role != nil && !types.ValidRole(*update.Role) {
		return types.Account{}, invalidf("invalid role %q", *update.Role)
	}
	if update.Email != nil {
		normalized, err := normalizeEmail(*update.Email)
		if err != nil {
			return types.Account{}, err
		}
		update.Email = &normalized
	}
	return s.repo.Update(ctx, id, update)
}

func (s *AccountService) Delete(ctx context.Context, id bson.ObjectID) error {
	return s.repo.Delete(ctx, id)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := netmail.ParseAddress(email); err != nil {
		return "", invalidf("invalid email address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return invalidf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}
