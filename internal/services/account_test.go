package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/mail"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// fakeAccountRepo is an in-memory AccountRepository.
type fakeAccountRepo struct {
	accounts map[bson.ObjectID]types.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[bson.ObjectID]types.Account{}}
}

func (f *fakeAccountRepo) GetActiveByID(_ context.Context, id bson.ObjectID) (types.Account, error) {
	account, ok := f.accounts[id]
	if !ok || !account.Active {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccountRepo) GetActiveByEmail(_ context.Context, email string) (types.Account, error) {
	for _, account := range f.accounts {
		if account.Email == email && account.Active {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeAccountRepo) Create(_ context.Context, account types.Account) (types.Account, error) {
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return types.Account{}, store.ErrDuplicate
		}
	}
	account.ID = bson.NewObjectID()
	account.Active = true
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeAccountRepo) Update(_ context.Context, id bson.ObjectID, update store.AccountUpdate) (types.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	if update.Name != nil {
		account.Name = *update.Name
	}
	if update.Email != nil {
		account.Email = *update.Email
	}
	if update.Photo != nil {
		account.Photo = *update.Photo
	}
	if update.Role != nil {
		account.Role = *update.Role
	}
	if update.Active != nil {
		account.Active = *update.Active
	}
	f.accounts[id] = account
	return account, nil
}

func (f *fakeAccountRepo) SetPassword(_ context.Context, id bson.ObjectID, hash string, changedAt time.Time) error {
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.PasswordHash = hash
	account.PasswordChangedAt = changedAt
	f.accounts[id] = account
	return nil
}

func (f *fakeAccountRepo) SetResetToken(_ context.Context, id bson.ObjectID, tokenHash string, expiresAt time.Time) error {
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.ResetTokenHash = tokenHash
	account.ResetExpiresAt = expiresAt
	f.accounts[id] = account
	return nil
}

func (f *fakeAccountRepo) ClearResetToken(_ context.Context, id bson.ObjectID) error {
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.ResetTokenHash = ""
	account.ResetExpiresAt = time.Time{}
	f.accounts[id] = account
	return nil
}

func (f *fakeAccountRepo) RedeemResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (types.Account, error) {
	for id, account := range f.accounts {
		if account.Active && account.ResetTokenHash == tokenHash && account.ResetExpiresAt.After(now) {
			account.PasswordHash = passwordHash
			account.PasswordChangedAt = now
			account.ResetTokenHash = ""
			account.ResetExpiresAt = time.Time{}
			f.accounts[id] = account
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeAccountRepo) Deactivate(_ context.Context, id bson.ObjectID) error {
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.Active = false
	f.accounts[id] = account
	return nil
}

func (f *fakeAccountRepo) List(_ context.Context, _ query.Options) ([]types.Account, int, error) {
	var out []types.Account
	for _, account := range f.accounts {
		if account.Active {
			out = append(out, account)
		}
	}
	return out, len(out), nil
}

func (f *fakeAccountRepo) Delete(_ context.Context, id bson.ObjectID) error {
	if _, ok := f.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

// fakeSender records sent mail and can be told to fail.
type fakeSender struct {
	sent []mail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestAccountService(repo *fakeAccountRepo, notify, resetMail *fakeSender, now func() time.Time) *AccountService {
	return NewAccountService(repo, notify, resetMail, nil, now)
}

func TestSignup(t *testing.T) {
	repo := newFakeAccountRepo()
	notify := &fakeSender{}
	svc := newTestAccountService(repo, notify, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "Ada@Example.COM", "longenough", "http://localhost/me")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", account.Email)
	assert.Equal(t, types.RoleUser, account.Role)
	assert.True(t, account.Active)
	assert.NotEqual(t, "longenough", account.PasswordHash, "password must not be stored in plain text")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("longenough")))

	require.Len(t, notify.sent, 1)
	assert.Equal(t, mail.KindWelcome, notify.sent[0].Kind)
	assert.Equal(t, "ada@example.com", notify.sent[0].To)
}

func TestSignupValidation(t *testing.T) {
	svc := newTestAccountService(newFakeAccountRepo(), &fakeSender{}, &fakeSender{}, nil)

	cases := []struct {
		name     string
		fullName string
		email    string
		password string
	}{
		{"short password", "Ada", "ada@example.com", "short"},
		{"empty name", "  ", "ada@example.com", "longenough"},
		{"bad email", "Ada", "not-an-email", "longenough"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tc.fullName, tc.email, tc.password, "")
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestSignupIgnoresMailFailure(t *testing.T) {
	repo := newFakeAccountRepo()
	notify := &fakeSender{err: errors.New("queue down")}
	svc := newTestAccountService(repo, notify, &fakeSender{}, nil)

	_, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	assert.NoError(t, err)
}

func TestSignupDuplicateEmail(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	_, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), "Other Ada", "ada@example.com", "longenough", "")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	created, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	account, err := svc.Authenticate(context.Background(), "ADA@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)

	// Wrong password and unknown email are indistinguishable.
	_, err = svc.Authenticate(context.Background(), "ada@example.com", "wrongpass")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "longenough")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestAuthenticateRejectsDeactivated(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), account.ID))

	_, err = svc.Authenticate(context.Background(), "ada@example.com", "longenough")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestResolveSession(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	resolved, err := svc.ResolveSession(context.Background(), auth.Session{
		AccountID: account.ID.Hex(),
		IssuedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, account.ID, resolved.ID)
}

func TestResolveSessionUnknownAccount(t *testing.T) {
	svc := newTestAccountService(newFakeAccountRepo(), &fakeSender{}, &fakeSender{}, nil)

	// Malformed ID and a well-formed but absent one look the same.
	_, err := svc.ResolveSession(context.Background(), auth.Session{AccountID: "nope", IssuedAt: time.Now()})
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)

	_, err = svc.ResolveSession(context.Background(), auth.Session{
		AccountID: bson.NewObjectID().Hex(),
		IssuedAt:  time.Now(),
	})
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestResolveSessionDeactivatedAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), account.ID))

	_, err = svc.ResolveSession(context.Background(), auth.Session{
		AccountID: account.ID.Hex(),
		IssuedAt:  time.Now(),
	})
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestResolveSessionStaleAfterPasswordChange(t *testing.T) {
	repo := newFakeAccountRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, func() time.Time { return now })

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	issuedAt := base.Add(30 * time.Minute)
	sess := auth.Session{AccountID: account.ID.Hex(), IssuedAt: issuedAt}

	// Before any password change the session resolves.
	_, err = svc.ResolveSession(context.Background(), sess)
	require.NoError(t, err)

	// Change the password after the session was issued.
	now = base.Add(31 * time.Minute)
	_, err = svc.ChangePassword(context.Background(), account.ID, "longenough", "replacement1")
	require.NoError(t, err)

	_, err = svc.ResolveSession(context.Background(), sess)
	assert.ErrorIs(t, err, auth.ErrStaleCredential)

	// A session issued after the change is fine.
	_, err = svc.ResolveSession(context.Background(), auth.Session{
		AccountID: account.ID.Hex(),
		IssuedAt:  base.Add(32 * time.Minute),
	})
	assert.NoError(t, err)
}

func TestResolveSessionNotStaleAtSameSecond(t *testing.T) {
	repo := newFakeAccountRepo()
	// Change happens mid-second; a token minted in the same second must
	// still resolve because issued-at has second precision.
	changeTime := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, func() time.Time { return changeTime })

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	_, err = svc.ChangePassword(context.Background(), account.ID, "longenough", "replacement1")
	require.NoError(t, err)

	_, err = svc.ResolveSession(context.Background(), auth.Session{
		AccountID: account.ID.Hex(),
		IssuedAt:  changeTime.Truncate(time.Second),
	})
	assert.NoError(t, err)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	_, err = svc.ChangePassword(context.Background(), account.ID, "wrongpass", "replacement1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	_, err = svc.Authenticate(context.Background(), "ada@example.com", "longenough")
	assert.NoError(t, err, "password must be unchanged after a failed attempt")
}

func TestPasswordResetFlow(t *testing.T) {
	repo := newFakeAccountRepo()
	resetMail := &fakeSender{}
	svc := newTestAccountService(repo, &fakeSender{}, resetMail, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ada@example.com", "http://localhost/reset"))
	require.Len(t, resetMail.sent, 1)
	assert.Equal(t, mail.KindPasswordReset, resetMail.sent[0].Kind)

	// The mailed URL carries the plaintext secret; the store holds only
	// its hash.
	url := resetMail.sent[0].URL
	secret := url[strings.LastIndex(url, "/")+1:]
	require.NotEmpty(t, secret)
	stored := repo.accounts[account.ID]
	assert.NotEqual(t, secret, stored.ResetTokenHash)
	assert.Equal(t, auth.HashResetSecret(secret), stored.ResetTokenHash)

	redeemed, err := svc.RedeemPasswordReset(context.Background(), secret, "replacement1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, redeemed.ID)

	_, err = svc.Authenticate(context.Background(), "ada@example.com", "replacement1")
	assert.NoError(t, err)

	// The secret is single-use.
	_, err = svc.RedeemPasswordReset(context.Background(), secret, "replacement2")
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestPasswordResetWrongSecret(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	_, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ada@example.com", "http://localhost/reset"))

	_, err = svc.RedeemPasswordReset(context.Background(), "completely-wrong", "replacement1")
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestPasswordResetExpiredSecret(t *testing.T) {
	repo := newFakeAccountRepo()
	resetMail := &fakeSender{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc := newTestAccountService(repo, &fakeSender{}, resetMail, func() time.Time { return now })

	_, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ada@example.com", "http://localhost/reset"))

	url := resetMail.sent[0].URL
	secret := url[strings.LastIndex(url, "/")+1:]

	now = base.Add(11 * time.Minute)
	_, err = svc.RedeemPasswordReset(context.Background(), secret, "replacement1")
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	svc := newTestAccountService(newFakeAccountRepo(), &fakeSender{}, &fakeSender{}, nil)

	err := svc.RequestPasswordReset(context.Background(), "nobody@example.com", "http://localhost/reset")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPasswordResetRollsBackOnMailFailure(t *testing.T) {
	repo := newFakeAccountRepo()
	resetMail := &fakeSender{err: errors.New("smtp down")}
	svc := newTestAccountService(repo, &fakeSender{}, resetMail, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	err = svc.RequestPasswordReset(context.Background(), "ada@example.com", "http://localhost/reset")
	require.Error(t, err)

	stored := repo.accounts[account.ID]
	assert.Empty(t, stored.ResetTokenHash, "pending reset must be rolled back")
	assert.True(t, stored.ResetExpiresAt.IsZero())
}

func TestUpdateProfile(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	name := "Ada L."
	updated, err := svc.UpdateProfile(context.Background(), account.ID, &name, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, "ada@example.com", updated.Email)
}

func TestAdminUpdateRejectsUnknownRole(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := newTestAccountService(repo, &fakeSender{}, &fakeSender{}, nil)

	account, err := svc.Signup(context.Background(), "Ada", "ada@example.com", "longenough", "")
	require.NoError(t, err)

	badRole := "superuser"
	_, err = svc.AdminUpdate(context.Background(), account.ID, store.AccountUpdate{Role: &badRole})
	assert.True(t, IsValidation(err))

	goodRole := types.RoleGuide
	updated, err := svc.AdminUpdate(context.Background(), account.ID, store.AccountUpdate{Role: &goodRole})
	require.NoError(t, err)
	assert.Equal(t, types.RoleGuide, updated.Role)
}
