package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const testCookieName = "token"

// stubAccountRepo is an in-memory AccountRepository for handler tests.
type stubAccountRepo struct {
	accounts map[bson.ObjectID]types.Account
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: map[bson.ObjectID]types.Account{}}
}

func (s *stubAccountRepo) GetActiveByID(_ context.Context, id bson.ObjectID) (types.Account, error) {
	account, ok := s.accounts[id]
	if !ok || !account.Active {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (s *stubAccountRepo) GetActiveByEmail(_ context.Context, email string) (types.Account, error) {
	for _, account := range s.accounts {
		if account.Email == email && account.Active {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (s *stubAccountRepo) Create(_ context.Context, account types.Account) (types.Account, error) {
	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return types.Account{}, store.ErrDuplicate
		}
	}
	account.ID = bson.NewObjectID()
	account.Active = true
	s.accounts[account.ID] = account
	return account, nil
}

func (s *stubAccountRepo) Update(_ context.Context, id bson.ObjectID, update store.AccountUpdate) (types.Account, error) {
	account, ok := s.accounts[id]
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
	s.accounts[id] = account
	return account, nil
}

func (s *stubAccountRepo) SetPassword(_ context.Context, id bson.ObjectID, hash string, changedAt time.Time) error {
	account, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.PasswordHash = hash
	account.PasswordChangedAt = changedAt
	s.accounts[id] = account
	return nil
}

func (s *stubAccountRepo) SetResetToken(_ context.Context, id bson.ObjectID, tokenHash string, expiresAt time.Time) error {
	account, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.ResetTokenHash = tokenHash
	account.ResetExpiresAt = expiresAt
	s.accounts[id] = account
	return nil
}

func (s *stubAccountRepo) ClearResetToken(_ context.Context, id bson.ObjectID) error {
	account, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.ResetTokenHash = ""
	account.ResetExpiresAt = time.Time{}
	s.accounts[id] = account
	return nil
}

func (s *stubAccountRepo) RedeemResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (types.Account, error) {
	for id, account := range s.accounts {
		if account.Active && account.ResetTokenHash == tokenHash && account.ResetExpiresAt.After(now) {
			account.PasswordHash = passwordHash
			account.PasswordChangedAt = now
			account.ResetTokenHash = ""
			account.ResetExpiresAt = time.Time{}
			s.accounts[id] = account
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (s *stubAccountRepo) Deactivate(_ context.Context, id bson.ObjectID) error {
	account, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.Active = false
	s.accounts[id] = account
	return nil
}

func (s *stubAccountRepo) List(_ context.Context, _ query.Options) ([]types.Account, int, error) {
	var out []types.Account
	for _, account := range s.accounts {
		if account.Active {
			out = append(out, account)
		}
	}
	return out, len(out), nil
}

func (s *stubAccountRepo) Delete(_ context.Context, id bson.ObjectID) error {
	if _, ok := s.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

type middlewareFixture struct {
	session *SessionMiddleware
	codec   *auth.Codec
	account types.Account
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	account := types.Account{
		ID:     bson.NewObjectID(),
		Name:   "Ada",
		Email:  "ada@example.com",
		Role:   types.RoleUser,
		Active: true,
	}
	repo := newStubAccountRepo()
	repo.accounts[account.ID] = account
	svc := services.NewAccountService(repo, nil, nil, nil, nil)
	codec := auth.NewCodec("test-secret", time.Hour, nil)
	return &middlewareFixture{
		session: NewSessionMiddleware(codec, svc, testCookieName),
		codec:   codec,
		account: account,
	}
}

// echoHandler writes the resolved account's email.
func echoHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := auth.AccountFromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(account.Email))
	})
}

func TestRequireAuthNoCredential(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthBearerToken(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	token, err := fx.codec.Issue(fx.account.ID.Hex())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", rec.Body.String())
}

func TestRequireAuthCookieFallback(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	token, err := fx.codec.Issue(fx.account.ID.Hex())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthBearerWinsOverCookie(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	token, err := fx.codec.Issue(fx.account.ID.Hex())
	require.NoError(t, err)

	// A rotten cookie must not shadow a valid bearer token.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthBadToken(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthExpiredToken(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	past := time.Now().Add(-2 * time.Hour)
	oldCodec := auth.NewCodec("test-secret", time.Hour, func() time.Time { return past })
	token, err := oldCodec.Issue(fx.account.ID.Hex())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthUnknownAccount(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.RequireAuth(echoHandler(t))

	token, err := fx.codec.Issue(bson.NewObjectID().Hex())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth(t *testing.T) {
	fx := newMiddlewareFixture(t)
	handler := fx.session.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if account, ok := auth.AccountFromContext(r.Context()); ok {
			_, _ = w.Write([]byte(account.Email))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	}))

	// Without credentials the request passes through anonymously.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	// A bad token is ignored rather than rejected.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer junk")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "anonymous", rec.Body.String())

	// A valid one resolves the account.
	token, err := fx.codec.Issue(fx.account.ID.Hex())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "ada@example.com", rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"allowed", types.RoleAdmin, []string{types.RoleAdmin}, http.StatusOK},
		{"allowed among several", types.RoleLeadGuide, []string{types.RoleAdmin, types.RoleLeadGuide}, http.StatusOK},
		{"denied", types.RoleUser, []string{types.RoleAdmin}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequireRole(tc.allowed...)(next)
			account := types.Account{ID: bson.NewObjectID(), Role: tc.role}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(auth.ContextWithAccount(req.Context(), account))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireRoleWithoutResolvedAccount(t *testing.T) {
	handler := RequireRole(types.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Running the gate without RequireAuth first is a wiring bug and
	// must fail loudly, not fall through.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
