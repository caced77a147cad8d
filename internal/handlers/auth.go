package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/images"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/types"
)

const maxPhotoMemory = 8 << 20

// AuthHandler provides signup, login, and self-service account endpoints.
type AuthHandler struct {
	accounts     *services.AccountService
	media        *services.MediaService
	codec        *auth.Codec
	cookieName   string
	secureCookie bool
	baseURL      string
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	accounts *services.AccountService,
	media *services.MediaService,
	codec *auth.Codec,
	cookieName string,
	secureCookie bool,
	baseURL string,
) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		media:        media,
		codec:        codec,
		cookieName:   cookieName,
		secureCookie: secureCookie,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

// AuthRouter registers account self-service routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler, session *SessionMiddleware) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Patch("/reset-password/{token}", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth)
		r.Get("/me", h.Me)
		r.Patch("/me", h.UpdateMe)
		r.Delete("/me", h.DeleteMe)
		r.Patch("/me/password", h.UpdatePassword)
	})
}

// SignupRequest is the payload for account creation. Role is deliberately
// absent: new accounts always start as plain users.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the email/password payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued session token and its account.
type TokenResponse struct {
	Token   string        `json:"token"`
	Account types.Account `json:"account"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Signup(r.Context(), req.Name, req.Email, req.Password, h.baseURL+"/me")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.sendToken(w, http.StatusCreated, account)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.sendToken(w, http.StatusOK, account)
}

// Logout overwrites the session cookie with a short-lived dummy value.
// Bearer clients simply drop their token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "logged-out",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resetURL := fmt.Sprintf("%s/api/v1/users/reset-password", h.baseURL)
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email, resetURL); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset token sent to email"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.RedeemPasswordReset(r.Context(), chi.URLParam(r, "token"), req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.sendToken(w, http.StatusOK, account)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdateMe changes name, email, or the profile photo. It accepts either a
// JSON body or a multipart form with an optional photo file.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	var name, email, photo *string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxPhotoMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		if v := r.FormValue("name"); v != "" {
			name = &v
		}
		if v := r.FormValue("email"); v != "" {
			email = &v
		}
		file, header, err := r.FormFile("photo")
		if err == nil {
			defer file.Close()
			key, err := h.storePhoto(r, account, file, header)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			photo = &key
		}
	} else {
		var req struct {
			Name  *string `json:"name"`
			Email *string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		name, email = req.Name, req.Email
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), account.ID, name, email, photo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) storePhoto(r *http.Request, account types.Account, file multipart.File, header *multipart.FileHeader) (string, error) {
	if !images.AcceptedUpload(header.Header.Get("Content-Type")) {
		return "", errors.New("unsupported image type")
	}
	return h.media.StoreProfilePhoto(r.Context(), account.ID.Hex(), file)
}

// DeleteMe deactivates the calling account. The document stays in the
// database but disappears from every active-only lookup.
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Deactivate(r.Context(), account.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePassword verifies the current password before setting a new one
// and issues a fresh token so the caller stays logged in.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		Password        string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.accounts.ChangePassword(r.Context(), account.ID, req.CurrentPassword, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.sendToken(w, http.StatusOK, updated)
}

// sendToken issues a JWT for the account and delivers it both in the JSON
// body and as an HttpOnly cookie for the rendered pages.
func (h *AuthHandler) sendToken(w http.ResponseWriter, status int, account types.Account) {
	token, err := h.codec.Issue(account.ID.Hex())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.codec.TTL()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, TokenResponse{Token: token, Account: account})
}
