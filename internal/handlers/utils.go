package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListMeta carries pagination info alongside list payloads.
type ListMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// writeServiceError maps service-layer failures to HTTP responses. The
// auth sentinels form a closed set, so every branch carries a fixed,
// deliberately vague client message.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		writeError(w, http.StatusUnauthorized, "you are not logged in")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "your session has expired, please log in again")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, "invalid session, please log in again")
	case errors.Is(err, auth.ErrStaleCredential):
		writeError(w, http.StatusUnauthorized, "password was changed recently, please log in again")
	case errors.Is(err, auth.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "incorrect email or password")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not have permission to perform this action")
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "token is invalid or has expired")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "resource already exists")
	case services.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

// objectIDParam parses a hex ObjectID from the named URL parameter.
func objectIDParam(r *http.Request, name string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return bson.ObjectID{}, errors.New("invalid id")
	}
	return id, nil
}

var errInvalidLatLng = errors.New("latlng must be of the form lat,lng")

// authAccount returns the account injected by RequireAuth or OptionalAuth,
// if any.
func authAccount(r *http.Request) (types.Account, bool) {
	return auth.AccountFromContext(r.Context())
}

// accountFromRequest returns the account resolved by RequireAuth. A miss
// means a route was registered without the middleware, which is a
// programming error, not a client one.
func accountFromRequest(w http.ResponseWriter, r *http.Request) (types.Account, bool) {
	acct, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return types.Account{}, false
	}
	return acct, true
}
