package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ReviewHandler provides HTTP handlers for reviews.
type ReviewHandler struct {
	reviews *services.ReviewService
}

// NewReviewHandler constructs a ReviewHandler.
func NewReviewHandler(reviews *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// ReviewRouter registers the nested tour review routes. Only plain users
// may write reviews; guides and admins manage tours, not opinions.
func ReviewRouter(r chi.Router, h *ReviewHandler, session *SessionMiddleware) {
	r.Get("/", h.ListReviews)
	r.With(session.RequireAuth, RequireRole(types.RoleUser)).Post("/", h.CreateReview)
}

// StandaloneReviewRouter registers the flat review routes used for
// moderation and editing by ID.
func StandaloneReviewRouter(r chi.Router, h *ReviewHandler, session *SessionMiddleware) {
	r.Get("/", h.ListReviews)
	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth)
		r.Get("/{reviewID}", h.GetReview)
		r.Patch("/{reviewID}", h.UpdateReview)
		r.Delete("/{reviewID}", h.DeleteReview)
	})
}

// ReviewListResponse is the paginated review list payload.
type ReviewListResponse struct {
	Items []types.Review `json:"items"`
	ListMeta
}

// ListReviews lists reviews, scoped to a tour when reached through the
// nested route.
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	opts, err := query.Parse(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var tourID bson.ObjectID
	if raw := chi.URLParam(r, "tourID"); raw != "" {
		tourID, err = bson.ObjectIDFromHex(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
	}

	items, total, err := h.reviews.ListByTour(r.Context(), tourID, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReviewListResponse{
		Items:    items,
		ListMeta: ListMeta{Page: opts.Page, Limit: opts.Limit, Total: total},
	})
}

// ReviewRequest is the create/update payload.
type ReviewRequest struct {
	Review string `json:"review"`
	Rating int    `json:"rating"`
}

func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	tourID, err := objectIDParam(r, "tourID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.reviews.Create(r.Context(), account, tourID, req.Review, req.Rating)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "reviewID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	id, err := objectIDParam(r, "reviewID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.reviews.Update(r.Context(), account, id, req.Review, req.Rating)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	id, err := objectIDParam(r, "reviewID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reviews.Delete(r.Context(), account, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
