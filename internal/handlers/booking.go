package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/payments"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const maxWebhookBody = 64 << 10

// BookingHandler provides checkout and booking management endpoints.
type BookingHandler struct {
	bookings *services.BookingService
	provider *payments.StripeProvider
	baseURL  string
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings *services.BookingService, provider *payments.StripeProvider, baseURL string) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		provider: provider,
		baseURL:  baseURL,
	}
}

// BookingRouter registers booking routes on the given router.
func BookingRouter(r chi.Router, h *BookingHandler, session *SessionMiddleware) {
	staff := RequireRole(types.RoleAdmin, types.RoleLeadGuide)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth)
		r.Get("/checkout-session/{tourID}", h.CreateCheckoutSession)
		r.Get("/mine", h.MyBookings)
	})

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth, staff)
		r.Get("/", h.ListBookings)
		r.Post("/", h.CreateBooking)
		r.Get("/{bookingID}", h.GetBooking)
		r.Patch("/{bookingID}", h.UpdateBooking)
		r.Delete("/{bookingID}", h.DeleteBooking)
	})
}

// CreateCheckoutSession opens a payment session for the given tour and
// returns the URL the client should redirect to.
func (h *BookingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	tourID, err := objectIDParam(r, "tourID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.bookings.CreateCheckout(r.Context(), account, tourID, h.baseURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": session.ID, "url": session.URL})
}

// Webhook handles checkout completion callbacks from the payment
// provider. The raw body is needed for signature verification.
func (h *BookingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	done, err := h.provider.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}
	if done == nil {
		// An event kind we do not care about.
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if _, err := h.bookings.FulfillCheckout(r.Context(), *done, h.baseURL); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *BookingHandler) MyBookings(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListForAccount(r.Context(), account.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// BookingListResponse is the paginated booking list payload.
type BookingListResponse struct {
	Items []types.Booking `json:"items"`
	ListMeta
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	opts, err := query.Parse(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.bookings.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingListResponse{
		Items:    items,
		ListMeta: ListMeta{Page: opts.Page, Limit: opts.Limit, Total: total},
	})
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// BookingRequest is the manual create/update payload used by staff.
type BookingRequest struct {
	TourID    string  `json:"tour_id"`
	AccountID string  `json:"account_id"`
	Price     float64 `json:"price"`
	Paid      bool    `json:"paid"`
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tourID, err := bson.ObjectIDFromHex(req.TourID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tour_id")
		return
	}
	accountID, err := bson.ObjectIDFromHex(req.AccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	created, err := h.bookings.CreateManual(r.Context(), tourID, accountID, req.Price, req.Paid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.bookings.Update(r.Context(), id, req.Price, req.Paid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *BookingHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "bookingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookings.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
