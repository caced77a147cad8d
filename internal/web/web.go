// Package web renders the HTML pages for the booking site. Pages are
// personalized when a session cookie resolves to an account.
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler renders the site pages.
type Handler struct {
	tours     *services.TourService
	reviews   *services.ReviewService
	bookings  *services.BookingService
	templates *template.Template
	logger    *slog.Logger
}

// NewHandler parses the embedded templates and constructs a Handler.
func NewHandler(
	tours *services.TourService,
	reviews *services.ReviewService,
	bookings *services.BookingService,
	logger *slog.Logger,
) (*Handler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tours:     tours,
		reviews:   reviews,
		bookings:  bookings,
		templates: templates,
		logger:    logger,
	}, nil
}

// Router registers the page routes. All pages run under OptionalAuth so
// the navigation reflects the login state; account pages additionally
// require a session.
func Router(r chi.Router, h *Handler, requireAuth, optionalAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		r.Get("/", h.Overview)
		r.Get("/tours/{slug}", h.TourDetail)
		r.Get("/login", h.Login)
		r.Get("/signup", h.Signup)
	})
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth, requireAuth)
		r.Get("/me", h.Account)
		r.Get("/me/bookings", h.MyBookings)
	})
}

// pageData is the payload every template receives.
type pageData struct {
	Title   string
	Account *types.Account
	Alert   string
	Data    any
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	page := pageData{
		Title: title,
		Alert: alertFor(r.URL.Query().Get("alert")),
		Data:  data,
	}
	if account, ok := auth.AccountFromContext(r.Context()); ok {
		page.Account = &account
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, page); err != nil {
		h.logger.Error("template render failed", "template", name, "err", err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "error.html", "Something went wrong", message)
}

// alertFor maps alert query flags to banner text.
func alertFor(flag string) string {
	if flag == "booking" {
		return "Your booking was successful! If it does not show up immediately, check back in a few minutes."
	}
	return ""
}

// Overview renders the tour listing landing page.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	opts, err := query.Parse(r.URL.Query())
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid listing parameters.")
		return
	}

	tours, _, err := h.tours.List(r.Context(), opts, false)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Could not load tours.")
		return
	}
	h.render(w, r, http.StatusOK, "overview.html", "All Tours", tours)
}

// tourPage bundles a tour with its reviews for the detail template.
type tourPage struct {
	Tour    types.Tour
	Reviews []types.Review
}

// TourDetail renders one tour page with its reviews.
func (h *Handler) TourDetail(w http.ResponseWriter, r *http.Request) {
	tour, err := h.tours.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "There is no tour with that name.")
		return
	}

	reviews, _, err := h.reviews.ListByTour(r.Context(), tour.ID, query.Options{
		Page:  query.DefaultPage,
		Limit: query.DefaultLimit,
	})
	if err != nil {
		h.logger.Warn("loading reviews failed", "tour", tour.Slug, "err", err)
	}
	h.render(w, r, http.StatusOK, "tour.html", tour.Name, tourPage{Tour: tour, Reviews: reviews})
}

// Login renders the login form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login.html", "Log in to your account", nil)
}

// Signup renders the signup form.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.html", "Create your account", nil)
}

// Account renders the profile settings page.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "account.html", "Your account", nil)
}

// bookingPage pairs a booking with its tour for the bookings template.
type bookingPage struct {
	Booking types.Booking
	Tour    types.Tour
}

// MyBookings renders the tours the account has booked.
func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		h.renderError(w, r, http.StatusInternalServerError, "Could not resolve your session.")
		return
	}

	bookings, err := h.bookings.ListForAccount(r.Context(), account.ID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Could not load your bookings.")
		return
	}

	pages := make([]bookingPage, 0, len(bookings))
	for _, booking := range bookings {
		tour, err := h.tours.Get(r.Context(), booking.TourID)
		if err != nil {
			h.logger.Warn("booked tour missing", "tour_id", booking.TourID.Hex(), "err", err)
			tour = types.Tour{ID: bson.ObjectID{}, Name: "Unavailable tour"}
		}
		pages = append(pages, bookingPage{Booking: booking, Tour: tour})
	}
	h.render(w, r, http.StatusOK, "bookings.html", "My bookings", pages)
}
