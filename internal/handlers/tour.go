package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/images"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/types"
)

const (
	maxTourImageMemory = 32 << 20
	maxGalleryImages   = 3
)

// TourHandler provides HTTP handlers for tours.
type TourHandler struct {
	tours *services.TourService
	media *services.MediaService
}

// NewTourHandler constructs a TourHandler.
func NewTourHandler(tours *services.TourService, media *services.MediaService) *TourHandler {
	return &TourHandler{tours: tours, media: media}
}

// TourRouter registers tour routes on the given router. The reviews
// handler is mounted under each tour for nested access.
func TourRouter(r chi.Router, h *TourHandler, reviews *ReviewHandler, session *SessionMiddleware) {
	staff := RequireRole(types.RoleAdmin, types.RoleLeadGuide)
	crew := RequireRole(types.RoleAdmin, types.RoleLeadGuide, types.RoleGuide)

	r.With(session.OptionalAuth).Get("/", h.ListTours)
	r.Get("/top-5-cheap", h.TopCheap)
	r.Get("/stats", h.Stats)
	r.With(session.RequireAuth, crew).Get("/monthly-plan/{year}", h.MonthlyPlan)
	r.Get("/within/{distance}/center/{latlng}/unit/{unit}", h.ToursWithin)
	r.Get("/distances/{latlng}/unit/{unit}", h.Distances)

	r.With(session.RequireAuth, staff).Post("/", h.CreateTour)

	r.Route("/{tourID}", func(r chi.Router) {
		r.Get("/", h.GetTour)
		r.With(session.RequireAuth, staff).Patch("/", h.UpdateTour)
		r.With(session.RequireAuth, staff).Delete("/", h.DeleteTour)
		r.With(session.RequireAuth, staff).Post("/images", h.UploadImages)

		r.Route("/reviews", func(r chi.Router) {
			ReviewRouter(r, reviews, session)
		})
	})
}

// TourListResponse is the paginated tour list payload.
type TourListResponse struct {
	Items []types.Tour `json:"items"`
	ListMeta
}

func (h *TourHandler) ListTours(w http.ResponseWriter, r *http.Request) {
	opts, err := query.Parse(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.listTours(w, r, opts)
}

// TopCheap is a preset listing: the five best-rated tours, cheapest
// first among equals.
func (h *TourHandler) TopCheap(w http.ResponseWriter, r *http.Request) {
	h.listTours(w, r, query.Options{
		Filter: map[string]any{},
		Sort: []query.SortField{
			{Field: "ratings_average", Desc: true},
			{Field: "price"},
		},
		Page:  1,
		Limit: 5,
	})
}

func (h *TourHandler) listTours(w http.ResponseWriter, r *http.Request, opts query.Options) {
	// Secret tours are only visible to staff.
	includeSecret := false
	if account, ok := authAccount(r); ok {
		includeSecret = account.Role == types.RoleAdmin || account.Role == types.RoleLeadGuide
	}

	items, total, err := h.tours.List(r.Context(), opts, includeSecret)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TourListResponse{
		Items:    items,
		ListMeta: ListMeta{Page: opts.Page, Limit: opts.Limit, Total: total},
	})
}

func (h *TourHandler) GetTour(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "tourID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tour, err := h.tours.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

func (h *TourHandler) CreateTour(w http.ResponseWriter, r *http.Request) {
	var tour types.Tour
	if err := json.NewDecoder(r.Body).Decode(&tour); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.tours.Create(r.Context(), tour)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// TourPatchRequest is the partial-update payload; absent fields are left
// untouched.
type TourPatchRequest struct {
	Name          *string           `json:"name"`
	Duration      *int              `json:"duration"`
	MaxGroupSize  *int              `json:"max_group_size"`
	Difficulty    *string           `json:"difficulty"`
	Price         *float64          `json:"price"`
	PriceDiscount *float64          `json:"price_discount"`
	Summary       *string           `json:"summary"`
	Description   *string           `json:"description"`
	StartDates    *[]time.Time      `json:"start_dates"`
	StartLocation *types.Location   `json:"start_location"`
	Locations     *[]types.Location `json:"locations"`
	Secret        *bool             `json:"secret"`
}

func (h *TourHandler) UpdateTour(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "tourID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TourPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.tours.Update(r.Context(), id, services.TourPatch{
		Name:          req.Name,
		Duration:      req.Duration,
		MaxGroupSize:  req.MaxGroupSize,
		Difficulty:    req.Difficulty,
		Price:         req.Price,
		PriceDiscount: req.PriceDiscount,
		Summary:       req.Summary,
		Description:   req.Description,
		StartDates:    req.StartDates,
		StartLocation: req.StartLocation,
		Locations:     req.Locations,
		Secret:        req.Secret,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *TourHandler) DeleteTour(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "tourID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tours.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImages accepts a multipart form with an "image_cover" file and up
// to three "images" gallery files, resizes them, and attaches the stored
// keys to the tour.
func (h *TourHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "tourID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.ParseMultipartForm(maxTourImageMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var cover string
	if file, header, err := r.FormFile("image_cover"); err == nil {
		defer file.Close()
		if !images.AcceptedUpload(header.Header.Get("Content-Type")) {
			writeError(w, http.StatusBadRequest, "unsupported image type")
			return
		}
		cover, err = h.media.StoreTourCover(r.Context(), id.Hex(), file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var gallery []string
	if r.MultipartForm != nil {
		files := r.MultipartForm.File["images"]
		if len(files) > maxGalleryImages {
			writeError(w, http.StatusBadRequest, "too many gallery images")
			return
		}
		for i, header := range files {
			if !images.AcceptedUpload(header.Header.Get("Content-Type")) {
				writeError(w, http.StatusBadRequest, "unsupported image type")
				return
			}
			file, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable gallery image")
				return
			}
			key, err := h.media.StoreTourImage(r.Context(), id.Hex(), i+1, file)
			file.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			gallery = append(gallery, key)
		}
	}

	if cover == "" && len(gallery) == 0 {
		writeError(w, http.StatusBadRequest, "no images provided")
		return
	}
	if err := h.tours.SetImages(r.Context(), id, cover, gallery); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"image_cover": cover, "images": gallery})
}

func (h *TourHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tours.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *TourHandler) MonthlyPlan(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}

	plan, err := h.tours.MonthlyPlan(r.Context(), year)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *TourHandler) ToursWithin(w http.ResponseWriter, r *http.Request) {
	distance, err := strconv.ParseFloat(chi.URLParam(r, "distance"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid distance")
		return
	}
	lat, lng, err := parseLatLng(chi.URLParam(r, "latlng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tours, err := h.tours.Within(r.Context(), lat, lng, distance, chi.URLParam(r, "unit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tours)
}

func (h *TourHandler) Distances(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := parseLatLng(chi.URLParam(r, "latlng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	distances, err := h.tours.Distances(r.Context(), lat, lng, chi.URLParam(r, "unit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, distances)
}

// parseLatLng parses a "lat,lng" URL segment.
func parseLatLng(raw string) (lat, lng float64, err error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, errInvalidLatLng
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, errInvalidLatLng
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, errInvalidLatLng
	}
	return lat, lng, nil
}
