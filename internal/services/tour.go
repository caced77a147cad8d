package services

import (
	"context"
	"time"

	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Earth radii used to convert a distance into radians for sphere queries.
const (
	earthRadiusMiles      = 3963.2
	earthRadiusKilometers = 6378.1

	metersPerMile      = 1609.344
	metersPerKilometer = 1000.0
)

// TourRepository defines persistence operations for tours.
type TourRepository interface {
	List(ctx context.Context, opts query.Options, includeSecret bool) ([]types.Tour, int, error)
	GetByID(ctx context.Context, id bson.ObjectID) (types.Tour, error)
	GetBySlug(ctx context.Context, slug string) (types.Tour, error)
	Create(ctx context.Context, tour types.Tour) (types.Tour, error)
	Update(ctx context.Context, tour types.Tour) (types.Tour, error)
	Delete(ctx context.Context, id bson.ObjectID) error
	SetImages(ctx context.Context, id bson.ObjectID, cover string, images []string) error
	Stats(ctx context.Context) ([]types.TourStats, error)
	MonthlyPlan(ctx context.Context, year int) ([]types.MonthlyPlanEntry, error)
	Within(ctx context.Context, lng, lat, radiusRadians float64) ([]types.Tour, error)
	Distances(ctx context.Context, lng, lat, multiplier float64) ([]types.TourDistance, error)
}

// TourPatch describes a partial tour update. Nil fields are left alone.
type TourPatch struct {
	Name          *string
	Duration      *int
	MaxGroupSize  *int
	Difficulty    *string
	Price         *float64
	PriceDiscount *float64
	Summary       *string
	Description   *string
	StartDates    *[]time.Time
	StartLocation *types.Location
	Locations     *[]types.Location
	Secret        *bool
}

// TourService encapsulates tour use-cases.
type TourService struct {
	repo TourRepository
}

func NewTourService(repo TourRepository) *TourService {
	return &TourService{repo: repo}
}

func (s *TourService) List(ctx context.Context, opts query.Options, includeSecret bool) ([]types.Tour, int, error) {
	return s.repo.List(ctx, opts, includeSecret)
}

func (s *TourService) Get(ctx context.Context, id bson.ObjectID) (types.Tour, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *TourService) GetBySlug(ctx context.Context, slug string) (types.Tour, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// Create validates the tour and derives its slug before persisting. Slug
// generation is an explicit step here, not a store-side hook.
func (s *TourService) Create(ctx context.Context, tour types.Tour) (types.Tour, error) {
	if err := validateTour(tour); err != nil {
		return types.Tour{}, err
	}
	tour.Slug = Slugify(tour.Name)
	tour.RatingsAverage = 0
	tour.RatingsQuantity = 0
	return s.repo.Create(ctx, tour)
}

// Update loads the current document, applies the patch, and re-derives
// the slug when the name changed.
func (s *TourService) Update(ctx context.Context, id bson.ObjectID, patch TourPatch) (types.Tour, error) {
	tour, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Tour{}, err
	}

	if patch.Name != nil && *patch.Name != tour.Name {
		tour.Name = *patch.Name
		tour.Slug = Slugify(tour.Name)
	}
	if patch.Duration != nil {
		tour.Duration = *patch.Duration
	}
	if patch.MaxGroupSize != nil {
		tour.MaxGroupSize = *patch.MaxGroupSize
	}
	if patch.Difficulty != nil {
		tour.Difficulty = *patch.Difficulty
	}
	if patch.Price != nil {
		tour.Price = *patch.Price
	}
	if patch.PriceDiscount != nil {
		tour.PriceDiscount = *patch.PriceDiscount
	}
	if patch.Summary != nil {
		tour.Summary = *patch.Summary
	}
	if patch.Description != nil {
		tour.Description = *patch.Description
	}
	if patch.StartDates != nil {
		tour.StartDates = *patch.StartDates
	}
	if patch.StartLocation != nil {
		tour.StartLocation = *patch.StartLocation
	}
	if patch.Locations != nil {
		tour.Locations = *patch.Locations
	}
	if patch.Secret != nil {
		tour.Secret = *patch.Secret
	}

	if err := validateTour(tour); err != nil {
		return types.Tour{}, err
	}
	return s.repo.Update(ctx, tour)
}

func (s *TourService) Delete(ctx context.Context, id bson.ObjectID) error {
	return s.repo.Delete(ctx, id)
}

// SetImages records uploaded image keys on the tour document.
func (s *TourService) SetImages(ctx context.Context, id bson.ObjectID, cover string, images []string) error {
	return s.repo.SetImages(ctx, id, cover, images)
}

func (s *TourService) Stats(ctx context.Context) ([]types.TourStats, error) {
	return s.repo.Stats(ctx)
}

func (s *TourService) MonthlyPlan(ctx context.Context, year int) ([]types.MonthlyPlanEntry, error) {
	if year < 2000 || year > 2100 {
		return nil, invalidf("invalid year %d", year)
	}
	return s.repo.MonthlyPlan(ctx, year)
}

// Within returns tours starting inside a circle of the given distance
// around (lat, lng). Unit is "mi" or "km".
func (s *TourService) Within(ctx context.Context, lat, lng, distance float64, unit string) ([]types.Tour, error) {
	radius, err := earthRadius(unit)
	if err != nil {
		return nil, err
	}
	if distance <= 0 {
		return nil, invalidf("distance must be positive")
	}
	return s.repo.Within(ctx, lng, lat, distance/radius)
}

// Distances returns the distance from (lat, lng) to every tour start, in
// the requested unit.
func (s *TourService) Distances(ctx context.Context, lat, lng float64, unit string) ([]types.TourDistance, error) {
	if _, err := earthRadius(unit); err != nil {
		return nil, err
	}
	multiplier := 1 / metersPerKilometer
	if unit == "mi" {
		multiplier = 1 / metersPerMile
	}
	return s.repo.Distances(ctx, lng, lat, multiplier)
}

func earthRadius(unit string) (float64, error) {
	switch unit {
	case "mi":
		return earthRadiusMiles, nil
	case "km":
		return earthRadiusKilometers, nil
	}
	return 0, invalidf("unknown unit %q", unit)
}

func validateTour(tour types.Tour) error {
	if len(tour.Name) < 2 || len(tour.Name) > 40 {
		return invalidf("tour name must be between 2 and 40 characters")
	}
	if tour.Duration < 1 {
		return invalidf("tour must last at least one day")
	}
	if tour.MaxGroupSize < 1 {
		return invalidf("group size must be at least one")
	}
	if !types.ValidDifficulty(tour.Difficulty) {
		return invalidf("invalid difficulty %q", tour.Difficulty)
	}
	if tour.Price <= 0 {
		return invalidf("price must be positive")
	}
	if tour.PriceDiscount != 0 && tour.PriceDiscount >= tour.Price {
		return invalidf("price discount must be below the price")
	}
	if tour.Summary == "" {
		return invalidf("summary is required")
	}
	return nil
}
