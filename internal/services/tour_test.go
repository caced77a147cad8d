package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// fakeTourRepo is an in-memory TourRepository. The geo queries record
// their arguments instead of computing anything.
type fakeTourRepo struct {
	tours map[bson.ObjectID]types.Tour

	lastRadius     float64
	lastMultiplier float64
}

func newFakeTourRepo() *fakeTourRepo {
	return &fakeTourRepo{tours: map[bson.ObjectID]types.Tour{}}
}

func (f *fakeTourRepo) List(_ context.Context, _ query.Options, includeSecret bool) ([]types.Tour, int, error) {
	var out []types.Tour
	for _, tour := range f.tours {
		if tour.Secret && !includeSecret {
			continue
		}
		out = append(out, tour)
	}
	return out, len(out), nil
}

func (f *fakeTourRepo) GetByID(_ context.Context, id bson.ObjectID) (types.Tour, error) {
	tour, ok := f.tours[id]
	if !ok {
		return types.Tour{}, store.ErrNotFound
	}
	return tour, nil
}

func (f *fakeTourRepo) GetBySlug(_ context.Context, slug string) (types.Tour, error) {
	for _, tour := range f.tours {
		if tour.Slug == slug {
			return tour, nil
		}
	}
	return types.Tour{}, store.ErrNotFound
}

func (f *fakeTourRepo) Create(_ context.Context, tour types.Tour) (types.Tour, error) {
	for _, existing := range f.tours {
		if existing.Name == tour.Name {
			return types.Tour{}, store.ErrDuplicate
		}
	}
	tour.ID = bson.NewObjectID()
	f.tours[tour.ID] = tour
	return tour, nil
}

func (f *fakeTourRepo) Update(_ context.Context, tour types.Tour) (types.Tour, error) {
	if _, ok := f.tours[tour.ID]; !ok {
		return types.Tour{}, store.ErrNotFound
	}
	f.tours[tour.ID] = tour
	return tour, nil
}

func (f *fakeTourRepo) Delete(_ context.Context, id bson.ObjectID) error {
	if _, ok := f.tours[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.tours, id)
	return nil
}

func (f *fakeTourRepo) SetImages(_ context.Context, id bson.ObjectID, cover string, images []string) error {
	tour, ok := f.tours[id]
	if !ok {
		return store.ErrNotFound
	}
	if cover != "" {
		tour.ImageCover = cover
	}
	if len(images) > 0 {
		tour.Images = images
	}
	f.tours[id] = tour
	return nil
}

func (f *fakeTourRepo) Stats(_ context.Context) ([]types.TourStats, error) {
	return nil, nil
}

func (f *fakeTourRepo) MonthlyPlan(_ context.Context, _ int) ([]types.MonthlyPlanEntry, error) {
	return nil, nil
}

func (f *fakeTourRepo) Within(_ context.Context, _, _, radiusRadians float64) ([]types.Tour, error) {
	f.lastRadius = radiusRadians
	return nil, nil
}

func (f *fakeTourRepo) Distances(_ context.Context, _, _, multiplier float64) ([]types.TourDistance, error) {
	f.lastMultiplier = multiplier
	return nil, nil
}

func validTour() types.Tour {
	return types.Tour{
		Name:         "The Forest Hiker",
		Duration:     5,
		MaxGroupSize: 25,
		Difficulty:   types.DifficultyEasy,
		Price:        397,
		Summary:      "Breathtaking hike through the Canadian Banff National Park",
	}
}

func TestTourCreateDerivesSlug(t *testing.T) {
	repo := newFakeTourRepo()
	svc := NewTourService(repo)

	created, err := svc.Create(context.Background(), validTour())
	require.NoError(t, err)
	assert.Equal(t, "the-forest-hiker", created.Slug)
	assert.Zero(t, created.RatingsAverage)
	assert.Zero(t, created.RatingsQuantity)
}

func TestTourCreateValidation(t *testing.T) {
	svc := NewTourService(newFakeTourRepo())

	cases := []struct {
		name   string
		mutate func(*types.Tour)
	}{
		{"short name", func(tour *types.Tour) { tour.Name = "A" }},
		{"long name", func(tour *types.Tour) { tour.Name = "This tour name is way too long to be accepted here" }},
		{"zero duration", func(tour *types.Tour) { tour.Duration = 0 }},
		{"zero group", func(tour *types.Tour) { tour.MaxGroupSize = 0 }},
		{"bad difficulty", func(tour *types.Tour) { tour.Difficulty = "extreme" }},
		{"free tour", func(tour *types.Tour) { tour.Price = 0 }},
		{"discount above price", func(tour *types.Tour) { tour.PriceDiscount = 500 }},
		{"no summary", func(tour *types.Tour) { tour.Summary = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tour := validTour()
			tc.mutate(&tour)
			_, err := svc.Create(context.Background(), tour)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestTourUpdateReslugsOnRename(t *testing.T) {
	repo := newFakeTourRepo()
	svc := NewTourService(repo)

	created, err := svc.Create(context.Background(), validTour())
	require.NoError(t, err)

	name := "The Sea Explorer"
	updated, err := svc.Update(context.Background(), created.ID, TourPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "the-sea-explorer", updated.Slug)

	// A patch that breaks an invariant is rejected as a whole.
	badPrice := -1.0
	_, err = svc.Update(context.Background(), created.ID, TourPatch{Price: &badPrice})
	assert.True(t, IsValidation(err))
}

func TestTourListHidesSecretTours(t *testing.T) {
	repo := newFakeTourRepo()
	svc := NewTourService(repo)

	tour := validTour()
	tour.Secret = true
	_, err := svc.Create(context.Background(), tour)
	require.NoError(t, err)

	visible, _, err := svc.List(context.Background(), query.Options{}, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, _, err := svc.List(context.Background(), query.Options{}, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTourWithinConvertsDistance(t *testing.T) {
	repo := newFakeTourRepo()
	svc := NewTourService(repo)

	_, err := svc.Within(context.Background(), 34.1, -118.1, 400, "mi")
	require.NoError(t, err)
	assert.InDelta(t, 400/3963.2, repo.lastRadius, 1e-9)

	_, err = svc.Within(context.Background(), 34.1, -118.1, 400, "km")
	require.NoError(t, err)
	assert.InDelta(t, 400/6378.1, repo.lastRadius, 1e-9)
}

func TestTourWithinValidation(t *testing.T) {
	svc := NewTourService(newFakeTourRepo())

	_, err := svc.Within(context.Background(), 34.1, -118.1, 400, "furlongs")
	assert.True(t, IsValidation(err))

	_, err = svc.Within(context.Background(), 34.1, -118.1, 0, "mi")
	assert.True(t, IsValidation(err))
}

func TestTourDistancesMultiplier(t *testing.T) {
	repo := newFakeTourRepo()
	svc := NewTourService(repo)

	_, err := svc.Distances(context.Background(), 34.1, -118.1, "mi")
	require.NoError(t, err)
	assert.InDelta(t, 1/1609.344, repo.lastMultiplier, 1e-12)

	_, err = svc.Distances(context.Background(), 34.1, -118.1, "km")
	require.NoError(t, err)
	assert.InDelta(t, 1/1000.0, repo.lastMultiplier, 1e-12)
}

func TestMonthlyPlanYearBounds(t *testing.T) {
	svc := NewTourService(newFakeTourRepo())

	for _, year := range []int{1999, 2101, 0} {
		_, err := svc.MonthlyPlan(context.Background(), year)
		assert.True(t, IsValidation(err), "year %d", year)
	}
	_, err := svc.MonthlyPlan(context.Background(), 2026)
	assert.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"The Forest Hiker", "the-forest-hiker"},
		{"  Weird -- Name!  ", "weird-name"},
		{"ALL CAPS", "all-caps"},
		{"tour 2026", "tour-2026"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), "input %q", tc.in)
	}
}
