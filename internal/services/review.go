package services

import (
	"context"
	"log/slog"
	"math"

	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	ListByTour(ctx context.Context, tourID bson.ObjectID, opts query.Options) ([]types.Review, int, error)
	GetByID(ctx context.Context, id bson.ObjectID) (types.Review, error)
	Create(ctx context.Context, review types.Review) (types.Review, error)
	Update(ctx context.Context, id bson.ObjectID, text string, rating int) (types.Review, error)
	Delete(ctx context.Context, id bson.ObjectID) error
	Summarize(ctx context.Context, tourID bson.ObjectID) (types.RatingsSummary, error)
}

// TourRatingsUpdater writes a recomputed review aggregate to a tour.
type TourRatingsUpdater interface {
	UpdateRatings(ctx context.Context, id bson.ObjectID, average float64, quantity int) error
}

// ReviewService encapsulates review use-cases. Every mutation recomputes
// the tour's rating aggregate as an explicit follow-up call; nothing
// happens through store-side hooks.
type ReviewService struct {
	repo   ReviewRepository
	tours  TourRatingsUpdater
	logger *slog.Logger
}

func NewReviewService(repo ReviewRepository, tours TourRatingsUpdater, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{repo: repo, tours: tours, logger: logger}
}

func (s *ReviewService) ListByTour(ctx context.Context, tourID bson.ObjectID, opts query.Options) ([]types.Review, int, error) {
	return s.repo.ListByTour(ctx, tourID, opts)
}

func (s *ReviewService) Get(ctx context.Context, id bson.ObjectID) (types.Review, error) {
	return s.repo.GetByID(ctx, id)
}

// Create stores a review by author for a tour and refreshes the tour's
// rating aggregate. The author's name and photo are denormalized at
// write time.
func (s *ReviewService) Create(ctx context.Context, author types.Account, tourID bson.ObjectID, text string, rating int) (types.Review, error) {
	if err := validateReview(text, rating); err != nil {
		return types.Review{}, err
	}

	review, err := s.repo.Create(ctx, types.Review{
		Review:      text,
		Rating:      rating,
		TourID:      tourID,
		AuthorID:    author.ID,
		AuthorName:  author.Name,
		AuthorPhoto: author.Photo,
	})
	if err != nil {
		return types.Review{}, err
	}

	s.refreshRatings(ctx, tourID)
	return review, nil
}

// Update rewrites a review. Only the author or an admin may do so.
func (s *ReviewService) Update(ctx context.Context, actor types.Account, id bson.ObjectID, text string, rating int) (types.Review, error) {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Review{}, err
	}
	if err := mayModifyReview(actor, review); err != nil {
		return types.Review{}, err
	}
	if err := validateReview(text, rating); err != nil {
		return types.Review{}, err
	}

	updated, err := s.repo.Update(ctx, id, text, rating)
	if err != nil {
		return types.Review{}, err
	}

	s.refreshRatings(ctx, review.TourID)
	return updated, nil
}

// Delete removes a review. Only the author or an admin may do so.
func (s *ReviewService) Delete(ctx context.Context, actor types.Account, id bson.ObjectID) error {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := mayModifyReview(actor, review); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.refreshRatings(ctx, review.TourID)
	return nil
}

// refreshRatings recomputes and stores the tour's rating aggregate. A
// failed refresh leaves a stale aggregate, which the next mutation
// repairs; the review write itself is not rolled back.
func (s *ReviewService) refreshRatings(ctx context.Context, tourID bson.ObjectID) {
	summary, err := s.repo.Summarize(ctx, tourID)
	if err != nil {
		s.logger.Warn("ratings summarize failed", "tour", tourID.Hex(), "err", err)
		return
	}
	average := math.Round(summary.Average*100) / 100
	if err := s.tours.UpdateRatings(ctx, tourID, average, summary.Quantity); err != nil {
		s.logger.Warn("ratings update failed", "tour", tourID.Hex(), "err", err)
	}
}

func mayModifyReview(actor types.Account, review types.Review) error {
	if actor.Role == types.RoleAdmin || actor.ID == review.AuthorID {
		return nil
	}
	return auth.ErrForbidden
}

func validateReview(text string, rating int) error {
	if text == "" {
		return invalidf("review text is required")
	}
	if rating < 1 || rating > 5 {
		return invalidf("rating must be between 1 and 5")
	}
	return nil
}
