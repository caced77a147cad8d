package store

import (
	"context"
	"errors"
	"time"

	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ReviewRepository handles persistence for reviews.
type ReviewRepository struct {
	coll *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{coll: db.Collection("reviews")}
}

// ListByTour returns reviews for one tour. A zero tourID lists across all
// tours (admin listing).
func (r *ReviewRepository) ListByTour(ctx context.Context, tourID bson.ObjectID, opts query.Options) ([]types.Review, int, error) {
	base := bson.M{}
	if !tourID.IsZero() {
		base["tour_id"] = tourID
	}
	filter := buildFilter(base, opts.Filter)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	cursor, err := r.coll.Find(ctx, filter, buildFindOptions(opts))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var reviews []types.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, 0, err
	}
	return reviews, int(total), nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id bson.ObjectID) (types.Review, error) {
	var review types.Review
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&review)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Review{}, ErrNotFound
		}
		return types.Review{}, err
	}
	return review, nil
}

func (r *ReviewRepository) Create(ctx context.Context, review types.Review) (types.Review, error) {
	now := time.Now()
	review.ID = bson.NewObjectID()
	review.CreatedAt = now
	review.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, review); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Review{}, ErrDuplicate
		}
		return types.Review{}, err
	}
	return review, nil
}

// Update rewrites the review body and rating.
func (r *ReviewRepository) Update(ctx context.Context, id bson.ObjectID, text string, rating int) (types.Review, error) {
	result, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"review":     text,
			"rating":     rating,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return types.Review{}, err
	}
	if result.MatchedCount == 0 {
		return types.Review{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ReviewRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Summarize recomputes the review aggregate for a tour. A tour with no
// reviews yields a zero summary.
func (r *ReviewRepository) Summarize(ctx context.Context, tourID bson.ObjectID) (types.RatingsSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tour_id": tourID}}},
		{{Key: "$group", Value: bson.M{
			"_id":      "$tour_id",
			"quantity": bson.M{"$sum": 1},
			"average":  bson.M{"$avg": "$rating"},
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return types.RatingsSummary{}, err
	}
	defer cursor.Close(ctx)

	var summaries []types.RatingsSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return types.RatingsSummary{}, err
	}
	if len(summaries) == 0 {
		return types.RatingsSummary{}, nil
	}
	return summaries[0], nil
}
