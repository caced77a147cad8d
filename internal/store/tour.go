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

// TourRepository handles persistence for tours.
type TourRepository struct {
	coll *mongo.Collection
}

func NewTourRepository(db *mongo.Database) *TourRepository {
	return &TourRepository{coll: db.Collection("tours")}
}

// List returns tours matching the parsed query options plus the total
// match count. Secret tours are excluded unless includeSecret is set.
func (r *TourRepository) List(ctx context.Context, opts query.Options, includeSecret bool) ([]types.Tour, int, error) {
	base := bson.M{}
	if !includeSecret {
		base["secret"] = false
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

	var tours []types.Tour
	if err := cursor.All(ctx, &tours); err != nil {
		return nil, 0, err
	}
	return tours, int(total), nil
}

func (r *TourRepository) GetByID(ctx context.Context, id bson.ObjectID) (types.Tour, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *TourRepository) GetBySlug(ctx context.Context, slug string) (types.Tour, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *TourRepository) findOne(ctx context.Context, filter bson.M) (types.Tour, error) {
	var tour types.Tour
	err := r.coll.FindOne(ctx, filter).Decode(&tour)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Tour{}, ErrNotFound
		}
		return types.Tour{}, err
	}
	return tour, nil
}

func (r *TourRepository) Create(ctx context.Context, tour types.Tour) (types.Tour, error) {
	now := time.Now()
	tour.ID = bson.NewObjectID()
	tour.CreatedAt = now
	tour.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, tour); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Tour{}, ErrDuplicate
		}
		return types.Tour{}, err
	}
	return tour, nil
}

// Update replaces the stored document with tour. Callers load the current
// document first, so ratings and timestamps are carried through.
func (r *TourRepository) Update(ctx context.Context, tour types.Tour) (types.Tour, error) {
	tour.UpdatedAt = time.Now()

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": tour.ID}, tour)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Tour{}, ErrDuplicate
		}
		return types.Tour{}, err
	}
	if result.MatchedCount == 0 {
		return types.Tour{}, ErrNotFound
	}
	return tour, nil
}

func (r *TourRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRatings writes the recomputed review aggregate for a tour.
func (r *TourRepository) UpdateRatings(ctx context.Context, id bson.ObjectID, average float64, quantity int) error {
	result, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"ratings_average":  average,
			"ratings_quantity": quantity,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetImages records freshly uploaded image keys. Empty arguments leave the
// corresponding field untouched.
func (r *TourRepository) SetImages(ctx context.Context, id bson.ObjectID, cover string, images []string) error {
	set := bson.M{"updated_at": time.Now()}
	if cover != "" {
		set["image_cover"] = cover
	}
	if len(images) > 0 {
		set["images"] = images
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates tours by difficulty.
func (r *TourRepository) Stats(ctx context.Context) ([]types.TourStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"secret": false}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$difficulty",
			"num_tours":   bson.M{"$sum": 1},
			"num_ratings": bson.M{"$sum": "$ratings_quantity"},
			"avg_rating":  bson.M{"$avg": "$ratings_average"},
			"avg_price":   bson.M{"$avg": "$price"},
			"min_price":   bson.M{"$min": "$price"},
			"max_price":   bson.M{"$max": "$price"},
		}}},
		{{Key: "$sort", Value: bson.M{"avg_price": 1}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []types.TourStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// MonthlyPlan counts tour starts per month of the given year.
func (r *TourRepository) MonthlyPlan(ctx context.Context, year int) ([]types.MonthlyPlanEntry, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)

	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$start_dates"}},
		{{Key: "$match", Value: bson.M{
			"start_dates": bson.M{"$gte": from, "$lte": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":        bson.M{"$month": "$start_dates"},
			"num_starts": bson.M{"$sum": 1},
			"tours":      bson.M{"$push": "$name"},
		}}},
		{{Key: "$sort", Value: bson.M{"num_starts": -1}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var plan []types.MonthlyPlanEntry
	if err := cursor.All(ctx, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Within returns tours whose start location lies inside the sphere of the
// given radius (in radians) around the point.
func (r *TourRepository) Within(ctx context.Context, lng, lat, radiusRadians float64) ([]types.Tour, error) {
	filter := bson.M{
		"secret": false,
		"start_location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": bson.A{bson.A{lng, lat}, radiusRadians},
			},
		},
	}

	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tours []types.Tour
	if err := cursor.All(ctx, &tours); err != nil {
		return nil, err
	}
	return tours, nil
}

// Distances computes the distance from the point to every tour's start
// location, scaled by multiplier (to miles or kilometers).
func (r *TourRepository) Distances(ctx context.Context, lng, lat, multiplier float64) ([]types.TourDistance, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near": bson.M{
				"type":        "Point",
				"coordinates": bson.A{lng, lat},
			},
			"distanceField":      "distance",
			"distanceMultiplier": multiplier,
		}}},
		{{Key: "$project", Value: bson.M{"name": 1, "distance": 1}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var distances []types.TourDistance
	if err := cursor.All(ctx, &distances); err != nil {
		return nil, err
	}
	return distances, nil
}
