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

// BookingRepository handles persistence for bookings.
type BookingRepository struct {
	coll *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{coll: db.Collection("bookings")}
}

func (r *BookingRepository) List(ctx context.Context, opts query.Options) ([]types.Booking, int, error) {
	filter := buildFilter(bson.M{}, opts.Filter)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	cursor, err := r.coll.Find(ctx, filter, buildFindOptions(opts))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var bookings []types.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, err
	}
	return bookings, int(total), nil
}

func (r *BookingRepository) ListByAccount(ctx context.Context, accountID bson.ObjectID) ([]types.Booking, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []types.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id bson.ObjectID) (types.Booking, error) {
	var booking types.Booking
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Booking{}, ErrNotFound
		}
		return types.Booking{}, err
	}
	return booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, booking types.Booking) (types.Booking, error) {
	booking.ID = bson.NewObjectID()
	booking.CreatedAt = time.Now()

	if _, err := r.coll.InsertOne(ctx, booking); err != nil {
		return types.Booking{}, err
	}
	return booking, nil
}

// Update rewrites the mutable booking fields.
func (r *BookingRepository) Update(ctx context.Context, id bson.ObjectID, price float64, paid bool) (types.Booking, error) {
	result, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"price": price, "paid": paid}},
	)
	if err != nil {
		return types.Booking{}, err
	}
	if result.MatchedCount == 0 {
		return types.Booking{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *BookingRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
