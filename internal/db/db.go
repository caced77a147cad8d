package db

import (
	"context"
	"time"

	"github.com/trektide/apiserver/config"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultPingTimeout    = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 25
)

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(defaultConnectTimeout).
		SetMaxPoolSize(defaultMaxPoolSize)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the indexes the stores rely on. Safe to call on
// every startup; existing indexes are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	accountIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("accounts").Indexes().CreateMany(ctx, accountIndexes); err != nil {
		return err
	}

	tourIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "price", Value: 1}, {Key: "ratings_average", Value: -1}}},
		{Keys: bson.D{{Key: "start_location", Value: "2dsphere"}}},
	}
	if _, err := db.Collection("tours").Indexes().CreateMany(ctx, tourIndexes); err != nil {
		return err
	}

	reviewIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tour_id", Value: 1}, {Key: "author_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("reviews").Indexes().CreateMany(ctx, reviewIndexes); err != nil {
		return err
	}

	bookingIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
		{Keys: bson.D{{Key: "tour_id", Value: 1}}},
	}
	if _, err := db.Collection("bookings").Indexes().CreateMany(ctx, bookingIndexes); err != nil {
		return err
	}

	return nil
}
