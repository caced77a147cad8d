package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Review is a rating left by an account for a tour. An account can review
// a given tour at most once, enforced by a unique (tour, author) index.
type Review struct {
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Review is the free-text body; must not be empty.
	Review string `json:"review" bson:"review"`

	// Rating is between 1 and 5.
	Rating int `json:"rating" bson:"rating"`

	TourID   bson.ObjectID `json:"tour_id" bson:"tour_id"`
	AuthorID bson.ObjectID `json:"author_id" bson:"author_id"`

	// AuthorName and AuthorPhoto are denormalized for display.
	AuthorName  string `json:"author_name,omitempty" bson:"author_name,omitempty"`
	AuthorPhoto string `json:"author_photo,omitempty" bson:"author_photo,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// RatingsSummary is the aggregate the review store computes for a tour.
type RatingsSummary struct {
	Quantity int     `bson:"quantity"`
	Average  float64 `bson:"average"`
}
