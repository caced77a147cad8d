package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Booking records a paid (or manually created) reservation of a tour.
type Booking struct {
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	TourID    bson.ObjectID `json:"tour_id" bson:"tour_id"`
	AccountID bson.ObjectID `json:"account_id" bson:"account_id"`

	// Price is the amount paid, in whole currency units.
	Price float64 `json:"price" bson:"price"`

	// Paid is false only for bookings created manually by staff.
	Paid bool `json:"paid" bson:"paid"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
