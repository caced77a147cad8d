package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Tour difficulties form a closed set.
const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// ValidDifficulty reports whether d is a known tour difficulty.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyDifficult:
		return true
	}
	return false
}

// Location is a GeoJSON point with presentation metadata.
type Location struct {
	// Type is always "Point".
	Type string `json:"type" bson:"type"`

	// Coordinates are [longitude, latitude].
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`

	Address     string `json:"address,omitempty" bson:"address,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	// Day is the tour day on which this stop is visited.
	Day int `json:"day,omitempty" bson:"day,omitempty"`
}

// Tour represents a bookable tour.
type Tour struct {
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Name is unique and between 2 and 40 characters.
	Name string `json:"name" bson:"name"`

	// Slug is derived from Name on create and on rename.
	Slug string `json:"slug" bson:"slug"`

	// Duration is the tour length in days.
	Duration int `json:"duration" bson:"duration"`

	MaxGroupSize int `json:"max_group_size" bson:"max_group_size"`

	// Difficulty is one of easy, medium, difficult.
	Difficulty string `json:"difficulty" bson:"difficulty"`

	// RatingsAverage is between 1 and 5, rounded to two decimals.
	// Maintained by the review service, never written by clients.
	RatingsAverage  float64 `json:"ratings_average" bson:"ratings_average"`
	RatingsQuantity int     `json:"ratings_quantity" bson:"ratings_quantity"`

	// Price is the per-person price in whole currency units.
	Price float64 `json:"price" bson:"price"`

	// PriceDiscount, when set, must be lower than Price.
	PriceDiscount float64 `json:"price_discount,omitempty" bson:"price_discount,omitempty"`

	Summary     string `json:"summary" bson:"summary"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	// ImageCover and Images are object-storage keys.
	ImageCover string   `json:"image_cover" bson:"image_cover"`
	Images     []string `json:"images,omitempty" bson:"images,omitempty"`

	StartDates []time.Time `json:"start_dates,omitempty" bson:"start_dates,omitempty"`

	StartLocation Location   `json:"start_location" bson:"start_location"`
	Locations     []Location `json:"locations,omitempty" bson:"locations,omitempty"`

	// Secret tours are excluded from public listings.
	Secret bool `json:"-" bson:"secret"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// TourStats is one row of the per-difficulty aggregation.
type TourStats struct {
	Difficulty string  `json:"difficulty" bson:"_id"`
	NumTours   int     `json:"num_tours" bson:"num_tours"`
	NumRatings int     `json:"num_ratings" bson:"num_ratings"`
	AvgRating  float64 `json:"avg_rating" bson:"avg_rating"`
	AvgPrice   float64 `json:"avg_price" bson:"avg_price"`
	MinPrice   float64 `json:"min_price" bson:"min_price"`
	MaxPrice   float64 `json:"max_price" bson:"max_price"`
}

// MonthlyPlanEntry is one row of the starts-per-month aggregation.
type MonthlyPlanEntry struct {
	Month     int      `json:"month" bson:"_id"`
	NumStarts int      `json:"num_starts" bson:"num_starts"`
	Tours     []string `json:"tours" bson:"tours"`
}

// TourDistance is one row of the distance-from-point aggregation.
type TourDistance struct {
	ID       bson.ObjectID `json:"id" bson:"_id"`
	Name     string        `json:"name" bson:"name"`
	Distance float64       `json:"distance" bson:"distance"`
}
