package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Donation statuses. A donation moves available -> claimed -> completed;
// available and claimed can also end in cancelled (donor action) or
// expired (time-based). completed, cancelled and expired are terminal.
const (
	StatusAvailable = "available"
	StatusClaimed   = "claimed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Food categories, mirrored in the listing search filters.
var FoodCategories = map[string]string{
	"fruits":     "Fruits",
	"vegetables": "Vegetables",
	"grains":     "Grains & Bread",
	"protein":    "Protein (Meat/Fish)",
	"dairy":      "Dairy Products",
	"prepared":   "Prepared Meals",
	"pantry":     "Pantry Items",
	"beverages":  "Beverages",
	"other":      "Other",
}

// Donation is a surplus food listing posted by a donor.
type Donation struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DonorID           primitive.ObjectID  `bson:"donor_id" json:"donor_id"`
	RecipientID       *primitive.ObjectID `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	Title             string              `bson:"title" json:"title"`
	Description       string              `bson:"description" json:"description"`
	FoodCategory      string              `bson:"food_category" json:"food_category"`
	Quantity          int                 `bson:"quantity" json:"quantity"`
	DietaryTags       []string            `bson:"dietary_tags,omitempty" json:"dietary_tags,omitempty"`
	EstimatedCalories int                 `bson:"estimated_calories,omitempty" json:"estimated_calories,omitempty"`
	NutritionScore    int                 `bson:"nutrition_score" json:"nutrition_score"`
	Location          string              `bson:"location" json:"location"`
	Status            string              `bson:"status" json:"status"`
	ExpiryAt          time.Time           `bson:"expiry_at" json:"expiry_at"`
	PickupStart       time.Time           `bson:"pickup_start,omitempty" json:"pickup_start,omitempty"`
	PickupEnd         time.Time           `bson:"pickup_end,omitempty" json:"pickup_end,omitempty"`
	ClaimedAt         *time.Time          `bson:"claimed_at,omitempty" json:"claimed_at,omitempty"`
	CompletedAt       *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt         time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the expiry timestamp has passed.
func (d *Donation) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiryAt)
}

// IsPickupOverdue reports whether the pickup window has closed.
func (d *Donation) IsPickupOverdue(now time.Time) bool {
	return !d.PickupEnd.IsZero() && now.After(d.PickupEnd)
}

// IsTerminal reports whether no further status transition is legal.
func (d *Donation) IsTerminal() bool {
	switch d.Status {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsParty reports whether the user is the donor or the claimant.
func (d *Donation) IsParty(userID primitive.ObjectID) bool {
	if d.DonorID == userID {
		return true
	}
	return d.RecipientID != nil && *d.RecipientID == userID
}

// CounterpartyOf returns the other side of a completed exchange: the
// claimant for the donor and vice versa. ok is false for non-parties or
// unclaimed donations.
func (d *Donation) CounterpartyOf(userID primitive.ObjectID) (primitive.ObjectID, bool) {
	if d.RecipientID == nil {
		return primitive.NilObjectID, false
	}
	switch userID {
	case d.DonorID:
		return *d.RecipientID, true
	case *d.RecipientID:
		return d.DonorID, true
	}
	return primitive.NilObjectID, false
}
