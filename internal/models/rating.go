package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rating score bounds.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// Rating is a post-completion review of the other party of a donation.
// Each donation allows at most two ratings, one per direction, enforced
// by a unique (donation_id, rater_id) index.
type Rating struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DonationID primitive.ObjectID `bson:"donation_id" json:"donation_id"`
	RaterID    primitive.ObjectID `bson:"rater_id" json:"rater_id"`
	RateeID    primitive.ObjectID `bson:"ratee_id" json:"ratee_id"`
	Score      int                `bson:"score" json:"score"`
	Comment    string             `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
