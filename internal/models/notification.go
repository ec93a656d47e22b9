package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types.
const (
	NotifDonationClaimed   = "donation_claimed"
	NotifDonationCompleted = "donation_completed"
	NotifNewDonation       = "new_donation"
	NotifRatingReceived    = "rating_received"
	NotifSystem            = "system"
)

// Notification is a lifecycle event delivered to a user. The badge in
// the web UI polls the unread count; the WebSocket stream pushes new
// entries to connected clients.
type Notification struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Type       string              `bson:"type" json:"type"`
	Title      string              `bson:"title" json:"title"`
	Message    string              `bson:"message" json:"message"`
	IsRead     bool                `bson:"is_read" json:"is_read"`
	ReadAt     *time.Time          `bson:"read_at,omitempty" json:"read_at,omitempty"`
	DonationID *primitive.ObjectID `bson:"donation_id,omitempty" json:"donation_id,omitempty"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
}
