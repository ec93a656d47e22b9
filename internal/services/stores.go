package services

import (
	"context"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DonationStore is the persistence contract of the lifecycle engine.
// Claim, Complete, Cancel, Expire and Release must each perform their
// precondition check and mutation as one atomic conditional write, so a
// race between two actors is decided by the store rather than by
// whoever read the status first.
type DonationStore interface {
	Insert(ctx context.Context, donation *models.Donation) (*models.Donation, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Donation, error)
	Claim(ctx context.Context, id, recipientID primitive.ObjectID, now time.Time) (*models.Donation, error)
	Complete(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Donation, error)
	Cancel(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Donation, error)
	Expire(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	Release(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	FindExpiredCandidates(ctx context.Context, now time.Time) ([]models.Donation, error)
	FindStaleClaims(ctx context.Context, now time.Time) ([]models.Donation, error)
	List(ctx context.Context, filter models.DonationFilter) ([]models.Donation, error)
	CountActiveClaims(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
	Stats(ctx context.Context, userID primitive.ObjectID, role string) (*models.DonationStats, error)
}

// RatingStore persists the rating ledger.
type RatingStore interface {
	Insert(ctx context.Context, rating *models.Rating) (*models.Rating, error)
	Exists(ctx context.Context, donationID, raterID primitive.ObjectID) (bool, error)
	AverageForUser(ctx context.Context, userID primitive.ObjectID) (*float64, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Rating, error)
}

// NotificationStore persists the notification feed.
type NotificationStore interface {
	Insert(ctx context.Context, notif *models.Notification) (*models.Notification, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) error
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteOldRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByVerifyToken(ctx context.Context, token string) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) (*models.User, error)
	UpdateLastActive(ctx context.Context, id primitive.ObjectID) error
	FindRecipientsByLocation(ctx context.Context, location string, limit int) ([]models.User, error)
}

// Notifier receives lifecycle events. Emission happens only after the
// corresponding store write has committed; a failing sink never rolls a
// transition back.
type Notifier interface {
	Notify(ctx context.Context, userID primitive.ObjectID, notifType, title, message string, donationID *primitive.ObjectID) error
}

// Mailer sends plain-text email.
type Mailer interface {
	Send(to, subject, body string) error
}
