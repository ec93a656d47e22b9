package services

import (
	"context"
	"fmt"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RatingService is the rating ledger: it records the mutual reviews of
// completed donations and exposes each user's trust score.
type RatingService struct {
	ratings   RatingStore
	donations DonationStore
	notifier  Notifier
}

// NewRatingService creates a new instance of RatingService.
func NewRatingService(ratings RatingStore, donations DonationStore, notifier Notifier) *RatingService {
	return &RatingService{
		ratings:   ratings,
		donations: donations,
		notifier:  notifier,
	}
}

// AddRating records a rating for the other party of a completed
// donation. Each party may rate exactly once per donation.
func (s *RatingService) AddRating(ctx context.Context, donationID, raterID primitive.ObjectID, score int, comment string) (*models.Rating, error) {
	if score < models.MinRatingScore || score > models.MaxRatingScore {
		return nil, apperrors.Ef(apperrors.KindInvalidInput,
			"score must be between %d and %d", models.MinRatingScore, models.MaxRatingScore)
	}
	if len(comment) > 500 {
		return nil, apperrors.E(apperrors.KindInvalidInput, "comment must be at most 500 characters")
	}

	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.Status != models.StatusCompleted {
		return nil, apperrors.E(apperrors.KindConflict, "only completed donations can be rated")
	}

	rateeID, ok := donation.CounterpartyOf(raterID)
	if !ok {
		return nil, apperrors.E(apperrors.KindForbidden, "only the donor or the claimant can rate this donation")
	}

	exists, err := s.ratings.Exists(ctx, donationID, raterID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.E(apperrors.KindConflict, "you have already rated this donation")
	}

	rating, err := s.ratings.Insert(ctx, &models.Rating{
		DonationID: donationID,
		RaterID:    raterID,
		RateeID:    rateeID,
		Score:      score,
		Comment:    comment,
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Notify(ctx, rateeID, models.NotifRatingReceived, "New Rating Received",
		fmt.Sprintf("You received a %d/5 rating for '%s'.", score, donation.Title), &donationID); err != nil {
		logrus.WithError(err).Warn("Failed to emit rating notification")
	}

	return rating, nil
}

// GetAverageScore returns a user's mean received score, or nil for a
// user nobody has rated yet.
func (s *RatingService) GetAverageScore(ctx context.Context, userID primitive.ObjectID) (*float64, error) {
	return s.ratings.AverageForUser(ctx, userID)
}

// ListUserRatings returns the ratings a user has received.
func (s *RatingService) ListUserRatings(ctx context.Context, userID primitive.ObjectID) ([]models.Rating, error) {
	return s.ratings.ListForUser(ctx, userID)
}
