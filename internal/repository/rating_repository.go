package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RatingRepository struct {
	collection *mongo.Collection
}

func NewRatingRepository(db *mongo.Database) *RatingRepository {
	return &RatingRepository{
		collection: db.Collection("ratings"),
	}
}

// Insert stores a new rating. The unique (donation_id, rater_id) index
// rejects a second rating in the same direction, which surfaces as a
// conflict so a racing duplicate gets the same answer as a sequential
// one.
func (r *RatingRepository) Insert(ctx context.Context, rating *models.Rating) (*models.Rating, error) {
	rating.CreatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, rating)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.E(apperrors.KindConflict, "you have already rated this donation")
		}
		logrus.WithError(err).Error("Failed to insert rating")
		return nil, apperrors.Storage("failed to insert rating", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, apperrors.E(apperrors.KindStorage, "failed to cast inserted rating ID")
	}
	rating.ID = insertedID

	logrus.WithFields(logrus.Fields{
		"rating_id":   rating.ID.Hex(),
		"donation_id": rating.DonationID.Hex(),
	}).Info("Rating created")
	return rating, nil
}

// Exists reports whether rater has already rated the donation.
func (r *RatingRepository) Exists(ctx context.Context, donationID, raterID primitive.ObjectID) (bool, error) {
	err := r.collection.FindOne(ctx, bson.M{
		"donation_id": donationID,
		"rater_id":    raterID,
	}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, apperrors.Storage("failed to check rating existence", err)
	}
	return true, nil
}

// AverageForUser computes the mean received score. Users with no
// ratings yet get a nil result rather than a zero.
func (r *RatingRepository) AverageForUser(ctx context.Context, userID primitive.ObjectID) (*float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ratee_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"average": bson.M{"$avg": "$score"},
			"count":   bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID.Hex()).Error("Failed to aggregate ratings")
		return nil, apperrors.Storage("failed to aggregate ratings", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return nil, nil
	}

	var row struct {
		Average float64 `bson:"average"`
	}
	if err := cursor.Decode(&row); err != nil {
		return nil, apperrors.Storage("failed to decode rating average", err)
	}
	return &row.Average, nil
}

// ListForUser returns ratings received by a user, newest first.
func (r *RatingRepository) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Rating, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"ratee_id": userID}, opts)
	if err != nil {
		return nil, apperrors.Storage("failed to fetch ratings", err)
	}
	defer cursor.Close(ctx)

	var ratings []models.Rating
	if err := cursor.All(ctx, &ratings); err != nil {
		return nil, apperrors.Storage("failed to decode ratings", err)
	}
	return ratings, nil
}
