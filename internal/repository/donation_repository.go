package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/foodloop/foodloop/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DonationRepository handles database operations related to donations.
//
// Every status mutation is a single conditional write: the expected
// prior status (and, where relevant, the expiry bound) is part of the
// query filter, and the outcome is decided by whether a document
// matched. Concurrent actors therefore race on the database, not on an
// in-process lock, and at most one of them can win any transition.
type DonationRepository struct {
	collection *mongo.Collection
}

// NewDonationRepository creates a new instance of DonationRepository.
func NewDonationRepository(db *mongo.Database) *DonationRepository {
	return &DonationRepository{
		collection: db.Collection("donations"),
	}
}

// Insert stores a new donation.
func (r *DonationRepository) Insert(ctx context.Context, donation *models.Donation) (*models.Donation, error) {
	donation.CreatedAt = time.Now()
	donation.UpdatedAt = donation.CreatedAt

	result, err := r.collection.InsertOne(ctx, donation)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to insert donation")
		return nil, apperrors.Storage("failed to insert donation", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		logger.Log.Error("Failed to cast inserted donation ID")
		return nil, apperrors.E(apperrors.KindStorage, "failed to cast inserted donation ID")
	}
	donation.ID = insertedID

	logger.Log.WithField("donation_id", donation.ID.Hex()).Info("Donation created")
	return donation, nil
}

// FindByID fetches a donation by its ID.
func (r *DonationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Donation, error) {
	var donation models.Donation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&donation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.E(apperrors.KindNotFound, "donation not found")
		}
		logger.Log.WithError(err).WithField("donation_id", id.Hex()).Error("Failed to find donation")
		return nil, apperrors.Storage("failed to find donation", err)
	}
	return &donation, nil
}

// Claim atomically transitions an available, unexpired donation to
// claimed and sets the claimant. Losing a race against another claimant
// (or against expiry) surfaces as a conflict.
func (r *DonationRepository) Claim(ctx context.Context, id, recipientID primitive.ObjectID, now time.Time) (*models.Donation, error) {
	filter := bson.M{
		"_id":       id,
		"status":    models.StatusAvailable,
		"expiry_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{
		"status":       models.StatusClaimed,
		"recipient_id": recipientID,
		"claimed_at":   now,
		"updated_at":   now,
	}}

	donation, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, r.disambiguate(ctx, id, err, "donation is no longer available")
	}

	logger.Log.WithFields(map[string]interface{}{
		"donation_id":  id.Hex(),
		"recipient_id": recipientID.Hex(),
	}).Info("Donation claimed")
	return donation, nil
}

// Complete atomically transitions a claimed donation to completed.
func (r *DonationRepository) Complete(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Donation, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.StatusClaimed,
	}
	update := bson.M{"$set": bson.M{
		"status":       models.StatusCompleted,
		"completed_at": now,
		"updated_at":   now,
	}}

	donation, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, r.disambiguate(ctx, id, err, "only claimed donations can be completed")
	}

	logger.Log.WithField("donation_id", id.Hex()).Info("Donation completed")
	return donation, nil
}

// Cancel atomically transitions an available or claimed donation to
// cancelled.
func (r *DonationRepository) Cancel(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Donation, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []string{models.StatusAvailable, models.StatusClaimed}},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.StatusCancelled,
		"updated_at": now,
	}}

	donation, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, r.disambiguate(ctx, id, err, "donation can no longer be cancelled")
	}

	logger.Log.WithField("donation_id", id.Hex()).Info("Donation cancelled")
	return donation, nil
}

// Expire flips a single overdue donation to expired. It reports whether
// this call performed the transition, so the sweep emits events only
// for documents it actually flipped.
func (r *DonationRepository) Expire(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":       id,
		"status":    bson.M{"$in": []string{models.StatusAvailable, models.StatusClaimed}},
		"expiry_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.StatusExpired,
		"updated_at": now,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logger.Log.WithError(err).WithField("donation_id", id.Hex()).Error("Failed to expire donation")
		return false, apperrors.Storage("failed to expire donation", err)
	}
	return result.ModifiedCount == 1, nil
}

// Release reverts a claimed donation whose pickup window has passed
// back to available, clearing the claimant.
func (r *DonationRepository) Release(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":        id,
		"status":     models.StatusClaimed,
		"pickup_end": bson.M{"$gt": time.Time{}, "$lte": now},
		"expiry_at":  bson.M{"$gt": now},
	}
	update := bson.M{
		"$set":   bson.M{"status": models.StatusAvailable, "updated_at": now},
		"$unset": bson.M{"recipient_id": "", "claimed_at": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logger.Log.WithError(err).WithField("donation_id", id.Hex()).Error("Failed to release stale claim")
		return false, apperrors.Storage("failed to release stale claim", err)
	}
	return result.ModifiedCount == 1, nil
}

// FindExpiredCandidates lists active donations whose expiry has passed.
func (r *DonationRepository) FindExpiredCandidates(ctx context.Context, now time.Time) ([]models.Donation, error) {
	filter := bson.M{
		"status":    bson.M{"$in": []string{models.StatusAvailable, models.StatusClaimed}},
		"expiry_at": bson.M{"$lte": now},
	}
	return r.findAll(ctx, filter, nil)
}

// FindStaleClaims lists claimed, unexpired donations whose pickup
// window has closed.
func (r *DonationRepository) FindStaleClaims(ctx context.Context, now time.Time) ([]models.Donation, error) {
	filter := bson.M{
		"status":     models.StatusClaimed,
		"pickup_end": bson.M{"$gt": time.Time{}, "$lte": now},
		"expiry_at":  bson.M{"$gt": now},
	}
	return r.findAll(ctx, filter, nil)
}

// List returns available, unexpired donations matching the search
// filter, newest first.
func (r *DonationRepository) List(ctx context.Context, f models.DonationFilter) ([]models.Donation, error) {
	filter := bson.M{
		"status":    models.StatusAvailable,
		"expiry_at": bson.M{"$gt": f.Now},
	}
	if f.Category != "" {
		filter["food_category"] = f.Category
	}
	if f.Location != "" {
		filter["location"] = f.Location
	}
	if f.Query != "" {
		pattern := primitive.Regex{Pattern: f.Query, Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > models.MaxSearchResults {
		limit = models.MaxSearchResults
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	return r.findAll(ctx, filter, opts)
}

// CountActiveClaims counts a recipient's currently claimed donations.
func (r *DonationRepository) CountActiveClaims(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"recipient_id": recipientID,
		"status":       models.StatusClaimed,
	})
	if err != nil {
		return 0, apperrors.Storage("failed to count active claims", err)
	}
	return count, nil
}

// Stats aggregates lifetime donation counts for a user. Donors are
// counted on the owning side, recipients on the claiming side.
func (r *DonationRepository) Stats(ctx context.Context, userID primitive.ObjectID, role string) (*models.DonationStats, error) {
	match := bson.M{"donor_id": userID}
	if role == models.RoleRecipient {
		match = bson.M{"recipient_id": userID}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$status", models.StatusCompleted}}, 1, 0,
			}}},
			"active": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{"$status", bson.A{models.StatusAvailable, models.StatusClaimed}}}, 1, 0,
			}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID.Hex()).Error("Failed to aggregate donation stats")
		return nil, apperrors.Storage("failed to aggregate donation stats", err)
	}
	defer cursor.Close(ctx)

	stats := &models.DonationStats{Role: role}
	if cursor.Next(ctx) {
		var row struct {
			Total     int64 `bson:"total"`
			Completed int64 `bson:"completed"`
			Active    int64 `bson:"active"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, apperrors.Storage("failed to decode donation stats", err)
		}
		stats.Total = row.Total
		stats.Completed = row.Completed
		stats.Active = row.Active
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (r *DonationRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Donation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var donation models.Donation
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&donation)
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

// disambiguate turns a failed guarded update into the right error kind:
// the document being absent means not found, the document existing in
// another state means the precondition failed.
func (r *DonationRepository) disambiguate(ctx context.Context, id primitive.ObjectID, err error, conflictMsg string) error {
	if !errors.Is(err, mongo.ErrNoDocuments) {
		logger.Log.WithError(err).WithField("donation_id", id.Hex()).Error("Conditional donation update failed")
		return apperrors.Storage("conditional donation update failed", err)
	}

	count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return apperrors.Storage("failed to check donation existence", countErr)
	}
	if count == 0 {
		return apperrors.E(apperrors.KindNotFound, "donation not found")
	}
	return apperrors.E(apperrors.KindConflict, conflictMsg)
}

func (r *DonationRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Donation, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.collection.Find(ctx, filter, opts)
	} else {
		cursor, err = r.collection.Find(ctx, filter)
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to query donations")
		return nil, apperrors.Storage("failed to query donations", err)
	}
	defer cursor.Close(ctx)

	var donations []models.Donation
	if err := cursor.All(ctx, &donations); err != nil {
		return nil, apperrors.Storage("failed to decode donations", err)
	}
	return donations, nil
}
