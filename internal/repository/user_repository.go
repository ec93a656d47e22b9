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

// UserRepository handles database operations related to users.
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// Create inserts a new user. The unique email index turns a duplicate
// registration into a conflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.E(apperrors.KindConflict, "email already in use")
		}
		logrus.WithError(err).Error("Failed to insert user")
		return nil, apperrors.Storage("failed to insert user", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, apperrors.E(apperrors.KindStorage, "failed to cast inserted user ID")
	}
	user.ID = insertedID

	logrus.WithField("userID", user.ID.Hex()).Info("User created")
	return user, nil
}

// FindByEmail retrieves a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.E(apperrors.KindNotFound, "user not found")
		}
		return nil, apperrors.Storage("failed to find user by email", err)
	}
	return &user, nil
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.E(apperrors.KindNotFound, "user not found")
		}
		return nil, apperrors.Storage("failed to find user by id", err)
	}
	return &user, nil
}

// FindByVerifyToken retrieves a user by their email verification token.
func (r *UserRepository) FindByVerifyToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"verify_token": token}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.E(apperrors.KindNotFound, "invalid verification token")
		}
		return nil, apperrors.Storage("failed to find user by token", err)
	}
	return &user, nil
}

// Update applies a partial field update and returns the fresh document.
func (r *UserRepository) Update(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) (*models.User, error) {
	fields["updated_at"] = time.Now()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": fields}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.E(apperrors.KindNotFound, "user not found")
		}
		logrus.WithError(err).WithField("userID", id.Hex()).Error("Failed to update user")
		return nil, apperrors.Storage("failed to update user", err)
	}
	return &user, nil
}

// UpdateLastActive bumps the activity timestamp without touching
// updated_at.
func (r *UserRepository) UpdateLastActive(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_active_at": time.Now()}},
	)
	if err != nil {
		return apperrors.Storage("failed to update last active", err)
	}
	return nil
}

// FindRecipientsByLocation lists verified, active recipients in a
// location bucket, used for new-donation fan-out.
func (r *UserRepository) FindRecipientsByLocation(ctx context.Context, location string, limit int) ([]models.User, error) {
	filter := bson.M{
		"role":        models.RoleRecipient,
		"location":    location,
		"is_verified": true,
		"is_active":   true,
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_active_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).WithField("location", location).Error("Failed to query recipients")
		return nil, apperrors.Storage("failed to query recipients", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, apperrors.Storage("failed to decode recipients", err)
	}
	return users, nil
}
