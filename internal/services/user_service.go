package services

import (
	"context"
	"fmt"
	"regexp"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// UserService encapsulates account management: registration with email
// verification, login and profile updates.
type UserService struct {
	repo    UserStore
	mailer  Mailer
	baseURL string
}

// NewUserService creates a new instance of UserService. mailer may be
// nil, in which case verification links are only logged.
func NewUserService(repo UserStore, mailer Mailer, baseURL string) *UserService {
	return &UserService{
		repo:    repo,
		mailer:  mailer,
		baseURL: baseURL,
	}
}

// RegisterInput carries a signup request.
type RegisterInput struct {
	Username            string   `json:"username"`
	Email               string   `json:"email"`
	Password            string   `json:"password"`
	Role                string   `json:"role"`
	PhoneNumber         string   `json:"phone_number"`
	Location            string   `json:"location"`
	Bio                 string   `json:"bio"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
}

// RegisterUser creates a new donor or recipient account and sends the
// verification email.
func (s *UserService) RegisterUser(ctx context.Context, input RegisterInput) (*models.User, error) {
	logrus.Info("Registering new user")

	if input.Email == "" || input.Username == "" || input.Password == "" {
		return nil, apperrors.E(apperrors.KindInvalidInput, "username, email and password are required")
	}
	if !emailRegex.MatchString(input.Email) {
		return nil, apperrors.E(apperrors.KindInvalidInput, "invalid email format")
	}
	if input.Role != models.RoleDonor && input.Role != models.RoleRecipient {
		return nil, apperrors.E(apperrors.KindInvalidInput, "role must be donor or recipient")
	}
	if !models.IsValidLocation(input.Location) {
		return nil, apperrors.E(apperrors.KindInvalidInput, "invalid location")
	}
	if input.PhoneNumber != "" && !phoneRegex.MatchString(input.PhoneNumber) {
		return nil, apperrors.E(apperrors.KindInvalidInput, "invalid phone number")
	}

	if existing, _ := s.repo.FindByEmail(ctx, input.Email); existing != nil {
		return nil, apperrors.E(apperrors.KindConflict, "email already in use")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Password hashing failed")
		return nil, apperrors.Storage("failed to hash password", err)
	}

	user := &models.User{
		Username:            input.Username,
		Email:               input.Email,
		HashedPassword:      string(hashedPwd),
		Role:                input.Role,
		PhoneNumber:         input.PhoneNumber,
		Location:            input.Location,
		Bio:                 input.Bio,
		DietaryRestrictions: input.DietaryRestrictions,
		IsVerified:          false,
		VerifyToken:         uuid.NewString(),
		IsActive:            true,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	verificationLink := fmt.Sprintf("%s/users/verify?token=%s", s.baseURL, created.VerifyToken)
	if s.mailer != nil {
		body := fmt.Sprintf("Welcome to FoodLoop!\n\nPlease verify your email by clicking the link below:\n%s", verificationLink)
		if err := s.mailer.Send(created.Email, "Email Verification", body); err != nil {
			logrus.WithError(err).Warn("Failed to send verification email")
		}
	} else {
		logrus.WithField("link", verificationLink).Info("No mailer configured, verification link logged")
	}

	logrus.WithFields(logrus.Fields{
		"userID": created.ID.Hex(),
		"role":   created.Role,
	}).Info("User registered successfully")
	return created, nil
}

// VerifyEmail activates an account via its verification token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.repo.FindByVerifyToken(ctx, token)
	if err != nil {
		return apperrors.E(apperrors.KindInvalidInput, "invalid or expired verification token")
	}

	_, err = s.repo.Update(ctx, user.ID, map[string]interface{}{
		"is_verified":  true,
		"verify_token": "",
	})
	return err
}

// AuthenticateUser verifies the credentials and returns the user.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.E(apperrors.KindForbidden, "invalid credentials")
	}

	if !user.IsVerified {
		return nil, apperrors.E(apperrors.KindForbidden, "email not verified, please check your inbox")
	}
	if !user.IsActive {
		return nil, apperrors.E(apperrors.KindForbidden, "account is deactivated")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		logrus.WithField("email", email).Warn("Invalid credentials")
		return nil, apperrors.E(apperrors.KindForbidden, "invalid credentials")
	}

	logrus.WithField("userID", user.ID.Hex()).Info("User authenticated")
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile applies a whitelisted partial update to a user's own
// profile. Role and verification state are not updatable here.
func (s *UserService) UpdateProfile(ctx context.Context, id primitive.ObjectID, input map[string]interface{}) (*models.User, error) {
	allowed := map[string]bool{
		"username":             true,
		"bio":                  true,
		"phone_number":         true,
		"location":             true,
		"dietary_restrictions": true,
	}

	fields := make(map[string]interface{})
	for key, value := range input {
		if !allowed[key] {
			continue
		}
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil, apperrors.E(apperrors.KindInvalidInput, "no updatable fields provided")
	}

	if loc, ok := fields["location"].(string); ok && !models.IsValidLocation(loc) {
		return nil, apperrors.E(apperrors.KindInvalidInput, "invalid location")
	}
	if phone, ok := fields["phone_number"].(string); ok && phone != "" && !phoneRegex.MatchString(phone) {
		return nil, apperrors.E(apperrors.KindInvalidInput, "invalid phone number")
	}

	return s.repo.Update(ctx, id, fields)
}

// TouchLastActive records user activity; failures are ignored by
// callers.
func (s *UserService) TouchLastActive(ctx context.Context, id primitive.ObjectID) error {
	return s.repo.UpdateLastActive(ctx, id)
}
