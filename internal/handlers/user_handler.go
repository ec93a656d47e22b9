package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/foodloop/foodloop/internal/config"
	"github.com/foodloop/foodloop/internal/services"
	"github.com/foodloop/foodloop/pkg/apperrors"
	jwtutil "github.com/foodloop/foodloop/pkg/jwt"
	"github.com/foodloop/foodloop/pkg/middleware"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserHandler handles HTTP requests related to user operations.
type UserHandler struct {
	Service   *services.UserService
	Donations *services.DonationService
	Ratings   *services.RatingService
	Config    *config.Config
}

// NewUserHandler creates a new instance of UserHandler.
func NewUserHandler(service *services.UserService, donations *services.DonationService, ratings *services.RatingService, cfg *config.Config) *UserHandler {
	return &UserHandler{
		Service:   service,
		Donations: donations,
		Ratings:   ratings,
		Config:    cfg,
	}
}

// RegisterUserHandler handles POST /users/register.
func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.WithError(err).Warn("Failed to decode registration request")
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid request payload"))
		return
	}
	defer r.Body.Close()

	user, err := h.Service.RegisterUser(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	log.WithField("userID", user.ID.Hex()).Info("User registered successfully")
	writeJSON(w, http.StatusCreated, user)
}

// VerifyEmailHandler handles GET /users/verify?token=.
func (h *UserHandler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "missing verification token"))
		return
	}

	if err := h.Service.VerifyEmail(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

// LoginUserHandler handles POST /users/login.
func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		log.WithError(err).Warn("Failed to decode login request")
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid request payload"))
		return
	}
	defer r.Body.Close()

	user, err := h.Service.AuthenticateUser(r.Context(), credentials.Email, credentials.Password)
	if err != nil {
		log.WithField("email", credentials.Email).Warn("Authentication failed")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := jwtutil.GenerateToken(user.ID.Hex(), user.Email, user.Role, h.Config.JWTSecret, h.Config.TokenExpiry)
	if err != nil {
		log.WithError(err).Error("Failed to generate JWT token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	log.WithField("userID", user.ID.Hex()).Info("User logged in successfully")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// GetUserHandler handles GET /users/{id}. Users see their own full
// profile; everyone else gets the public shape.
func (h *UserHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requestedID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	user, err := h.Service.GetUser(r.Context(), requestedID)
	if err != nil {
		writeError(w, err)
		return
	}

	if claims.UserID == requestedID.Hex() {
		writeJSON(w, http.StatusOK, user)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// UpdateUserHandler handles PATCH /users/{id}.
func (h *UserHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requestedID := mux.Vars(r)["id"]
	if requestedID != claims.UserID {
		log.WithFields(log.Fields{
			"requestedUserID": requestedID,
			"loggedInUserID":  claims.UserID,
		}).Warn("Forbidden profile update attempt")
		writeError(w, apperrors.E(apperrors.KindForbidden, "you can only update your own profile"))
		return
	}

	userID, err := primitive.ObjectIDFromHex(requestedID)
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	var input map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid request payload"))
		return
	}
	defer r.Body.Close()

	user, err := h.Service.UpdateProfile(r.Context(), userID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UserStatsHandler handles GET /users/{id}/stats.
func (h *UserHandler) UserStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	stats, err := h.Donations.GetUserStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UserRatingsHandler handles GET /users/{id}/ratings, returning the
// average score together with the received ratings. average is null
// for a user nobody has rated.
func (h *UserHandler) UserRatingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	average, err := h.Ratings.GetAverageScore(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	ratings, err := h.Ratings.ListUserRatings(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"average": average,
		"ratings": ratings,
	})
}
