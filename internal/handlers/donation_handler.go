package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/internal/services"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/foodloop/foodloop/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DonationHandler handles HTTP requests related to donations.
type DonationHandler struct {
	Service *services.DonationService
	Ratings *services.RatingService
}

// NewDonationHandler creates a new instance of DonationHandler.
func NewDonationHandler(donationService *services.DonationService, ratingService *services.RatingService) *DonationHandler {
	return &DonationHandler{
		Service: donationService,
		Ratings: ratingService,
	}
}

// CreateDonationHandler handles POST /donations.
func (h *DonationHandler) CreateDonationHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input services.CreateDonationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logrus.WithError(err).Warn("Invalid request payload during donation creation")
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid request payload"))
		return
	}
	defer r.Body.Close()

	donorID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	donation, err := h.Service.CreateDonation(r.Context(), donorID, input)
	if err != nil {
		writeError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"userID":     claims.UserID,
		"donationID": donation.ID.Hex(),
	}).Info("Donation successfully created")
	writeJSON(w, http.StatusCreated, donation)
}

// GetDonationHandler handles GET /donations/{id}.
func (h *DonationHandler) GetDonationHandler(w http.ResponseWriter, r *http.Request) {
	donationID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid donation ID"))
		return
	}

	donation, err := h.Service.GetDonation(r.Context(), donationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, donation)
}

// SearchDonationsHandler handles GET /donations with optional
// category, location, q and limit query parameters.
func (h *DonationHandler) SearchDonationsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.DonationFilter{
		Category: query.Get("category"),
		Location: query.Get("location"),
		Query:    query.Get("q"),
		Now:      time.Now(),
	}
	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}

	donations, err := h.Service.SearchDonations(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if donations == nil {
		donations = []models.Donation{}
	}
	writeJSON(w, http.StatusOK, donations)
}

// ClaimDonationHandler handles POST /donations/{id}/claim.
func (h *DonationHandler) ClaimDonationHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.ClaimDonation)
}

// CompleteDonationHandler handles POST /donations/{id}/complete.
func (h *DonationHandler) CompleteDonationHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.CompleteDonation)
}

// CancelDonationHandler handles POST /donations/{id}/cancel.
func (h *DonationHandler) CancelDonationHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.CancelDonation)
}

// transition factors out the shared shape of claim/complete/cancel:
// parse IDs, run the operation as the authenticated actor, return the
// updated donation snapshot.
func (h *DonationHandler) transition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, donationID, actorID primitive.ObjectID) (*models.Donation, error)) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	donationID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid donation ID"))
		return
	}
	actorID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	donation, err := op(r.Context(), donationID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, donation)
}

// RateDonationHandler handles POST /donations/{id}/rate.
func (h *DonationHandler) RateDonationHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	donationID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid donation ID"))
		return
	}
	raterID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid user ID"))
		return
	}

	var payload struct {
		Score   int    `json:"score"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "invalid request payload"))
		return
	}
	defer r.Body.Close()

	rating, err := h.Ratings.AddRating(r.Context(), donationID, raterID, payload.Score, payload.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}
