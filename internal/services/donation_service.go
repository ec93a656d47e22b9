package services

import (
	"context"
	"fmt"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/foodloop/foodloop/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxActiveClaims caps how many claimed donations a recipient can hold
// at once.
const MaxActiveClaims = 5

// FanOutLimit caps how many recipients are notified about a new
// donation.
const FanOutLimit = 10

// DonationService owns every legal donation status transition and the
// side effects each one triggers. All actors are passed in explicitly;
// nothing is read from ambient request state.
type DonationService struct {
	donations DonationStore
	users     UserStore
	notifier  Notifier
	mailer    Mailer
}

// NewDonationService creates a new instance of DonationService. mailer
// may be nil when no SMTP relay is configured.
func NewDonationService(donations DonationStore, users UserStore, notifier Notifier, mailer Mailer) *DonationService {
	return &DonationService{
		donations: donations,
		users:     users,
		notifier:  notifier,
		mailer:    mailer,
	}
}

// CreateDonationInput carries the fields a donor submits for a new
// listing.
type CreateDonationInput struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	FoodCategory      string    `json:"food_category"`
	Quantity          int       `json:"quantity"`
	DietaryTags       []string  `json:"dietary_tags"`
	EstimatedCalories int       `json:"estimated_calories"`
	Location          string    `json:"location"`
	ExpiryAt          time.Time `json:"expiry_at"`
	PickupStart       time.Time `json:"pickup_start"`
	PickupEnd         time.Time `json:"pickup_end"`
}

// CreateDonation validates the input, stores the listing as available
// and fans the new_donation event out to nearby compatible recipients.
func (s *DonationService) CreateDonation(ctx context.Context, donorID primitive.ObjectID, input CreateDonationInput) (*models.Donation, error) {
	donor, err := s.users.FindByID(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if donor.Role != models.RoleDonor {
		return nil, apperrors.E(apperrors.KindForbidden, "only donors can create donations")
	}
	if !donor.IsVerified {
		return nil, apperrors.E(apperrors.KindForbidden, "please verify your email before creating donations")
	}

	now := time.Now()
	if err := validateDonationInput(input, now); err != nil {
		return nil, err
	}

	donation := &models.Donation{
		DonorID:           donorID,
		Title:             input.Title,
		Description:       input.Description,
		FoodCategory:      input.FoodCategory,
		Quantity:          input.Quantity,
		DietaryTags:       input.DietaryTags,
		EstimatedCalories: input.EstimatedCalories,
		NutritionScore:    nutritionScore(input, now),
		Location:          input.Location,
		Status:            models.StatusAvailable,
		ExpiryAt:          input.ExpiryAt,
		PickupStart:       input.PickupStart,
		PickupEnd:         input.PickupEnd,
	}

	created, err := s.donations.Insert(ctx, donation)
	if err != nil {
		return nil, err
	}

	s.fanOutNewDonation(ctx, created)

	logger.Log.WithFields(map[string]interface{}{
		"donation_id": created.ID.Hex(),
		"donor_id":    donorID.Hex(),
	}).Info("Donation created in service layer")
	return created, nil
}

// ClaimDonation reserves an available donation for a recipient. The
// transition itself is a conditional write, so with N concurrent
// claimers exactly one wins and the rest get a conflict.
func (s *DonationService) ClaimDonation(ctx context.Context, donationID, recipientID primitive.ObjectID) (*models.Donation, error) {
	recipient, err := s.users.FindByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient.Role != models.RoleRecipient {
		return nil, apperrors.E(apperrors.KindForbidden, "only recipients can claim donations")
	}
	if !recipient.IsVerified {
		return nil, apperrors.E(apperrors.KindForbidden, "please verify your email before claiming donations")
	}

	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.DonorID == recipientID {
		return nil, apperrors.E(apperrors.KindSelfClaim, "you cannot claim your own donation")
	}

	now := time.Now()
	if donation.IsExpired(now) {
		if _, err := s.donations.Expire(ctx, donationID, now); err != nil {
			return nil, err
		}
		return nil, apperrors.E(apperrors.KindConflict, "this donation has expired")
	}
	if donation.IsPickupOverdue(now) {
		return nil, apperrors.E(apperrors.KindConflict, "the pickup window has passed")
	}

	active, err := s.donations.CountActiveClaims(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if active >= MaxActiveClaims {
		return nil, apperrors.Ef(apperrors.KindConflict,
			"you have %d active claims, please complete some pickups first", active)
	}

	claimed, err := s.donations.Claim(ctx, donationID, recipientID, now)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, claimed.DonorID, models.NotifDonationClaimed, "Donation Claimed",
		fmt.Sprintf("%s has claimed your '%s' donation.", recipient.Username, claimed.Title), &claimed.ID)
	s.emit(ctx, recipientID, models.NotifDonationClaimed, "Claim Confirmed",
		fmt.Sprintf("You have claimed '%s'.", claimed.Title), &claimed.ID)
	s.mailDonor(ctx, claimed, "Your donation was claimed",
		fmt.Sprintf("%s has claimed your donation '%s'. Please coordinate the pickup.", recipient.Username, claimed.Title))

	return claimed, nil
}

// CompleteDonation marks a claimed donation as handed over. Either
// party of the exchange may confirm it.
func (s *DonationService) CompleteDonation(ctx context.Context, donationID, actorID primitive.ObjectID) (*models.Donation, error) {
	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if !donation.IsParty(actorID) {
		return nil, apperrors.E(apperrors.KindForbidden, "only the donor or the claimant can complete a donation")
	}

	completed, err := s.donations.Complete(ctx, donationID, time.Now())
	if err != nil {
		return nil, err
	}

	s.emit(ctx, completed.DonorID, models.NotifDonationCompleted, "Donation Completed",
		fmt.Sprintf("Your '%s' donation was picked up. Please rate your experience.", completed.Title), &completed.ID)
	if completed.RecipientID != nil {
		s.emit(ctx, *completed.RecipientID, models.NotifDonationCompleted, "Thank You!",
			fmt.Sprintf("Thank you for picking up '%s'. Please rate your experience.", completed.Title), &completed.ID)
	}
	s.mailDonor(ctx, completed, "Donation completed",
		fmt.Sprintf("Your donation '%s' has been completed.", completed.Title))

	return completed, nil
}

// CancelDonation withdraws an available or claimed donation. Only the
// owner may cancel; a claimant who lost interest simply lets the pickup
// window lapse.
func (s *DonationService) CancelDonation(ctx context.Context, donationID, actorID primitive.ObjectID) (*models.Donation, error) {
	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.DonorID != actorID {
		return nil, apperrors.E(apperrors.KindForbidden, "only the donor can cancel a donation")
	}

	cancelled, err := s.donations.Cancel(ctx, donationID, time.Now())
	if err != nil {
		return nil, err
	}

	// The pre-cancel snapshot tells us whether anyone was waiting on it.
	if donation.Status == models.StatusClaimed && donation.RecipientID != nil {
		s.emit(ctx, *donation.RecipientID, models.NotifSystem, "Donation Cancelled",
			fmt.Sprintf("The donation '%s' has been cancelled by the donor.", donation.Title), &donation.ID)
	}

	return cancelled, nil
}

// SweepExpired transitions every overdue active donation to expired.
// Each flip is an independent conditional write, so running the sweep
// concurrently with claims, or running it twice, never produces a
// double transition or duplicate events. Returns the number of
// donations expired by this call.
func (s *DonationService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.donations.FindExpiredCandidates(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range candidates {
		d := &candidates[i]
		flipped, err := s.donations.Expire(ctx, d.ID, now)
		if err != nil {
			logrus.WithError(err).WithField("donation_id", d.ID.Hex()).Warn("Failed to expire donation during sweep")
			continue
		}
		if !flipped {
			continue
		}
		expired++

		s.emit(ctx, d.DonorID, models.NotifSystem, "Donation Expired",
			fmt.Sprintf("Your donation '%s' expired before it was picked up.", d.Title), &d.ID)
		if d.RecipientID != nil {
			s.emit(ctx, *d.RecipientID, models.NotifSystem, "Donation Expired",
				fmt.Sprintf("The donation '%s' you claimed has expired.", d.Title), &d.ID)
		}
	}

	if expired > 0 {
		logrus.WithField("count", expired).Info("Expired donations swept")
	}
	return expired, nil
}

// ReleaseStaleClaims reverts claimed donations whose pickup window has
// passed back to available so other recipients get a chance. Returns
// the number released.
func (s *DonationService) ReleaseStaleClaims(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.donations.FindStaleClaims(ctx, now)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range stale {
		d := &stale[i]
		ok, err := s.donations.Release(ctx, d.ID, now)
		if err != nil {
			logrus.WithError(err).WithField("donation_id", d.ID.Hex()).Warn("Failed to release stale claim")
			continue
		}
		if !ok {
			continue
		}
		released++

		if d.RecipientID != nil {
			s.emit(ctx, *d.RecipientID, models.NotifSystem, "Claim Released",
				fmt.Sprintf("Your claim on '%s' was released because the pickup window passed.", d.Title), &d.ID)
		}
		s.emit(ctx, d.DonorID, models.NotifSystem, "Donation Available Again",
			fmt.Sprintf("The claim on '%s' lapsed, it is available again.", d.Title), &d.ID)
	}

	if released > 0 {
		logrus.WithField("count", released).Info("Stale claims released")
	}
	return released, nil
}

// GetDonation fetches a donation, forcing an overdue one to expired
// first so readers never observe a stale active status.
func (s *DonationService) GetDonation(ctx context.Context, donationID primitive.ObjectID) (*models.Donation, error) {
	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !donation.IsTerminal() && donation.IsExpired(now) {
		if _, err := s.donations.Expire(ctx, donationID, now); err != nil {
			return nil, err
		}
		return s.donations.FindByID(ctx, donationID)
	}
	return donation, nil
}

// SearchDonations lists available, unexpired donations.
func (s *DonationService) SearchDonations(ctx context.Context, filter models.DonationFilter) ([]models.Donation, error) {
	if filter.Now.IsZero() {
		filter.Now = time.Now()
	}
	return s.donations.List(ctx, filter)
}

// GetUserStats aggregates a user's donation history.
func (s *DonationService) GetUserStats(ctx context.Context, userID primitive.ObjectID) (*models.DonationStats, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.donations.Stats(ctx, userID, user.Role)
}

// emit delivers a lifecycle event. The transition is already committed
// at this point; sink failures are logged and dropped.
func (s *DonationService) emit(ctx context.Context, userID primitive.ObjectID, notifType, title, message string, donationID *primitive.ObjectID) {
	if err := s.notifier.Notify(ctx, userID, notifType, title, message, donationID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID.Hex(),
			"type":    notifType,
		}).Warn("Failed to emit notification")
	}
}

func (s *DonationService) mailDonor(ctx context.Context, donation *models.Donation, subject, body string) {
	if s.mailer == nil {
		return
	}
	donor, err := s.users.FindByID(ctx, donation.DonorID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to look up donor for email")
		return
	}
	if err := s.mailer.Send(donor.Email, subject, body); err != nil {
		logrus.WithError(err).WithField("to", donor.Email).Warn("Failed to send email")
	}
}

// fanOutNewDonation broadcasts a new listing to verified recipients in
// the same location bucket whose dietary restrictions the donation
// satisfies, capped at FanOutLimit.
func (s *DonationService) fanOutNewDonation(ctx context.Context, donation *models.Donation) {
	recipients, err := s.users.FindRecipientsByLocation(ctx, donation.Location, 100)
	if err != nil {
		logrus.WithError(err).Warn("Failed to look up recipients for fan-out")
		return
	}

	sent := 0
	for i := range recipients {
		r := &recipients[i]
		if !r.IsDietaryCompatible(donation) {
			continue
		}
		s.emit(ctx, r.ID, models.NotifNewDonation, "New Donation Available",
			fmt.Sprintf("New %s donation: '%s' near you.", donation.FoodCategory, donation.Title), &donation.ID)
		sent++
		if sent >= FanOutLimit {
			break
		}
	}

	if sent > 0 {
		logrus.WithFields(logrus.Fields{
			"donation_id": donation.ID.Hex(),
			"count":       sent,
		}).Info("New donation notifications sent")
	}
}

func validateDonationInput(input CreateDonationInput, now time.Time) error {
	if input.Title == "" || input.Description == "" {
		return apperrors.E(apperrors.KindInvalidInput, "title and description are required")
	}
	if _, ok := models.FoodCategories[input.FoodCategory]; !ok {
		return apperrors.E(apperrors.KindInvalidInput, "invalid food category")
	}
	if input.Quantity < 1 {
		return apperrors.E(apperrors.KindInvalidInput, "quantity must be at least 1")
	}
	if !models.IsValidLocation(input.Location) {
		return apperrors.E(apperrors.KindInvalidInput, "invalid location")
	}
	if input.ExpiryAt.IsZero() {
		return apperrors.E(apperrors.KindInvalidInput, "expiry time is required")
	}
	if !input.ExpiryAt.After(now) {
		return apperrors.E(apperrors.KindInvalidInput, "expiry time must be in the future")
	}
	if input.EstimatedCalories < 0 {
		return apperrors.E(apperrors.KindInvalidInput, "estimated calories cannot be negative")
	}
	if input.PickupStart.IsZero() != input.PickupEnd.IsZero() {
		return apperrors.E(apperrors.KindInvalidInput, "pickup window requires both start and end")
	}
	if !input.PickupEnd.IsZero() && input.PickupEnd.Before(input.PickupStart) {
		return apperrors.E(apperrors.KindInvalidInput, "pickup window end must not precede its start")
	}
	return nil
}

// nutritionScore derives a 0-100 quality score from the category and
// how fresh the food still is.
func nutritionScore(input CreateDonationInput, now time.Time) int {
	score := 50

	categoryBonus := map[string]int{
		"fruits":     25,
		"vegetables": 25,
		"protein":    20,
		"grains":     15,
		"dairy":      10,
		"pantry":     5,
	}
	score += categoryBonus[input.FoodCategory]

	hoursLeft := input.ExpiryAt.Sub(now).Hours()
	if hoursLeft > 48 {
		score += 10
	} else if hoursLeft > 24 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}
