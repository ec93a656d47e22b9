package jobs

import (
	"context"
	"time"

	"github.com/foodloop/foodloop/internal/services"
	"github.com/sirupsen/logrus"
)

// ExpirySweeper runs the periodic lifecycle maintenance passes: moving
// overdue donations to expired and freeing claims whose pickup window
// lapsed. Both passes are idempotent, so overlapping or repeated runs
// are harmless.
type ExpirySweeper struct {
	DonationService *services.DonationService
}

// NewExpirySweeper creates a new instance of ExpirySweeper.
func NewExpirySweeper(donationService *services.DonationService) *ExpirySweeper {
	return &ExpirySweeper{DonationService: donationService}
}

// RunExpirySweep expires every overdue active donation.
func (j *ExpirySweeper) RunExpirySweep(ctx context.Context) error {
	count, err := j.DonationService.SweepExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	logrus.WithField("expired", count).Info("Expiry sweep completed")
	return nil
}

// RunStaleClaimRelease reverts claimed donations whose pickup window
// passed back to available.
func (j *ExpirySweeper) RunStaleClaimRelease(ctx context.Context) error {
	count, err := j.DonationService.ReleaseStaleClaims(ctx, time.Now())
	if err != nil {
		return err
	}
	logrus.WithField("released", count).Info("Stale claim release completed")
	return nil
}
