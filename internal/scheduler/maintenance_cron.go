package cron

import (
	"context"

	"github.com/foodloop/foodloop/internal/jobs"
	"github.com/foodloop/foodloop/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// notificationRetentionDays is how long read notifications are kept.
const notificationRetentionDays = 30

// StartMaintenanceCronJobs wires the periodic background passes.
func StartMaintenanceCronJobs(sweeper *jobs.ExpirySweeper, notificationService *services.NotificationService) {
	c := cron.New()

	// Expire overdue donations
	c.AddFunc("@hourly", func() {
		if err := sweeper.RunExpirySweep(context.Background()); err != nil {
			logrus.WithError(err).Error("Expiry sweep failed")
		}
	})

	// Free claims whose pickup window lapsed
	c.AddFunc("*/30 * * * *", func() {
		if err := sweeper.RunStaleClaimRelease(context.Background()); err != nil {
			logrus.WithError(err).Error("Stale claim release failed")
		}
	})

	// Prune old read notifications
	c.AddFunc("0 3 * * *", func() {
		if _, err := notificationService.CleanupOld(context.Background(), notificationRetentionDays); err != nil {
			logrus.WithError(err).Error("Notification cleanup failed")
		}
	})

	c.Start()
}
