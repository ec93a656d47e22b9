package services

import (
	"context"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RealtimePusher forwards freshly created notifications to connected
// WebSocket clients. Optional; the polling endpoints work without it.
type RealtimePusher interface {
	Push(userID string, notif *models.Notification)
}

// NotificationService is the notification sink: it stores the event
// feed and answers the unread-badge queries the UI polls for.
type NotificationService struct {
	repo   NotificationStore
	pusher RealtimePusher
}

// NewNotificationService creates a new instance of NotificationService.
// pusher may be nil.
func NewNotificationService(repo NotificationStore, pusher RealtimePusher) *NotificationService {
	return &NotificationService{
		repo:   repo,
		pusher: pusher,
	}
}

// Notify appends an event to a user's feed and pushes it to any live
// connection. Implements the Notifier contract of the lifecycle engine.
func (s *NotificationService) Notify(ctx context.Context, userID primitive.ObjectID, notifType, title, message string, donationID *primitive.ObjectID) error {
	notif := &models.Notification{
		UserID:     userID,
		Type:       notifType,
		Title:      title,
		Message:    message,
		IsRead:     false,
		DonationID: donationID,
	}

	created, err := s.repo.Insert(ctx, notif)
	if err != nil {
		return err
	}

	if s.pusher != nil {
		s.pusher.Push(userID.Hex(), created)
	}
	return nil
}

// GetUserNotifications returns a user's feed, newest first.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID primitive.ObjectID, limit int, unreadOnly bool) ([]models.Notification, error) {
	return s.repo.ListForUser(ctx, userID, limit, unreadOnly)
}

// CountUnread returns the unread badge count.
func (s *NotificationService) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, notifID, userID primitive.ObjectID) error {
	return s.repo.MarkRead(ctx, notifID, userID)
}

// MarkAllRead flags the whole feed as read and returns the count.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// CleanupOld removes read notifications older than the given number of
// days. Called daily by the scheduler.
func (s *NotificationService) CleanupOld(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	return s.repo.DeleteOldRead(ctx, cutoff)
}
