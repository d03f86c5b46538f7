package service

import (
	"context"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
)

type NotificationList struct {
	Notifications []*entity.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

type notificationService struct {
	notifications database.NotificationRepository
}

func NewNotificationService(notifications database.NotificationRepository) NotificationService {
	return &notificationService{notifications: notifications}
}

// List returns the inbox newest first with the unread count.
func (s *notificationService) List(ctx context.Context, recipientID string) (*NotificationList, error) {
	if recipientID == "" {
		return nil, entity.NewValidationError("recipient", "is required")
	}

	items, err := s.notifications.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	if items == nil {
		items = []*entity.Notification{}
	}

	list := &NotificationList{Notifications: items}
	for _, n := range items {
		if !n.Read {
			list.Unread++
		}
	}
	return list, nil
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID, id string) error {
	if recipientID == "" {
		return entity.NewValidationError("recipient", "is required")
	}
	return s.notifications.MarkRead(ctx, recipientID, id)
}
