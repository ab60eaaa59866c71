package ws

import "github.com/Wyydra/yacall/internal/core/domain"

// Client is a connected peer that receives end-of-call notifications.
type Client interface {
	ID() domain.UserID
	SendNotification(msg domain.Notification) error
	Close() error
}
