package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type Messenger interface {
	Send(ctx context.Context, msg domain.Notification, recipient domain.UserID) error
}
