package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type Presenter interface {
	Present(ctx context.Context, call domain.CallRecord) (domain.PresentationHandle, error)
	Dismiss(ctx context.Context, handle domain.PresentationHandle) error
}
