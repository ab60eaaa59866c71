package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Telephony is the OS call-management integration. Calls may block until the
// integration acknowledges; the integration enforces its own timeouts.
type Telephony interface {
	ReportIncoming(ctx context.Context, callID domain.CallID, info domain.DisplayInfo) error
	RequestStartAction(ctx context.Context, callID domain.CallID, info domain.DisplayInfo) error
	RequestEndAction(ctx context.Context, callID domain.CallID) error
	ReportOutgoingConnecting(ctx context.Context, callID domain.CallID)
	ReportOutgoingConnected(ctx context.Context, callID domain.CallID)
	// LiveCalls is the integration's own view of calls it still considers live.
	LiveCalls() []domain.CallID
}
