package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// CallRepository holds live call records. Implementations must be safe for
// concurrent use and must not block on I/O.
type CallRepository interface {
	Put(record domain.CallRecord)
	Get(id domain.CallID) (domain.CallRecord, bool)
	Remove(id domain.CallID)
	Count() int
	FindByRoom(room domain.RoomID) (domain.CallRecord, bool)
	List() []domain.CallRecord
	Clear()
}

type CallHistory interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}
