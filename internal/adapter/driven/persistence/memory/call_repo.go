package memory

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// CallRepository is a map-backed store of live calls. Records are stored and
// returned by value.
type CallRepository struct {
	mu    sync.RWMutex
	calls map[domain.CallID]domain.CallRecord
}

func NewCallRepository() *CallRepository {
	return &CallRepository{
		calls: make(map[domain.CallID]domain.CallRecord),
	}
}

func (r *CallRepository) Put(record domain.CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[record.ID] = clone(record)
}

func (r *CallRepository) Get(id domain.CallID) (domain.CallRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.calls[id]
	if !ok {
		return domain.CallRecord{}, false
	}
	return clone(rec), true
}

func (r *CallRepository) Remove(id domain.CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

func (r *CallRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

func (r *CallRepository) FindByRoom(room domain.RoomID) (domain.CallRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.calls {
		if rec.RoomID == room {
			return clone(rec), true
		}
	}
	return domain.CallRecord{}, false
}

func (r *CallRepository) List() []domain.CallRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CallRecord, 0, len(r.calls))
	for _, rec := range r.calls {
		out = append(out, clone(rec))
	}
	return out
}

func (r *CallRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.calls)
}

// clone detaches the talk timestamp so callers cannot mutate stored state.
func clone(rec domain.CallRecord) domain.CallRecord {
	if rec.TalkStartedAt != nil {
		t := *rec.TalkStartedAt
		rec.TalkStartedAt = &t
	}
	return rec
}
