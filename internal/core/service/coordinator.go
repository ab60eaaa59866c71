package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Coordinator owns the lifecycle of every tracked call. Work for one call ID
// runs in arrival order; the record store and the active-call gate are only
// changed together under mu. Collaborators are never called with mu held.
type Coordinator struct {
	mu     sync.Mutex
	repo   port.CallRepository
	gate   *ActiveCallGate
	resets uint64

	lanes     *lanes
	telephony port.Telephony
	presenter port.Presenter
	notifier  *Notifier
	history   port.CallHistory
	clock     func() time.Time
}

func NewCoordinator(repo port.CallRepository, telephony port.Telephony, presenter port.Presenter, notifier *Notifier, history port.CallHistory) *Coordinator {
	return &Coordinator{
		repo:      repo,
		gate:      NewActiveCallGate(),
		lanes:     newLanes(),
		telephony: telephony,
		presenter: presenter,
		notifier:  notifier,
		history:   history,
		clock:     time.Now,
	}
}

func (c *Coordinator) HandleIncoming(ctx context.Context, id domain.CallID, peer domain.UserID, room domain.RoomID, kind domain.MediaKind) error {
	return c.create(ctx, domain.NewCallRecord(id, peer, room, domain.Incoming, kind, c.clock()))
}

func (c *Coordinator) HandleStartOutgoing(ctx context.Context, id domain.CallID, peer domain.UserID, room domain.RoomID, kind domain.MediaKind) error {
	return c.create(ctx, domain.NewCallRecord(id, peer, room, domain.Outgoing, kind, c.clock()))
}

func (c *Coordinator) create(ctx context.Context, rec domain.CallRecord) error {
	leave, err := c.lanes.enter(ctx, rec.ID)
	if err != nil {
		return err
	}
	defer leave()

	l := callLogger(rec)

	c.mu.Lock()
	if _, ok := c.repo.Get(rec.ID); ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrDuplicateCall, rec.ID)
	}
	if rec.Direction == domain.Outgoing {
		rec.State = domain.StateConnecting
	}
	c.repo.Put(rec)
	epoch := c.resets
	c.mu.Unlock()

	if rec.Direction == domain.Incoming {
		err = c.telephony.ReportIncoming(ctx, rec.ID, rec.DisplayInfo())
	} else {
		err = c.telephony.RequestStartAction(ctx, rec.ID, rec.DisplayInfo())
	}
	if err != nil {
		c.mu.Lock()
		if c.resets == epoch {
			c.repo.Remove(rec.ID)
		}
		c.mu.Unlock()
		l.Warn().Err(err).Msg("Telephony refused call, record rolled back")
		return fmt.Errorf("%w: report %s call: %w", domain.ErrAdapterFailure, rec.Direction, err)
	}

	if rec.Direction == domain.Incoming {
		c.mu.Lock()
		if cur, ok := c.repo.Get(rec.ID); ok && c.resets == epoch && cur.State == domain.StatePending {
			cur.State = domain.StateConnecting
			c.repo.Put(cur)
		}
		c.mu.Unlock()
	}

	l.Info().Msg("Call created")
	return nil
}

// OnTelephonyActionFulfilled presents the call and takes the gate. An error
// means the caller must fail the telephony action.
func (c *Coordinator) OnTelephonyActionFulfilled(ctx context.Context, id domain.CallID, kind domain.ActionKind) error {
	leave, err := c.lanes.enter(ctx, id)
	if err != nil {
		return err
	}
	defer leave()

	c.mu.Lock()
	rec, ok := c.repo.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownCall, id)
	}
	if rec.State != domain.StateConnecting || !actionMatches(rec.Direction, kind) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s action on %s %s call", domain.ErrInvalidTransition, kind, rec.State, rec.Direction)
	}
	if occ, busy := c.gate.CurrentOccupant(); busy {
		c.mu.Unlock()
		if occ == id {
			return fmt.Errorf("%w: %s already presented", domain.ErrInvalidTransition, id)
		}
		return fmt.Errorf("%w: held by %s", domain.ErrGateConflict, occ)
	}
	epoch := c.resets
	c.mu.Unlock()

	l := callLogger(rec)

	handle, err := c.presenter.Present(ctx, rec)
	if err != nil {
		l.Error().Err(err).Msg("Failed to present call")
		return fmt.Errorf("%w: present call: %w", domain.ErrAdapterFailure, err)
	}

	c.mu.Lock()
	cur, ok := c.repo.Get(id)
	if !ok || c.resets != epoch {
		c.mu.Unlock()
		c.dismiss(ctx, handle)
		return fmt.Errorf("%w: %s dropped while presenting", domain.ErrUnknownCall, id)
	}
	if !c.gate.TryAcquire(id, handle) {
		occ, _ := c.gate.CurrentOccupant()
		c.mu.Unlock()
		c.dismiss(ctx, handle)
		return fmt.Errorf("%w: held by %s", domain.ErrGateConflict, occ)
	}
	if kind == domain.ActionAnswer {
		cur.MarkTalkStarted(c.clock())
		cur.State = domain.StateActive
	}
	c.repo.Put(cur)
	c.mu.Unlock()

	if kind == domain.ActionStart {
		c.telephony.ReportOutgoingConnecting(ctx, id)
	}
	l.Info().Str("action", string(kind)).Str("state", cur.State.String()).Msg("Telephony action fulfilled")
	return nil
}

// OnMediaSessionOutgoingConnected marks an outgoing call as talking once the
// media session confirms it. Anything else is ignored.
func (c *Coordinator) OnMediaSessionOutgoingConnected(ctx context.Context, id domain.CallID) {
	leave, err := c.lanes.enter(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("call_id", id.String()).Msg("Dropped media connect event")
		return
	}
	defer leave()

	c.mu.Lock()
	rec, ok := c.repo.Get(id)
	if !ok || rec.Direction != domain.Outgoing || rec.State != domain.StateConnecting {
		c.mu.Unlock()
		log.Debug().Str("call_id", id.String()).Msg("Media connect ignored")
		return
	}
	if occ, busy := c.gate.CurrentOccupant(); !busy || occ != id {
		c.mu.Unlock()
		log.Debug().Str("call_id", id.String()).Msg("Media connect for call not holding the gate")
		return
	}
	rec.MarkTalkStarted(c.clock())
	rec.State = domain.StateActive
	c.repo.Put(rec)
	c.mu.Unlock()

	c.telephony.ReportOutgoingConnected(ctx, id)
	l := callLogger(rec)
	l.Info().Msg("Outgoing call connected")
}

// OnMediaConnected maps a media-session room to its call.
func (c *Coordinator) OnMediaConnected(ctx context.Context, room domain.RoomID) {
	rec, ok := c.byRoom(room)
	if !ok {
		log.Debug().Str("room_id", room.String()).Msg("Media connect for untracked room")
		return
	}
	c.OnMediaSessionOutgoingConnected(ctx, rec.ID)
}

// OnMediaDisconnected ends the call bound to room. Untracked rooms are not an error.
func (c *Coordinator) OnMediaDisconnected(ctx context.Context, room domain.RoomID, cause string) error {
	rec, ok := c.byRoom(room)
	if !ok {
		return nil
	}
	l := callLogger(rec)
	l.Info().Str("cause", cause).Msg("Media session disconnected")
	return c.RequestEndCall(ctx, rec.ID, domain.ReasonRemoteLeft)
}

// RequestEndCall notifies the peer and then releases the call. When the
// notification fails the call stays tracked in its previous state so the
// caller can retry.
func (c *Coordinator) RequestEndCall(ctx context.Context, id domain.CallID, reason domain.EndReason) error {
	leave, err := c.lanes.enter(ctx, id)
	if err != nil {
		return err
	}
	defer leave()

	c.mu.Lock()
	rec, ok := c.repo.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownCall, id)
	}
	prev := rec.State
	rec.State = domain.StateTerminating
	c.repo.Put(rec)
	epoch := c.resets
	c.mu.Unlock()

	outcome := domain.OutcomeFor(rec, reason)
	l := callLogger(rec).With().Str("outcome", string(outcome)).Str("reason", string(reason)).Logger()

	if err := c.notifier.ComposeAndSend(ctx, rec, outcome); err != nil {
		c.mu.Lock()
		if cur, ok := c.repo.Get(id); ok && c.resets == epoch {
			cur.State = prev
			c.repo.Put(cur)
		}
		c.mu.Unlock()
		l.Error().Err(err).Msg("End-of-call notification failed, call kept for retry")
		return fmt.Errorf("%w: %w", domain.ErrAdapterFailure, err)
	}
	endedAt := c.clock()

	c.mu.Lock()
	if c.resets != epoch {
		c.mu.Unlock()
		l.Warn().Msg("Provider reset while ending call, nothing left to release")
		return nil
	}
	handle, held := c.gate.Release(id)
	c.repo.Remove(id)
	c.mu.Unlock()

	if held {
		c.dismiss(ctx, handle)
	}
	if c.IsCallObservedActive(id) {
		if err := c.telephony.RequestEndAction(ctx, id); err != nil {
			l.Warn().Err(err).Msg("Telephony end action failed")
		}
	}
	c.record(ctx, rec, outcome, reason, endedAt)

	l.Info().Msg("Call terminated")
	return nil
}

// OnProviderReset drops every call without notifying anyone. It does not
// wait for in-flight work; that work finds its call gone when it resumes.
func (c *Coordinator) OnProviderReset(ctx context.Context) {
	c.mu.Lock()
	c.resets++
	var handle domain.PresentationHandle
	var held bool
	if occ, busy := c.gate.CurrentOccupant(); busy {
		handle, held = c.gate.Release(occ)
	}
	dropped := c.repo.Count()
	c.repo.Clear()
	c.mu.Unlock()

	if held {
		c.dismiss(ctx, handle)
	}
	log.Warn().Int("dropped", dropped).Msg("Telephony provider reset, all calls cleared")
}

// IsCallObservedActive reports whether the telephony integration still
// considers the call live.
func (c *Coordinator) IsCallObservedActive(id domain.CallID) bool {
	for _, live := range c.telephony.LiveCalls() {
		if live == id {
			return true
		}
	}
	return false
}

func (c *Coordinator) Get(id domain.CallID) (domain.CallRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.repo.Get(id)
	if !ok {
		return domain.CallRecord{}, fmt.Errorf("%w: %s", domain.ErrUnknownCall, id)
	}
	return rec, nil
}

// State reports StateTerminated for calls that are no longer tracked.
func (c *Coordinator) State(id domain.CallID) domain.CallState {
	rec, err := c.Get(id)
	if err != nil {
		return domain.StateTerminated
	}
	return rec.State
}

// Active returns the call holding the gate.
func (c *Coordinator) Active() (domain.CallRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	occ, busy := c.gate.CurrentOccupant()
	if !busy {
		return domain.CallRecord{}, false
	}
	return c.repo.Get(occ)
}

func (c *Coordinator) Calls() []domain.CallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repo.List()
}

func (c *Coordinator) byRoom(room domain.RoomID) (domain.CallRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repo.FindByRoom(room)
}

func (c *Coordinator) dismiss(ctx context.Context, handle domain.PresentationHandle) {
	if err := c.presenter.Dismiss(ctx, handle); err != nil {
		log.Warn().Err(err).Str("handle", string(handle)).Msg("Failed to dismiss call screen")
	}
}

func (c *Coordinator) record(ctx context.Context, rec domain.CallRecord, outcome domain.CallOutcome, reason domain.EndReason, endedAt time.Time) {
	if c.history == nil {
		return
	}
	entry := domain.HistoryEntry{
		CallID:     rec.ID,
		PeerUserID: rec.PeerUserID,
		RoomID:     rec.RoomID,
		Direction:  rec.Direction,
		MediaKind:  rec.MediaKind,
		Outcome:    outcome,
		Reason:     reason,
		CreatedAt:  rec.CreatedAt,
		EndedAt:    endedAt,
		DurationMs: rec.Duration(endedAt).Milliseconds(),
	}
	if err := c.history.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("call_id", rec.ID.String()).Msg("Failed to append call history")
	}
}

func actionMatches(dir domain.Direction, kind domain.ActionKind) bool {
	switch kind {
	case domain.ActionStart:
		return dir == domain.Outgoing
	case domain.ActionAnswer:
		return dir == domain.Incoming
	default:
		return false
	}
}

func callLogger(rec domain.CallRecord) zerolog.Logger {
	return log.With().
		Str("call_id", rec.ID.String()).
		Str("peer_id", rec.PeerUserID.String()).
		Str("room_id", rec.RoomID.String()).
		Logger()
}
