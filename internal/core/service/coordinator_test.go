package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	coord     *Coordinator
	repo      *memory.CallRepository
	telephony *fakeTelephony
	presenter *fakePresenter
	messenger *recordingMessenger
	history   *memHistory
	clock     *fakeClock
}

func newHarness() *harness {
	h := &harness{
		repo:      memory.NewCallRepository(),
		telephony: newFakeTelephony(),
		presenter: &fakePresenter{},
		messenger: &recordingMessenger{},
		history:   &memHistory{},
		clock:     newFakeClock(),
	}
	notifier := NewNotifier("me", h.messenger)
	notifier.clock = h.clock.Now
	h.coord = NewCoordinator(h.repo, h.telephony, h.presenter, notifier, h.history)
	h.coord.clock = h.clock.Now
	return h
}

func (h *harness) answeredIncoming(t *testing.T) domain.CallID {
	t.Helper()
	ctx := context.Background()
	id := domain.NewCallID()
	require.NoError(t, h.coord.HandleIncoming(ctx, id, "u1", "r1", domain.Video))
	require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, id, domain.ActionAnswer))
	return id
}

func TestCoordinator_IncomingAnswerEndScenario(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()

	require.NoError(t, h.coord.HandleIncoming(ctx, id, "u1", "r1", domain.Video))
	assert.Equal(t, domain.StateConnecting, h.coord.State(id))
	assert.True(t, h.coord.IsCallObservedActive(id))

	require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, id, domain.ActionAnswer))
	occ, busy := h.coord.gate.CurrentOccupant()
	require.True(t, busy)
	assert.Equal(t, id, occ)

	rec, err := h.coord.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, rec.State)
	require.NotNil(t, rec.TalkStartedAt)
	assert.Equal(t, h.clock.Now(), *rec.TalkStartedAt)

	h.clock.Advance(42*time.Second + 17*time.Millisecond)
	require.NoError(t, h.coord.RequestEndCall(ctx, id, domain.ReasonLocalHangup))

	msgs := h.messenger.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.NotifyCallEnded, msgs[0].Kind)
	assert.Equal(t, int64(42017), msgs[0].DurationMs)
	assert.Equal(t, []domain.UserID{"u1"}, h.messenger.to)

	assert.Equal(t, 0, h.repo.Count())
	_, busy = h.coord.gate.CurrentOccupant()
	assert.False(t, busy)
	assert.Equal(t, domain.StateTerminated, h.coord.State(id))
	assert.Equal(t, []domain.PresentationHandle{"screen-1"}, h.presenter.dismissedHandles())
	assert.Equal(t, []domain.CallID{id}, h.telephony.ends(), "OS still had the call, so an end action is requested")

	require.Len(t, h.history.entries, 1)
	assert.Equal(t, domain.OutcomeEndedAfterTalk, h.history.entries[0].Outcome)
	assert.Equal(t, int64(42017), h.history.entries[0].DurationMs)
}

func TestCoordinator_DuplicateCallLeavesStoreUnchanged(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()

	require.NoError(t, h.coord.HandleIncoming(ctx, id, "u1", "r1", domain.Audio))
	before, _ := h.repo.Get(id)

	err := h.coord.HandleIncoming(ctx, id, "u2", "r2", domain.Video)
	assert.ErrorIs(t, err, domain.ErrDuplicateCall)
	err = h.coord.HandleStartOutgoing(ctx, id, "u3", "r3", domain.Audio)
	assert.ErrorIs(t, err, domain.ErrDuplicateCall)

	after, _ := h.repo.Get(id)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, h.repo.Count())
}

func TestCoordinator_SetupFailureRollsBack(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.telephony.reportErr = errors.New("provider busy")
	h.telephony.startErr = errors.New("provider busy")

	err := h.coord.HandleIncoming(ctx, domain.NewCallID(), "u1", "r1", domain.Audio)
	assert.ErrorIs(t, err, domain.ErrAdapterFailure)
	assert.ErrorIs(t, err, h.telephony.reportErr)

	err = h.coord.HandleStartOutgoing(ctx, domain.NewCallID(), "u1", "r1", domain.Audio)
	assert.ErrorIs(t, err, domain.ErrAdapterFailure)

	assert.Equal(t, 0, h.repo.Count())
}

func TestCoordinator_UnknownAndInvalidTransitions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	assert.ErrorIs(t, h.coord.OnTelephonyActionFulfilled(ctx, domain.NewCallID(), domain.ActionAnswer), domain.ErrUnknownCall)
	assert.ErrorIs(t, h.coord.RequestEndCall(ctx, domain.NewCallID(), domain.ReasonLocalHangup), domain.ErrUnknownCall)

	in := domain.NewCallID()
	require.NoError(t, h.coord.HandleIncoming(ctx, in, "u1", "r1", domain.Audio))
	assert.ErrorIs(t, h.coord.OnTelephonyActionFulfilled(ctx, in, domain.ActionStart), domain.ErrInvalidTransition)

	require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, in, domain.ActionAnswer))
	assert.ErrorIs(t, h.coord.OnTelephonyActionFulfilled(ctx, in, domain.ActionAnswer), domain.ErrInvalidTransition)
	assert.Len(t, h.presenter.presented, 1)
}

func TestCoordinator_RejectedIncomingSendsSingleMessage(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()
	require.NoError(t, h.coord.HandleIncoming(ctx, id, "u1", "r1", domain.Audio))

	require.NoError(t, h.coord.RequestEndCall(ctx, id, domain.ReasonDeclined))

	assert.Equal(t, []domain.NotificationKind{domain.NotifyCallRejected}, h.messenger.kinds())
	assert.Equal(t, 0, h.repo.Count())
	assert.Empty(t, h.presenter.dismissedHandles())
}

func TestCoordinator_MissedOutgoingSendsRecordThenNotice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()
	require.NoError(t, h.coord.HandleStartOutgoing(ctx, id, "u1", "r1", domain.Audio))
	require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, id, domain.ActionStart))
	assert.Equal(t, domain.StateConnecting, h.coord.State(id))
	assert.Equal(t, []domain.CallID{id}, h.telephony.connecting)

	require.NoError(t, h.coord.RequestEndCall(ctx, id, domain.ReasonTimeout))

	assert.Equal(t, []domain.NotificationKind{domain.NotifyCallRecord, domain.NotifyCallMissed}, h.messenger.kinds())
	assert.Equal(t, domain.OutcomeMissedNoAnswer, h.history.entries[0].Outcome)
	_, busy := h.coord.gate.CurrentOccupant()
	assert.False(t, busy)
}

func TestCoordinator_NotificationFailureKeepsCallForRetry(t *testing.T) {
	for _, failOn := range []int{1, 2} {
		h := newHarness()
		ctx := context.Background()
		id := domain.NewCallID()
		require.NoError(t, h.coord.HandleStartOutgoing(ctx, id, "u1", "r1", domain.Audio))
		require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, id, domain.ActionStart))

		h.messenger.failOn = map[int]bool{failOn: true}
		err := h.coord.RequestEndCall(ctx, id, domain.ReasonLocalHangup)
		assert.ErrorIs(t, err, domain.ErrAdapterFailure)
		assert.ErrorIs(t, err, errSendFailed)

		assert.Equal(t, domain.StateConnecting, h.coord.State(id), "state restored after failed end")
		occ, busy := h.coord.gate.CurrentOccupant()
		assert.True(t, busy)
		assert.Equal(t, id, occ)
		assert.Empty(t, h.presenter.dismissedHandles())
		assert.Empty(t, h.history.entries)

		require.NoError(t, h.coord.RequestEndCall(ctx, id, domain.ReasonLocalHangup))
		assert.Equal(t, domain.StateTerminated, h.coord.State(id))
		assert.Equal(t, domain.OutcomeEndedNoAnswerNoTalk, h.history.entries[0].Outcome)
	}
}

func TestCoordinator_GateConflictForSecondCall(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	first := h.answeredIncoming(t)

	second := domain.NewCallID()
	require.NoError(t, h.coord.HandleIncoming(ctx, second, "u2", "r2", domain.Audio))
	err := h.coord.OnTelephonyActionFulfilled(ctx, second, domain.ActionAnswer)
	assert.ErrorIs(t, err, domain.ErrGateConflict)
	assert.Equal(t, domain.StateConnecting, h.coord.State(second))

	require.NoError(t, h.coord.RequestEndCall(ctx, first, domain.ReasonLocalHangup))
	require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, second, domain.ActionAnswer))
	active, ok := h.coord.Active()
	require.True(t, ok)
	assert.Equal(t, second, active.ID)
}

func TestCoordinator_PresentationFailureIsActionFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()
	require.NoError(t, h.coord.HandleIncoming(ctx, id, "u1", "r1", domain.Audio))

	h.presenter.presentErr = errors.New("screen unavailable")
	err := h.coord.OnTelephonyActionFulfilled(ctx, id, domain.ActionAnswer)
	assert.ErrorIs(t, err, domain.ErrAdapterFailure)

	_, busy := h.coord.gate.CurrentOccupant()
	assert.False(t, busy)
	rec, err := h.coord.Get(id)
	require.NoError(t, err)
	assert.Nil(t, rec.TalkStartedAt)
}

func TestCoordinator_MediaConnectIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()
	require.NoError(t, h.coord.HandleStartOutgoing(ctx, id, "u1", "room-9", domain.Video))

	// not presented yet, so it does not hold the gate
	h.coord.OnMediaConnected(ctx, "room-9")
	assert.Equal(t, domain.StateConnecting, h.coord.State(id))

	require.NoError(t, h.coord.OnTelephonyActionFulfilled(ctx, id, domain.ActionStart))
	h.coord.OnMediaConnected(ctx, "room-9")
	rec, _ := h.coord.Get(id)
	assert.Equal(t, domain.StateActive, rec.State)
	started := *rec.TalkStartedAt

	h.clock.Advance(time.Minute)
	h.coord.OnMediaSessionOutgoingConnected(ctx, id)
	rec, _ = h.coord.Get(id)
	assert.Equal(t, started, *rec.TalkStartedAt)
	assert.Equal(t, []domain.CallID{id}, h.telephony.connected)

	h.coord.OnMediaConnected(ctx, "unknown-room")
}

func TestCoordinator_MediaDisconnectEndsCall(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.answeredIncoming(t)
	h.clock.Advance(3 * time.Second)

	require.NoError(t, h.coord.OnMediaDisconnected(ctx, "r1", "participant left"))
	assert.Equal(t, domain.StateTerminated, h.coord.State(id))
	assert.Equal(t, domain.ReasonRemoteLeft, h.history.entries[0].Reason)
	assert.NoError(t, h.coord.OnMediaDisconnected(ctx, "r1", "again"))
}

func TestCoordinator_NoEndActionWhenOSAlreadyEnded(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.answeredIncoming(t)

	h.telephony.forget(id)
	assert.False(t, h.coord.IsCallObservedActive(id))
	require.NoError(t, h.coord.RequestEndCall(ctx, id, domain.ReasonRemoteLeft))
	assert.Empty(t, h.telephony.ends())
}

func TestCoordinator_ProviderResetClearsEverything(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.answeredIncoming(t)
	require.NoError(t, h.coord.HandleIncoming(ctx, domain.NewCallID(), "u2", "r2", domain.Audio))

	h.coord.OnProviderReset(ctx)

	assert.Equal(t, 0, h.repo.Count())
	_, busy := h.coord.gate.CurrentOccupant()
	assert.False(t, busy)
	assert.Equal(t, []domain.PresentationHandle{"screen-1"}, h.presenter.dismissedHandles())
	assert.Empty(t, h.messenger.kinds())
	assert.Equal(t, domain.StateTerminated, h.coord.State(id))
}

func TestCoordinator_ProviderResetWhileEndIsStuck(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.answeredIncoming(t)

	h.messenger.block = make(chan struct{})
	h.messenger.entered = make(chan struct{})
	entered := h.messenger.entered

	done := make(chan error, 1)
	go func() { done <- h.coord.RequestEndCall(ctx, id, domain.ReasonLocalHangup) }()
	<-entered

	h.coord.OnProviderReset(ctx)
	assert.Equal(t, 0, h.repo.Count())
	_, busy := h.coord.gate.CurrentOccupant()
	assert.False(t, busy)

	close(h.messenger.block)
	require.NoError(t, <-done)

	assert.Equal(t, 0, h.repo.Count())
	assert.Len(t, h.presenter.dismissedHandles(), 1, "reset dismissed the screen, end must not dismiss again")
	assert.Empty(t, h.history.entries)
}

func TestCoordinator_EndQueuedBehindInFlightStart(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := domain.NewCallID()

	h.telephony.startGate = make(chan struct{})
	h.telephony.startSeen = make(chan struct{})
	seen := h.telephony.startSeen

	started := make(chan error, 1)
	go func() { started <- h.coord.HandleStartOutgoing(ctx, id, "u1", "r1", domain.Audio) }()
	<-seen

	ended := make(chan error, 1)
	go func() { ended <- h.coord.RequestEndCall(ctx, id, domain.ReasonLocalHangup) }()

	select {
	case <-ended:
		t.Fatal("end raced the in-flight start action")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, h.messenger.kinds())

	close(h.telephony.startGate)
	require.NoError(t, <-started)
	require.NoError(t, <-ended)
	assert.Equal(t, []domain.NotificationKind{domain.NotifyCallRecord, domain.NotifyCallMissed}, h.messenger.kinds())
	assert.Equal(t, 0, h.coord.lanes.len())
}

func TestCoordinator_CancelledContextWhileQueued(t *testing.T) {
	h := newHarness()
	id := domain.NewCallID()

	h.telephony.startGate = make(chan struct{})
	h.telephony.startSeen = make(chan struct{})
	seen := h.telephony.startSeen

	started := make(chan error, 1)
	go func() {
		started <- h.coord.HandleStartOutgoing(context.Background(), id, "u1", "r1", domain.Audio)
	}()
	<-seen

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.coord.RequestEndCall(ctx, id, domain.ReasonLocalHangup)
	assert.ErrorIs(t, err, context.Canceled)

	close(h.telephony.startGate)
	require.NoError(t, <-started)
	assert.Equal(t, domain.StateConnecting, h.coord.State(id))
}
