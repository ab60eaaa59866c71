package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTelephony struct {
	mu         sync.Mutex
	live       map[domain.CallID]bool
	reportErr  error
	startErr   error
	startGate  chan struct{}
	startSeen  chan struct{}
	endActions []domain.CallID
	connecting []domain.CallID
	connected  []domain.CallID
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{live: make(map[domain.CallID]bool)}
}

func (f *fakeTelephony) ReportIncoming(ctx context.Context, id domain.CallID, info domain.DisplayInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportErr != nil {
		return f.reportErr
	}
	f.live[id] = true
	return nil
}

func (f *fakeTelephony) RequestStartAction(ctx context.Context, id domain.CallID, info domain.DisplayInfo) error {
	f.mu.Lock()
	gate, seen := f.startGate, f.startSeen
	f.mu.Unlock()
	if seen != nil {
		close(seen)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.live[id] = true
	return nil
}

func (f *fakeTelephony) RequestEndAction(ctx context.Context, id domain.CallID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endActions = append(f.endActions, id)
	delete(f.live, id)
	return nil
}

func (f *fakeTelephony) ReportOutgoingConnecting(ctx context.Context, id domain.CallID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connecting = append(f.connecting, id)
}

func (f *fakeTelephony) ReportOutgoingConnected(ctx context.Context, id domain.CallID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, id)
}

func (f *fakeTelephony) LiveCalls() []domain.CallID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CallID, 0, len(f.live))
	for id := range f.live {
		out = append(out, id)
	}
	return out
}

func (f *fakeTelephony) forget(id domain.CallID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
}

func (f *fakeTelephony) ends() []domain.CallID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CallID(nil), f.endActions...)
}

type fakePresenter struct {
	mu         sync.Mutex
	n          int
	presentErr error
	presented  []domain.CallID
	dismissed  []domain.PresentationHandle
}

func (p *fakePresenter) Present(ctx context.Context, call domain.CallRecord) (domain.PresentationHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.presentErr != nil {
		return "", p.presentErr
	}
	p.n++
	p.presented = append(p.presented, call.ID)
	return domain.PresentationHandle(fmt.Sprintf("screen-%d", p.n)), nil
}

func (p *fakePresenter) Dismiss(ctx context.Context, handle domain.PresentationHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = append(p.dismissed, handle)
	return nil
}

func (p *fakePresenter) dismissedHandles() []domain.PresentationHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PresentationHandle(nil), p.dismissed...)
}

var errSendFailed = errors.New("network unreachable")

// recordingMessenger keeps every delivered notification. failOn makes the
// n-th send (1-based) fail; block holds every send until closed.
type recordingMessenger struct {
	mu      sync.Mutex
	sent    []domain.Notification
	to      []domain.UserID
	attempt int
	failOn  map[int]bool
	block   chan struct{}
	entered chan struct{}
}

func (m *recordingMessenger) Send(ctx context.Context, msg domain.Notification, recipient domain.UserID) error {
	m.mu.Lock()
	block, entered := m.block, m.entered
	m.entered = nil
	m.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	if m.failOn[m.attempt] {
		return errSendFailed
	}
	m.sent = append(m.sent, msg)
	m.to = append(m.to, recipient)
	return nil
}

func (m *recordingMessenger) kinds() []domain.NotificationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.NotificationKind, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Kind)
	}
	return out
}

func (m *recordingMessenger) messages() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.sent...)
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Send(ctx context.Context, msg domain.Notification, recipient domain.UserID) error {
	args := m.Called(ctx, msg, recipient)
	return args.Error(0)
}

type memHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (h *memHistory) Append(ctx context.Context, e domain.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *memHistory) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.HistoryEntry(nil), h.entries...), nil
}
