package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoDevice   = errors.New("no device attached")
	ErrDeviceGone = errors.New("device disconnected")
	ErrTimeout    = errors.New("device did not reply in time")
)

// RemoteError is a failure reported by the device itself.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("device rejected %s: %s", e.Command, e.Message)
}

type Conn interface {
	WriteJSON(v interface{}) error
}

// Bridge implements port.Telephony and port.Presenter by sending commands to
// the attached device and waiting for its reply.
type Bridge struct {
	mu      sync.Mutex
	conn    Conn
	pending map[string]chan Envelope
	live    map[domain.CallID]struct{}
	timeout time.Duration

	writeMu sync.Mutex
}

func NewBridge(timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		pending: make(map[string]chan Envelope),
		live:    make(map[domain.CallID]struct{}),
		timeout: timeout,
	}
}

// Attach makes conn the device; a previous device is detached.
func (b *Bridge) Attach(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.conn != conn {
		b.failPending()
	}
	b.conn = conn
}

func (b *Bridge) Detach(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != conn {
		return
	}
	b.conn = nil
	b.failPending()
}

func (b *Bridge) failPending() {
	for id, ch := range b.pending {
		ch <- Envelope{ID: id, Type: TypeReply, Error: ErrDeviceGone.Error()}
		delete(b.pending, id)
	}
}

// Resolve hands a reply to the waiting command. It reports false for replies
// nobody waits for.
func (b *Bridge) Resolve(reply Envelope) bool {
	b.mu.Lock()
	ch, ok := b.pending[reply.ID]
	if ok {
		delete(b.pending, reply.ID)
	}
	b.mu.Unlock()

	if !ok {
		log.Debug().Str("id", reply.ID).Msg("Reply for unknown request")
		return false
	}
	ch <- reply
	return true
}

// Reply answers a device event; telephony events are fulfilled or failed.
func (b *Bridge) Reply(eventID string, callID string, err error) error {
	env := Envelope{ID: eventID, Type: TypeFulfill, CallID: callID, OK: true}
	if err != nil {
		env.Type = TypeFail
		env.OK = false
		env.Error = err.Error()
	}
	return b.write(env)
}

func (b *Bridge) request(ctx context.Context, env Envelope) (Envelope, error) {
	env.ID = uuid.NewString()
	ch := make(chan Envelope, 1)

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return Envelope{}, ErrNoDevice
	}
	b.pending[env.ID] = ch
	b.mu.Unlock()

	if err := b.write(env); err != nil {
		b.forgetRequest(env.ID)
		return Envelope{}, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		if reply.Error != "" {
			if reply.Error == ErrDeviceGone.Error() {
				return reply, ErrDeviceGone
			}
			return reply, &RemoteError{Command: env.Type, Message: reply.Error}
		}
		return reply, nil
	case <-timer.C:
		b.forgetRequest(env.ID)
		return Envelope{}, fmt.Errorf("%w: %s", ErrTimeout, env.Type)
	case <-ctx.Done():
		b.forgetRequest(env.ID)
		return Envelope{}, ctx.Err()
	}
}

func (b *Bridge) forgetRequest(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) write(env Envelope) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNoDevice
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (b *Bridge) notify(ctx context.Context, env Envelope) {
	if err := b.write(env); err != nil {
		log.Warn().Err(err).Str("type", env.Type).Str("call_id", env.CallID).Msg("Failed to notify device")
	}
}

func (b *Bridge) ReportIncoming(ctx context.Context, id domain.CallID, info domain.DisplayInfo) error {
	_, err := b.request(ctx, Envelope{
		Type:      CmdReportIncoming,
		CallID:    id.String(),
		PeerID:    info.PeerUserID.String(),
		MediaKind: string(info.MediaKind),
	})
	if err != nil {
		return err
	}
	b.markLive(id)
	return nil
}

func (b *Bridge) RequestStartAction(ctx context.Context, id domain.CallID, info domain.DisplayInfo) error {
	_, err := b.request(ctx, Envelope{
		Type:      CmdStartAction,
		CallID:    id.String(),
		PeerID:    info.PeerUserID.String(),
		MediaKind: string(info.MediaKind),
	})
	if err != nil {
		return err
	}
	b.markLive(id)
	return nil
}

func (b *Bridge) RequestEndAction(ctx context.Context, id domain.CallID) error {
	if _, err := b.request(ctx, Envelope{Type: CmdEndAction, CallID: id.String()}); err != nil {
		return err
	}
	b.Forget(id)
	return nil
}

func (b *Bridge) ReportOutgoingConnecting(ctx context.Context, id domain.CallID) {
	b.notify(ctx, Envelope{Type: CmdOutgoingConnecting, CallID: id.String()})
}

func (b *Bridge) ReportOutgoingConnected(ctx context.Context, id domain.CallID) {
	b.notify(ctx, Envelope{Type: CmdOutgoingConnected, CallID: id.String()})
}

func (b *Bridge) LiveCalls() []domain.CallID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.CallID, 0, len(b.live))
	for id := range b.live {
		out = append(out, id)
	}
	return out
}

// Forget drops a call the OS has resolved on its own.
func (b *Bridge) Forget(id domain.CallID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, id)
}

func (b *Bridge) ForgetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.live)
}

func (b *Bridge) markLive(id domain.CallID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live[id] = struct{}{}
}

func (b *Bridge) Present(ctx context.Context, call domain.CallRecord) (domain.PresentationHandle, error) {
	reply, err := b.request(ctx, Envelope{
		Type:      CmdPresent,
		CallID:    call.ID.String(),
		PeerID:    call.PeerUserID.String(),
		RoomID:    call.RoomID.String(),
		MediaKind: string(call.MediaKind),
	})
	if err != nil {
		return "", err
	}
	if reply.Handle == "" {
		return "", &RemoteError{Command: CmdPresent, Message: "empty presentation handle"}
	}
	return domain.PresentationHandle(reply.Handle), nil
}

func (b *Bridge) Dismiss(ctx context.Context, handle domain.PresentationHandle) error {
	_, err := b.request(ctx, Envelope{Type: CmdDismiss, Handle: string(handle)})
	return err
}
