package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// Notifier turns a finished call into end-of-call messages for the peer.
type Notifier struct {
	self      domain.UserID
	messenger port.Messenger
	clock     func() time.Time
}

func NewNotifier(self domain.UserID, messenger port.Messenger) *Notifier {
	return &Notifier{
		self:      self,
		messenger: messenger,
		clock:     time.Now,
	}
}

// Compose has no side effects. Missed outgoing calls produce the record
// first and the readable notice second.
func (n *Notifier) Compose(r domain.CallRecord, outcome domain.CallOutcome, now time.Time) []domain.Notification {
	base := domain.Notification{
		CallID:    r.ID.String(),
		RoomID:    r.RoomID.String(),
		SenderID:  n.self.String(),
		MediaKind: r.MediaKind,
		Outcome:   outcome,
		SentAt:    now.UTC(),
	}

	switch outcome {
	case domain.OutcomeEndedAfterTalk:
		d := r.Duration(now)
		msg := base
		msg.Kind = domain.NotifyCallEnded
		msg.DurationMs = d.Milliseconds()
		msg.Text = fmt.Sprintf("%s call, %s", mediaLabel(r.MediaKind), clockFormat(d))
		return []domain.Notification{msg}

	case domain.OutcomeRejectedByReceiver:
		msg := base
		msg.Kind = domain.NotifyCallRejected
		msg.Text = fmt.Sprintf("%s call declined", mediaLabel(r.MediaKind))
		return []domain.Notification{msg}

	default:
		record := base
		record.Kind = domain.NotifyCallRecord
		missed := base
		missed.Kind = domain.NotifyCallMissed
		missed.Text = fmt.Sprintf("Missed %s call", strings.ToLower(mediaLabel(r.MediaKind)))
		return []domain.Notification{record, missed}
	}
}

// ComposeAndSend delivers the composed messages in order and stops at the
// first failure. Retries belong to the messenger or the caller.
func (n *Notifier) ComposeAndSend(ctx context.Context, r domain.CallRecord, outcome domain.CallOutcome) error {
	msgs := n.Compose(r, outcome, n.clock())
	for i, msg := range msgs {
		if err := n.messenger.Send(ctx, msg, r.PeerUserID); err != nil {
			return fmt.Errorf("send %s (%d/%d): %w", msg.Kind, i+1, len(msgs), err)
		}
	}
	return nil
}

func mediaLabel(k domain.MediaKind) string {
	if k == domain.Video {
		return "Video"
	}
	return "Audio"
}

func clockFormat(d time.Duration) string {
	total := int64(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
