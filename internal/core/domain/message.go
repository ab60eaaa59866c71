package domain

import (
	"time"
)

type NotificationKind string

const (
	// NotifyCallRecord is the machine-readable record sent ahead of a missed notice.
	NotifyCallRecord   NotificationKind = "call_record"
	NotifyCallMissed   NotificationKind = "call_missed"
	NotifyCallRejected NotificationKind = "call_rejected"
	NotifyCallEnded    NotificationKind = "call_ended"
)

// Notification is an end-of-call message delivered to the remote peer.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	CallID     string           `json:"call_id"`
	RoomID     string           `json:"room_id"`
	SenderID   string           `json:"sender_id,omitempty"`
	MediaKind  MediaKind        `json:"media_kind"`
	Outcome    CallOutcome      `json:"outcome"`
	DurationMs int64            `json:"duration_ms"`
	Text       string           `json:"text,omitempty"`
	SentAt     time.Time        `json:"sent_at"`
}

// HistoryEntry is the persisted summary of a finished call.
type HistoryEntry struct {
	CallID     CallID
	PeerUserID UserID
	RoomID     RoomID
	Direction  Direction
	MediaKind  MediaKind
	Outcome    CallOutcome
	Reason     EndReason
	CreatedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
}
