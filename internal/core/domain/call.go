package domain

import (
	"fmt"
	"time"
)

type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

type MediaKind string

const (
	Audio MediaKind = "audio"
	Video MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case Audio, Video:
		return MediaKind(s), nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

type CallState int

const (
	StatePending CallState = iota
	StateConnecting
	StateActive
	StateTerminating
	StateTerminated
)

func (s CallState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s CallState) IsTerminal() bool {
	return s == StateTerminated
}

// ActionKind is the telephony action reported as fulfilled by the OS.
type ActionKind string

const (
	ActionStart  ActionKind = "start"
	ActionAnswer ActionKind = "answer"
)

type EndReason string

const (
	ReasonLocalHangup EndReason = "local_hangup"
	ReasonRemoteLeft  EndReason = "remote_left"
	ReasonDeclined    EndReason = "declined"
	ReasonTimeout     EndReason = "timeout"
	ReasonFailed      EndReason = "failed"
)

func ParseEndReason(s string) (EndReason, error) {
	switch EndReason(s) {
	case ReasonLocalHangup, ReasonRemoteLeft, ReasonDeclined, ReasonTimeout, ReasonFailed:
		return EndReason(s), nil
	case "":
		return ReasonLocalHangup, nil
	default:
		return "", fmt.Errorf("unknown end reason %q", s)
	}
}

// CallRecord is the coordinator's view of one call attempt. Identity fields
// never change after creation.
type CallRecord struct {
	ID            CallID
	PeerUserID    UserID
	RoomID        RoomID
	Direction     Direction
	MediaKind     MediaKind
	State         CallState
	CreatedAt     time.Time
	TalkStartedAt *time.Time
}

func NewCallRecord(id CallID, peer UserID, room RoomID, dir Direction, kind MediaKind, now time.Time) CallRecord {
	return CallRecord{
		ID:         id,
		PeerUserID: peer,
		RoomID:     room,
		Direction:  dir,
		MediaKind:  kind,
		State:      StatePending,
		CreatedAt:  now,
	}
}

func (r CallRecord) Talked() bool {
	return r.TalkStartedAt != nil
}

// MarkTalkStarted sets the talk start once; later calls keep the first value.
func (r *CallRecord) MarkTalkStarted(at time.Time) {
	if r.TalkStartedAt != nil {
		return
	}
	t := at
	r.TalkStartedAt = &t
}

// Duration is zero for calls that never connected.
func (r CallRecord) Duration(now time.Time) time.Duration {
	if r.TalkStartedAt == nil {
		return 0
	}
	d := now.Sub(*r.TalkStartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// DisplayInfo is what the OS call UI shows for a call.
type DisplayInfo struct {
	PeerUserID UserID
	MediaKind  MediaKind
}

func (r CallRecord) DisplayInfo() DisplayInfo {
	return DisplayInfo{PeerUserID: r.PeerUserID, MediaKind: r.MediaKind}
}
