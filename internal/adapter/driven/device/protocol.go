package device

// Envelope is the single frame type exchanged with the device shell.
type Envelope struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	CallID    string `json:"call_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	MediaKind string `json:"media_kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Handle    string `json:"handle,omitempty"`
	OK        bool   `json:"ok,omitempty"`
	Error     string `json:"error,omitempty"`
}

// commands, server to device
const (
	CmdReportIncoming     = "report_incoming"
	CmdStartAction        = "start_action"
	CmdEndAction          = "end_action"
	CmdOutgoingConnecting = "outgoing_connecting"
	CmdOutgoingConnected  = "outgoing_connected"
	CmdPresent            = "present"
	CmdDismiss            = "dismiss"
)

// events, device to server
const (
	EvtIncomingCall      = "incoming_call"
	EvtStartCall         = "start_call"
	EvtEndCall           = "end_call"
	EvtPerformStart      = "perform_start"
	EvtPerformAnswer     = "perform_answer"
	EvtPerformEnd        = "perform_end"
	EvtProviderReset     = "provider_reset"
	EvtMediaConnected    = "media_connected"
	EvtMediaDisconnected = "media_disconnected"
)

// replies in both directions
const (
	TypeReply   = "reply"
	TypeFulfill = "fulfill"
	TypeFail    = "fail"
)
