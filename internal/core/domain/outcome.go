package domain

type CallOutcome string

const (
	OutcomeMissedNoAnswer      CallOutcome = "missed_no_answer"
	OutcomeRejectedByReceiver  CallOutcome = "rejected_by_receiver"
	OutcomeEndedAfterTalk      CallOutcome = "ended_after_talk"
	OutcomeEndedNoAnswerNoTalk CallOutcome = "ended_no_answer_no_talk"
)

// OutcomeFor classifies a terminating call. The reason only separates a
// cancelled outgoing call from an unanswered one; both notify the same way.
func OutcomeFor(r CallRecord, reason EndReason) CallOutcome {
	if r.Talked() {
		return OutcomeEndedAfterTalk
	}
	if r.Direction == Incoming {
		return OutcomeRejectedByReceiver
	}
	if reason == ReasonLocalHangup {
		return OutcomeEndedNoAnswerNoTalk
	}
	return OutcomeMissedNoAnswer
}
