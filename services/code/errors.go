package code

// MatchReason classifies why a code key failed to match.
type MatchReason string

const (
	ReasonNotFound  MatchReason = "not_found"
	ReasonExhausted MatchReason = "exhausted"
	ReasonExpired   MatchReason = "expired"
	ReasonRejected  MatchReason = "rejected"
)

// MatchError carries the customer-facing message for a failed match. The
// messages are stable strings shown at checkout, not debugging text.
type MatchError struct {
	Reason  MatchReason
	Message string
}

func (e *MatchError) Error() string {
	return e.Message
}

func errNotFound() *MatchError {
	return &MatchError{Reason: ReasonNotFound, Message: "Voucher code is not valid"}
}

func errExhausted() *MatchError {
	return &MatchError{Reason: ReasonExhausted, Message: "Voucher code has no amount left"}
}

func errExpired() *MatchError {
	return &MatchError{Reason: ReasonExpired, Message: "Voucher code is out of date"}
}
