package domain

import "time"

// OTPRequest is a single SMS one-time-code verification.
// ID is the caller-visible reference; CreatedAt never changes after insert.
type OTPRequest struct {
	ID          string    `json:"reference" dynamodbav:"uuid"`
	Mobile      string    `json:"mobile" dynamodbav:"mobile"`
	Code        string    `json:"-" dynamodbav:"otp"`
	ExternalRef string    `json:"external_ref" dynamodbav:"syncref"`
	Completed   bool      `json:"completed" dynamodbav:"completed"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created,unixtime"`
	ModifiedAt  time.Time `json:"modified_at" dynamodbav:"modified,unixtime"`
}

// ExpiredAt reports whether the code is past its validity window at now.
// The comparison is in whole seconds, the resolution timestamps are stored
// at; a code is still valid during the second CreatedAt+validity.
func (r *OTPRequest) ExpiredAt(now time.Time, validity time.Duration) bool {
	return now.Unix() > r.CreatedAt.Unix()+int64(validity/time.Second)
}

// CallState is the position of a call verification in PENDING → RECEIVED → VERIFIED.
type CallState string

const (
	CallPending  CallState = "PENDING"
	CallReceived CallState = "RECEIVED"
	CallVerified CallState = "VERIFIED"
)

// CallRequest is a missed-call verification awaiting an inbound call from Mobile.
type CallRequest struct {
	ID           string    `json:"reference" dynamodbav:"uuid"`
	Mobile       string    `json:"mobile" dynamodbav:"mobile"`
	CallReceived bool      `json:"call_received" dynamodbav:"call_received"`
	Completed    bool      `json:"completed" dynamodbav:"completed"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created,unixtime"`
	ModifiedAt   time.Time `json:"modified_at" dynamodbav:"modified,unixtime"`
}

// State derives the state machine position from the stored flags.
func (r *CallRequest) State() CallState {
	switch {
	case r.Completed:
		return CallVerified
	case r.CallReceived:
		return CallReceived
	default:
		return CallPending
	}
}
