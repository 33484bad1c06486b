package domain

import "context"

// VerificationStore persists OTP and call verification requests.
//
// Find methods return ErrNotFound when no record matches. Mark methods are
// single-row compare-and-set updates:
//   - MarkOTPCompleted returns ErrConflict if the request was already completed.
//   - MarkCallReceived targets the newest open request for mobile and is a no-op
//     when that request was already received.
//   - MarkCallCompleted returns ErrConflict if no call was received yet and is a
//     no-op when the request is already completed.
type VerificationStore interface {
	Migrate(ctx context.Context) error
	CountOTPRequests(ctx context.Context) (int, error)

	InsertOTPRequest(ctx context.Context, r *OTPRequest) error
	FindOTPRequestByID(ctx context.Context, id string) (*OTPRequest, error)
	MarkOTPCompleted(ctx context.Context, id string) error

	InsertCallRequest(ctx context.Context, r *CallRequest) error
	FindCallRequestByMobile(ctx context.Context, mobile string) (*CallRequest, error)
	FindCallRequestByID(ctx context.Context, id string) (*CallRequest, error)
	MarkCallReceived(ctx context.Context, mobile string) error
	MarkCallCompleted(ctx context.Context, id string) error
}
