package domain

import (
	"errors"
	"time"
)

// OTP verification failure taxonomy. Verify reports exactly one of these so the
// HTTP layer can log the precise reason while showing the user a single generic
// "invalid or expired code" message.
var (
	ErrOTPNotFound        = errors.New("otp not found")
	ErrOTPPurposeMismatch = errors.New("otp purpose mismatch")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPCodeMismatch    = errors.New("otp code mismatch")
	ErrOTPTooManyAttempts = errors.New("otp attempts exceeded")
)

// OTP record states. A record is created pending and becomes verified exactly
// once; verified records are kept only for the post-verification grace window.
const (
	OTPStatePending  = "pending"
	OTPStateVerified = "verified"
)

// Purposes a code can authorize. Each purpose gates one privileged action.
const (
	PurposeEmailChange    = "email_change"
	PurposePasswordChange = "password_change"
	PurposePasswordReset  = "password_reset"
)

// OTPRecord holds the one live code per email address.
// PK: email. PurgeAt is a Unix timestamp used as DynamoDB TTL — a backstop set
// past both the code TTL and the grace window so the table self-cleans even if
// the periodic cleanup job is down.
type OTPRecord struct {
	Email         string    `json:"email" dynamodbav:"email"`
	Code          string    `json:"-" dynamodbav:"code"`
	Purpose       string    `json:"purpose" dynamodbav:"purpose"`
	State         string    `json:"state" dynamodbav:"state"` // "pending" | "verified"
	Attempts      int       `json:"attempts" dynamodbav:"attempts"`
	ExpiresAt     int64     `json:"expires_at" dynamodbav:"expires_at"`         // Unix seconds
	VerifiedUntil int64     `json:"verified_until" dynamodbav:"verified_until"` // Unix seconds, 0 while pending
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
	PurgeAt       int64     `json:"-" dynamodbav:"purge_at"` // TTL (Unix seconds)
}
