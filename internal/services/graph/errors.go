package graph

import "fmt"

// Error is a referral validation failure with a stable machine code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validation and consistency failures surfaced by relationship creation
var (
	ErrSelfReferral = &Error{
		Code:    "SELF_REFERRAL",
		Message: "users cannot refer themselves",
	}
	ErrReferrerNotFound = &Error{
		Code:    "REFERRER_NOT_FOUND",
		Message: "referrer account not found or inactive",
	}
	ErrReferredNotFound = &Error{
		Code:    "REFERRED_NOT_FOUND",
		Message: "referred account not found or inactive",
	}
	ErrExistingRelationship = &Error{
		Code:    "EXISTING_RELATIONSHIP",
		Message: "referred user already has an active referrer",
	}
	ErrCircularReference = &Error{
		Code:    "CIRCULAR_REFERENCE_DETECTED",
		Message: "relationship would create a circular referral chain",
	}
	ErrReferralLimitExceeded = &Error{
		Code:    "REFERRAL_LIMIT_EXCEEDED",
		Message: "referrer has reached the maximum number of active referrals",
	}
)
