package earnings

import "fmt"

// Error is a payout failure with a stable machine code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Failures surfaced by the payout engine
var (
	ErrRelationshipNotFound = &Error{
		Code:    "RELATIONSHIP_NOT_FOUND",
		Message: "referral relationship not found",
	}
	ErrAlreadyPaid = &Error{
		Code:    "ALREADY_PAID",
		Message: "relationship bonus has already been paid",
	}
	ErrInvalidAmount = &Error{
		Code:    "INVALID_AMOUNT",
		Message: "payout amount must be greater than zero",
	}
	ErrNotEligible = &Error{
		Code:    "NOT_ELIGIBLE",
		Message: "referrer is not eligible for a payout",
	}
	ErrAccessDenied = &Error{
		Code:    "ACCESS_DENIED",
		Message: "caller is not the active referrer of this user",
	}
)
