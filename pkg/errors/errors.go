package apperrors

import "errors"

// Standardized adapter errors, one sentinel per reason_code in the
// taxonomy the gateway attaches to exec.report envelopes.
var (
	// Transport
	ErrRESTTransport = errors.New("rest_transport")
	ErrWSTransport    = errors.New("ws_transport")
	ErrDNS            = errors.New("dns")

	// Auth
	ErrAuthFailed = errors.New("auth_failed")
	ErrSignFailed = errors.New("sign_failed")

	// Policy
	ErrRateLimited         = errors.New("rate_limited")
	ErrRiskBlocked         = errors.New("risk_blocked")
	ErrPostOnlyViolation   = errors.New("post_only_violation")
	ErrReduceOnlyViolation = errors.New("reduce_only_violation")

	// Market
	ErrPriceOutOfBounds    = errors.New("price_out_of_bounds")
	ErrMinSize             = errors.New("min_size")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrVenueReject         = errors.New("venue_reject")
	ErrUnknownSymbol       = errors.New("unknown_symbol")

	// Process
	ErrCanceled = errors.New("canceled")
	ErrInternal = errors.New("internal_error")

	// Legacy sentinels kept for teacher code paths that still match on
	// these names.
	ErrInsufficientFunds     = ErrInsufficientBalance
	ErrOrderRejected         = ErrVenueReject
	ErrRateLimitExceeded     = ErrRateLimited
	ErrNetwork               = ErrRESTTransport
	ErrInvalidSymbol         = ErrUnknownSymbol
	ErrAuthenticationFailed  = ErrAuthFailed
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")
)

// ReasonCode maps an error to its exec.report reason_code string. Errors
// not in the taxonomy map to "internal_error"; nil maps to "ok".
func ReasonCode(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, ErrRESTTransport):
		return "rest_transport"
	case errors.Is(err, ErrWSTransport):
		return "ws_transport"
	case errors.Is(err, ErrDNS):
		return "dns"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrSignFailed):
		return "sign_failed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRiskBlocked):
		return "risk_blocked"
	case errors.Is(err, ErrPostOnlyViolation):
		return "post_only_violation"
	case errors.Is(err, ErrReduceOnlyViolation):
		return "reduce_only_violation"
	case errors.Is(err, ErrPriceOutOfBounds):
		return "price_out_of_bounds"
	case errors.Is(err, ErrMinSize):
		return "min_size"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrVenueReject):
		return "venue_reject"
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "internal_error"
	}
}
