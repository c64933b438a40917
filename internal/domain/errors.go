package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	ErrUnknownMap          = errors.New("unknown map")
	ErrInvalidLength       = errors.New("invalid leaderboard length")
	ErrInvalidTime         = errors.New("invalid time value")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrMissingFields       = errors.New("missing required fields")
	ErrUnauthorized        = errors.New("authentication failed")
	ErrAuthRequired        = errors.New("authentication required")
	ErrVersionConflict     = errors.New("document changed since it was read")
	ErrUpstream            = errors.New("upstream service error")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrLeaderboardNotFound)
}

// IsValidationError reports whether err was caused by caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, ErrInvalidLength) ||
		errors.Is(err, ErrUnknownMap)
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrAuthRequired)
}
