package push

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the registry, validator, dispatcher and HTTP layer.
var (
	// ErrValidation marks malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedPlatform marks a platform name outside the known set.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrTimeInPast marks a scheduled time at or before now.
	ErrTimeInPast = errors.New("scheduled time must be in the future")
	// ErrTimeTooSoon marks a scheduled time inside the client's minimum lead time.
	ErrTimeTooSoon = errors.New("scheduled time is in the past or too soon")
	// ErrNoEligibleAudience marks a schedule with zero matching registrations.
	ErrNoEligibleAudience = errors.New("no devices found for scheduling")
	// ErrRelayFault wraps any error returned by the relay.
	ErrRelayFault = errors.New("relay error")
	// ErrCancelled marks an operation aborted by the caller's context.
	ErrCancelled = errors.New("operation cancelled")
)

// RelayFault wraps err so that errors.Is(err, ErrRelayFault) holds while the
// relay's own message stays readable.
func RelayFault(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRelayFault, err)
}

// IsClientError reports whether err is a caller mistake that must not be retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnsupportedPlatform) ||
		errors.Is(err, ErrTimeInPast) ||
		errors.Is(err, ErrTimeTooSoon)
}
