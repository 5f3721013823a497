// Package businessflow contains the core business logic for short URL resolution and visit tracking
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Resolution errors, in check order. Disabled short URLs surface as
	// ErrShortURLNotFound so callers cannot tell them apart from absent ones.
	ErrShortURLNotFound    = errors.New("short URL not found")
	ErrShortURLNotYetValid = errors.New("short URL is not valid yet")
	ErrShortURLExpired     = errors.New("short URL has expired")
	ErrMaxVisitsReached    = errors.New("short URL reached its maximum visits")

	// Relation and creation errors
	ErrDomainInvalid           = errors.New("domain authority is invalid")
	ErrShortCodeOccupied       = errors.New("short code is already in use")
	ErrCodeGenerationExhausted = errors.New("could not generate an unused short code")
	ErrPersistenceConflict     = errors.New("persistence conflict")

	// Non-fatal tracking errors, absorbed by the visit tracker
	ErrGeolocationUnavailable = errors.New("geolocation lookup unavailable")
	ErrWebhookDeliveryFailed  = errors.New("webhook delivery failed")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsShortURLNotFound(err error) bool {
	return errors.Is(err, ErrShortURLNotFound)
}

func IsShortURLNotYetValid(err error) bool {
	return errors.Is(err, ErrShortURLNotYetValid)
}

func IsShortURLExpired(err error) bool {
	return errors.Is(err, ErrShortURLExpired)
}

func IsMaxVisitsReached(err error) bool {
	return errors.Is(err, ErrMaxVisitsReached)
}

func IsDomainInvalid(err error) bool {
	return errors.Is(err, ErrDomainInvalid)
}

func IsShortCodeOccupied(err error) bool {
	return errors.Is(err, ErrShortCodeOccupied)
}

func IsCodeGenerationExhausted(err error) bool {
	return errors.Is(err, ErrCodeGenerationExhausted)
}

func IsPersistenceConflict(err error) bool {
	return errors.Is(err, ErrPersistenceConflict)
}

func IsGeolocationUnavailable(err error) bool {
	return errors.Is(err, ErrGeolocationUnavailable)
}

func IsWebhookDeliveryFailed(err error) bool {
	return errors.Is(err, ErrWebhookDeliveryFailed)
}

// IsResolutionFailure reports whether err is any of the synchronous
// resolution failures that the redirect-serving layer maps to a 404 or a
// domain fallback redirect.
func IsResolutionFailure(err error) bool {
	return IsShortURLNotFound(err) ||
		IsShortURLNotYetValid(err) ||
		IsShortURLExpired(err) ||
		IsMaxVisitsReached(err)
}
