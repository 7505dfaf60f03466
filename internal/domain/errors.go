package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrWebhookNotConfigured = errors.New("billing webhook endpoint is not configured")
	ErrPricingNotConfigured = errors.New("shared pricing store is not configured")
	ErrRunInProgress        = errors.New("a billing run is already in progress")
)

// TransitionError is returned when a pipeline step is not allowed from the current state.
type TransitionError struct {
	Event   Event
	Current State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// SoftDBError is a tenant-local database failure (unreachable host, denied
// credentials, timeout). It skips the tenant for the run and never aborts the batch.
type SoftDBError struct {
	Code string
	Err  error
}

func (e *SoftDBError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *SoftDBError) Unwrap() error { return e.Err }

// DeliveryError is returned when the webhook answered with a non-2xx status.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", e.Status)
}

// DeliveryFaultError is returned when the webhook could not be reached at all
// (network error, timeout).
type DeliveryFaultError struct {
	Err error
}

func (e *DeliveryFaultError) Error() string {
	return fmt.Sprintf("webhook unreachable: %v", e.Err)
}

func (e *DeliveryFaultError) Unwrap() error { return e.Err }

// InvalidRateError is returned when a rate cannot be persisted.
type InvalidRateError struct {
	Reason string
}

func (e *InvalidRateError) Error() string {
	return "invalid rate: " + e.Reason
}

// InvalidEmailError is returned when an invoice recipient address does not parse.
type InvalidEmailError struct {
	Address string
}

func (e *InvalidEmailError) Error() string {
	return fmt.Sprintf("invalid invoice email %q", e.Address)
}
