// Package errors provides error handling for pulsedesk.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// details and hints) and defines the sentinel kinds the automation engine
// and the monitor classify failures by.
//
//	if err := store.Save(ctx, t, opts); err != nil {
//	    return errors.Wrap(err, "failed to save ticket")
//	}
//
//	if errors.Is(err, errors.ErrConfiguration) {
//	    // skip this job, keep the pass going
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors. Wrap them with Wrap/Wrapf to add context while keeping
// errors.Is working.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrAuthentication indicates a missing or bad token or credentials
	ErrAuthentication = New("authentication failed")

	// ErrAuthorization indicates an authenticated caller lacking a capability
	ErrAuthorization = New("not authorized")

	// ErrConfiguration indicates an invalid job definition: unknown operator,
	// unknown range or a malformed timeplan bucket
	ErrConfiguration = New("configuration error")

	// ErrTransient indicates a queried subsystem could not be reached
	ErrTransient = New("collaborator unavailable")
)

// NewConfigurationError creates a configuration error with a formatted message.
func NewConfigurationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message.
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// Transient marks err as a collaborator outage while keeping its message.
func Transient(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrTransient)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConfigurationError checks if an error is or wraps ErrConfiguration
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsTransientError checks if an error is or wraps ErrTransient
func IsTransientError(err error) bool {
	return err != nil && Is(err, ErrTransient)
}
