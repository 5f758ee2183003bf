// Package errors provides error handling for sentinel.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Details and hints that survive wrapping
//
// On top of the re-exports it defines the ingestion error taxonomy. Every
// failure a channel, the fetcher or the report pipeline can produce is marked
// with one of the sentinel errors below, so callers classify with errors.Is
// (or KindOf) no matter how many times the error was wrapped on the way up.
//
// Usage:
//
//	// Throttled fetch with the provider's reset time attached
//	return errors.NewThrottled("reset in %s exceeds max wait", wait)
//
//	// Wrap with context, classification survives
//	if err := ch.Fetch(ctx, req); err != nil {
//	    return errors.Wrapf(err, "fetch %s", name)
//	}
//
//	// Classify at the job boundary
//	kind := errors.KindOf(err)
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
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

// Taxonomy sentinels. Check with errors.Is; wrap freely.
var (
	// ErrConfig indicates a missing or invalid channel parameter.
	// The affected channel is skipped; other channels are unaffected.
	ErrConfig = New("configuration error")

	// ErrInvalidRequest indicates a malformed fetch request (e.g. since after until)
	ErrInvalidRequest = New("invalid request")

	// ErrChannelNotFound indicates the requested channel name is not registered
	ErrChannelNotFound = New("channel not found")

	// ErrThrottled indicates the provider quota is exhausted and the reset
	// lies outside the allowed wait bound
	ErrThrottled = New("throttled")

	// ErrPermanentFailure indicates a non-retryable provider response
	// (authorization, not found, validation)
	ErrPermanentFailure = New("permanent failure")

	// ErrTransient indicates a network-level failure that outlived its retries
	ErrTransient = New("transient failure")

	// ErrExport indicates the artifact could not be written
	ErrExport = New("export failed")

	// ErrSummarize indicates the summarizer failed to produce a report
	ErrSummarize = New("summarize failed")

	// ErrNotify indicates the notifier failed to deliver
	ErrNotify = New("notify failed")
)

// NewConfigError creates a configuration error with a formatted message
func NewConfigError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfig)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// NewChannelNotFound creates a not-found error for the named channel
func NewChannelNotFound(name string) error {
	return Mark(Newf("channel %q not found", name), ErrChannelNotFound)
}

// NewThrottled creates a throttled fetch error with a formatted message
func NewThrottled(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrThrottled)
}

// NewPermanentFailure creates a permanent fetch failure carrying the HTTP status
func NewPermanentFailure(status int, format string, args ...interface{}) error {
	err := Mark(Newf(format, args...), ErrPermanentFailure)
	return WithDetailf(err, "status: %d", status)
}

// WrapTransient marks err as a transient fetch failure
func WrapTransient(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrTransient)
}

// WrapExport marks err as an export failure
func WrapExport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrExport)
}

// WrapSummarize marks err as a summarizer failure
func WrapSummarize(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrSummarize)
}

// WrapNotify marks err as a notifier failure
func WrapNotify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrNotify)
}

// IsThrottled checks if an error is or wraps ErrThrottled
func IsThrottled(err error) bool {
	return err != nil && Is(err, ErrThrottled)
}

// IsPermanent checks if an error is or wraps ErrPermanentFailure
func IsPermanent(err error) bool {
	return err != nil && Is(err, ErrPermanentFailure)
}

// IsTransient checks if an error is or wraps ErrTransient
func IsTransient(err error) bool {
	return err != nil && Is(err, ErrTransient)
}

// IsConfigError checks if an error is or wraps ErrConfig
func IsConfigError(err error) bool {
	return err != nil && Is(err, ErrConfig)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsChannelNotFound checks if an error is or wraps ErrChannelNotFound
func IsChannelNotFound(err error) bool {
	return err != nil && Is(err, ErrChannelNotFound)
}
