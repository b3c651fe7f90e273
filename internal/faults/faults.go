// Package faults defines the error taxonomy shared by the derivation pipeline
// and its collaborators.
//
// Errors are tagged with one of the exported sentinel markers through Wrap so
// callers can classify them with errors.Is regardless of how deeply the
// original cause is nested. The boundary (CLI, or an HTTP layer) translates the
// marker into a status.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadRequest       = errors.New("bad request")
	ErrAssetNotFound    = errors.New("asset not found")
	ErrNamingExhausted  = errors.New("naming exhausted")
	ErrToolFailed       = errors.New("tool failed")
	ErrOutputMissing    = errors.New("tool output missing")
	ErrOutputMalformed  = errors.New("tool output malformed")
	ErrToolTimedOut     = errors.New("tool timed out")
	ErrNoStemsProduced  = errors.New("no stems produced")
	ErrPublishFailed    = errors.New("publish failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

var kinds = []struct {
	marker error
	name   string
}{
	{ErrBadRequest, "BadRequest"},
	{ErrAssetNotFound, "AssetNotFound"},
	{ErrNamingExhausted, "NamingExhausted"},
	{ErrToolTimedOut, "ToolTimedOut"},
	{ErrOutputMissing, "OutputMissing"},
	{ErrOutputMalformed, "OutputMalformed"},
	{ErrNoStemsProduced, "NoStemsProduced"},
	{ErrToolFailed, "ToolFailed"},
	{ErrPublishFailed, "PublishFailed"},
	{ErrStoreUnavailable, "StoreUnavailable"},
}

// Wrap builds an error message that carries component context while tagging it
// with marker for later classification. With a nil marker the error is
// returned untagged.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	switch {
	case marker == nil && err == nil:
		return errors.New(detail)
	case marker == nil:
		return fmt.Errorf("%s: %w", detail, err)
	case err == nil:
		return fmt.Errorf("%w: %s", marker, detail)
	default:
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
}

// BadRequest is shorthand for tagging caller input errors.
func BadRequest(component, message string) error {
	return Wrap(ErrBadRequest, component, "", message, nil)
}

// KindOf returns the taxonomy name of err, or "Internal" when err carries no
// marker. It returns "" for a nil error.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return "Internal"
}

// Retryable reports whether err is a transient store failure that is safe to
// retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
