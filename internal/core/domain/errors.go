package domain

import (
	"errors"
	"fmt"
)

var (
	ErrVideoNotFound  = errors.New("video not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTemporary      = errors.New("temporary failure")
	ErrAlreadyClaimed = errors.New("video already claimed for processing")

	// Classification-path error kinds. The orchestrator converts every one of
	// these into the simulated-fallback outcome; none reach the caller.
	ErrNoCredential     = errors.New("classifier credential not configured")
	ErrAllModelsFailed  = errors.New("all candidate models failed")
	ErrRemoteProcessing = errors.New("remote file processing failed")
	ErrPollTimeout      = errors.New("remote file still processing after deadline")
	ErrMalformedVerdict = errors.New("malformed classifier verdict")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
