package domain

import (
	"errors"
	"fmt"
)

// Expected, non-fatal outcomes. Resolution returns these instead of panicking
// so callers can route them into the fallback planner or a plain 404.
var (
	ErrPostNotFound        = errors.New("post not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrUnpublished         = errors.New("post unpublished")
	ErrCacheMiss           = errors.New("cache miss")
	ErrLanguageNotFound    = errors.New("language not found")
	ErrContentNotFound     = errors.New("content not found")
	ErrVersionAccessDenied = errors.New("version access disabled")

	// ErrAlreadyInProgress signals that another caller is regenerating the
	// same group's cache.
	ErrAlreadyInProgress = errors.New("regeneration already in progress")
)

// ParseError reports corrupt metadata or content in a stored post.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes storage failures count as not-found for resolution.
func (e *ParseError) Is(target error) bool { return target == ErrContentNotFound }

// IOError reports an unreadable file or failed query.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrContentNotFound }

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrPostNotFound,
		ErrGroupNotFound,
		ErrUnpublished,
		ErrCacheMiss,
		ErrLanguageNotFound,
		ErrContentNotFound,
		ErrVersionAccessDenied,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
