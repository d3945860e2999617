package threads

import (
	"errors"
	"fmt"

	"github.com/kiliankoe/threader/pkg/models"
)

// ErrNoAdapter is returned when no registered adapter recognizes a URL.
var ErrNoAdapter = errors.New("no adapter can handle this url")

// ParseError reports a malformed or unsupported post URL. It is never retried.
type ParseError struct {
	Platform models.Platform
	URL      string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("cannot parse %q: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("cannot parse %s url %q: %s", e.Platform, e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LinkageError reports that the seed post, profile or thread could not be resolved.
type LinkageError struct {
	Platform models.Platform
	Ref      string
	Err      error
}

func (e *LinkageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: cannot resolve %s", e.Platform, e.Ref)
	}
	return fmt.Sprintf("%s: cannot resolve %s: %v", e.Platform, e.Ref, e.Err)
}

func (e *LinkageError) Unwrap() error { return e.Err }

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func IsLinkageError(err error) bool {
	var le *LinkageError
	return errors.As(err, &le)
}
