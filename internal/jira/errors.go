package jira

import (
	"errors"
	"fmt"

	jira "github.com/andygrunwald/go-jira"
)

// ErrProtocolInconsistency is returned when the search API breaks its own
// paging contract, e.g. an empty page before the reported total is reached.
var ErrProtocolInconsistency = errors.New("jira search paging inconsistency")

// FetchError reports a failed call to the Jira API. Retrying is left to the caller.
type FetchError struct {
	// Op names the API call (e.g. "search", "myself")
	Op string
	// StatusCode is the HTTP status, zero when no response was received
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jira %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("jira %s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is or wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func newFetchError(op string, resp *jira.Response, err error) error {
	fe := &FetchError{Op: op, Err: err}
	if resp != nil && resp.Response != nil {
		fe.StatusCode = resp.StatusCode
	}
	return fe
}
