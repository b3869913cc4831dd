package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"jobagg-engine/internal/domain"
)

type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d from %s", e.Code, e.URL)
}

// BlockedError is returned when a page loads but is an anti-bot or cookie
// wall rather than results.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "blocked: " + e.Reason }

type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

type NotConfiguredError struct {
	What string
}

func (e *NotConfiguredError) Error() string { return e.What + " not configured" }

func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrKindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrKindCancelled
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusForbidden || se.Code == http.StatusTooManyRequests {
			return domain.ErrKindBlocked
		}
		return domain.ErrKindHTTPStatus
	}
	var be *BlockedError
	if errors.As(err, &be) {
		return domain.ErrKindBlocked
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return domain.ErrKindParse
	}
	var ne *NotConfiguredError
	if errors.As(err, &ne) {
		return domain.ErrKindNotConfigured
	}
	var se2 *json.SyntaxError
	var te *json.UnmarshalTypeError
	if errors.As(err, &se2) || errors.As(err, &te) {
		return domain.ErrKindParse
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return domain.ErrKindTimeout
		}
		return domain.ErrKindNetwork
	}
	return domain.ErrKindNetwork
}

// Result builds the SourceResult for an adapter run ending in err. Any
// postings collected so far are kept.
func Result(id domain.SourceID, postings []domain.Posting, err error, started time.Time) domain.SourceResult {
	elapsed := time.Since(started)
	if err == nil {
		return domain.Succeeded(id, postings, elapsed)
	}
	return domain.Failed(id, Classify(err), err.Error(), postings, elapsed)
}

// CheckStatus turns non-2xx responses into a StatusError.
func CheckStatus(res *http.Response) error {
	if res.StatusCode < 200 || res.StatusCode > 299 {
		u := ""
		if res.Request != nil && res.Request.URL != nil {
			u = res.Request.URL.String()
		}
		return &StatusError{Code: res.StatusCode, URL: u}
	}
	return nil
}
