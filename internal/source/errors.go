package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind says why a provider call failed.
type Kind int

const (
	KindTransient Kind = iota
	KindRateLimited
	KindServer
	KindClient
	KindCancelled
)

var kindNames = map[Kind]string{
	KindTransient:   "transient",
	KindRateLimited: "rate_limited",
	KindServer:      "server_error",
	KindClient:      "client_error",
	KindCancelled:   "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CallError is a failed provider call. It matches ErrSourceUnavailable.
type CallError struct {
	Provider string
	Op       string
	Kind     Kind
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s %s (%s): %v", ErrSourceUnavailable, e.Provider, e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrSourceUnavailable }

// KindOf returns the kind of a failed call, or KindTransient when err is not
// a *CallError.
func KindOf(err error) Kind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return KindTransient
}

func kindForStatus(code int, h http.Header) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusForbidden && h != nil && retryAfter(h, time.Now()) > 0:
		return KindRateLimited
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindClient
	}
	return KindTransient
}

// kindForResponse classifies an SDK error by the HTTP answer that caused
// it, if any.
func kindForResponse(resp *http.Response) Kind {
	if resp == nil {
		return KindTransient
	}
	return kindForStatus(resp.StatusCode, resp.Header)
}

func contextKind(parent context.Context, err error) (Kind, bool) {
	if parent.Err() != nil {
		return KindCancelled, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient, true
	}
	return 0, false
}
