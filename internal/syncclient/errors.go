package syncclient

import "errors"

var (
	// ErrClosed is returned by operations on a disconnected Service.
	ErrClosed     = errors.New("sync client closed")
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	ErrInvalidURL = errors.New("invalid server url")
)
