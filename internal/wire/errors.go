package wire

import (
	"errors"

	"github.com/rzbill/evpipe/pkg/logstore"
)

// ErrorBody is the payload of a FrameError response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable error codes carried on the wire. They map 1:1 onto the logstore
// sentinels so clients can rebuild errors.Is-able errors.
const (
	CodeNoLog       = "no_log"
	CodeNoGroup     = "no_group"
	CodeGroupExists = "group_exists"
	CodeBadStart    = "bad_start"
	CodeBadRequest  = "bad_request"
	CodeInternal    = "internal"
)

// CodeForError maps a service error onto its wire code.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, logstore.ErrNoLog):
		return CodeNoLog
	case errors.Is(err, logstore.ErrNoGroup):
		return CodeNoGroup
	case errors.Is(err, logstore.ErrGroupExists):
		return CodeGroupExists
	case errors.Is(err, logstore.ErrBadStart):
		return CodeBadStart
	default:
		return CodeInternal
	}
}

// ErrorForCode rebuilds a client-side error from a wire code and message.
// Known codes come back wrapping their logstore sentinel.
func ErrorForCode(code, message string) error {
	var base error
	switch code {
	case CodeNoLog:
		base = logstore.ErrNoLog
	case CodeNoGroup:
		base = logstore.ErrNoGroup
	case CodeGroupExists:
		base = logstore.ErrGroupExists
	case CodeBadStart:
		base = logstore.ErrBadStart
	default:
		if message == "" {
			message = "request failed"
		}
		return errors.New(message)
	}
	if message == "" || message == base.Error() {
		return base
	}
	return &codedError{msg: message, base: base}
}

// codedError keeps the server's message text while unwrapping to the
// matching sentinel.
type codedError struct {
	msg  string
	base error
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Unwrap() error { return e.base }
