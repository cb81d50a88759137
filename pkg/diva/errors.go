package diva

import (
	"errors"
	"fmt"
)

// Kind categorises a client failure.
type Kind string

const (
	KindTransport           Kind = "transport"
	KindUnexpectedResponse  Kind = "unexpected_response"
	KindUnsupportedFileType Kind = "unsupported_file_type"
	KindDownload            Kind = "download"
	KindAmbiguousOutcome    Kind = "ambiguous_outcome"
	KindJobFailed           Kind = "job_failed"
	KindCancelled           Kind = "cancelled"
	KindInvalidRequest      Kind = "invalid_request"
)

// ExitCode maps a failure kind to a process exit status. Unknown kinds map to 1.
func (k Kind) ExitCode() int {
	switch k {
	case KindTransport:
		return 2
	case KindUnexpectedResponse:
		return 3
	case KindUnsupportedFileType:
		return 4
	case KindDownload:
		return 5
	case KindAmbiguousOutcome:
		return 6
	case KindJobFailed:
		return 7
	case KindCancelled:
		return 8
	case KindInvalidRequest:
		return 9
	default:
		return 1
	}
}

// Error represents a failure while talking to DIVAServices or preparing a request.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode returns the process exit status for err: 0 for nil, the kind's code
// for client failures and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
