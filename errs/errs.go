// Package errs contains the error taxonomy shared across vdkio.
//
// Errors are kind-tagged structs rather than a flat sentinel list, so
// that callers can recover the offending value with errors.As while
// still being able to classify an error by kind, with KindOf or with
// errors.Is against an *Error carrying the wanted Kind.
package errs

import "fmt"

// Kind classifies an error by its retry semantics.
type Kind int

const (
	// InvalidInput is a malformed URL, unknown scheme, or negative
	// duration. Non-retryable.
	InvalidInput Kind = iota
	// ProtocolError is a RTSP/RTP/TS framing violation or unexpected
	// state transition. Non-retryable for the offending session.
	ProtocolError
	// AuthFailed is surfaced when a request retried with credentials
	// after a 401 challenge gets a second 401. Non-retryable.
	AuthFailed
	// TransportLost is a closed socket, read timeout, or excessive
	// RTCP loss. Retryable by the caller with exponential backoff.
	TransportLost
	// InvalidBitstream is an Exp-Golomb overflow, truncated NALU, or
	// ADTS sync miss. Never fatal to the session.
	InvalidBitstream
	// Io is a local filesystem error during segment/playlist write.
	// Fatal to the segmenter; the session may continue with a new sink.
	Io
	// Timeout is a server unresponsive beyond the configured deadline.
	// Retryable.
	Timeout
	// Unsupported is a codec or transport advertised but not
	// implemented. Non-retryable.
	Unsupported
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ProtocolError:
		return "ProtocolError"
	case AuthFailed:
		return "AuthFailed"
	case TransportLost:
		return "TransportLost"
	case InvalidBitstream:
		return "InvalidBitstream"
	case Io:
		return "Io"
	case Timeout:
		return "Timeout"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Retryable reports whether the caller should retry the operation that
// produced an error of this kind.
func (k Kind) Retryable() bool {
	return k == TransportLost || k == Timeout
}

// Error is the concrete error type carried through vdkio. Value holds
// the offending input (a URL string, a status code, a byte count...)
// for diagnostics; it may be nil.
type Error struct {
	Kind  Kind
	Op    string // component/operation that raised it, e.g. "rtspclient.Setup"
	Value any
	Err   error // wrapped cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Value != nil:
		return fmt.Sprintf("%s: %s (%v): %v", e.Op, e.Kind, e.Value, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Value != nil:
		return fmt.Sprintf("%s: %s (%v)", e.Op, e.Kind, e.Value)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &errs.Error{Kind: k}) report true for any
// *Error of kind k, whatever its Op, Value or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error for the given kind/op, optionally wrapping a
// cause and/or annotating the offending value.
func New(kind Kind, op string, value any, cause error) *Error {
	return &Error{Kind: kind, Op: op, Value: value, Err: cause}
}

// KindOf reports the Kind of err if it is (or wraps) a vdkio *Error,
// and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if v, ok := err.(*Error); ok {
			e = v
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Kind, true
}
