package steamcdn

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error by where the failure originated, not by which
// call site produced it.
type Kind int

const (
	// KindUnexpected marks an invariant violation: a wrong-sized key, a
	// required field missing from a control-plane response.
	KindUnexpected Kind = iota
	// KindRequest marks a failure in the HTTP client layer itself
	// (building or sending a request).
	KindRequest
	// KindHTTPStatus marks an edge GET that returned a non-2xx status.
	KindHTTPStatus
	// KindNetwork marks a control-plane transport failure or server-pool
	// exhaustion.
	KindNetwork
	// KindInvalidVDF marks malformed key-value text.
	KindInvalidVDF
	// KindManifest marks a framing, archive, protobuf, crypto, or UTF-8
	// error encountered while decoding a manifest.
	KindManifest
	// KindNoneOption marks an expected optional field absent from a
	// key-value tree.
	KindNoneOption
)

func (k Kind) String() string {
	switch k {
	case KindUnexpected:
		return "unexpected"
	case KindRequest:
		return "request"
	case KindHTTPStatus:
		return "http_status"
	case KindNetwork:
		return "network"
	case KindInvalidVDF:
		return "invalid_vdf"
	case KindManifest:
		return "manifest"
	case KindNoneOption:
		return "none_option"
	default:
		return "unknown"
	}
}

// Error is the error type every public operation returns. Op names the
// failing operation (e.g. "Client.Manifest"); Err is the underlying cause,
// if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrKind returns the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func ErrKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
