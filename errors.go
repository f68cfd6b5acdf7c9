package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/tarantool/go-tarantool/v2"
)

var (
	// ErrNotSupported is returned when an operation is invalid for the
	// request it is applied to, e.g. QueryGet on a call.
	ErrNotSupported = errors.New("operation is not supported for this request")
	// ErrNoServerAvailable is returned when no endpoint of a pool could be
	// opened, even with the dead-server cache ignored.
	ErrNoServerAvailable = errors.New("no server available")
	// ErrNoReplica is returned when a replica was requested without the
	// master fallback and none could be bound.
	ErrNoReplica = errors.New("no replica available")
	// ErrInvalidCondition is returned for condition shapes that can not be
	// compiled into a select.
	ErrInvalidCondition = errors.New("invalid condition")
)

// UnknownSpaceError is returned when the space catalog has no entry for the
// requested name or id.
type UnknownSpaceError struct {
	Space interface{}
}

// Error converts an UnknownSpaceError to a string.
func (e *UnknownSpaceError) Error() string {
	return fmt.Sprintf("unknown space %v", quoteIdent(e.Space))
}

// UnknownIndexError is returned when the index catalog has no entry for the
// requested name or id inside a space.
type UnknownIndexError struct {
	Index   interface{}
	SpaceID uint32
}

// Error converts an UnknownIndexError to a string.
func (e *UnknownIndexError) Error() string {
	return fmt.Sprintf("unknown index %v in space #%d", quoteIdent(e.Index), e.SpaceID)
}

func quoteIdent(v interface{}) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("#%v", v)
}

// TransientEncodingError marks a server failure to encode a Lua value into
// msgpack. It is the only error eligible for the self-heal retry.
type TransientEncodingError struct {
	Err error
}

func (e *TransientEncodingError) Error() string {
	return e.Err.Error()
}

func (e *TransientEncodingError) Unwrap() error {
	return e.Err
}

// TransportError is a failure to reach a single endpoint.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("endpoint %s: %s", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var transientEncodingMarkers = []string{
	"unsupported lua type",
	"can not encode lua type",
}

// IsTransientEncodingError reports whether err was produced by the server
// when it met a Lua value it can not serialize.
func IsTransientEncodingError(err error) bool {
	if err == nil {
		return false
	}
	var tee *TransientEncodingError
	if errors.As(err, &tee) {
		return true
	}
	msg := err.Error()
	var tntErr tarantool.Error
	if errors.As(err, &tntErr) {
		msg = tntErr.Msg
	}
	msg = strings.ToLower(msg)
	for _, marker := range transientEncodingMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func selfHealDisabledError(err error) error {
	return fmt.Errorf("%w; the server could not encode a Lua value, either run "+
		"%q on the server or enable HandleTransientEncodingErrors", err, encodeInvalidAsNilExpr)
}

func selfHealFailedError(original, remedial error) error {
	var merr *multierror.Error
	merr = multierror.Append(merr,
		fmt.Errorf("request failed: %w", original),
		fmt.Errorf("encode_invalid_as_nil remedy failed: %w", remedial))
	return merr
}

func selfHealRetryFailedError(original, retry error) error {
	var merr *multierror.Error
	merr = multierror.Append(merr,
		fmt.Errorf("request failed: %w", original),
		fmt.Errorf("retry after encode_invalid_as_nil failed: %w", retry))
	return merr
}
