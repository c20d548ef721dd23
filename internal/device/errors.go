package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures reported by the manager and its collaborators
type ErrorKind string

const (
	KindNotInitialized         ErrorKind = "not_initialized"
	KindRadioUnavailable       ErrorKind = "radio_unavailable"
	KindRadioUnsupported       ErrorKind = "radio_unsupported"
	KindInvalidState           ErrorKind = "invalid_state"
	KindAddressUnknown         ErrorKind = "address_unknown"
	KindConnectFailed          ErrorKind = "connect_failed"
	KindDisconnectFailed       ErrorKind = "disconnect_failed"
	KindServiceDiscoveryFailed ErrorKind = "service_discovery_failed"
	KindAttributeNotFound      ErrorKind = "attribute_not_found"
)

// Error is the structured error used across the module.
// Two Errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind ErrorKind
	Op   string // command or event that failed, e.g. "connect"
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Predefined sentinel errors, one per kind
var (
	ErrNotInitialized         = &Error{Kind: KindNotInitialized}
	ErrRadioUnavailable       = &Error{Kind: KindRadioUnavailable}
	ErrRadioUnsupported       = &Error{Kind: KindRadioUnsupported}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrAddressUnknown         = &Error{Kind: KindAddressUnknown}
	ErrConnectFailed          = &Error{Kind: KindConnectFailed}
	ErrDisconnectFailed       = &Error{Kind: KindDisconnectFailed}
	ErrServiceDiscoveryFailed = &Error{Kind: KindServiceDiscoveryFailed}
	ErrAttributeNotFound      = &Error{Kind: KindAttributeNotFound}
)

// Backend errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// NewError builds an Error of the given kind
func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// InvalidStateError reports a command rejected in the given connection state
func InvalidStateError(op string, state ConnectionState) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Msg: state.String()}
}

// KindOf returns the kind of the first Error in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NotFoundError represents a lookup miss in the service tree
type NotFoundError struct {
	Resource string   // "service" or "attribute"
	IDs      []string // [serviceID] or [serviceID, attributeID]
}

func (e *NotFoundError) Error() string {
	switch len(e.IDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.IDs[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.IDs[len(e.IDs)-1], e.IDs[0])
	}
}

// Is makes every NotFoundError match ErrAttributeNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrAttributeNotFound
}
