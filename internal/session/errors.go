package session

import (
	"errors"
	"fmt"
)

// Failure classifies why a session operation failed
type Failure string

const (
	PoolExhausted            Failure = "pool_exhausted"
	ReconnectFailed          Failure = "reconnect_failed"
	ConnectFailed            Failure = "connect_failed"
	ServiceNotFound          Failure = "service_not_found"
	SubscribeFailed          Failure = "subscribe_failed"
	MetadataUnavailable      Failure = "metadata_unavailable"
	NotConnected             Failure = "not_connected"
	CharacteristicUnwritable Failure = "characteristic_unwritable"
	CharacteristicUnreadable Failure = "characteristic_unreadable"
	InvalidArgument          Failure = "invalid_argument"
)

// Error is a classified session failure
type Error struct {
	Reason  Failure
	Address string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Reason)
	if e.Address != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Address)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Reason
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// Predefined sentinel errors, one per Failure
var (
	ErrPoolExhausted            = &Error{Reason: PoolExhausted}
	ErrReconnectFailed          = &Error{Reason: ReconnectFailed}
	ErrConnectFailed            = &Error{Reason: ConnectFailed}
	ErrServiceNotFound          = &Error{Reason: ServiceNotFound}
	ErrSubscribeFailed          = &Error{Reason: SubscribeFailed}
	ErrMetadataUnavailable      = &Error{Reason: MetadataUnavailable}
	ErrNotConnected             = &Error{Reason: NotConnected}
	ErrCharacteristicUnwritable = &Error{Reason: CharacteristicUnwritable}
	ErrCharacteristicUnreadable = &Error{Reason: CharacteristicUnreadable}
	ErrInvalidArgument          = &Error{Reason: InvalidArgument}
)

// ReasonOf extracts the Failure of a session error
func ReasonOf(err error) (Failure, bool) {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Reason, true
	}
	return "", false
}

func newError(reason Failure, address string, err error) *Error {
	return &Error{Reason: reason, Address: address, Err: err}
}
