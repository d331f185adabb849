package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a response could not be decoded into a success.
type Kind string

const (
	// KindNoSuccessMarker means the response carried no success field.
	KindNoSuccessMarker Kind = "no_success_marker"
	// KindExplicitFailure means the platform answered with success=false.
	KindExplicitFailure Kind = "explicit_failure"
	// KindMalformedLine means every candidate line was unusable.
	KindMalformedLine Kind = "malformed_line"
	// KindEmptyResponse means there was nothing to parse.
	KindEmptyResponse Kind = "empty_response"
)

const genericFailureMessage = "failure was returned from the API"

// DecodeError is returned by the decoders for every non-successful response.
type DecodeError struct {
	Kind    Kind
	Message string
}

func (e *DecodeError) Error() string {
	message := strings.TrimSpace(e.Message)
	if message == "" {
		return fmt.Sprintf("decode response: %s", e.Kind)
	}
	return fmt.Sprintf("decode response: %s: %s", e.Kind, message)
}

// Is matches another DecodeError with the same kind, or any DecodeError when
// the target kind is empty.
func (e *DecodeError) Is(target error) bool {
	other, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	return other.Kind == "" || other.Kind == e.Kind
}

// IsKind reports whether err wraps a DecodeError of the given kind.
func IsKind(err error, kind Kind) bool {
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return false
	}
	return decodeErr.Kind == kind
}

// FailureMessage returns the platform-supplied message carried by err, if any.
func FailureMessage(err error) string {
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return ""
	}
	return decodeErr.Message
}

func newDecodeError(kind Kind, message string) *DecodeError {
	return &DecodeError{Kind: kind, Message: message}
}
