package feed

import "errors"

var (
	ErrInvalidSecretLength = errors.New("invalid secret length")
	ErrEmptyTargetList     = errors.New("subscription target list is empty")
	ErrEmptyTarget         = errors.New("subscription target is empty")

	ErrMalformedFrame  = errors.New("malformed frame")
	ErrUnexpectedShape = errors.New("unexpected frame shape")
)

// IsConstructionError reports whether err came from building a Request with
// invalid parameters.
func IsConstructionError(err error) bool {
	return errors.Is(err, ErrInvalidSecretLength) ||
		errors.Is(err, ErrEmptyTargetList) ||
		errors.Is(err, ErrEmptyTarget)
}

// IsDecodeError reports whether err came from decoding an inbound frame.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrUnexpectedShape)
}
