package sink

import "errors"

var (
	ErrHandlerAlreadyExists = errors.New("handler already exists")
	ErrHandlerNotFound      = errors.New("handler not found")
	ErrUnknownFormat        = errors.New("unknown output format")
	ErrNoSubject            = errors.New("nats subject is empty")
)
