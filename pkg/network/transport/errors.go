package transport

import "errors"

var (
	ErrInvalidCertificate = errors.New("invalid certificate")
	ErrListenerFailed     = errors.New("failed to create QUIC listener")
	ErrDialFailed         = errors.New("failed to dial server")
	ErrNotStarted         = errors.New("transport not started")
	ErrMissingConfig      = errors.New("incomplete transport configuration")
	ErrHandlerPanic       = errors.New("stream handler panicked")
)
