package service

import "errors"

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrUnknownPackage           = errors.New("unknown package")
	ErrGatewayUnavailable       = errors.New("payment gateway unavailable")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
	ErrInvalidWebhookSignature  = errors.New("invalid webhook signature")
	ErrProviderUnsupported      = errors.New("provider is not supported")

	// ErrStaleTransition marks a conditional write that lost to a concurrent
	// writer. It never leaves the service.
	ErrStaleTransition = errors.New("stale transition")
)
