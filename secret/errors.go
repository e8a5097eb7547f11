package secret

import "errors"

// Sentinel errors for secret resolution.
var (
	ErrMissingEnv            = errors.New("secret: missing required environment variables")
	ErrProviderNotRegistered = errors.New("secret: provider is not registered")
	ErrInvalidRegistration   = errors.New("secret: invalid provider registration")
	ErrDuplicateProvider     = errors.New("secret: provider already registered")
	ErrEmptyRef              = errors.New("secret: reference is empty")
	ErrEmptySecret           = errors.New("secret: provider returned empty value")
	ErrSecretNotFound        = errors.New("secret: not found")
)
