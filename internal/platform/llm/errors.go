package llm

import (
	"errors"
	"fmt"
)

const (
	CodeProviderNotConfigured = "provider_not_configured"
	CodeNoProviders           = "no_providers"
	CodeEmptyResponse         = "empty_response"
)

// ProviderError reports a gateway-level failure tied to one provider name.
type ProviderError struct {
	Code     string
	Provider string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("llm provider %q: %s", e.Provider, e.Code)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsNotConfigured reports whether err names an unknown or unconfigured provider.
func IsNotConfigured(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == CodeProviderNotConfigured || pe.Code == CodeNoProviders
}
