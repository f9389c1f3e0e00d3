// Package core provides core types and interfaces for the LLM gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or unroutable canonical request
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeMissingCredential indicates no credential could be resolved for a provider
	ErrorTypeMissingCredential ErrorType = "missing_credential_error"
	// ErrorTypeTransport indicates a connection, timeout or network failure
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeProvider indicates a non-success status reported by the provider
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeDecode indicates a response or stream payload that does not parse
	ErrorTypeDecode ErrorType = "decode_error"
)

var (
	// ErrUnknownProvider is wrapped by the invalid request error returned
	// when a model prefix names no registered provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrStreamClosed is returned by Recv after the stream has been closed.
	ErrStreamClosed = errors.New("stream closed")
)

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	// Body is the raw provider response body, kept for diagnostics
	Body []byte `json:"-"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	switch {
	case e.Provider != "" && e.Model != "":
		return fmt.Sprintf("[%s/%s] %s: %s", e.Provider, e.Model, e.Type, e.Message)
	case e.Provider != "":
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code the gateway should answer with
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeMissingCredential:
		return http.StatusUnauthorized
	case ErrorTypeTransport:
		return http.StatusGatewayTimeout
	case ErrorTypeProvider:
		// Client errors from the provider are passed through, everything else is a bad gateway.
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	case ErrorTypeDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *GatewayError) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Provider != "" {
		body["provider"] = e.Provider
	}
	return map[string]interface{}{"error": body}
}

// WithModel annotates the error with the provider-native model and returns it
func (e *GatewayError) WithModel(model string) *GatewayError {
	e.Model = model
	return e
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewUnknownProviderError creates the invalid request error for an unregistered provider key
func NewUnknownProviderError(provider string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    fmt.Sprintf("unknown provider %q", provider),
		StatusCode: http.StatusBadRequest,
		Provider:   provider,
		Err:        ErrUnknownProvider,
	}
}

// NewMissingCredentialError creates a new missing credential error
func NewMissingCredentialError(provider string, message string) *GatewayError {
	return &GatewayError{
		Type:     ErrorTypeMissingCredential,
		Message:  message,
		Provider: provider,
	}
}

// NewTransportError creates a new transport error (connect, timeout, reset)
func NewTransportError(provider string, message string, err error) *GatewayError {
	return &GatewayError{
		Type:     ErrorTypeTransport,
		Message:  message,
		Provider: provider,
		Err:      err,
	}
}

// NewProviderError creates a new provider error carrying the upstream status and body
func NewProviderError(provider string, statusCode int, message string, body []byte) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Body:       body,
	}
}

// NewDecodeError creates a new decode error
func NewDecodeError(provider string, message string, body []byte, err error) *GatewayError {
	return &GatewayError{
		Type:     ErrorTypeDecode,
		Message:  message,
		Provider: provider,
		Body:     body,
		Err:      err,
	}
}

// ParseProviderError builds a ProviderError from a non-success provider response.
// The message is taken from the OpenAI-style {"error":{"message":...}} envelope
// when present, and falls back to the raw body otherwise.
func ParseProviderError(provider string, statusCode int, body []byte) *GatewayError {
	message := string(body)
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		if msg := parsed.Get("error.message"); msg.Exists() && msg.String() != "" {
			message = msg.String()
			if typ := parsed.Get("error.type").String(); typ != "" {
				message = typ + ": " + message
			}
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return NewProviderError(provider, statusCode, message, body)
}

// IsErrorType reports whether err is a GatewayError of type t
func IsErrorType(err error, t ErrorType) bool {
	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Type == t
	}
	return false
}
