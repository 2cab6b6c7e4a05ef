package alipayauth

import "fmt"

// providerName is the provider tag carried by every error and profile.
const providerName = "alipay"

// ErrorKind categorizes the type of error that occurred during an authentication attempt.
type ErrorKind string

const (
	// ErrKindConfiguration indicates missing or invalid construction-time configuration.
	ErrKindConfiguration ErrorKind = "configuration"
	// ErrKindTransport indicates a network failure or timeout reaching the gateway.
	ErrKindTransport ErrorKind = "transport"
	// ErrKindResponseFormat indicates a gateway response that could not be decoded or parsed.
	ErrKindResponseFormat ErrorKind = "response_format"
	// ErrKindGateway indicates the gateway returned a structured error payload.
	ErrKindGateway ErrorKind = "gateway"
	// ErrKindMalformedProfile indicates a user-info payload lacking the required shape.
	ErrKindMalformedProfile ErrorKind = "malformed_profile"
	// ErrKindKey indicates missing or corrupt RSA key material.
	ErrKindKey ErrorKind = "key"
	// ErrKindRejected indicates the verify callback declined to produce a user.
	ErrKindRejected ErrorKind = "rejected"
	// ErrKindConsumerCallback indicates the verify callback panicked.
	ErrKindConsumerCallback ErrorKind = "consumer_callback"
	// ErrKindCipher indicates ciphertext that cannot be decoded or decrypted.
	ErrKindCipher ErrorKind = "cipher"
)

// AuthError represents a structured error from an authentication attempt.
// It carries the error kind, provider name, optional gateway error code,
// a human-readable message, and an optional wrapped error.
type AuthError struct {
	// Kind categorizes the error.
	Kind ErrorKind
	// Provider is always "alipay".
	Provider string
	// Code is the gateway code (sub_code when present) for gateway errors.
	Code string
	// Message is a human-readable description of the error. For gateway
	// errors it is the message embedded in the gateway payload, verbatim.
	Message string
	// Err is the underlying error, if any.
	Err error
}

// Error returns the string representation of the error in the format:
//
//	"alipayauth [provider] kind: message"
func (e *AuthError) Error() string {
	return fmt.Sprintf("alipayauth [%s] %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this AuthError by Kind.
// This enables errors.Is to match AuthError values against sentinel errors.
func (e *AuthError) Is(target error) bool {
	if t, ok := target.(*AuthError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinel errors for use with errors.Is. Each sentinel corresponds to an ErrorKind.
var (
	ErrConfiguration        = &AuthError{Kind: ErrKindConfiguration}
	ErrTransport            = &AuthError{Kind: ErrKindTransport}
	ErrResponseFormat       = &AuthError{Kind: ErrKindResponseFormat}
	ErrGateway              = &AuthError{Kind: ErrKindGateway}
	ErrMalformedProfile     = &AuthError{Kind: ErrKindMalformedProfile}
	ErrKey                  = &AuthError{Kind: ErrKindKey}
	ErrVerificationRejected = &AuthError{Kind: ErrKindRejected}
	ErrConsumerCallback     = &AuthError{Kind: ErrKindConsumerCallback}
	ErrCipher               = &AuthError{Kind: ErrKindCipher}
)

func newAuthError(kind ErrorKind, code, message string, err error) *AuthError {
	return &AuthError{
		Kind:     kind,
		Provider: providerName,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}
