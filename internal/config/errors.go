package config

import "fmt"

// ConfigError is a pre-flight failure. No iteration runs after one.
type ConfigError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	// ErrCodeProdRefused indicates the production guard rejected BASE_URL.
	ErrCodeProdRefused ErrorCode = "PROD_REFUSED"

	// ErrCodeInvalidBaseURL indicates BASE_URL is not an absolute http(s) URL.
	ErrCodeInvalidBaseURL ErrorCode = "INVALID_BASE_URL"

	// ErrCodeInvalidTimeout indicates HTTP_TIMEOUT is not positive.
	ErrCodeInvalidTimeout ErrorCode = "INVALID_TIMEOUT"

	// ErrCodeEnvFile indicates the .env file exists but could not be read.
	ErrCodeEnvFile ErrorCode = "ENV_FILE"

	// ErrCodeParse indicates a variable could not be parsed.
	ErrCodeParse ErrorCode = "PARSE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
