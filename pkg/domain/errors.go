package domain

import "errors"

// Common domain errors
var (
	ErrDuplicateModule = errors.New("module already registered")
	ErrUnknownModule   = errors.New("unknown module")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrRuleInvalid     = errors.New("invalid rule")
	ErrPolicyCompile   = errors.New("policy compilation failed")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
