package cartrule

import (
	"errors"
	"fmt"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var (
	// ErrInvalidRule marks a malformed rule definition.
	ErrInvalidRule = errors.New("invalid cart rule")
	// ErrUnknownProduct marks a restriction or gift pointing at a missing product.
	ErrUnknownProduct = errors.New("cart rule references unknown product")
	// ErrRuleNotFound is returned when no rule has the requested id.
	ErrRuleNotFound = errors.New("cart rule not found")
	// ErrDuplicateRule is returned when registering an id twice.
	ErrDuplicateRule = errors.New("cart rule already registered")
)

// ConfigError describes why a rule was refused at registration time.
type ConfigError struct {
	RuleID pricing.RuleID
	Field  string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("cart rule %d: %s: %v", e.RuleID, e.Field, e.Err)
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConfigError checks whether the error is a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func configErr(id pricing.RuleID, field string, err error, detail string) *ConfigError {
	if detail != "" {
		err = fmt.Errorf("%s: %w", detail, err)
	}
	return &ConfigError{RuleID: id, Field: field, Err: err}
}
