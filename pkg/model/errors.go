package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks programmer errors: unknown form kinds, missing field
// specs or malformed registries. Match with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError describes why a form could not be built or addressed.
type ConfigurationError struct {
	Kind   FormKind
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("formengine: configuration error")
	if e.Kind != "" {
		fmt.Fprintf(&b, " (form %q", e.Kind)
		if e.Key != "" {
			fmt.Fprintf(&b, ", field %q", e.Key)
		}
		b.WriteString(")")
	} else if e.Key != "" {
		fmt.Fprintf(&b, " (field %q)", e.Key)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is lets errors.Is(err, ErrConfiguration) match any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UnknownFormKind reports a request for a form that is not registered.
func UnknownFormKind(kind FormKind) error {
	return &ConfigurationError{Kind: kind, Reason: "unknown form kind"}
}

// UnknownField reports a lookup for a key the schema does not declare.
func UnknownField(kind FormKind, key string) error {
	return &ConfigurationError{Kind: kind, Key: key, Reason: "missing field spec"}
}
