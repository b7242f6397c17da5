package chain

import (
	"errors"
	"fmt"
)

var (
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrNoChainForTag      = errors.New("no chain for tag")
	ErrDuplicateKey       = errors.New("duplicate step key")
	ErrDuplicateTag       = errors.New("duplicate chain tag")
	ErrInvalidStep        = errors.New("invalid step")
	ErrInputMismatch      = errors.New("input count does not match step count")
)

// ConfigError reports a wiring mistake: a step that cannot run as defined, a
// capability that is not registered or an input no chain is registered for.
// Configuration errors are fatal and never retried.
//
// ConfigError wraps one of the sentinel errors of this package, so callers can
// match it with errors.Is.
type ConfigError struct {
	// Err is the sentinel describing the error category
	Err error

	// Key is the step key involved, if any
	Key string

	// Tag is the chain tag involved, if any
	Tag string

	// Detail is an optional human readable explanation
	Detail string
}

func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	tagIsSubject := errors.Is(e.Err, ErrNoChainForTag) || errors.Is(e.Err, ErrDuplicateTag)
	if e.Tag != "" && tagIsSubject {
		msg = fmt.Sprintf("%s %q", msg, e.Tag)
	}
	if e.Key != "" {
		msg = fmt.Sprintf("%s (step %q)", msg, e.Key)
	}
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if e.Tag != "" && !tagIsSubject {
		msg = fmt.Sprintf("chain %q: %s", e.Tag, msg)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err, or any error it wraps, is a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func CapabilityNotFound(key string, capability string) error {
	return &ConfigError{Err: ErrCapabilityNotFound, Key: key, Detail: fmt.Sprintf("%q is not registered", capability)}
}

func NoChainForTag(tag string) error {
	return &ConfigError{Err: ErrNoChainForTag, Tag: tag}
}
