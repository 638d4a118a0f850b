package flow

import (
	"errors"
	"fmt"
)

// ConfigurationError reports bad or missing settings. It is always fatal.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ErrAlreadyRunning is returned by Start while a session is in flight.
var ErrAlreadyRunning = &ConfigurationError{Reason: "interview already running"}

// ErrSessionReleased is returned when the remote session is used after leave.
var ErrSessionReleased = errors.New("remote session already released")

// PlanParseError means the generation response could not be read as a plan.
// Raw keeps the provider output for diagnosis.
type PlanParseError struct {
	Raw string
	Err error
}

func (e *PlanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse interview plan from the language model response: %v", e.Err)
	}
	return "failed to parse interview plan from the language model response"
}

func (e *PlanParseError) Unwrap() error { return e.Err }

// ExternalCapabilityError wraps a collaborator fault with the phase it hit.
type ExternalCapabilityError struct {
	Capability string
	Phase      SessionState
	Err        error
}

func (e *ExternalCapabilityError) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", e.Capability, e.Phase, e.Err)
}

func (e *ExternalCapabilityError) Unwrap() error { return e.Err }

func capabilityError(capability string, phase SessionState, err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *ConfigurationError
	var planErr *PlanParseError
	if errors.As(err, &cfgErr) || errors.As(err, &planErr) {
		return err
	}
	return &ExternalCapabilityError{Capability: capability, Phase: phase, Err: err}
}
