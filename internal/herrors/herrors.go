// Package herrors defines the error taxonomy surfaced by the orchestration
// engine (spec §7). Each kind wraps an inner cause and carries just enough
// structure for callers to classify and react — no custom framework, no
// control flow hidden inside an error type.
package herrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy.
type Kind string

const (
	KindConfiguration           Kind = "configuration"
	KindExecutionCycleExists    Kind = "execution_cycle_exists"
	KindExecutionCycleNotExists Kind = "execution_cycle_not_exists"
	KindMasterSlaveConflict     Kind = "master_slave_switch_on_conflict"
	KindTransientHost           Kind = "transient_host"
	KindTimeout                 Kind = "timeout"
	KindSetup                   Kind = "setup"
	KindUnknownCommand          Kind = "unknown_command"
	KindIncorrectCommand        Kind = "incorrect_command"
)

// Error is the concrete type behind every sentinel in this package.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Configuration reports an invalid configuration input (bad jmeter version,
// malformed installer URL, missing AMI for a non-standard SSH port, ...).
func Configuration(msg string, cause error) error {
	return newErr(KindConfiguration, msg, cause)
}

// ExecutionCycleExists reports that start() was called while a cycle is
// already `started`.
func ExecutionCycleExists(projectCode string) error {
	return newErr(KindExecutionCycleExists, fmt.Sprintf("project %q already has a started execution cycle", projectCode), nil)
}

// ExecutionCycleNotExists reports that a lifecycle command requiring a
// current cycle (stop/abort) found none.
func ExecutionCycleNotExists(projectCode string) error {
	return newErr(KindExecutionCycleNotExists, fmt.Sprintf("project %q has no started execution cycle", projectCode), nil)
}

// MasterSlaveConflict reports more than one active Master load agent for a
// (cluster, plan) pair in master/slave mode.
func MasterSlaveConflict(planName string, count int) error {
	return newErr(KindMasterSlaveConflict, fmt.Sprintf("plan %q has %d active master agents, expected at most 1", planName, count), nil)
}

// TransientHost wraps a recoverable SSH/cloud-API failure. Retried inside
// the remote executor; only surfaces once the retry budget is exhausted.
func TransientHost(msg string, cause error) error {
	return newErr(KindTransientHost, msg, cause)
}

// Timeout reports that a wait_for predicate did not become true in time.
func Timeout(label string, cause error) error {
	return newErr(KindTimeout, fmt.Sprintf("timed out waiting for %q", label), cause)
}

// Setup aggregates partial failures from cluster/target setup (§4.5).
func Setup(msg string, cause error) error {
	return newErr(KindSetup, msg, cause)
}

// Is reports whether err (or something it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsTransient reports whether err should be retried by the remote executor.
func IsTransient(err error) bool {
	return Is(err, KindTransientHost)
}
