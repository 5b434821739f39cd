// Package mirror implements a synchronously-replicated block-device mirror:
// a logical volume backed by N replica block devices, fanned out for writes
// and load-balanced for reads, with online replica membership changes and
// pause-quiesced snapshots.
package mirror

import (
	"errors"
	"fmt"
)

// Code represents the high-level error category surfaced to clients and operators.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeInvalidArgument    Code = "invalid_argument"
	CodeBusy               Code = "busy"
	CodeExhausted          Code = "exhausted"
	CodeDeviceFailed       Code = "device_failed"
	CodeNoReadableReplica  Code = "no_readable_replica"
	CodePartial            Code = "partial"
	CodeShutdown           Code = "shutdown"
)

// Error is a structured mirror error with enough context to log and to
// match programmatically via errors.Is/errors.As.
type Error struct {
	Op     string // operation that failed, e.g. "volume_create", "submit_write"
	Volume string // volume name, if applicable
	Code   Code
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	if e.Volume != "" {
		return fmt.Sprintf("mirror: %s: %s (volume=%s): %s", e.Op, e.Code, e.Volume, e.Msg)
	}
	return fmt.Sprintf("mirror: %s: %s: %s", e.Op, e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewVolumeError creates a structured error scoped to a named volume.
func NewVolumeError(op, volume string, code Code, msg string) *Error {
	return &Error{Op: op, Volume: volume, Code: code, Msg: msg}
}

// WrapError wraps an arbitrary error with mirror context, preserving an
// existing Code if the inner error is already a *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if me, ok := inner.(*Error); ok {
		return &Error{Op: op, Volume: me.Volume, Code: me.Code, Msg: me.Msg, Inner: me.Inner}
	}
	return &Error{Op: op, Code: CodeDeviceFailed, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or any error it wraps) has the given Code.
func IsCode(err error, code Code) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

var (
	ErrNotFound         = NewError("", CodeNotFound, "not found")
	ErrInvalidArgument  = NewError("", CodeInvalidArgument, "invalid argument")
	ErrBusy             = NewError("", CodeBusy, "busy")
	ErrNoReadableReplica = NewError("", CodeNoReadableReplica, "no readable replica")
	ErrShutdown         = NewError("", CodeShutdown, "shutdown in progress")
)

// PartialResult is returned by multi-replica operations (e.g. snapshot) where
// per-replica outcomes may differ.
type PartialResult struct {
	Outcomes []ReplicaOutcome
}

// ReplicaOutcome records one replica's result within a multi-replica operation.
type ReplicaOutcome struct {
	Replica string
	Err     error
}

// Error satisfies the error interface so a PartialResult can be returned/wrapped as an error.
func (p *PartialResult) Error() string {
	failed := 0
	for _, o := range p.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("mirror: partial failure: %d/%d replicas failed", failed, len(p.Outcomes))
}

// Success reports whether every replica outcome succeeded.
func (p *PartialResult) Success() bool {
	for _, o := range p.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}
