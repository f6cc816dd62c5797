//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package hardware

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind separates the failure classes a device driver can report.
type ErrorKind int

const (
	// ParameterError means the device rejected an argument.
	ParameterError ErrorKind = iota
	// CommunicationError means the air interface to a tag failed.
	CommunicationError
	// ConnectionError means the connection to the device is missing or broken.
	ConnectionError
	// ImplementationError means the driver hit an internal fault.
	ImplementationError
)

func (k ErrorKind) String() string {
	switch k {
	case ParameterError:
		return "parameter"
	case CommunicationError:
		return "communication"
	case ConnectionError:
		return "connection"
	case ImplementationError:
		return "implementation"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type every device method returns.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error during %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

func NewParameterError(op, format string, args ...interface{}) error {
	return newError(ParameterError, op, format, args...)
}

func NewCommunicationError(op, format string, args ...interface{}) error {
	return newError(CommunicationError, op, format, args...)
}

func NewConnectionError(op, format string, args ...interface{}) error {
	return newError(ConnectionError, op, format, args...)
}

func NewImplementationError(op, format string, args ...interface{}) error {
	return newError(ImplementationError, op, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var hwErr *Error
	if errors.As(err, &hwErr) {
		return hwErr.Kind, true
	}
	return 0, false
}
