//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidState is returned when the gateway or the device
	// can't do what was asked right now.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument is returned when a request can never succeed as given.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnexpectedConfigItems is returned by ParseSettings when the settings
	// include keys it doesn't know. The parsed Config is still usable.
	ErrUnexpectedConfigItems = errors.New("unexpected config items")

	// errNotSuspended is returned when a running scan didn't yield the RF device in time.
	errNotSuspended = errors.Wrap(ErrInvalidState, "the running scan could not be suspended")
)

// isGatewayError reports whether err already is one of the caller-facing errors.
func isGatewayError(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrInvalidArgument)
}
