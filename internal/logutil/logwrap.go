//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package logutil has conditional logging helpers for startup wiring.
package logutil

import (
	"os"

	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
)

// LogWrap adds conditional helpers to a LoggingClient.
type LogWrap struct {
	logger.LoggingClient
}

type KeyValue struct {
	Key string
	Val interface{}
}

// KV is shorthand for a KeyValue.
func KV(key string, val interface{}) KeyValue {
	return KeyValue{Key: key, Val: val}
}

// exit is replaced in tests.
var exit = os.Exit

func flatten(params []KeyValue) []interface{} {
	parts := make([]interface{}, len(params)*2)
	for i := range params {
		parts[i*2] = params[i].Key
		parts[i*2+1] = params[i].Val
	}
	return parts
}

// ErrIf logs msg at error level if cond is true, and returns cond.
func (lgr LogWrap) ErrIf(cond bool, msg string, params ...KeyValue) bool {
	if cond {
		lgr.Error(msg, flatten(params)...)
	}
	return cond
}

// WarnIf logs msg at warn level if cond is true, and returns cond.
func (lgr LogWrap) WarnIf(cond bool, msg string, params ...KeyValue) bool {
	if cond {
		lgr.Warn(msg, flatten(params)...)
	}
	return cond
}

// ExitIf logs msg and exits the process if cond is true.
func (lgr LogWrap) ExitIf(cond bool, msg string, params ...KeyValue) {
	if lgr.ErrIf(cond, msg, params...) {
		exit(1)
	}
}

// ExitIfErr logs msg with the error and exits the process if err is not nil.
func (lgr LogWrap) ExitIfErr(err error, msg string, params ...KeyValue) {
	if err == nil {
		return
	}
	lgr.ExitIf(true, msg, append(params, KV("error", err.Error()))...)
}
