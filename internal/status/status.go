//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package status holds the application level result codes
// and the tables that classify hardware results into them.
package status

import (
	"encoding/json"
	"fmt"
)

// Code is the outcome of an operation as reported to the gateway's clients.
type Code int

const (
	Success Code = iota
	MiscErrorTotal
	MiscErrorPartial
	PermissionError
	PasswordError
	RegionNotFoundError
	OutOfRangeError
	NoIdentifier
	MultipleIdentifiers
	ReadError
	WriteError
	NotSupportedByDevice
	DeviceNotReady
	InvalidConfiguration
	RFCommunicationError
	DeviceFault
	TagHasLowBattery
)

var codeNames = [...]string{
	Success:              "SUCCESS",
	MiscErrorTotal:       "MISC_ERROR_TOTAL",
	MiscErrorPartial:     "MISC_ERROR_PARTIAL",
	PermissionError:      "PERMISSION_ERROR",
	PasswordError:        "PASSWORD_ERROR",
	RegionNotFoundError:  "REGION_NOT_FOUND_ERROR",
	OutOfRangeError:      "OUT_OF_RANGE_ERROR",
	NoIdentifier:         "NO_IDENTIFIER",
	MultipleIdentifiers:  "MULTIPLE_IDENTIFIERS",
	ReadError:            "READ_ERROR",
	WriteError:           "WRITE_ERROR",
	NotSupportedByDevice: "NOT_SUPPORTED_BY_DEVICE",
	DeviceNotReady:       "DEVICE_NOT_READY",
	InvalidConfiguration: "INVALID_CONFIGURATION",
	RFCommunicationError: "RF_COMMUNICATION_ERROR",
	DeviceFault:          "DEVICE_FAULT",
	TagHasLowBattery:     "TAG_HAS_LOW_BATTERY",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// DeviceStatus is the gateway wide activity gauge.
type DeviceStatus int

const (
	Idle DeviceStatus = iota
	Busy
	Scanning
	Error
)

func (s DeviceStatus) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Busy:
		return "BUSY"
	case Scanning:
		return "SCANNING"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("DeviceStatus(%d)", int(s))
}

func (s DeviceStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
