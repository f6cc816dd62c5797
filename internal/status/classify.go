//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
)

type resultTable map[hardware.ResultCode]Code

var (
	readResults = resultTable{
		hardware.ResultSuccess:                Success,
		hardware.ResultIncorrectPassword:      PasswordError,
		hardware.ResultMemoryLocked:           PermissionError,
		hardware.ResultMemoryOverrun:          OutOfRangeError,
		hardware.ResultNoResponse:             TagHasLowBattery,
		hardware.ResultNonSpecificReaderError: MiscErrorTotal,
		hardware.ResultNonSpecificTagError:    MiscErrorTotal,
	}

	// writes and locks share their codes
	writeResults = resultTable{
		hardware.ResultSuccess:                Success,
		hardware.ResultIncorrectPassword:      PasswordError,
		hardware.ResultMemoryLocked:           PermissionError,
		hardware.ResultMemoryOverrun:          OutOfRangeError,
		hardware.ResultNoResponse:             TagHasLowBattery,
		hardware.ResultNonSpecificReaderError: MiscErrorTotal,
		hardware.ResultNonSpecificTagError:    MiscErrorTotal,
		hardware.ResultInsufficientPower:      TagHasLowBattery,
	}

	killResults = resultTable{
		hardware.ResultSuccess:                Success,
		hardware.ResultIncorrectPassword:      PasswordError,
		hardware.ResultNoResponse:             TagHasLowBattery,
		hardware.ResultNonSpecificReaderError: MiscErrorTotal,
		hardware.ResultNonSpecificTagError:    MiscErrorTotal,
		hardware.ResultInsufficientPower:      TagHasLowBattery,
		hardware.ResultZeroKillPassword:       PermissionError,
	}
)

func (t resultTable) lookup(rc hardware.ResultCode) Code {
	if c, ok := t[rc]; ok {
		return c
	}
	return MiscErrorTotal
}

func ForRead(rc hardware.ResultCode) Code {
	return readResults.lookup(rc)
}

func ForWrite(rc hardware.ResultCode) Code {
	return writeResults.lookup(rc)
}

// ForLock classifies a lock result.
// A wrong password is a permission problem if no password was given at all.
func ForLock(rc hardware.ResultCode, password uint32) Code {
	c := writeResults.lookup(rc)
	if c == PasswordError && password == 0 {
		return PermissionError
	}
	return c
}

func ForKill(rc hardware.ResultCode) Code {
	return killResults.lookup(rc)
}

// ForResult dispatches on the kind of the operation result.
// The password only matters for locks.
func ForResult(res hardware.OperationResult, password uint32) Code {
	switch res.Kind {
	case hardware.OpRead:
		return ForRead(res.Code)
	case hardware.OpWrite:
		return ForWrite(res.Code)
	case hardware.OpLock:
		return ForLock(res.Code, password)
	case hardware.OpKill:
		return ForKill(res.Code)
	}
	return MiscErrorTotal
}

// ForError classifies an error that ended a scan.
func ForError(err error) Code {
	kind, ok := hardware.KindOf(err)
	if !ok {
		return MiscErrorTotal
	}
	switch kind {
	case hardware.CommunicationError:
		return RFCommunicationError
	case hardware.ConnectionError:
		return DeviceNotReady
	}
	return MiscErrorTotal
}
