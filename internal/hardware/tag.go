//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package hardware

import (
	"encoding/hex"
	"strings"
)

// Bank is a Gen2 tag memory bank.
type Bank uint8

const (
	BankReserved Bank = 0 // kill and access passwords
	BankEPC      Bank = 1
	BankTID      Bank = 2
	BankUser     Bank = 3
)

// TagSnapshot is one sighting of a tag reported by an inventory round.
type TagSnapshot struct {
	EPC       []byte
	PC        uint16
	CRC       uint16
	AntennaID uint16
	RSSI      int32
	// Result is set when the round carried an operation.
	Result *OperationResult
}

// EPCHex is the upper case hex form of the EPC, used as the tag's key.
func (t TagSnapshot) EPCHex() string {
	return strings.ToUpper(hex.EncodeToString(t.EPC))
}

// Filter selects tags by comparing Data with the bits of a memory bank
// starting at BitOffset, restricted to the bits set in Mask.
// If Match is false, the filter selects the tags that do not compare equal.
type Filter struct {
	Bank      Bank
	BitOffset uint16
	BitLength uint16
	Data      []byte
	Mask      []byte
	Match     bool
}

// Matches reports whether the memory of the filter's bank passes the filter.
func (f Filter) Matches(memory []byte) bool {
	equal := true
	for i := uint16(0); i < f.BitLength; i++ {
		byteIdx, bit := int(i/8), 7-i%8
		if byteIdx < len(f.Mask) && f.Mask[byteIdx]&(1<<bit) == 0 {
			continue
		}

		memBit := int(f.BitOffset + i)
		if memBit/8 >= len(memory) || byteIdx >= len(f.Data) {
			equal = false
			break
		}
		want := f.Data[byteIdx] & (1 << bit)
		got := memory[memBit/8] & (1 << (7 - memBit%8))
		if (want == 0) != (got == 0) {
			equal = false
			break
		}
	}
	return equal == f.Match
}

// OperationKind names the tag access operations.
type OperationKind int

const (
	OpRead OperationKind = iota
	OpWrite
	OpLock
	OpKill
)

func (k OperationKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpLock:
		return "lock"
	case OpKill:
		return "kill"
	}
	return "unknown"
}

// Operation is an access operation executed on each tag of a round.
type Operation interface {
	Kind() OperationKind
}

type ReadOperation struct {
	Bank       Bank
	WordOffset uint16
	WordLength uint16
	Password   uint32
}

type WriteOperation struct {
	Bank       Bank
	WordOffset uint16
	Data       []byte
	Password   uint32
}

// LockField is the memory area a lock operation applies to.
type LockField int

const (
	LockKillPassword LockField = iota
	LockAccessPassword
	LockEPCMemory
	LockTIDMemory
	LockUserMemory
)

// LockPrivilege is the access right a lock operation sets.
type LockPrivilege int

const (
	PrivilegeUnlock LockPrivilege = iota
	PrivilegeLock
	PrivilegePermaunlock
	PrivilegePermalock
)

type LockOperation struct {
	Field     LockField
	Privilege LockPrivilege
	Password  uint32
}

type KillOperation struct {
	Password uint32
}

func (ReadOperation) Kind() OperationKind  { return OpRead }
func (WriteOperation) Kind() OperationKind { return OpWrite }
func (LockOperation) Kind() OperationKind  { return OpLock }
func (KillOperation) Kind() OperationKind  { return OpKill }

// ResultCode is the outcome a device reports for one access operation.
// Not every code is reachable for every operation kind.
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	ResultNoResponse
	ResultIncorrectPassword
	ResultMemoryLocked
	ResultMemoryOverrun
	ResultInsufficientPower
	ResultZeroKillPassword
	ResultNonSpecificTagError
	ResultNonSpecificReaderError
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "SUCCESS"
	case ResultNoResponse:
		return "NO_RESPONSE_FROM_TAG"
	case ResultIncorrectPassword:
		return "INCORRECT_PASSWORD_ERROR"
	case ResultMemoryLocked:
		return "MEMORY_LOCKED_ERROR"
	case ResultMemoryOverrun:
		return "MEMORY_OVERRUN_ERROR"
	case ResultInsufficientPower:
		return "INSUFFICIENT_POWER"
	case ResultZeroKillPassword:
		return "ZERO_KILL_PASSWORD_ERROR"
	case ResultNonSpecificTagError:
		return "NON_SPECIFIC_TAG_ERROR"
	case ResultNonSpecificReaderError:
		return "NON_SPECIFIC_READER_ERROR"
	}
	return "UNKNOWN"
}

// OperationResult is the device's answer to one Operation.
// Data holds the words read by a successful read.
type OperationResult struct {
	Kind OperationKind
	Code ResultCode
	Data []byte
}
