//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"encoding/binary"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
)

// tag is a Gen2 tag with its four memory banks.
// The EPC bank holds the CRC and PC words followed by the EPC;
// the reserved bank holds the kill password followed by the access password.
type tag struct {
	banks    [4][]byte
	antennas map[uint16]bool
	rssi     int32
	locks    map[hardware.LockField]hardware.LockPrivilege
	killed   bool
}

var lockRegions = map[string]hardware.LockField{
	"KILL":   hardware.LockKillPassword,
	"ACCESS": hardware.LockAccessPassword,
	"EPC":    hardware.LockEPCMemory,
	"TID":    hardware.LockTIDMemory,
	"USER":   hardware.LockUserMemory,
}

func newTag(ts TagSpec) *tag {
	epc := decodeHex(ts.EPC)
	epcBank := make([]byte, 4+len(epc))
	binary.BigEndian.PutUint16(epcBank[2:], uint16(len(epc)/2)<<11)
	copy(epcBank[4:], epc)

	reserved := make([]byte, 8)
	copy(reserved[0:4], password(ts.KillPassword))
	copy(reserved[4:8], password(ts.AccessPassword))

	tid := decodeHex(ts.TID)
	if len(tid) == 0 {
		tid = []byte{0xE2, 0x00, 0x00, 0x00}
	}

	t := &tag{
		rssi:  ts.RSSI,
		locks: make(map[hardware.LockField]hardware.LockPrivilege),
	}
	t.banks[hardware.BankReserved] = reserved
	t.banks[hardware.BankEPC] = epcBank
	t.banks[hardware.BankTID] = tid
	t.banks[hardware.BankUser] = decodeHex(ts.User)
	t.updateCRC()

	if len(ts.Antennas) > 0 {
		t.antennas = make(map[uint16]bool, len(ts.Antennas))
		for _, id := range ts.Antennas {
			t.antennas[id] = true
		}
	}
	for _, region := range ts.Locked {
		t.locks[lockRegions[region]] = hardware.PrivilegeLock
	}
	return t
}

// password right-aligns a hex password in 4 bytes.
func password(s string) []byte {
	pw := make([]byte, 4)
	b := decodeHex(s)
	if len(b) > 4 {
		b = b[len(b)-4:]
	}
	copy(pw[4-len(b):], b)
	return pw
}

func (t *tag) pc() uint16 {
	return binary.BigEndian.Uint16(t.banks[hardware.BankEPC][2:4])
}

func (t *tag) crc() uint16 {
	return binary.BigEndian.Uint16(t.banks[hardware.BankEPC][0:2])
}

// epc returns as many EPC words as the PC announces.
func (t *tag) epc() []byte {
	mem := t.banks[hardware.BankEPC]
	end := 4 + int(t.pc()>>11)*2
	if end > len(mem) {
		end = len(mem)
	}
	return append([]byte(nil), mem[4:end]...)
}

func (t *tag) updateCRC() {
	mem := t.banks[hardware.BankEPC]
	binary.BigEndian.PutUint16(mem[0:2], crc16(mem[2:]))
}

// crc16 is the Gen2 CRC-16 (CCITT polynomial, preset 0xFFFF, inverted).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return ^crc
}

func (t *tag) killPassword() uint32 {
	return binary.BigEndian.Uint32(t.banks[hardware.BankReserved][0:4])
}

func (t *tag) accessPassword() uint32 {
	return binary.BigEndian.Uint32(t.banks[hardware.BankReserved][4:8])
}

func (t *tag) visibleOn(antenna uint16) bool {
	return t.antennas == nil || t.antennas[antenna]
}

// secure checks an access password. A tag without an access password
// is secured by any exchange that doesn't name a wrong one.
func (t *tag) secure(pw uint32) (secured bool, rc hardware.ResultCode) {
	access := t.accessPassword()
	if pw != 0 && pw != access {
		return false, hardware.ResultIncorrectPassword
	}
	return access == 0 || pw == access, hardware.ResultSuccess
}

// fields returns the lock fields covering the words of a bank.
func fields(bank hardware.Bank, wordOffset, wordLength uint16) []hardware.LockField {
	switch bank {
	case hardware.BankReserved:
		var fs []hardware.LockField
		end := int(wordOffset) + int(wordLength)
		if wordOffset < 2 && end > 0 {
			fs = append(fs, hardware.LockKillPassword)
		}
		if wordOffset < 4 && end > 2 {
			fs = append(fs, hardware.LockAccessPassword)
		}
		return fs
	case hardware.BankEPC:
		return []hardware.LockField{hardware.LockEPCMemory}
	case hardware.BankTID:
		return []hardware.LockField{hardware.LockTIDMemory}
	}
	return []hardware.LockField{hardware.LockUserMemory}
}

// access checks whether the words of a bank may be read or written.
func (t *tag) access(bank hardware.Bank, wordOffset, wordLength uint16, pw uint32, write bool) hardware.ResultCode {
	secured, rc := t.secure(pw)
	if rc != hardware.ResultSuccess {
		return rc
	}

	// only the passwords are protected against reading
	if !write && bank != hardware.BankReserved {
		return hardware.ResultSuccess
	}

	for _, f := range fields(bank, wordOffset, wordLength) {
		switch t.locks[f] {
		case hardware.PrivilegePermalock:
			return hardware.ResultMemoryLocked
		case hardware.PrivilegeLock:
			if !secured {
				return hardware.ResultMemoryLocked
			}
		}
	}
	return hardware.ResultSuccess
}

func (t *tag) apply(op hardware.Operation) hardware.OperationResult {
	res := hardware.OperationResult{Kind: op.Kind()}

	switch op := op.(type) {
	case hardware.ReadOperation:
		res.Code, res.Data = t.read(op)
	case *hardware.ReadOperation:
		res.Code, res.Data = t.read(*op)
	case hardware.WriteOperation:
		res.Code = t.write(op)
	case *hardware.WriteOperation:
		res.Code = t.write(*op)
	case hardware.LockOperation:
		res.Code = t.lock(op)
	case *hardware.LockOperation:
		res.Code = t.lock(*op)
	case hardware.KillOperation:
		res.Code = t.kill(op)
	case *hardware.KillOperation:
		res.Code = t.kill(*op)
	default:
		res.Code = hardware.ResultNonSpecificReaderError
	}
	return res
}

func (t *tag) read(op hardware.ReadOperation) (hardware.ResultCode, []byte) {
	if int(op.Bank) >= len(t.banks) {
		return hardware.ResultNonSpecificTagError, nil
	}
	mem := t.banks[op.Bank]
	start, end := int(op.WordOffset)*2, (int(op.WordOffset)+int(op.WordLength))*2
	if end > len(mem) {
		return hardware.ResultMemoryOverrun, nil
	}
	if rc := t.access(op.Bank, op.WordOffset, op.WordLength, op.Password, false); rc != hardware.ResultSuccess {
		return rc, nil
	}
	return hardware.ResultSuccess, append([]byte(nil), mem[start:end]...)
}

func (t *tag) write(op hardware.WriteOperation) hardware.ResultCode {
	if int(op.Bank) >= len(t.banks) || len(op.Data)%2 == 1 {
		return hardware.ResultNonSpecificTagError
	}
	mem := t.banks[op.Bank]
	start := int(op.WordOffset) * 2
	if start+len(op.Data) > len(mem) {
		return hardware.ResultMemoryOverrun
	}
	words := uint16(len(op.Data) / 2)
	if rc := t.access(op.Bank, op.WordOffset, words, op.Password, true); rc != hardware.ResultSuccess {
		return rc
	}

	copy(mem[start:], op.Data)
	if op.Bank == hardware.BankEPC {
		t.updateCRC()
	}
	return hardware.ResultSuccess
}

func (t *tag) lock(op hardware.LockOperation) hardware.ResultCode {
	secured, rc := t.secure(op.Password)
	if rc != hardware.ResultSuccess {
		return rc
	}
	if !secured {
		return hardware.ResultIncorrectPassword
	}

	current := t.locks[op.Field]
	permanent := current == hardware.PrivilegePermalock || current == hardware.PrivilegePermaunlock
	if permanent && current != op.Privilege {
		return hardware.ResultMemoryLocked
	}
	t.locks[op.Field] = op.Privilege
	return hardware.ResultSuccess
}

func (t *tag) kill(op hardware.KillOperation) hardware.ResultCode {
	kill := t.killPassword()
	switch {
	case kill == 0:
		return hardware.ResultZeroKillPassword
	case op.Password != kill:
		return hardware.ResultIncorrectPassword
	}
	t.killed = true
	return hardware.ResultSuccess
}
