//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
	"edgexfoundry/app-rfid-reader-gateway/internal/status"
	"github.com/pkg/errors"
)

// LockRegion names the tag memory a lock applies to.
type LockRegion string

const (
	LockRegionAccess LockRegion = "ACCESS"
	LockRegionKill   LockRegion = "KILL"
	LockRegionTID    LockRegion = "TID"
	LockRegionEPC    LockRegion = "EPC"
	LockRegionUser   LockRegion = "USER"
)

var lockFields = map[LockRegion]hardware.LockField{
	LockRegionAccess: hardware.LockAccessPassword,
	LockRegionKill:   hardware.LockKillPassword,
	LockRegionTID:    hardware.LockTIDMemory,
	LockRegionEPC:    hardware.LockEPCMemory,
	LockRegionUser:   hardware.LockUserMemory,
}

// LockAction is what a lock does to its region.
type LockAction string

const (
	LockActionLock            LockAction = "LOCK"
	LockActionUnlock          LockAction = "UNLOCK"
	LockActionPermanentLock   LockAction = "PERMANENTLOCK"
	LockActionPermanentUnlock LockAction = "PERMANENTUNLOCK"
)

var lockPrivileges = map[LockAction]hardware.LockPrivilege{
	LockActionLock:            hardware.PrivilegeLock,
	LockActionUnlock:          hardware.PrivilegeUnlock,
	LockActionPermanentLock:   hardware.PrivilegePermalock,
	LockActionPermanentUnlock: hardware.PrivilegePermaunlock,
}

// PasswordType selects which tag password SetTagPassword changes.
type PasswordType string

const (
	PasswordKill   PasswordType = "KILL"
	PasswordAccess PasswordType = "ACCESS"
)

// passwordOffsets are byte offsets into the reserved bank.
var passwordOffsets = map[PasswordType]uint32{
	PasswordKill:   0,
	PasswordAccess: 4,
}

// ReadTag reads length bytes at the byte offset of a bank of the tag with the EPC id.
// Byte ranges that don't align with the tag's 16 bit words are widened for the
// read and trimmed back afterwards.
func (g *Gateway) ReadTag(id []byte, codeType string, bank hardware.Bank, offset, length uint32, password []byte) ([]byte, status.Code) {
	if code := checkCodeType(codeType); code != status.Success {
		return nil, code
	}
	if !validBank(bank) {
		return nil, status.RegionNotFoundError
	}

	wr, ok := toWords(offset, length)
	if !ok {
		return nil, status.OutOfRangeError
	}

	res, code := g.tagOperation("read tag", id, hardware.ReadOperation{
		Bank:       bank,
		WordOffset: wr.offset,
		WordLength: wr.length,
		Password:   normalizePassword(password),
	})
	if code != status.Success {
		return nil, code
	}
	if code := status.ForResult(*res, 0); code != status.Success {
		return nil, code
	}
	return wr.trim(res.Data), status.Success
}

// WriteTag writes data at the byte offset of a bank of the tag with the EPC id.
// Both the offset and the data length must be even.
func (g *Gateway) WriteTag(id []byte, codeType string, bank hardware.Bank, offset uint32, data, password []byte) status.Code {
	if code := checkCodeType(codeType); code != status.Success {
		return code
	}
	if !validBank(bank) {
		return status.RegionNotFoundError
	}
	if len(data)%2 == 1 || offset%2 == 1 {
		return status.NotSupportedByDevice
	}
	if offset/2 > math.MaxUint16 {
		return status.OutOfRangeError
	}

	return g.runTagOperation("write tag", id, hardware.WriteOperation{
		Bank:       bank,
		WordOffset: uint16(offset / 2),
		Data:       append([]byte(nil), data...),
		Password:   normalizePassword(password),
	}, 0)
}

// LockTag changes the lock state of a region of the tag with the EPC id.
func (g *Gateway) LockTag(id []byte, codeType string, password []byte, region LockRegion, action LockAction) status.Code {
	if code := checkCodeType(codeType); code != status.Success {
		return code
	}
	field, ok := lockFields[region]
	if !ok {
		return status.NotSupportedByDevice
	}
	privilege, ok := lockPrivileges[action]
	if !ok {
		return status.NotSupportedByDevice
	}

	pw := normalizePassword(password)
	return g.runTagOperation("lock tag", id, hardware.LockOperation{
		Field:     field,
		Privilege: privilege,
		Password:  pw,
	}, pw)
}

// KillTag permanently disables the tag with the EPC id.
// A kill password is required.
func (g *Gateway) KillTag(id []byte, codeType string, password []byte) status.Code {
	if code := checkCodeType(codeType); code != status.Success {
		return code
	}
	if len(password) == 0 {
		return status.PermissionError
	}

	return g.runTagOperation("kill tag", id, hardware.KillOperation{
		Password: normalizePassword(password),
	}, 0)
}

// SetTagPassword writes a new kill or access password to the tag with the EPC id.
// The new password is padded or cut to 4 bytes.
func (g *Gateway) SetTagPassword(id []byte, codeType string, passwordType PasswordType, accessPassword, newPassword []byte) status.Code {
	offset, ok := passwordOffsets[passwordType]
	if !ok {
		return status.NotSupportedByDevice
	}

	pw := make([]byte, 4)
	copy(pw, newPassword)
	return g.WriteTag(id, codeType, hardware.BankReserved, offset, pw, accessPassword)
}

func (g *Gateway) runTagOperation(name string, id []byte, op hardware.Operation, password uint32) status.Code {
	res, code := g.tagOperation(name, id, op)
	if code != status.Success {
		return code
	}
	return status.ForResult(*res, password)
}

// tagOperation runs op on the single tag with the EPC id
// and returns the tag's result.
//
// Unless op is a read, an inventory round first makes sure exactly that tag
// is in the field. A running scan is suspended for the duration.
func (g *Gateway) tagOperation(name string, id []byte, op hardware.Operation) (*hardware.OperationResult, status.Code) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session
	if s != nil {
		if !s.engine.Suspend() {
			g.lc.Warn("Inventory could not be suspended in time.", "operation", name, "session", s.engine.ID())
			g.resume(name, s)
			return nil, status.DeviceNotReady
		}
		defer g.resume(name, s)
	}

	g.setStatus(status.Busy)
	defer func() {
		if g.status == status.Busy {
			g.setStatus(g.idleStatus())
		}
	}()

	filter, ok := epcFilter(id)
	if !ok {
		return nil, status.NoIdentifier
	}

	if s == nil {
		h, err := g.acquireRF()
		if err != nil {
			g.lc.Warn("Cannot prepare the RF device.", "operation", name, "error", err.Error())
			g.setStatus(status.Error)
			return nil, status.DeviceNotReady
		}
		defer func() {
			// tag operations report through their code, so a leaked
			// connection shows as the device status
			if err := g.releaseRF(h); err != nil {
				g.setStatus(status.Error)
			}
		}()
	}

	rf := g.rf.Device()
	antennas := g.antennaIDs()
	filters := []hardware.Filter{filter}

	if op.Kind() != hardware.OpRead {
		tags, err := rf.Execute(antennas, filters, nil)
		if err != nil {
			return nil, g.tagError(name, err)
		}
		if code := singulated(tags, id); code != status.Success {
			return nil, code
		}
	}

	tags, err := rf.Execute(antennas, filters, []hardware.Operation{op})
	if err != nil {
		return nil, g.tagError(name, err)
	}
	if code := singulated(tags, id); code != status.Success {
		return nil, code
	}
	if tags[0].Result == nil {
		g.lc.Warn("Tag reported without an operation result.", "operation", name, "epc", tags[0].EPCHex())
		return nil, status.MiscErrorTotal
	}
	return tags[0].Result, status.Success
}

// tagError classifies a hardware error of a tag operation.
// Callers hold mu.
func (g *Gateway) tagError(name string, err error) status.Code {
	g.lc.Debug("Tag operation failed.", "operation", name, "error", err.Error())

	kind, ok := hardware.KindOf(err)
	if ok && kind == hardware.ParameterError {
		return status.MiscErrorTotal
	}
	g.setStatus(status.Error)
	if !ok {
		return status.MiscErrorTotal
	}
	return status.DeviceNotReady
}

// singulated checks that tags is exactly the tag with the EPC id.
func singulated(tags []hardware.TagSnapshot, id []byte) status.Code {
	switch {
	case len(tags) == 0:
		return status.NoIdentifier
	case len(tags) > 1:
		return status.MultipleIdentifiers
	case !bytes.Equal(tags[0].EPC, id):
		return status.NoIdentifier
	}
	return status.Success
}

// epcFilter selects tags whose whole EPC is id.
// The EPC starts after the CRC and PC words of the EPC bank.
func epcFilter(id []byte) (hardware.Filter, bool) {
	if len(id) == 0 || len(id)*8 > math.MaxUint16-32 {
		return hardware.Filter{}, false
	}
	mask := bytes.Repeat([]byte{0xff}, len(id))
	return hardware.Filter{
		Bank:      hardware.BankEPC,
		BitOffset: 32,
		BitLength: uint16(len(id) * 8),
		Data:      append([]byte(nil), id...),
		Mask:      mask,
		Match:     true,
	}, true
}

func validBank(b hardware.Bank) bool {
	switch b {
	case hardware.BankReserved, hardware.BankEPC, hardware.BankTID, hardware.BankUser:
		return true
	}
	return false
}

// checkCodeType accepts EPC identifiers, the only kind the reader reports.
func checkCodeType(codeType string) status.Code {
	if codeType == "" || strings.EqualFold(codeType, inventory.CodeTypeEPC) {
		return status.Success
	}
	return status.NotSupportedByDevice
}

// normalizePassword reads up to 4 bytes as a big endian password,
// padding shorter ones with zeros. No password is 0.
func normalizePassword(pw []byte) uint32 {
	if len(pw) == 0 {
		return 0
	}
	b := make([]byte, 4)
	copy(b, pw)
	return binary.BigEndian.Uint32(b)
}

// wordRange is a byte range widened to whole 16 bit words.
type wordRange struct {
	offset, length uint16
	// head and tail are the extra bytes read before and after the requested range
	head, tail int
}

// toWords widens the byte range to the words covering it.
// It fails if the range is beyond what a read can address.
func toWords(offset, length uint32) (wordRange, bool) {
	wOffset := offset / 2
	wLength := (length + 1) / 2

	var head, tail int
	if offset%2 == 1 {
		head = 1
		if length%2 == 0 {
			wLength++
			tail = 1
		}
	} else if length%2 == 1 {
		tail = 1
	}

	if wOffset > math.MaxUint16 || wLength > math.MaxUint16 {
		return wordRange{}, false
	}
	return wordRange{offset: uint16(wOffset), length: uint16(wLength), head: head, tail: tail}, true
}

// trim drops the bytes read only to fill out whole words.
func (wr wordRange) trim(data []byte) []byte {
	if len(data) < wr.head+wr.tail {
		return nil
	}
	return append([]byte(nil), data[wr.head:len(data)-wr.tail]...)
}

// errUnsupported wraps ErrInvalidArgument for requests naming unknown values.
func errUnsupported(what, value string) error {
	return errors.Wrapf(ErrInvalidArgument, "unsupported %s %q", what, value)
}

// ParseLockRegion accepts a lock region name in any case.
func ParseLockRegion(s string) (LockRegion, error) {
	r := LockRegion(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := lockFields[r]; !ok {
		return "", errUnsupported("lock region", s)
	}
	return r, nil
}

// ParseLockAction accepts a lock action name in any case.
func ParseLockAction(s string) (LockAction, error) {
	a := LockAction(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := lockPrivileges[a]; !ok {
		return "", errUnsupported("lock action", s)
	}
	return a, nil
}

// ParseBank accepts the bank names EPC, PSW (reserved), TID, and USR, or their numbers.
func ParseBank(s string) (hardware.Bank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PSW", "RESERVED", "0":
		return hardware.BankReserved, nil
	case "EPC", "1":
		return hardware.BankEPC, nil
	case "TID", "2":
		return hardware.BankTID, nil
	case "USR", "USER", "3":
		return hardware.BankUser, nil
	}
	return 0, errUnsupported("memory bank", s)
}
