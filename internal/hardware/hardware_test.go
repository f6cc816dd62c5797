//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package hardware

import (
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestFilterMatches(t *testing.T) {
	// CRC + PC followed by the EPC, as the EPC bank is laid out on a tag
	epcBank := mustHex(t, "ABCD3000"+"300833B2DDD9004433221100")
	epc := mustHex(t, "300833B2DDD9004433221100")

	allOnes := func(n int) []byte {
		m := make([]byte, n)
		for i := range m {
			m[i] = 0xff
		}
		return m
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"full EPC", Filter{BankEPC, 32, uint16(len(epc) * 8), epc, allOnes(len(epc)), true}, true},
		{"full EPC inverted", Filter{BankEPC, 32, uint16(len(epc) * 8), epc, allOnes(len(epc)), false}, false},
		{"prefix", Filter{BankEPC, 32, 16, epc[:2], allOnes(2), true}, true},
		{"wrong byte", Filter{BankEPC, 32, 16, []byte{0x30, 0x09}, allOnes(2), true}, false},
		{"wrong byte masked", Filter{BankEPC, 32, 16, []byte{0x30, 0x09}, []byte{0xff, 0xf0}, true}, true},
		{"past end", Filter{BankEPC, 128, 16, epc[:2], allOnes(2), true}, false},
		{"unaligned", Filter{BankEPC, 36, 8, []byte{0x00}, allOnes(1), true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(epcBank))
		})
	}
}

func TestTagSnapshotEPCHex(t *testing.T) {
	s := TagSnapshot{EPC: []byte{0x30, 0x08, 0xab}}
	assert.Equal(t, "3008AB", s.EPCHex())
}

func TestMilliwattsOf(t *testing.T) {
	tests := []struct {
		dBm   int16
		mW    uint16
		exact bool
	}{
		{8, 6, true}, {9, 8, true}, {20, 100, true},
		{26, 398, true}, {27, 500, true}, {0, 0, true},
		{7, 0, false}, {28, 0, false}, {-1, 0, false},
	}
	for _, tt := range tests {
		mW, ok := MilliwattsOf(tt.dBm)
		assert.Equal(t, tt.exact, ok, "dBm %d", tt.dBm)
		assert.Equal(t, tt.mW, mW, "dBm %d", tt.dBm)
	}
}

func TestTxLevelIndex(t *testing.T) {
	idx, ok := TxLevelIndex(27)
	require.True(t, ok)
	assert.Equal(t, uint16(19), idx)

	idx, ok = TxLevelIndex(0)
	require.True(t, ok)
	assert.Equal(t, uint16(len(TxLevels)-1), idx)

	_, ok = TxLevelIndex(30)
	assert.False(t, ok)
}

func TestRegulatoryCapabilities(t *testing.T) {
	caps := RegulatoryCapabilities{TransmitPowerTable: []TransmitPowerEntry{
		{Index: 1, DBm: 10}, {Index: 2, DBm: 20}, {Index: 3, DBm: 20},
	}}

	dBm, ok := caps.DBmAt(2)
	assert.True(t, ok)
	assert.Equal(t, int16(20), dBm)
	_, ok = caps.DBmAt(9)
	assert.False(t, ok)

	idx, ok := caps.IndexOf(20)
	assert.True(t, ok)
	assert.Equal(t, uint16(3), idx, "last matching entry wins")
	_, ok = caps.IndexOf(11)
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	err := errors.Wrap(NewCommunicationError("execute", "tag %s left the field", "3008"), "inventory round")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, CommunicationError, kind)
	assert.Contains(t, err.Error(), "communication error during execute")

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestFindConfigurations(t *testing.T) {
	p1, p2 := uint16(3), uint16(7)
	var nilAntenna *AntennaConfiguration
	cfgs := []Configuration{
		InventorySettings{MinRSSI: -65},
		AntennaConfiguration{ID: 1, TransmitPower: &p1},
		nilAntenna,
		&AntennaConfiguration{ID: 2, TransmitPower: &p2},
	}

	acs := AntennaConfigurations(cfgs)
	require.Len(t, acs, 2)
	assert.Equal(t, uint16(1), acs[0].ID)
	assert.Equal(t, uint16(7), *acs[1].TransmitPower)

	is, ok := FindInventorySettings(cfgs)
	require.True(t, ok)
	assert.Equal(t, int16(-65), is.MinRSSI)

	is, ok = FindInventorySettings([]Configuration{&InventorySettings{MinRSSI: -80}})
	require.True(t, ok)
	assert.Equal(t, int16(-80), is.MinRSSI)

	_, ok = FindInventorySettings(cfgs[1:])
	assert.False(t, ok)
	assert.Empty(t, AntennaConfigurations(nil))
}

func TestFindRegulatoryCapabilities(t *testing.T) {
	table := []TransmitPowerEntry{{Index: 1, DBm: 10}}

	rc, ok := FindRegulatoryCapabilities([]Capability{RegulatoryCapabilities{TransmitPowerTable: table}})
	require.True(t, ok)
	assert.Equal(t, table, rc.TransmitPowerTable)

	rc, ok = FindRegulatoryCapabilities([]Capability{&RegulatoryCapabilities{TransmitPowerTable: table}})
	require.True(t, ok)
	assert.Equal(t, table, rc.TransmitPowerTable)

	var none *RegulatoryCapabilities
	_, ok = FindRegulatoryCapabilities([]Capability{none})
	assert.False(t, ok)
	_, ok = FindRegulatoryCapabilities(nil)
	assert.False(t, ok)
}

func TestParseConnectType(t *testing.T) {
	for s, want := range map[string]ConnectType{"AUTO": ConnectAuto, "TRUE": ConnectTrue, "FALSE": ConnectFalse} {
		ct, ok := ParseConnectType(s)
		assert.True(t, ok, s)
		assert.Equal(t, want, ct, s)
	}
	_, ok := ParseConnectType("auto")
	assert.False(t, ok)
}
