//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package hardware

import "sort"

// TxLevel is a transmit power level supported by the appliance's reader module.
// The position of a level in TxLevels is the power index the module expects
// in AntennaConfiguration.TransmitPower.
type TxLevel struct {
	DBm int16
	MW  uint16
}

// TxLevels lists the module's levels in index order.
// The 0 dBm entry is last, matching the module's numbering.
var TxLevels = []TxLevel{
	{8, 6}, {9, 8}, {10, 10}, {11, 13}, {12, 16},
	{13, 20}, {14, 25}, {15, 32}, {16, 40}, {17, 50},
	{18, 63}, {19, 79}, {20, 100}, {21, 126}, {22, 158},
	{23, 200}, {24, 251}, {25, 316}, {26, 398}, {27, 500},
	{0, 0},
}

// TxLevelIndex returns the module power index of the level with the given dBm.
func TxLevelIndex(dBm int16) (uint16, bool) {
	for i, l := range TxLevels {
		if l.DBm == dBm {
			return uint16(i), true
		}
	}
	return 0, false
}

// MilliwattsOf converts a supported dBm level to milliwatts.
// The 8 to 27 dBm entries are contiguous and ascending,
// so they're binary searched; the 0 dBm entry is checked separately.
func MilliwattsOf(dBm int16) (uint16, bool) {
	if dBm == 0 {
		return 0, true
	}

	ascending := TxLevels[:len(TxLevels)-1]
	// sort.Search returns the smallest index i at which f(i) is true,
	// or the list len if the result is always false.
	i := sort.Search(len(ascending), func(i int) bool {
		return ascending[i].DBm >= dBm
	})
	if i < len(ascending) && ascending[i].DBm == dBm {
		return ascending[i].MW, true
	}
	return 0, false
}
