//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"math"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/pkg/errors"
)

// RFPower returns the transmit power of the selected antennas in dBm.
// It's ErrInvalidState if the antennas disagree or none has a known power.
func (g *Gateway) RFPower() (int8, error) {
	var power int8
	err := g.rfOperation("get "+string(ParamRfPower), func(rf hardware.RFDevice) error {
		regulatory, err := regulatoryCapabilities(rf)
		if err != nil {
			return err
		}

		found := false
		for _, id := range g.antennaIDs() {
			cfgs, err := rf.Configuration(hardware.AntennaConfigurationKind, id)
			if err != nil {
				return err
			}
			for _, ac := range hardware.AntennaConfigurations(cfgs) {
				if ac.TransmitPower == nil {
					continue
				}
				dBm, ok := regulatory.DBmAt(*ac.TransmitPower)
				if !ok {
					continue
				}
				if found && int8(dBm) != power {
					return errors.Wrap(ErrInvalidState, "the antennas have different transmit powers")
				}
				power, found = int8(dBm), true
			}
		}

		if !found {
			return errors.Wrap(ErrInvalidState, "no antenna has a known transmit power")
		}
		return nil
	})
	return power, err
}

// SetRFPower sets the transmit power of the selected antennas.
// The power must be in the device's transmit power table.
func (g *Gateway) SetRFPower(dBm int8) error {
	return g.rfOperation("set "+string(ParamRfPower), func(rf hardware.RFDevice) error {
		regulatory, err := regulatoryCapabilities(rf)
		if err != nil {
			return err
		}

		index, ok := regulatory.IndexOf(int16(dBm))
		if !ok {
			return errors.Wrapf(ErrInvalidState, "no transmit power index for %d dBm", dBm)
		}

		antennas := g.antennaIDs()
		for _, id := range antennas {
			idx := index
			cfg := hardware.AntennaConfiguration{ID: id, TransmitPower: &idx}
			if err := rf.SetConfiguration([]hardware.Configuration{cfg}); err != nil {
				return err
			}
		}

		if len(antennas) > 0 {
			g.listener.ParamChanged(ParamRfPower, dBm)
		}
		return nil
	})
}

// MinRSSI returns the RSSI below which the reader ignores tags.
func (g *Gateway) MinRSSI() (int, error) {
	var minRSSI int
	err := g.rfOperation("get "+string(ParamMinRssi), func(rf hardware.RFDevice) error {
		is, err := inventorySettings(rf)
		if err != nil {
			return err
		}
		minRSSI = int(is.MinRSSI)
		return nil
	})
	return minRSSI, err
}

// SetMinRSSI sets the RSSI below which the reader ignores tags.
func (g *Gateway) SetMinRSSI(minRSSI int) error {
	if minRSSI < math.MinInt16 || minRSSI > math.MaxInt16 {
		return errors.Wrapf(ErrInvalidArgument, "min RSSI %d is out of range", minRSSI)
	}

	return g.rfOperation("set "+string(ParamMinRssi), func(rf hardware.RFDevice) error {
		is, err := inventorySettings(rf)
		if err != nil {
			return err
		}
		is.MinRSSI = int16(minRSSI)
		if err := rf.SetConfiguration([]hardware.Configuration{is}); err != nil {
			return err
		}
		g.listener.ParamChanged(ParamMinRssi, minRSSI)
		return nil
	})
}

func regulatoryCapabilities(rf hardware.RFDevice) (hardware.RegulatoryCapabilities, error) {
	caps, err := rf.Capabilities(hardware.RegulatoryCapabilityKind)
	if err != nil {
		return hardware.RegulatoryCapabilities{}, err
	}
	regulatory, ok := hardware.FindRegulatoryCapabilities(caps)
	if !ok {
		return regulatory, errors.Wrap(ErrInvalidState, "missing regulatory capabilities")
	}
	return regulatory, nil
}

func inventorySettings(rf hardware.RFDevice) (hardware.InventorySettings, error) {
	cfgs, err := rf.Configuration(hardware.InventorySettingsKind, 0)
	if err != nil {
		return hardware.InventorySettings{}, err
	}
	is, ok := hardware.FindInventorySettings(cfgs)
	if !ok {
		return is, errors.Wrap(ErrInvalidState, "missing inventory settings")
	}
	return is, nil
}
