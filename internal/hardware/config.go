//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package hardware

// CapabilityKind selects what RFDevice.Capabilities returns.
type CapabilityKind int

const (
	RegulatoryCapabilityKind CapabilityKind = iota
)

// Capability is a read-only description of the device.
type Capability interface {
	CapabilityKind() CapabilityKind
}

// TransmitPowerEntry maps a device specific power index to dBm.
type TransmitPowerEntry struct {
	Index uint16
	DBm   int16
}

// RegulatoryCapabilities describe what the region allows, notably the power table.
type RegulatoryCapabilities struct {
	TransmitPowerTable []TransmitPowerEntry
}

func (RegulatoryCapabilities) CapabilityKind() CapabilityKind { return RegulatoryCapabilityKind }

// DBmAt returns the power of the table entry with the given index.
func (r RegulatoryCapabilities) DBmAt(index uint16) (int16, bool) {
	for _, e := range r.TransmitPowerTable {
		if e.Index == index {
			return e.DBm, true
		}
	}
	return 0, false
}

// IndexOf returns the index of the table entry with the given power.
// If several entries match, the last one wins.
func (r RegulatoryCapabilities) IndexOf(dBm int16) (uint16, bool) {
	var idx uint16
	found := false
	for _, e := range r.TransmitPowerTable {
		if e.DBm == dBm {
			idx, found = e.Index, true
		}
	}
	return idx, found
}

// ConfigurationKind selects what RFDevice.Configuration returns.
type ConfigurationKind int

const (
	AntennaConfigurationKind ConfigurationKind = iota
	InventorySettingsKind
)

// Configuration is a mutable device setting.
type Configuration interface {
	ConfigurationKind() ConfigurationKind
}

// ConnectType tells the device whether an antenna port is in use.
type ConnectType int

const (
	ConnectAuto ConnectType = iota
	ConnectTrue
	ConnectFalse
)

// ParseConnectType parses the names used in configuration files.
func ParseConnectType(s string) (ConnectType, bool) {
	switch s {
	case "AUTO":
		return ConnectAuto, true
	case "TRUE":
		return ConnectTrue, true
	case "FALSE":
		return ConnectFalse, true
	}
	return 0, false
}

// AntennaConfiguration is the per antenna setting.
// Nil fields are left unchanged by SetConfiguration.
type AntennaConfiguration struct {
	ID            uint16
	TransmitPower *uint16
	Connect       *ConnectType
}

func (AntennaConfiguration) ConfigurationKind() ConfigurationKind { return AntennaConfigurationKind }

// InventorySettings hold reader wide inventory options.
type InventorySettings struct {
	// MinRSSI suppresses sightings weaker than this value.
	MinRSSI int16
}

func (InventorySettings) ConfigurationKind() ConfigurationKind { return InventorySettingsKind }

// IOState is the level of a discrete port.
type IOState int

const (
	StateUnknown IOState = iota
	StateLow
	StateHigh
)

// IODirection is whether a discrete port is driven or sensed.
type IODirection int

const (
	DirectionInput IODirection = iota
	DirectionOutput
)

// IOConfiguration is the setting of one discrete port.
type IOConfiguration struct {
	ID        uint16
	Direction IODirection
	State     IOState
}

// FindRegulatoryCapabilities returns the first regulatory capabilities in caps.
func FindRegulatoryCapabilities(caps []Capability) (RegulatoryCapabilities, bool) {
	for _, c := range caps {
		switch rc := c.(type) {
		case RegulatoryCapabilities:
			return rc, true
		case *RegulatoryCapabilities:
			if rc != nil {
				return *rc, true
			}
		}
	}
	return RegulatoryCapabilities{}, false
}

// AntennaConfigurations returns the antenna configurations in cfgs, in order.
func AntennaConfigurations(cfgs []Configuration) []AntennaConfiguration {
	var acs []AntennaConfiguration
	for _, c := range cfgs {
		switch ac := c.(type) {
		case AntennaConfiguration:
			acs = append(acs, ac)
		case *AntennaConfiguration:
			if ac != nil {
				acs = append(acs, *ac)
			}
		}
	}
	return acs
}

// FindInventorySettings returns the first inventory settings in cfgs.
func FindInventorySettings(cfgs []Configuration) (InventorySettings, bool) {
	for _, c := range cfgs {
		switch is := c.(type) {
		case InventorySettings:
			return is, true
		case *InventorySettings:
			if is != nil {
				return *is, true
			}
		}
	}
	return InventorySettings{}, false
}
