//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package hardware describes the boundary to the reader appliance:
// the RF device that inventories and accesses tags,
// and the IO device that drives the discrete ports.
// Drivers live outside this module; the simulator package provides one for development.
package hardware

import "time"

// ConnectionConsumer is handed to a device when a connection is opened.
// The device calls ConnectionAttempted when another party wants the connection
// and KeepAlive periodically while the connection is held.
type ConnectionConsumer interface {
	ConnectionAttempted()
	KeepAlive()
}

// RFDevice is the tag-reading side of the appliance.
type RFDevice interface {
	Connect(consumer ConnectionConsumer, timeout time.Duration) error
	Disconnect() error

	SetRegion(region string) error
	Capabilities(kind CapabilityKind) ([]Capability, error)
	// Configuration returns the configurations of the given kind.
	// Antenna 0 selects the configuration of every antenna.
	Configuration(kind ConfigurationKind, antennaID uint16) ([]Configuration, error)
	SetConfiguration(cfgs []Configuration) error

	// Execute runs one inventory round on the antennas.
	// Tags are only reported if they pass every filter,
	// and each operation is applied to each reported tag.
	Execute(antennas []uint16, filters []Filter, ops []Operation) ([]TagSnapshot, error)
}

// IODevice is the discrete IO side of the appliance.
type IODevice interface {
	Connect(consumer ConnectionConsumer, timeout time.Duration) error
	Disconnect() error

	IOConfiguration(port uint16) ([]IOConfiguration, error)
	SetIOConfiguration(cfgs []IOConfiguration) error
}
