//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
)

// DefaultConnectTimeout bounds how long a device may take to accept a connection.
const DefaultConnectTimeout = 200 * time.Millisecond

// Handle identifies one opening of a device connection.
// Each successful open produces a new Handle.
type Handle uint64

type connector interface {
	Connect(consumer hardware.ConnectionConsumer, timeout time.Duration) error
	Disconnect() error
}

// Device shares the connection to one hardware device.
// It is also the device's ConnectionConsumer, so when another party
// wants the connection, it's handed over as soon as the current users are done.
type Device[D connector] struct {
	*Manager[Handle]
	lc      logger.LoggingClient
	name    string
	dev     D
	timeout time.Duration
	opened  Handle
}

// RF shares the connection to the tag-reading device.
type RF = Device[hardware.RFDevice]

// IO shares the connection to the discrete IO device.
type IO = Device[hardware.IODevice]

func NewRF(lc logger.LoggingClient, dev hardware.RFDevice, timeout time.Duration) *RF {
	return newDevice(lc, "RF", dev, timeout)
}

func NewIO(lc logger.LoggingClient, dev hardware.IODevice, timeout time.Duration) *IO {
	return newDevice(lc, "IO", dev, timeout)
}

func newDevice[D connector](lc logger.LoggingClient, name string, dev D, timeout time.Duration) *Device[D] {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	d := &Device[D]{lc: lc, name: name, dev: dev, timeout: timeout}
	d.Manager = NewManager(d.connect, d.disconnect)
	return d
}

// Device returns the underlying hardware device.
// Callers must hold an acquired Handle while using it.
func (d *Device[D]) Device() D {
	return d.dev
}

// ConnectionAttempted yields the connection to another party.
func (d *Device[D]) ConnectionAttempted() {
	h, ok := d.Current()
	if !ok {
		return
	}
	if err := d.RequestClosing(h); err != nil {
		d.lc.Error("Cannot request the closing of the device connection.",
			"device", d.name, "error", err.Error())
	}
}

func (d *Device[D]) KeepAlive() {
	d.lc.Trace("Keep alive.", "device", d.name)
}

func (d *Device[D]) connect() (Handle, error) {
	d.lc.Info("Opening device connection.", "device", d.name)
	if err := d.dev.Connect(d, d.timeout); err != nil {
		return 0, errors.Wrapf(err, "failed to connect to %s device", d.name)
	}
	d.opened++
	return d.opened, nil
}

func (d *Device[D]) disconnect(Handle) error {
	if err := d.dev.Disconnect(); err != nil {
		return errors.Wrapf(err, "failed to disconnect from %s device", d.name)
	}
	d.lc.Info("Closed device connection.", "device", d.name)
	return nil
}
