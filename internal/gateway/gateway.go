//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package gateway turns the appliance's RF and IO devices
// into a set of operations that are safe to call concurrently:
// scans, tag access, antenna power, RSSI filtering, and discrete IO.
package gateway

import (
	"bytes"
	"sync"

	"edgexfoundry/app-rfid-reader-gateway/internal/connection"
	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
	"edgexfoundry/app-rfid-reader-gateway/internal/status"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AntennaName labels an antenna. ID 0 stands for every antenna.
type AntennaName struct {
	ID   uint16 `json:"antenna_id"`
	Name string `json:"antenna_name"`
}

// Gateway serializes access to the reader appliance.
//
// All hardware calls made on behalf of callers hold mu.
// A scan runs on its own goroutine; while it does, tag operations
// suspend it to get the RF device to themselves.
type Gateway struct {
	lc       logger.LoggingClient
	cfg      Config
	listener Listener
	rf       *connection.RF
	io       *connection.IO

	mu          sync.Mutex
	status      status.DeviceStatus
	session     *session
	initialized bool
	antennas    []AntennaName

	dataMu       sync.Mutex
	lastScanData *inventory.ScanData
}

// session is the scan in progress.
type session struct {
	engine *inventory.Engine
	conn   connection.Handle
	async  bool
	// finished is closed once an asynchronous scan has been cleaned up.
	finished chan struct{}
}

// New returns a Gateway for the devices.
// If listener is nil, notifications are discarded.
func New(lc logger.LoggingClient, rf hardware.RFDevice, io hardware.IODevice, cfg Config, listener Listener) *Gateway {
	if listener == nil {
		listener = nopListener{}
	}
	return &Gateway{
		lc:       lc,
		cfg:      cfg,
		listener: listener,
		rf:       connection.NewRF(lc, rf, cfg.ConnectTimeout),
		io:       connection.NewIO(lc, io, cfg.ConnectTimeout),
		status:   status.Idle,
		antennas: []AntennaName{{ID: 0, Name: "All"}},
	}
}

func (g *Gateway) DeviceName() string {
	return g.cfg.DeviceName
}

func (g *Gateway) Properties() Properties {
	return g.cfg.Properties
}

func (g *Gateway) DeviceStatus() status.DeviceStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// LastScanData returns the most recently reported tag, if any.
func (g *Gateway) LastScanData() *inventory.ScanData {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()
	if g.lastScanData == nil {
		return nil
	}
	sd := *g.lastScanData
	return &sd
}

// Scanning reports whether a scan is in progress.
func (g *Gateway) Scanning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}

func (g *Gateway) AntennaNames() []AntennaName {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]AntennaName(nil), g.antennas...)
}

// SetAntennaNames replaces the antenna list that selects
// which antennas scans and tag operations use.
func (g *Gateway) SetAntennaNames(names []AntennaName) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.antennas = append([]AntennaName(nil), names...)
	g.listener.ParamChanged(ParamAntennaNames, append([]AntennaName(nil), names...))
}

// antennaIDs returns the selected antennas.
// If any of them is antenna 0, that alone is selected.
// Callers hold mu.
func (g *Gateway) antennaIDs() []uint16 {
	ids := make([]uint16, 0, len(g.antennas))
	for _, a := range g.antennas {
		if a.ID == 0 {
			return []uint16{0}
		}
		ids = append(ids, a.ID)
	}
	return ids
}

// setStatus changes the device status, announcing actual changes.
// Callers hold mu.
func (g *Gateway) setStatus(s status.DeviceStatus) {
	if g.status == s {
		return
	}
	g.status = s
	g.listener.ParamChanged(ParamDeviceStatus, s)
}

// idleStatus is what the status returns to once an operation succeeded.
// Callers hold mu.
func (g *Gateway) idleStatus() status.DeviceStatus {
	switch {
	case g.session == nil:
		return status.Idle
	case g.session.async:
		return status.Scanning
	}
	return status.Busy
}

func (g *Gateway) setLastScanData(sd *inventory.ScanData) {
	var cp *inventory.ScanData
	if sd != nil {
		c := *sd
		c.EPC.UID = append([]byte(nil), sd.EPC.UID...)
		cp = &c
	}

	g.dataMu.Lock()
	changed := !sameScanData(g.lastScanData, cp)
	g.lastScanData = cp
	g.dataMu.Unlock()

	if changed {
		g.listener.ParamChanged(ParamLastScanData, cp)
	}
}

func sameScanData(a, b *inventory.ScanData) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.EPC.PC == b.EPC.PC && bytes.Equal(a.EPC.UID, b.EPC.UID)
}

func (g *Gateway) publish(sessionID string, results []inventory.ScanResult) {
	for _, r := range results {
		g.listener.RFIDScanEvent(ScanEvent{
			EventID:    uuid.New().String(),
			SessionID:  sessionID,
			DeviceName: g.cfg.DeviceName,
			Timestamp:  inventory.UnixMilliNow(),
			Result:     r,
		})
	}
}

// bootstrap applies the dev mode settings the first time the RF device is used.
// Callers hold mu and an RF connection.
func (g *Gateway) bootstrap() error {
	if g.initialized || !g.cfg.DevMode.Enabled {
		return nil
	}

	dev := g.cfg.DevMode
	rf := g.rf.Device()
	if err := rf.SetRegion(dev.Region); err != nil {
		return errors.WithMessage(err, "failed to set the region")
	}

	cfgs, err := rf.Configuration(hardware.AntennaConfigurationKind, 0)
	if err != nil {
		return errors.WithMessage(err, "failed to get the antenna configuration")
	}

	index, ok := hardware.TxLevelIndex(dev.TxLevel)
	if !ok {
		return errors.Errorf("unsupported TxLevel %d dBm", dev.TxLevel)
	}
	connect := dev.ConnectType

	var updated []hardware.Configuration
	for _, ac := range hardware.AntennaConfigurations(cfgs) {
		ac.TransmitPower = &index
		ac.Connect = &connect
		updated = append(updated, ac)
	}
	if err := rf.SetConfiguration(updated); err != nil {
		return errors.WithMessage(err, "failed to set the antenna configuration")
	}

	g.lc.Info("Applied dev mode settings.", "region", dev.Region,
		"txLevel", dev.TxLevel, "antennas", len(updated))
	g.initialized = true
	return nil
}

// acquireRF opens the RF connection if needed and applies the dev mode settings.
// Callers hold mu.
func (g *Gateway) acquireRF() (connection.Handle, error) {
	h, err := g.rf.Acquire()
	if err != nil {
		return 0, err
	}
	if err := g.bootstrap(); err != nil {
		g.releaseRF(h)
		return 0, err
	}
	return h, nil
}

// releaseRF returns the RF connection, logging a failure to close it.
func (g *Gateway) releaseRF(h connection.Handle) error {
	if err := g.rf.Release(h); err != nil {
		g.lc.Error("Cannot close connection to RF device.", "error", err.Error())
		return errors.Wrap(ErrInvalidState, "failed to close the RF connection")
	}
	return nil
}

// rfOperation runs op with exclusive use of the RF device.
// A running scan is suspended for the duration.
func (g *Gateway) rfOperation(name string, op func(rf hardware.RFDevice) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.setStatus(status.Busy)
	if err := g.runRF(name, op); err != nil {
		if errors.Is(err, errNotSuspended) {
			// the device is fine, it's just still scanning
			g.setStatus(g.idleStatus())
		} else {
			g.setStatus(status.Error)
		}
		return g.asGatewayError(name, err)
	}
	g.setStatus(g.idleStatus())
	return nil
}

func (g *Gateway) runRF(name string, op func(rf hardware.RFDevice) error) (err error) {
	if s := g.session; s != nil {
		if !s.engine.Suspend() {
			g.lc.Warn("Inventory could not be suspended in time.", "operation", name, "session", s.engine.ID())
			g.resume(name, s)
			return errors.WithMessage(errNotSuspended, name)
		}
		defer g.resume(name, s)
		return op(g.rf.Device())
	}

	h, err := g.acquireRF()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := g.releaseRF(h); rerr != nil {
			err = rerr
		}
	}()
	return op(g.rf.Device())
}

func (g *Gateway) resume(name string, s *session) {
	if !s.engine.Resume() {
		g.lc.Warn("Inventory could not be resumed in time.", "operation", name, "session", s.engine.ID())
	}
}

// ioOperation runs op with exclusive use of the IO device.
func (g *Gateway) ioOperation(name string, op func(io hardware.IODevice) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.setStatus(status.Busy)
	if err := g.runIO(op); err != nil {
		g.setStatus(status.Error)
		return g.asGatewayError(name, err)
	}
	g.setStatus(g.idleStatus())
	return nil
}

func (g *Gateway) runIO(op func(io hardware.IODevice) error) (err error) {
	h, err := g.io.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := g.io.Release(h); rerr != nil {
			g.lc.Error("Cannot close connection to IO device.", "error", rerr.Error())
			err = errors.Wrap(ErrInvalidState, "failed to close the IO connection")
		}
	}()
	return op(g.io.Device())
}

// asGatewayError logs an unexpected error and reports it as ErrInvalidState.
func (g *Gateway) asGatewayError(name string, err error) error {
	if isGatewayError(err) {
		return err
	}
	g.lc.Error("Cannot execute operation.", "operation", name, "error", err.Error())
	return errors.Wrapf(ErrInvalidState, "%s: %v", name, err)
}

// Shutdown stops a running asynchronous scan and waits for it to finish.
func (g *Gateway) Shutdown() {
	if !g.Scanning() {
		return
	}
	if stopped, err := g.ScanStop(); err != nil || !stopped {
		g.lc.Warn("Scan did not stop cleanly during shutdown.")
	}
}
