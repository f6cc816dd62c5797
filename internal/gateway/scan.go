//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
	"edgexfoundry/app-rfid-reader-gateway/internal/status"
	"github.com/pkg/errors"
)

// Scan inventories tags until one of the settings' conditions ends it,
// and returns every tag seen with its sightings.
// Each result is also announced as a ScanEvent.
//
// Hardware trouble is reported as a status code, with no results.
// The error is ErrInvalidState if a scan is already running
// or the RF connection could not be closed afterwards,
// and ErrInvalidArgument if the settings never end the scan.
func (g *Gateway) Scan(settings inventory.Settings) ([]inventory.ScanResult, status.Code, error) {
	s, antennas, code, err := g.beginScan(settings)
	if s == nil {
		return nil, code, err
	}

	results, scanErr := s.engine.StartSynchronous(settings, antennas, g.cfg.TagSet)

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case scanErr != nil:
		g.lc.Warn("Scan failed.", "session", s.engine.ID(), "error", scanErr.Error())
		code = status.ForError(scanErr)
		results = nil
	case len(results) == 0:
		code = status.NoIdentifier
	default:
		code = status.Success
		g.publish(s.engine.ID(), results)
	}

	releaseErr := g.releaseRF(s.conn)
	g.session = nil
	g.setStatus(status.Idle)
	return results, code, releaseErr
}

// beginScan claims the RF device for a synchronous scan.
// It returns a nil session if the scan must not run.
func (g *Gateway) beginScan(settings inventory.Settings) (*session, []uint16, status.Code, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		return nil, nil, 0, errors.Wrap(ErrInvalidState, "a scan is already running")
	}
	if !settings.HasTermination() {
		return nil, nil, 0, errors.Wrap(ErrInvalidArgument, "the scan settings never end the scan")
	}

	h, err := g.acquireRF()
	if err != nil {
		g.lc.Warn("Cannot prepare the RF device for a scan.", "error", err.Error())
		g.setStatus(status.Error)
		return nil, nil, status.DeviceNotReady, nil
	}

	g.setStatus(status.Busy)
	s := &session{
		engine: inventory.NewEngine(g.lc, g.rf.Device(), g.cfg.Inventory, g.setLastScanData),
		conn:   h,
	}
	g.session = s
	return s, g.antennaIDs(), status.Success, nil
}

// ScanStart starts a scan that reports tags as ScanEvents until it ends on its own
// or ScanStop is called. Settings without any condition scan until stopped.
func (g *Gateway) ScanStart(settings inventory.Settings) (status.Code, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		return 0, errors.Wrap(ErrInvalidState, "a scan is already running")
	}

	h, err := g.acquireRF()
	if err != nil {
		g.lc.Warn("Cannot prepare the RF device for a scan.", "error", err.Error())
		g.setStatus(status.Error)
		return status.DeviceNotReady, nil
	}

	engine := inventory.NewEngine(g.lc, g.rf.Device(), g.cfg.Inventory, g.setLastScanData)
	s := &session{engine: engine, conn: h, async: true, finished: make(chan struct{})}
	g.session = s
	g.setStatus(status.Scanning)

	err = engine.StartAsync(settings, g.antennaIDs(), g.cfg.TagSet,
		func(batch []inventory.ScanResult) { g.publish(engine.ID(), batch) },
		func(abandoned bool) { g.scanFinished(s, abandoned) })
	if err != nil {
		g.lc.Warn("Cannot start the scan.", "session", engine.ID(), "error", err.Error())
		g.session = nil
		releaseErr := g.releaseRF(h)
		g.setStatus(status.Error)
		return status.ForError(err), releaseErr
	}

	g.lc.Info("Scan started.", "session", engine.ID())
	return status.Success, nil
}

func (g *Gateway) scanFinished(s *session, abandoned bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := s.engine.Err(); err != nil {
		g.lc.Warn("Scan ended with an error.", "session", s.engine.ID(), "error", err.Error(),
			"status", status.ForError(err).String())
	}
	if abandoned {
		g.lc.Warn("Scan abandoned; the RF device may still be busy.", "session", s.engine.ID())
	}

	// nobody is waiting for the result; releaseRF logs the failure
	_ = g.releaseRF(s.conn)
	if g.session == s {
		g.session = nil
	}
	g.setStatus(status.Idle)
	close(s.finished)
	g.lc.Info("Scan finished.", "session", s.engine.ID())
}

// ScanStop asks the running scan to stop and reports
// whether it finished within the ScanStopTimeout.
// The error is ErrInvalidState if no scan is running.
func (g *Gateway) ScanStop() (bool, error) {
	g.mu.Lock()
	s := g.session
	if s == nil {
		g.mu.Unlock()
		return false, errors.Wrap(ErrInvalidState, "no scan is running")
	}
	done := s.engine.RequestStop()
	if s.async {
		done = s.finished
	}
	g.mu.Unlock()

	t := time.NewTimer(g.cfg.ScanStopTimeout)
	defer t.Stop()
	select {
	case <-done:
		return true, nil
	case <-t.C:
		g.lc.Warn("Scan did not stop in time.", "session", s.engine.ID(),
			"timeout", g.cfg.ScanStopTimeout.String())
		return false, nil
	}
}
