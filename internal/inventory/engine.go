//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"sync"
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Config tunes the inventory loop. It's fixed for the life of the process.
type Config struct {
	// MaxSightings caps the sightings of a single tag:
	// across a whole synchronous scan, or within one batch of an asynchronous scan.
	MaxSightings int `validate:"gte=0"`
	// FlushInterval is how often a running scan reports a batch.
	FlushInterval time.Duration `validate:"gt=0"`
	// HandshakeTimeout bounds how long Suspend and Resume wait for the loop.
	HandshakeTimeout time.Duration `validate:"gt=0"`
	// StopGrace bounds how long a synchronous scan waits for the loop
	// after its duration elapsed.
	StopGrace time.Duration `validate:"gt=0"`
	// AbandonTimeout bounds how long an asynchronous scan waits for the loop
	// once it was asked to stop; 0 waits forever.
	AbandonTimeout time.Duration `validate:"gte=0"`
	// SuspendPoll is how often a suspended loop checks for a resume or stop.
	SuspendPoll time.Duration `validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		MaxSightings:     1000,
		FlushInterval:    300 * time.Millisecond,
		HandshakeTimeout: 500 * time.Millisecond,
		StopGrace:        500 * time.Millisecond,
		AbandonTimeout:   5 * time.Second,
		SuspendPoll:      100 * time.Millisecond,
	}
}

var ErrAlreadyStarted = errors.New("inventory session already started")

// Engine runs one scan: a loop of inventory rounds on its own goroutine.
// Callers can suspend the loop to get exclusive use of the hardware,
// resume it afterwards, and ask it to stop.
// An Engine is used for exactly one scan.
type Engine struct {
	lc         logger.LoggingClient
	rf         hardware.RFDevice
	cfg        Config
	id         string
	onScanData func(*ScanData)

	// set before the loop starts and owned by it afterwards
	settings         Settings
	antennas         []uint16
	tagSet           TagSet
	agg              *Aggregator
	lastFlush        time.Time
	roundsSinceFlush int

	mu         sync.Mutex
	started    bool
	running    bool
	suspended  bool
	suspendAck chan struct{}
	resumeAck  chan struct{}
	abandoned  bool
	scanData   *ScanData
	err        error

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewEngine returns an Engine that scans with rf.
// onScanData, if not nil, is called with the scan data of the latest reported tag.
func NewEngine(lc logger.LoggingClient, rf hardware.RFDevice, cfg Config, onScanData func(*ScanData)) *Engine {
	return &Engine{
		lc:         lc,
		rf:         rf,
		cfg:        cfg,
		id:         uuid.New().String(),
		onScanData: onScanData,
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ID identifies the session in logs and events.
func (e *Engine) ID() string {
	return e.id
}

// Done is closed once the loop exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the hardware error that ended the loop, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// StartSynchronous scans until a termination condition of settings holds
// and returns every tag seen, with the sightings of each tag merged.
// If settings has a duration, the scan is stopped when it elapses;
// otherwise this blocks until another condition ends the scan.
// The error is the hardware error that ended the scan, if any.
func (e *Engine) StartSynchronous(settings Settings, antennas []uint16, ts TagSet) ([]ScanResult, error) {
	if err := e.prepare(settings, antennas, ts, 0, e.cfg.MaxSightings); err != nil {
		return nil, err
	}

	var merged mergedResults
	go e.run(merged.add)

	if !waitFor(e.done, settings.duration()) {
		if !waitFor(e.RequestStop(), e.cfg.StopGrace) {
			e.lc.Warn("Inventory did not stop in time; returning what it reported so far.",
				"session", e.id, "grace", e.cfg.StopGrace.String())
		}
	}

	e.mu.Lock()
	sd := e.scanData
	e.mu.Unlock()
	e.publishScanData(sd)

	return merged.list(), e.Err()
}

// StartAsync starts a scan and returns immediately.
// Batches are passed to sink as they're flushed.
// When the scan ended, finished is called on another goroutine;
// abandoned is true if the loop did not stop within the AbandonTimeout,
// in which case anything it reports later is dropped.
func (e *Engine) StartAsync(settings Settings, antennas []uint16, ts TagSet,
	sink func([]ScanResult), finished func(abandoned bool)) error {
	if err := e.prepare(settings, antennas, ts, e.cfg.MaxSightings, 0); err != nil {
		return err
	}

	go e.run(sink)
	go e.supervise(settings.duration(), finished)
	return nil
}

// RequestStop asks the loop to stop after the current round.
// The returned channel is closed once it did. It's safe to call more than once.
func (e *Engine) RequestStop() <-chan struct{} {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stopCh) })
	e.nudge()
	return e.done
}

// Suspend keeps the loop from starting new rounds
// and reports whether it confirmed so within the HandshakeTimeout.
// It also reports true if the loop already exited.
func (e *Engine) Suspend() bool {
	ack := make(chan struct{})
	e.mu.Lock()
	e.suspended = true
	e.suspendAck = ack
	e.resumeAck = nil
	e.mu.Unlock()

	return e.await(ack)
}

// Resume lets a suspended loop continue
// and reports whether it confirmed so within the HandshakeTimeout.
func (e *Engine) Resume() bool {
	ack := make(chan struct{})
	e.mu.Lock()
	e.suspended = false
	e.resumeAck = ack
	e.suspendAck = nil
	e.mu.Unlock()

	e.nudge()
	return e.await(ack)
}

func (e *Engine) await(ack <-chan struct{}) bool {
	t := time.NewTimer(e.cfg.HandshakeTimeout)
	defer t.Stop()

	select {
	case <-ack:
		return true
	case <-e.done:
		return true
	case <-t.C:
		return false
	}
}

func (e *Engine) nudge() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// prepare readies the session to run.
// If it fails, the session is finished without running.
func (e *Engine) prepare(settings Settings, antennas []uint16, ts TagSet, eventMax, totalMax int) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	power, err := e.powerMap()
	if err != nil {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
		return err
	}

	e.settings = settings
	e.antennas = append([]uint16(nil), antennas...)
	e.tagSet = ts
	e.agg = NewAggregator(power, eventMax, totalMax)
	e.lastFlush = time.Now()

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.lc.Debug("Starting inventory.", "session", e.id,
		"antennas", e.antennas, "tagSet", ts.String(),
		"cycles", settings.Cycles, "duration", settings.Duration,
		"dataAvailable", settings.DataAvailable)
	return nil
}

// powerMap returns the transmit power of each antenna in mW.
func (e *Engine) powerMap() (map[uint16]uint16, error) {
	caps, err := e.rf.Capabilities(hardware.RegulatoryCapabilityKind)
	if err != nil {
		return nil, err
	}

	regulatory, ok := hardware.FindRegulatoryCapabilities(caps)
	if !ok {
		return nil, hardware.NewImplementationError("capabilities", "missing regulatory capabilities")
	}

	cfgs, err := e.rf.Configuration(hardware.AntennaConfigurationKind, 0)
	if err != nil {
		return nil, err
	}

	power := make(map[uint16]uint16, len(cfgs))
	for _, ac := range hardware.AntennaConfigurations(cfgs) {
		if ac.TransmitPower == nil {
			continue
		}
		dBm, ok := regulatory.DBmAt(*ac.TransmitPower)
		if !ok {
			continue
		}
		if mW, ok := hardware.MilliwattsOf(dBm); ok {
			power[ac.ID] = mW
		}
	}
	return power, nil
}

// roundReport is what one inventory round contributes to the termination checks.
type roundReport struct {
	tags         int
	limitReached bool
}

func (e *Engine) run(sink func([]ScanResult)) {
	defer close(e.done)

	var cycles uint32
	for {
		running, suspended := e.observe()
		if !running {
			e.flush(sink)
			e.lc.Debug("Inventory stopped.", "session", e.id, "cycles", cycles)
			return
		}

		if suspended {
			e.pause()
			continue
		}

		report, err := e.round()
		if err != nil {
			e.lc.Error("Inventory round failed.", "session", e.id, "error", err.Error())
			e.flush(sink)
			e.finish(err)
			return
		}
		cycles++

		if report.limitReached ||
			(e.settings.Cycles > 0 && cycles == e.settings.Cycles) ||
			(e.settings.DataAvailable && report.tags > 0) {
			e.flush(sink)
			e.finish(nil)
			e.lc.Debug("Inventory finished.", "session", e.id, "cycles", cycles,
				"limitReached", report.limitReached)
			return
		}

		// This is a point in time check, so back to back rounds
		// may run somewhat past the interval before a batch goes out.
		if time.Since(e.lastFlush) > e.cfg.FlushInterval {
			e.flush(sink)
		}
	}
}

// observe acknowledges pending suspend and resume requests
// and returns the current state.
func (e *Engine) observe() (running, suspended bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.suspended {
		if e.suspendAck != nil {
			close(e.suspendAck)
			e.suspendAck = nil
		}
	} else if e.resumeAck != nil {
		close(e.resumeAck)
		e.resumeAck = nil
	}
	return e.running, e.suspended
}

func (e *Engine) pause() {
	t := time.NewTimer(e.cfg.SuspendPoll)
	defer t.Stop()

	select {
	case <-t.C:
	case <-e.wake:
	}
}

func (e *Engine) round() (roundReport, error) {
	tags, err := e.rf.Execute(e.antennas, nil, nil)
	if err != nil {
		return roundReport{}, err
	}

	report := roundReport{tags: len(tags), limitReached: e.agg.Process(tags)}
	e.roundsSinceFlush++

	var sd *ScanData
	if len(tags) > 0 {
		if sr, ok := e.agg.Current(tags[len(tags)-1].EPCHex()); ok {
			sd = &sr.ScanData
		}
	}
	e.mu.Lock()
	e.scanData = sd
	e.mu.Unlock()

	return report, nil
}

func (e *Engine) finish(err error) {
	e.mu.Lock()
	e.running = false
	e.err = err
	e.mu.Unlock()
}

// flush reports the pending batch, if at least one round ran since the last one.
func (e *Engine) flush(sink func([]ScanResult)) {
	if e.roundsSinceFlush == 0 {
		return
	}

	batch := e.agg.Flush(e.tagSet)
	e.lastFlush = time.Now()
	e.roundsSinceFlush = 0

	e.mu.Lock()
	abandoned := e.abandoned
	e.mu.Unlock()
	if len(batch) == 0 || abandoned {
		return
	}

	sink(batch)
	e.publishScanData(&batch[len(batch)-1].ScanData)
}

func (e *Engine) publishScanData(sd *ScanData) {
	if e.onScanData != nil {
		e.onScanData(sd)
	}
}

// supervise waits for an asynchronous scan to end,
// stopping it when its duration elapses.
// Once stopped, it waits no longer than the AbandonTimeout.
func (e *Engine) supervise(d time.Duration, finished func(abandoned bool)) {
	var deadline <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-e.done:
		finished(false)
		return
	case <-e.stopCh:
	case <-deadline:
		e.RequestStop()
	}

	if waitFor(e.done, e.cfg.AbandonTimeout) {
		finished(false)
		return
	}

	e.lc.Warn("Abandoning inventory that did not stop in time.",
		"session", e.id, "timeout", e.cfg.AbandonTimeout.String())
	e.mu.Lock()
	e.abandoned = true
	e.mu.Unlock()
	finished(true)
}

// waitFor waits until ch is closed or d elapsed, and reports which.
// If d isn't positive, it waits for ch indefinitely.
func waitFor(ch <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		<-ch
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// mergedResults collects batches, merging the sightings of the same tag.
type mergedResults struct {
	mu      sync.Mutex
	byEPC   map[string]int
	results []ScanResult
}

func (m *mergedResults) add(batch []ScanResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byEPC == nil {
		m.byEPC = make(map[string]int)
	}
	for _, sr := range batch {
		key := string(sr.ScanData.EPC.UID)
		if i, ok := m.byEPC[key]; ok {
			m.results[i].Sightings = append(m.results[i].Sightings, sr.Sightings...)
			continue
		}
		sr.Sightings = append([]Sighting(nil), sr.Sightings...)
		m.byEPC[key] = len(m.results)
		m.results = append(m.results, sr)
	}
}

func (m *mergedResults) list() []ScanResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScanResult(nil), m.results...)
}
