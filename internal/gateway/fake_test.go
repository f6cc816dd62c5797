//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// fakeTag's memory banks are plain byte slices.
// For filtering, the EPC bank is preceded by the CRC and PC words.
type fakeTag struct {
	epc   []byte
	banks map[hardware.Bank][]byte
}

func newFakeTag(epc []byte) *fakeTag {
	return &fakeTag{
		epc: epc,
		banks: map[hardware.Bank][]byte{
			hardware.BankReserved: make([]byte, 8),
			hardware.BankEPC:      append([]byte(nil), epc...),
			hardware.BankTID:      {0xE2, 0x80, 0x11, 0x60, 0x20, 0x00, 0x70, 0x01},
			hardware.BankUser:     make([]byte, 16),
		},
	}
}

func (ft *fakeTag) filterMemory(bank hardware.Bank) []byte {
	if bank == hardware.BankEPC {
		return append([]byte{0xAB, 0xCD, 0x30, 0x00}, ft.epc...)
	}
	return ft.banks[bank]
}

// fakeRF is an RF device with a fixed tag population
// that counts calls and can be told to fail.
type fakeRF struct {
	mu sync.Mutex

	tags []*fakeTag
	// forced, if set, is the result code of every operation
	forced *hardware.ResultCode

	connectErr    error
	disconnectErr error
	executeErr    error
	// block, if set, makes inventory rounds without operations wait for it
	block chan struct{}
	// onRound, if set, is called at the start of each unfiltered inventory round
	onRound func()

	connects    int
	disconnects int
	rounds      int
	opRounds    int
	executed    []hardware.Operation

	region     string
	table      []hardware.TransmitPowerEntry
	antennas   map[uint16]*hardware.AntennaConfiguration
	minRSSI    int16
	configSets int
}

func newFakeRF(tags ...*fakeTag) *fakeRF {
	p1, p2 := uint16(19), uint16(19)
	return &fakeRF{
		tags: tags,
		table: []hardware.TransmitPowerEntry{
			{Index: 12, DBm: 20}, {Index: 17, DBm: 25}, {Index: 19, DBm: 27},
		},
		antennas: map[uint16]*hardware.AntennaConfiguration{
			1: {ID: 1, TransmitPower: &p1},
			2: {ID: 2, TransmitPower: &p2},
		},
		minRSSI: -70,
	}
}

func (f *fakeRF) Connect(hardware.ConnectionConsumer, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	return nil
}

func (f *fakeRF) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	f.disconnects++
	return nil
}

func (f *fakeRF) SetRegion(region string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.region = region
	return nil
}

func (f *fakeRF) Capabilities(hardware.CapabilityKind) ([]hardware.Capability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []hardware.Capability{hardware.RegulatoryCapabilities{
		TransmitPowerTable: append([]hardware.TransmitPowerEntry(nil), f.table...),
	}}, nil
}

func (f *fakeRF) Configuration(kind hardware.ConfigurationKind, antennaID uint16) ([]hardware.Configuration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if kind == hardware.InventorySettingsKind {
		return []hardware.Configuration{hardware.InventorySettings{MinRSSI: f.minRSSI}}, nil
	}

	var cfgs []hardware.Configuration
	for _, id := range []uint16{1, 2} {
		if antennaID != 0 && antennaID != id {
			continue
		}
		ac := *f.antennas[id]
		cfgs = append(cfgs, ac)
	}
	return cfgs, nil
}

func (f *fakeRF) SetConfiguration(cfgs []hardware.Configuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.configSets++
	for _, c := range cfgs {
		switch c := c.(type) {
		case hardware.InventorySettings:
			f.minRSSI = c.MinRSSI
		case hardware.AntennaConfiguration:
			ids := []uint16{c.ID}
			if c.ID == 0 {
				ids = []uint16{1, 2}
			}
			for _, id := range ids {
				ac := f.antennas[id]
				if c.TransmitPower != nil {
					tp := *c.TransmitPower
					ac.TransmitPower = &tp
				}
				if c.Connect != nil {
					ct := *c.Connect
					ac.Connect = &ct
				}
			}
		}
	}
	return nil
}

func (f *fakeRF) Execute(antennas []uint16, filters []hardware.Filter, ops []hardware.Operation) ([]hardware.TagSnapshot, error) {
	f.mu.Lock()
	block, onRound := f.block, f.onRound
	f.mu.Unlock()
	if len(ops) == 0 && len(filters) == 0 {
		if onRound != nil {
			onRound()
		}
		if block != nil {
			<-block
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.rounds++
	if len(ops) > 0 {
		f.opRounds++
		f.executed = append(f.executed, ops...)
	}
	if f.executeErr != nil {
		return nil, f.executeErr
	}

	var snaps []hardware.TagSnapshot
	for _, tag := range f.tags {
		if !f.matches(tag, filters) {
			continue
		}
		snap := hardware.TagSnapshot{
			EPC:       append([]byte(nil), tag.epc...),
			PC:        0x3000,
			AntennaID: 1,
			RSSI:      -50,
		}
		for _, op := range ops {
			res := f.apply(tag, op)
			snap.Result = &res
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (f *fakeRF) matches(tag *fakeTag, filters []hardware.Filter) bool {
	for _, flt := range filters {
		if !flt.Matches(tag.filterMemory(flt.Bank)) {
			return false
		}
	}
	return true
}

func (f *fakeRF) apply(tag *fakeTag, op hardware.Operation) hardware.OperationResult {
	res := hardware.OperationResult{Kind: op.Kind(), Code: hardware.ResultSuccess}
	if f.forced != nil {
		res.Code = *f.forced
		return res
	}

	switch op := op.(type) {
	case hardware.ReadOperation:
		mem := tag.banks[op.Bank]
		start, end := int(op.WordOffset)*2, int(op.WordOffset+op.WordLength)*2
		if end > len(mem) {
			res.Code = hardware.ResultMemoryOverrun
			return res
		}
		res.Data = append([]byte(nil), mem[start:end]...)
	case hardware.WriteOperation:
		mem := tag.banks[op.Bank]
		start := int(op.WordOffset) * 2
		if start+len(op.Data) > len(mem) {
			res.Code = hardware.ResultMemoryOverrun
			return res
		}
		copy(mem[start:], op.Data)
	}
	return res
}

func (f *fakeRF) counts() (connects, rounds, opRounds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.rounds, f.opRounds
}

func (f *fakeRF) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

// fakeIO has the appliance's eight ports.
type fakeIO struct {
	mu         sync.Mutex
	ports      map[uint16]hardware.IOConfiguration
	connectErr error
	sets       int
}

func newFakeIO() *fakeIO {
	f := &fakeIO{ports: make(map[uint16]hardware.IOConfiguration)}
	for id := uint16(1); id <= 8; id++ {
		f.ports[id] = hardware.IOConfiguration{ID: id, Direction: hardware.DirectionOutput, State: hardware.StateLow}
	}
	return f
}

func (f *fakeIO) Connect(hardware.ConnectionConsumer, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeIO) Disconnect() error { return nil }

func (f *fakeIO) IOConfiguration(port uint16) ([]hardware.IOConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.ports[port]
	if !ok {
		return nil, nil
	}
	return []hardware.IOConfiguration{c}, nil
}

func (f *fakeIO) SetIOConfiguration(cfgs []hardware.IOConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cfgs {
		if _, ok := f.ports[c.ID]; !ok {
			return hardware.NewParameterError("set IO configuration", "no port %d", c.ID)
		}
		f.ports[c.ID] = c
		f.sets++
	}
	return nil
}

// recorder is a Listener that keeps everything it's told.
type recorder struct {
	mu     sync.Mutex
	params []ParamChangedEvent
	scans  []ScanEvent
}

func (r *recorder) ParamChanged(param Param, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = append(r.params, ParamChangedEvent{Param: param, Value: value})
}

func (r *recorder) RFIDScanEvent(ev ScanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, ev)
}

// valuesOf returns the values announced for param, in order.
func (r *recorder) valuesOf(param Param) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var vals []interface{}
	for _, p := range r.params {
		if p.Param == param {
			vals = append(vals, p.Value)
		}
	}
	return vals
}

func (r *recorder) scanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scans)
}
