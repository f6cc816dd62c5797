//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"sort"
	"sync"
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
)

// fullPower is the transmit power at which a tag's RSSI is specified.
const fullPower = 27

type antenna struct {
	power   uint16
	connect hardware.ConnectType
}

// link is one device's connection state.
type link struct {
	connected bool
	consumer  hardware.ConnectionConsumer
}

// Reader is the simulated appliance.
// Its RF and IO devices each accept a single connection at a time.
type Reader struct {
	mu sync.Mutex

	roundTime time.Duration
	region    string
	minRSSI   int16
	antennas  map[uint16]*antenna
	tags      []*tag
	ports     map[uint16]hardware.IOConfiguration

	rfLink, ioLink link
}

// New builds a Reader from a validated Spec.
func New(spec Spec) *Reader {
	r := &Reader{
		roundTime: spec.RoundTime,
		region:    spec.Region,
		minRSSI:   spec.MinRSSI,
		antennas:  make(map[uint16]*antenna, len(spec.Antennas)),
		ports:     make(map[uint16]hardware.IOConfiguration, len(spec.IOPorts)),
	}

	for _, as := range spec.Antennas {
		power, _ := hardware.TxLevelIndex(as.TxLevel)
		connect := hardware.ConnectAuto
		if as.Connect != "" {
			connect, _ = hardware.ParseConnectType(as.Connect)
		}
		r.antennas[as.ID] = &antenna{power: power, connect: connect}
	}

	for _, ts := range spec.Tags {
		r.tags = append(r.tags, newTag(ts))
	}

	for _, ps := range spec.IOPorts {
		c := hardware.IOConfiguration{ID: ps.ID, Direction: hardware.DirectionOutput, State: hardware.StateLow}
		if ps.Direction == "INPUT" {
			c.Direction = hardware.DirectionInput
		}
		if ps.State == "HIGH" {
			c.State = hardware.StateHigh
		}
		r.ports[ps.ID] = c
	}
	return r
}

// Open loads a Spec from a YAML file and builds a Reader from it.
func Open(path string) (*Reader, error) {
	spec, err := Load(path)
	if err != nil {
		return nil, err
	}
	return New(spec), nil
}

// RF returns the Reader's tag-reading device.
func (r *Reader) RF() *RF {
	return &RF{r: r}
}

// IO returns the Reader's discrete IO device.
func (r *Reader) IO() *IO {
	return &IO{r: r}
}

func (r *Reader) Region() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.region
}

// Preempt tells the holders of the connections that another party wants them,
// as the appliance does when a second client connects.
func (r *Reader) Preempt() {
	r.mu.Lock()
	var consumers []hardware.ConnectionConsumer
	for _, l := range []link{r.rfLink, r.ioLink} {
		if l.connected && l.consumer != nil {
			consumers = append(consumers, l.consumer)
		}
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.ConnectionAttempted()
	}
}

// DriveInput sets the level an external source applies to an input port.
func (r *Reader) DriveInput(port uint16, state hardware.IOState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.ports[port]
	if !ok || c.Direction != hardware.DirectionInput {
		return false
	}
	c.State = state
	r.ports[port] = c
	return true
}

func (r *Reader) connect(l *link, consumer hardware.ConnectionConsumer, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.connected {
		return hardware.NewConnectionError(op, "already connected")
	}
	l.connected, l.consumer = true, consumer
	return nil
}

func (r *Reader) disconnect(l *link, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !l.connected {
		return hardware.NewConnectionError(op, "not connected")
	}
	l.connected, l.consumer = false, nil
	return nil
}

// sortedIDs returns the keys of m in ascending order.
func sortedIDs[V any](m map[uint16]V) []uint16 {
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RF is the simulated tag-reading device.
type RF struct {
	r *Reader
}

func (d *RF) Connect(consumer hardware.ConnectionConsumer, _ time.Duration) error {
	return d.r.connect(&d.r.rfLink, consumer, "connect RF")
}

func (d *RF) Disconnect() error {
	return d.r.disconnect(&d.r.rfLink, "disconnect RF")
}

// lock takes the Reader's lock once the RF device is known to be connected.
func (d *RF) lock(op string) error {
	d.r.mu.Lock()
	if !d.r.rfLink.connected {
		d.r.mu.Unlock()
		return hardware.NewConnectionError(op, "not connected")
	}
	return nil
}

func (d *RF) SetRegion(region string) error {
	if err := d.lock("set region"); err != nil {
		return err
	}
	defer d.r.mu.Unlock()

	if region == "" {
		return hardware.NewParameterError("set region", "no region")
	}
	d.r.region = region
	return nil
}

func (d *RF) Capabilities(kind hardware.CapabilityKind) ([]hardware.Capability, error) {
	if err := d.lock("get capabilities"); err != nil {
		return nil, err
	}
	defer d.r.mu.Unlock()

	if kind != hardware.RegulatoryCapabilityKind {
		return nil, hardware.NewParameterError("get capabilities", "unknown capability kind %d", kind)
	}
	table := make([]hardware.TransmitPowerEntry, len(hardware.TxLevels))
	for i, l := range hardware.TxLevels {
		table[i] = hardware.TransmitPowerEntry{Index: uint16(i), DBm: l.DBm}
	}
	return []hardware.Capability{hardware.RegulatoryCapabilities{TransmitPowerTable: table}}, nil
}

func (d *RF) Configuration(kind hardware.ConfigurationKind, antennaID uint16) ([]hardware.Configuration, error) {
	const op = "get configuration"
	if err := d.lock(op); err != nil {
		return nil, err
	}
	defer d.r.mu.Unlock()

	switch kind {
	case hardware.InventorySettingsKind:
		return []hardware.Configuration{hardware.InventorySettings{MinRSSI: d.r.minRSSI}}, nil
	case hardware.AntennaConfigurationKind:
		ids, err := d.r.selectAntennas(op, []uint16{antennaID})
		if err != nil {
			return nil, err
		}
		cfgs := make([]hardware.Configuration, 0, len(ids))
		for _, id := range ids {
			a := d.r.antennas[id]
			power, connect := a.power, a.connect
			cfgs = append(cfgs, hardware.AntennaConfiguration{ID: id, TransmitPower: &power, Connect: &connect})
		}
		return cfgs, nil
	}
	return nil, hardware.NewParameterError(op, "unknown configuration kind %d", kind)
}

// SetConfiguration applies all the configurations or, if any is invalid, none of them.
func (d *RF) SetConfiguration(cfgs []hardware.Configuration) error {
	const op = "set configuration"
	if err := d.lock(op); err != nil {
		return err
	}
	defer d.r.mu.Unlock()

	var updates []func()
	for _, c := range cfgs {
		if is, ok := hardware.FindInventorySettings([]hardware.Configuration{c}); ok {
			updates = append(updates, func() { d.r.minRSSI = is.MinRSSI })
			continue
		}

		acs := hardware.AntennaConfigurations([]hardware.Configuration{c})
		if len(acs) == 0 {
			return hardware.NewParameterError(op, "unsupported configuration %T", c)
		}
		ac := acs[0]
		ids, err := d.r.selectAntennas(op, []uint16{ac.ID})
		if err != nil {
			return err
		}
		if ac.TransmitPower != nil && int(*ac.TransmitPower) >= len(hardware.TxLevels) {
			return hardware.NewParameterError(op, "no transmit power index %d", *ac.TransmitPower)
		}
		if ac.Connect != nil && (*ac.Connect < hardware.ConnectAuto || *ac.Connect > hardware.ConnectFalse) {
			return hardware.NewParameterError(op, "unknown connect type %d", *ac.Connect)
		}
		updates = append(updates, func() {
			for _, id := range ids {
				a := d.r.antennas[id]
				if ac.TransmitPower != nil {
					a.power = *ac.TransmitPower
				}
				if ac.Connect != nil {
					a.connect = *ac.Connect
				}
			}
		})
	}

	for _, u := range updates {
		u()
	}
	return nil
}

// selectAntennas resolves antenna IDs, where an empty list or antenna 0 means all of them.
// Callers hold mu.
func (r *Reader) selectAntennas(op string, ids []uint16) ([]uint16, error) {
	if len(ids) == 0 {
		return sortedIDs(r.antennas), nil
	}
	for _, id := range ids {
		if id == 0 {
			return sortedIDs(r.antennas), nil
		}
		if _, ok := r.antennas[id]; !ok {
			return nil, hardware.NewParameterError(op, "no antenna %d", id)
		}
	}
	return ids, nil
}

// Execute runs one round on the antennas that aren't switched off.
// A tag is reported once, by the first antenna that sees it strongly enough.
// Its RSSI drops by 1 for every dB the antenna is below full power.
func (d *RF) Execute(antennas []uint16, filters []hardware.Filter, ops []hardware.Operation) ([]hardware.TagSnapshot, error) {
	const op = "execute"

	d.r.mu.Lock()
	roundTime := d.r.roundTime
	d.r.mu.Unlock()
	time.Sleep(roundTime)

	if err := d.lock(op); err != nil {
		return nil, err
	}
	defer d.r.mu.Unlock()

	ids, err := d.r.selectAntennas(op, antennas)
	if err != nil {
		return nil, err
	}

	var snaps []hardware.TagSnapshot
	for _, t := range d.r.tags {
		if t.killed {
			continue
		}
		antennaID, rssi, ok := d.r.sight(t, ids)
		if !ok || !passes(t, filters) {
			continue
		}

		snap := hardware.TagSnapshot{
			EPC:       t.epc(),
			PC:        t.pc(),
			CRC:       t.crc(),
			AntennaID: antennaID,
			RSSI:      rssi,
		}
		for _, o := range ops {
			res := t.apply(o)
			snap.Result = &res
			if res.Code != hardware.ResultSuccess {
				break
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// sight finds the first antenna that sees the tag above the minimum RSSI.
// Callers hold mu.
func (r *Reader) sight(t *tag, ids []uint16) (uint16, int32, bool) {
	for _, id := range ids {
		a := r.antennas[id]
		if a.connect == hardware.ConnectFalse || !t.visibleOn(id) {
			continue
		}
		dBm := int16(0)
		if int(a.power) < len(hardware.TxLevels) {
			dBm = hardware.TxLevels[a.power].DBm
		}
		rssi := t.rssi - int32(fullPower-dBm)
		if rssi < int32(r.minRSSI) {
			continue
		}
		return id, rssi, true
	}
	return 0, 0, false
}

func passes(t *tag, filters []hardware.Filter) bool {
	for _, f := range filters {
		if int(f.Bank) >= len(t.banks) || !f.Matches(t.banks[f.Bank]) {
			return false
		}
	}
	return true
}

// IO is the simulated discrete IO device.
type IO struct {
	r *Reader
}

func (d *IO) Connect(consumer hardware.ConnectionConsumer, _ time.Duration) error {
	return d.r.connect(&d.r.ioLink, consumer, "connect IO")
}

func (d *IO) Disconnect() error {
	return d.r.disconnect(&d.r.ioLink, "disconnect IO")
}

func (d *IO) lock(op string) error {
	d.r.mu.Lock()
	if !d.r.ioLink.connected {
		d.r.mu.Unlock()
		return hardware.NewConnectionError(op, "not connected")
	}
	return nil
}

// IOConfiguration returns the configuration of a port, or of every port for port 0.
func (d *IO) IOConfiguration(port uint16) ([]hardware.IOConfiguration, error) {
	const op = "get IO configuration"
	if err := d.lock(op); err != nil {
		return nil, err
	}
	defer d.r.mu.Unlock()

	if port == 0 {
		var cfgs []hardware.IOConfiguration
		for _, id := range sortedIDs(d.r.ports) {
			cfgs = append(cfgs, d.r.ports[id])
		}
		return cfgs, nil
	}
	c, ok := d.r.ports[port]
	if !ok {
		return nil, hardware.NewParameterError(op, "no port %d", port)
	}
	return []hardware.IOConfiguration{c}, nil
}

// SetIOConfiguration changes port directions and output levels.
// The level of an input port is left to whatever drives it.
func (d *IO) SetIOConfiguration(cfgs []hardware.IOConfiguration) error {
	const op = "set IO configuration"
	if err := d.lock(op); err != nil {
		return err
	}
	defer d.r.mu.Unlock()

	for _, c := range cfgs {
		if _, ok := d.r.ports[c.ID]; !ok {
			return hardware.NewParameterError(op, "no port %d", c.ID)
		}
	}
	for _, c := range cfgs {
		p := d.r.ports[c.ID]
		p.Direction = c.Direction
		if c.Direction == hardware.DirectionOutput {
			p.State = c.State
		}
		d.r.ports[c.ID] = p
	}
	return nil
}
