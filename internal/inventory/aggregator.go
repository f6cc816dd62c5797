//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
)

// generation is the set of tags seen between two flushes, in first-seen order.
type generation struct {
	results map[string]*ScanResult
	order   []string
}

func newGeneration() generation {
	return generation{results: make(map[string]*ScanResult)}
}

func (g generation) has(epc string) bool {
	_, ok := g.results[epc]
	return ok
}

// Aggregator deduplicates sightings by EPC and batches them for reporting.
// It is not safe for concurrent use; an Engine confines it to its loop.
type Aggregator struct {
	// power is the antenna's transmit power in mW.
	power map[uint16]uint16

	// eventMax and totalMax cap the sightings of any one tag
	// within a flush and across the whole scan; 0 disables the cap.
	eventMax int
	totalMax int
	totals   map[string]int

	current  generation
	previous generation

	now func() time.Time
}

func NewAggregator(power map[uint16]uint16, eventMax, totalMax int) *Aggregator {
	return &Aggregator{
		power:    power,
		eventMax: eventMax,
		totalMax: totalMax,
		totals:   make(map[string]int),
		current:  newGeneration(),
		previous: newGeneration(),
		now:      time.Now,
	}
}

// Process adds the snapshots of one round to the current generation.
// It returns true once a tag reaches either sighting cap.
func (a *Aggregator) Process(tags []hardware.TagSnapshot) (limitReached bool) {
	for i := range tags {
		tag := &tags[i]
		epc := tag.EPCHex()
		now := UnixMilli(a.now())

		sr, ok := a.current.results[epc]
		if !ok {
			sr = &ScanResult{
				CodeType: CodeTypeEPC,
				ScanData: ScanData{EPC: EPCData{
					PC:  tag.PC,
					UID: append([]byte(nil), tag.EPC...),
				}},
				Timestamp: now,
			}
			a.current.results[epc] = sr
			a.current.order = append(a.current.order, epc)
		}

		sr.Sightings = append(sr.Sightings, Sighting{
			AntennaID:         tag.AntennaID,
			Strength:          tag.RSSI,
			Timestamp:         now,
			CurrentPowerLevel: a.power[tag.AntennaID],
		})

		if a.totalMax > 0 {
			a.totals[epc]++
			if a.totals[epc] >= a.totalMax {
				limitReached = true
			}
		}
		if a.eventMax > 0 && len(sr.Sightings) >= a.eventMax {
			limitReached = true
		}
	}
	return limitReached
}

// Current returns the in-flight result for the EPC, keyed by upper case hex.
func (a *Aggregator) Current(epc string) (ScanResult, bool) {
	sr, ok := a.current.results[epc]
	if !ok {
		return ScanResult{}, false
	}
	return *sr, true
}

// Flush reports the tags the TagSet selects,
// then makes the current generation the previous one and starts a new one.
func (a *Aggregator) Flush(ts TagSet) []ScanResult {
	var batch []ScanResult
	switch ts {
	case TagSetCurrent:
		batch = collect(a.current, nil)
	case TagSetAdditions:
		batch = collect(a.current, a.previous.has)
	case TagSetDeletions:
		batch = collect(a.previous, a.current.has)
	}

	a.previous = a.current
	a.current = newGeneration()
	return batch
}

// collect copies the results of g in order, skipping those for which exclude is true.
func collect(g generation, exclude func(string) bool) []ScanResult {
	batch := make([]ScanResult, 0, len(g.order))
	for _, epc := range g.order {
		if exclude != nil && exclude(epc) {
			continue
		}
		batch = append(batch, *g.results[epc])
	}
	return batch
}
