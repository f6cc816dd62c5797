//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TagSet selects which tags a flush reports,
// comparing the tags seen since the last flush against the ones seen before it.
type TagSet int

const (
	// TagSetCurrent reports every tag seen since the last flush.
	TagSetCurrent TagSet = iota
	// TagSetAdditions reports tags that were not seen before the last flush.
	TagSetAdditions
	// TagSetDeletions reports tags that were seen before the last flush, but not since.
	TagSetDeletions
)

var ErrUnknownTagSet = errors.New("unknown tag set")

func (ts TagSet) String() string {
	switch ts {
	case TagSetCurrent:
		return "CURRENT"
	case TagSetAdditions:
		return "ADDITIONS"
	case TagSetDeletions:
		return "DELETIONS"
	}
	return "UNKNOWN"
}

func ParseTagSet(s string) (TagSet, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CURRENT":
		return TagSetCurrent, nil
	case "ADDITIONS":
		return TagSetAdditions, nil
	case "DELETIONS":
		return TagSetDeletions, nil
	}
	return 0, errors.Wrapf(ErrUnknownTagSet, "%q", s)
}

func (ts TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

func (ts *TagSet) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseTagSet(s)
	if err != nil {
		return err
	}
	*ts = v
	return nil
}

// Settings tell a scan when to stop.
type Settings struct {
	// Cycles stops the scan after this many inventory rounds, if not 0.
	Cycles uint32 `json:"cycles"`
	// Duration stops the scan after this many milliseconds, if not 0.
	Duration float64 `json:"duration"`
	// DataAvailable stops the scan after the first round that saw a tag.
	DataAvailable bool `json:"data_available"`
}

// HasTermination reports whether a scan with these settings ends on its own.
func (s Settings) HasTermination() bool {
	return s.DataAvailable || s.Cycles > 0 || s.Duration > 0
}

func (s Settings) duration() time.Duration {
	return time.Duration(s.Duration * float64(time.Millisecond))
}

// EPCData identifies a tag by its EPC.
type EPCData struct {
	PC  uint16 `json:"pc"`
	UID []byte `json:"uid"`
}

// ScanData identifies the tag a ScanResult is about.
type ScanData struct {
	EPC EPCData `json:"epc"`
}

// Sighting is one observation of a tag.
type Sighting struct {
	AntennaID uint16 `json:"antenna_id"`
	Strength  int32  `json:"strength"`
	// Timestamp is in milliseconds since the Unix Epoch.
	Timestamp int64 `json:"timestamp"`
	// CurrentPowerLevel is the antenna's transmit power in mW.
	CurrentPowerLevel uint16 `json:"current_power_level"`
}

// ScanResult collects the sightings of one tag.
type ScanResult struct {
	CodeType string   `json:"code_type"`
	ScanData ScanData `json:"scan_data"`
	// Timestamp is when the tag was first seen, in milliseconds since the Unix Epoch.
	Timestamp int64      `json:"timestamp"`
	Sightings []Sighting `json:"sightings"`
}

// CodeTypeEPC is the only code type the reader reports.
const CodeTypeEPC = "EPC"
