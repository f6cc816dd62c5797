//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package simulator is an in-memory reader appliance described by a YAML file.
// It implements both hardware devices, so the gateway can run in dev mode
// without a driver for the real hardware.
package simulator

import (
	"encoding/hex"
	"os"
	"strings"
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Spec is the YAML description of a simulated appliance.
type Spec struct {
	Region  string `yaml:"region" validate:"required"`
	MinRSSI int16  `yaml:"min_rssi"`

	// RoundTime is how long each inventory round takes.
	RoundTime time.Duration `yaml:"round_time" validate:"gte=0"`

	Antennas []AntennaSpec `yaml:"antennas" validate:"required,unique=ID,dive"`
	Tags     []TagSpec     `yaml:"tags" validate:"dive"`
	IOPorts  []IOPortSpec  `yaml:"io_ports" validate:"unique=ID,dive"`
}

type AntennaSpec struct {
	ID      uint16 `yaml:"id" validate:"gt=0"`
	TxLevel int16  `yaml:"tx_level"`
	// Connect is AUTO, TRUE, or FALSE. Empty means AUTO.
	Connect string `yaml:"connect" validate:"omitempty,oneof=AUTO TRUE FALSE"`
}

// TagSpec describes a tag in the field. Memory contents are hex strings.
type TagSpec struct {
	EPC            string `yaml:"epc" validate:"required,hexadecimal"`
	TID            string `yaml:"tid" validate:"omitempty,hexadecimal"`
	User           string `yaml:"user" validate:"omitempty,hexadecimal"`
	KillPassword   string `yaml:"kill_password" validate:"omitempty,hexadecimal,max=8"`
	AccessPassword string `yaml:"access_password" validate:"omitempty,hexadecimal,max=8"`
	// Antennas that see the tag. None means every antenna does.
	Antennas []uint16 `yaml:"antennas"`
	RSSI     int32    `yaml:"rssi"`
	// Locked lists the lock regions (ACCESS, KILL, EPC, TID, USER) that start out locked.
	Locked []string `yaml:"locked" validate:"dive,oneof=ACCESS KILL EPC TID USER"`
}

type IOPortSpec struct {
	ID uint16 `yaml:"id" validate:"gt=0"`
	// Direction is INPUT or OUTPUT.
	Direction string `yaml:"direction" validate:"oneof=INPUT OUTPUT"`
	// State is LOW or HIGH.
	State string `yaml:"state" validate:"omitempty,oneof=LOW HIGH"`
}

var validate = validator.New()

// Load reads a Spec from a YAML file.
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, errors.Wrap(err, "failed to read simulator file")
	}
	return Parse(data)
}

// Parse decodes and validates a YAML Spec.
func Parse(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, errors.Wrap(err, "failed to decode simulator spec")
	}
	if err := validate.Struct(spec); err != nil {
		return Spec{}, errors.Wrap(err, "invalid simulator spec")
	}
	for _, as := range spec.Antennas {
		if _, ok := hardware.TxLevelIndex(as.TxLevel); !ok {
			return Spec{}, errors.Errorf("invalid simulator spec: antenna %d has unsupported tx_level %d dBm",
				as.ID, as.TxLevel)
		}
	}
	for _, ts := range spec.Tags {
		if len(decodeHex(ts.EPC))%2 != 0 {
			return Spec{}, errors.Errorf("invalid simulator spec: EPC %s is not a whole number of words", ts.EPC)
		}
	}
	return spec, nil
}

// decodeHex decodes a hex string, which validation already checked,
// ignoring a 0x prefix.
func decodeHex(s string) []byte {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ := hex.DecodeString(s)
	return b
}
