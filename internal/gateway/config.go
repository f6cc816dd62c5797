//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"edgexfoundry/app-rfid-reader-gateway/internal/connection"
	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Properties are the static identity of the device.
type Properties struct {
	Manufacturer     string `json:"manufacturer"`
	Model            string `json:"model"`
	DeviceManual     string `json:"device_manual"`
	DeviceInfo       string `json:"device_info"`
	DeviceRevision   string `json:"device_revision"`
	HardwareRevision string `json:"hardware_revision"`
	SoftwareRevision string `json:"software_revision"`
	AutoIDVersion    string `json:"autoid_model_version"`
	RevisionCounter  int    `json:"revision_counter"`
	SerialNumber     string `json:"serial_number"`
}

func DefaultProperties() Properties {
	return Properties{
		Manufacturer:     "HARTING IT Software Development GmbH & Co. KG",
		Model:            "Ha-VIS RF-R310",
		DeviceManual:     "http://www.harting-rfid.com",
		DeviceRevision:   "0",
		HardwareRevision: "1.0",
		SoftwareRevision: "1.0.0",
		AutoIDVersion:    "1.00",
		SerialNumber:     "00000000000",
	}
}

// DevModeSettings are applied to the RF device the first time it's used.
type DevModeSettings struct {
	Enabled     bool
	Region      string `validate:"required_if=Enabled true"`
	TxLevel     int16
	ConnectType hardware.ConnectType `validate:"gte=0,lte=2"`
}

// Config is built once at startup and never changes afterwards.
type Config struct {
	DeviceName string           `validate:"required"`
	TagSet     inventory.TagSet `validate:"gte=0,lte=2"`

	// ConnectTimeout is passed to the devices' Connect.
	ConnectTimeout time.Duration `validate:"gt=0"`
	// ScanStopTimeout bounds how long ScanStop waits for the scan to finish.
	ScanStopTimeout time.Duration `validate:"gt=0"`

	Inventory inventory.Config
	DevMode   DevModeSettings

	// SimulatorFile describes the simulated reader used in dev mode
	// when no hardware driver is available.
	SimulatorFile string

	Properties Properties
}

func DefaultConfig() Config {
	return Config{
		DeviceName:      "rfid-reader",
		TagSet:          inventory.TagSetCurrent,
		ConnectTimeout:  connection.DefaultConnectTimeout,
		ScanStopTimeout: 5 * time.Second,
		Inventory:       inventory.DefaultConfig(),
		DevMode: DevModeSettings{
			Region:      "EU",
			TxLevel:     27,
			ConnectType: hardware.ConnectTrue,
		},
		SimulatorFile: "res/simulator.yaml",
		Properties:    DefaultProperties(),
	}
}

var validate = validator.New()

// Validate checks the Config is usable.
func (cfg Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid gateway configuration")
	}
	if cfg.DevMode.Enabled {
		if cfg.SimulatorFile == "" {
			return errors.New("invalid gateway configuration: dev mode needs a SimulatorFile")
		}
		if _, ok := hardware.TxLevelIndex(cfg.DevMode.TxLevel); !ok {
			return errors.Errorf("invalid gateway configuration: unsupported dev mode TxLevel %d dBm",
				cfg.DevMode.TxLevel)
		}
	}
	return nil
}

// Keys of the EdgeX ApplicationSettings that ParseSettings understands.
const (
	keyDeviceName       = "DeviceName"
	keyTagSet           = "TagSet"
	keyConnectTimeout   = "ConnectTimeout"
	keyScanStopTimeout  = "ScanStopTimeout"
	keyMaxSightings     = "MaxSightings"
	keyFlushInterval    = "FlushInterval"
	keyHandshakeTimeout = "HandshakeTimeout"
	keyStopGrace        = "StopGrace"
	keyAbandonTimeout   = "AbandonTimeout"
	keySuspendPoll      = "SuspendPoll"
	keyDevMode          = "DevMode"
	keyDevRegion        = "DevRegion"
	keyDevTxLevel       = "DevTxLevel"
	keyDevConnectType   = "DevConnectType"
	keySimulatorFile    = "SimulatorFile"
	keyDeviceInfo       = "DeviceInfo"
	keySerialNumber     = "SerialNumber"
)

// ParseSettings builds a Config from the EdgeX ApplicationSettings,
// starting from DefaultConfig and validating the result.
//
// If the only problem is keys it doesn't know,
// it returns the Config along with an error that wraps ErrUnexpectedConfigItems.
func ParseSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()
	var unexpected []string

	for key, raw := range settings {
		val := strings.TrimSpace(raw)
		var err error

		switch key {
		case keyDeviceName:
			cfg.DeviceName = val
		case keyTagSet:
			cfg.TagSet, err = inventory.ParseTagSet(val)
		case keyConnectTimeout:
			cfg.ConnectTimeout, err = time.ParseDuration(val)
		case keyScanStopTimeout:
			cfg.ScanStopTimeout, err = time.ParseDuration(val)
		case keyMaxSightings:
			cfg.Inventory.MaxSightings, err = strconv.Atoi(val)
		case keyFlushInterval:
			cfg.Inventory.FlushInterval, err = time.ParseDuration(val)
		case keyHandshakeTimeout:
			cfg.Inventory.HandshakeTimeout, err = time.ParseDuration(val)
		case keyStopGrace:
			cfg.Inventory.StopGrace, err = time.ParseDuration(val)
		case keyAbandonTimeout:
			cfg.Inventory.AbandonTimeout, err = time.ParseDuration(val)
		case keySuspendPoll:
			cfg.Inventory.SuspendPoll, err = time.ParseDuration(val)
		case keyDevMode:
			cfg.DevMode.Enabled, err = strconv.ParseBool(val)
		case keyDevRegion:
			cfg.DevMode.Region = val
		case keyDevTxLevel:
			var dBm int64
			dBm, err = strconv.ParseInt(strings.TrimPrefix(val, "TxLevel"), 10, 16)
			cfg.DevMode.TxLevel = int16(dBm)
		case keyDevConnectType:
			ct, ok := hardware.ParseConnectType(strings.ToUpper(val))
			if !ok {
				err = errors.Errorf("unknown connect type %q", val)
			}
			cfg.DevMode.ConnectType = ct
		case keySimulatorFile:
			cfg.SimulatorFile = val
		case keyDeviceInfo:
			cfg.Properties.DeviceInfo = val
		case keySerialNumber:
			cfg.Properties.SerialNumber = val
		default:
			unexpected = append(unexpected, key)
			continue
		}

		if err != nil {
			return cfg, errors.Wrapf(err, "failed to parse %s", key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return cfg, errors.Wrapf(ErrUnexpectedConfigItems, "%s", strings.Join(unexpected, ", "))
	}
	return cfg, nil
}
