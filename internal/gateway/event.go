//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
)

// EventType is an enum of the different types of gateway events.
type EventType string

const (
	// note: these values are also used when creating the EdgeX reading names

	// ScanEventType defines an event for a tag seen by a scan.
	ScanEventType EventType = "RfidScanEvent"
	// ParamChangedType defines an event for a changed device parameter.
	ParamChangedType EventType = "ParamChanged"
)

// Param names a device parameter whose changes are announced.
type Param string

const (
	ParamDeviceStatus Param = "DeviceStatus"
	ParamLastScanData Param = "LastScanData"
	ParamAntennaNames Param = "AntennaNames"
	ParamRfPower      Param = "RfPower"
	ParamMinRssi      Param = "MinRssi"

	ParamHS1               Param = "HS1"
	ParamHS1Direction      Param = "HS1.direction"
	ParamHS2               Param = "HS2"
	ParamHS2Direction      Param = "HS2.direction"
	ParamHS3               Param = "HS3"
	ParamHS3Direction      Param = "HS3.direction"
	ParamHS4               Param = "HS4"
	ParamHS4Direction      Param = "HS4.direction"
	ParamSWS1SWD1          Param = "SWS1_SWD1"
	ParamSWS1SWD1Direction Param = "SWS1_SWD1.direction"
	ParamSWS2SWD2          Param = "SWS2_SWD2"
	ParamSWS2SWD2Direction Param = "SWS2_SWD2.direction"
	ParamLS1               Param = "LS1"
	ParamLS1Direction      Param = "LS1.direction"
	ParamLS2               Param = "LS2"
	ParamLS2Direction      Param = "LS2.direction"
)

// ScanEvent is generated for each tag a scan reports.
type ScanEvent struct {
	// EventID is unique per event.
	EventID string `json:"event_id"`
	// SessionID identifies the scan that saw the tag.
	SessionID string `json:"session_id"`
	// DeviceName is the configured name of the reader.
	DeviceName string `json:"device_name"`
	// Timestamp is the time at which this event occurred. It represents milliseconds
	// since the Unix Epoch.
	Timestamp int64                `json:"timestamp"`
	Result    inventory.ScanResult `json:"result"`
}

// ParamChangedEvent is generated when a device parameter changes its value.
type ParamChangedEvent struct {
	Param     Param       `json:"param"`
	Value     interface{} `json:"value"`
	Timestamp int64       `json:"timestamp"`
}

// Event is an interface that is implemented to map Event structs to their corresponding
// EventType strings.
type Event interface {
	OfType() EventType
}

// OfType for ScanEvent returns ScanEventType
func (ScanEvent) OfType() EventType {
	return ScanEventType
}

// OfType for ParamChangedEvent returns ParamChangedType
func (ParamChangedEvent) OfType() EventType {
	return ParamChangedType
}

// Listener receives the gateway's notifications.
// Methods are called synchronously on the goroutine that caused the change,
// which may be a scan's own goroutine, and must not call back into the Gateway.
type Listener interface {
	ParamChanged(param Param, value interface{})
	RFIDScanEvent(ev ScanEvent)
}

// ListenerFunc adapts a function that takes Events to a Listener.
type ListenerFunc func(ev Event)

func (f ListenerFunc) ParamChanged(param Param, value interface{}) {
	f(ParamChangedEvent{Param: param, Value: value, Timestamp: inventory.UnixMilliNow()})
}

func (f ListenerFunc) RFIDScanEvent(ev ScanEvent) {
	f(ev)
}

type nopListener struct{}

func (nopListener) ParamChanged(Param, interface{}) {}
func (nopListener) RFIDScanEvent(ScanEvent)         {}
