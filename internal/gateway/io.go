//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"edgexfoundry/app-rfid-reader-gateway/internal/hardware"
	"github.com/pkg/errors"
)

// Port is one of the appliance's discrete IO ports.
// Its value is the port number the IO device expects.
type Port uint16

const (
	PortHS1 Port = iota + 1
	PortHS2
	PortHS3
	PortHS4
	PortSWS1SWD1
	PortSWS2SWD2
	PortLS1
	PortLS2
)

type portInfo struct {
	name      string
	state     Param
	direction Param
}

var ports = map[Port]portInfo{
	PortHS1:      {"HS1", ParamHS1, ParamHS1Direction},
	PortHS2:      {"HS2", ParamHS2, ParamHS2Direction},
	PortHS3:      {"HS3", ParamHS3, ParamHS3Direction},
	PortHS4:      {"HS4", ParamHS4, ParamHS4Direction},
	PortSWS1SWD1: {"SWS1_SWD1", ParamSWS1SWD1, ParamSWS1SWD1Direction},
	PortSWS2SWD2: {"SWS2_SWD2", ParamSWS2SWD2, ParamSWS2SWD2Direction},
	PortLS1:      {"LS1", ParamLS1, ParamLS1Direction},
	PortLS2:      {"LS2", ParamLS2, ParamLS2Direction},
}

// Ports lists every port in numeric order.
func Ports() []Port {
	return []Port{PortHS1, PortHS2, PortHS3, PortHS4, PortSWS1SWD1, PortSWS2SWD2, PortLS1, PortLS2}
}

func (p Port) String() string {
	if info, ok := ports[p]; ok {
		return info.name
	}
	return "Port(" + strconv.Itoa(int(p)) + ")"
}

// ParsePort accepts a port's name, in any case.
func ParsePort(s string) (Port, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for p, info := range ports {
		if info.name == name {
			return p, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown IO port %q", s)
}

// IOState is the logical level of a port.
type IOState int

const (
	IOLow     IOState = 0
	IOHigh    IOState = 1
	IOUnknown IOState = 2
)

var ioStateNames = map[IOState]string{IOLow: "LOW", IOHigh: "HIGH", IOUnknown: "UNKNOWN"}

func (s IOState) String() string {
	if name, ok := ioStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func ParseIOState(s string) (IOState, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for st, n := range ioStateNames {
		if n == name {
			return st, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown IO state %q", s)
}

func (s IOState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *IOState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := ParseIOState(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s IOState) toHardware() hardware.IOState {
	switch s {
	case IOHigh:
		return hardware.StateHigh
	case IOLow:
		return hardware.StateLow
	}
	return hardware.StateUnknown
}

func ioStateOf(s hardware.IOState) IOState {
	switch s {
	case hardware.StateHigh:
		return IOHigh
	case hardware.StateLow:
		return IOLow
	}
	return IOUnknown
}

// IODirection is whether a port is driven by the appliance or read by it.
type IODirection int

const (
	IOOutput IODirection = 0
	IOInput  IODirection = 1
)

func (d IODirection) String() string {
	if d == IOInput {
		return "INPUT"
	}
	return "OUTPUT"
}

func ParseIODirection(s string) (IODirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OUTPUT":
		return IOOutput, nil
	case "INPUT":
		return IOInput, nil
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown IO direction %q", s)
}

func (d IODirection) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *IODirection) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := ParseIODirection(name)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d IODirection) toHardware() hardware.IODirection {
	if d == IOInput {
		return hardware.DirectionInput
	}
	return hardware.DirectionOutput
}

func ioDirectionOf(d hardware.IODirection) IODirection {
	if d == hardware.DirectionInput {
		return IOInput
	}
	return IOOutput
}

// IOState returns the level of the port.
func (g *Gateway) IOState(p Port) (IOState, error) {
	info, ok := ports[p]
	if !ok {
		return IOUnknown, errors.Wrapf(ErrInvalidArgument, "unknown IO port %d", p)
	}

	state := IOUnknown
	err := g.ioOperation("get "+string(info.state), func(io hardware.IODevice) error {
		c, err := ioConfiguration(io, p)
		if err != nil {
			return err
		}
		state = ioStateOf(c.State)
		return nil
	})
	return state, err
}

// SetIOState drives the port to the level.
// It's ErrInvalidState if the port is an input.
func (g *Gateway) SetIOState(p Port, state IOState) error {
	info, ok := ports[p]
	if !ok {
		return errors.Wrapf(ErrInvalidArgument, "unknown IO port %d", p)
	}

	return g.ioOperation("set "+string(info.state), func(io hardware.IODevice) error {
		c, err := ioConfiguration(io, p)
		if err != nil {
			return err
		}
		if c.Direction == hardware.DirectionInput {
			return errors.Wrapf(ErrInvalidState, "cannot set the state of input port %s", p)
		}

		want := state.toHardware()
		if c.State == want {
			return nil
		}
		c.State = want
		if err := io.SetIOConfiguration([]hardware.IOConfiguration{c}); err != nil {
			return err
		}
		g.listener.ParamChanged(info.state, state)
		return nil
	})
}

// IODirection returns whether the port is an input or an output.
func (g *Gateway) IODirection(p Port) (IODirection, error) {
	info, ok := ports[p]
	if !ok {
		return IOOutput, errors.Wrapf(ErrInvalidArgument, "unknown IO port %d", p)
	}

	direction := IOOutput
	err := g.ioOperation("get "+string(info.direction), func(io hardware.IODevice) error {
		c, err := ioConfiguration(io, p)
		if err != nil {
			return err
		}
		direction = ioDirectionOf(c.Direction)
		return nil
	})
	return direction, err
}

// SetIODirection makes the port an input or an output.
func (g *Gateway) SetIODirection(p Port, direction IODirection) error {
	info, ok := ports[p]
	if !ok {
		return errors.Wrapf(ErrInvalidArgument, "unknown IO port %d", p)
	}

	return g.ioOperation("set "+string(info.direction), func(io hardware.IODevice) error {
		c, err := ioConfiguration(io, p)
		if err != nil {
			return err
		}

		want := direction.toHardware()
		if c.Direction == want {
			return nil
		}
		c.Direction = want
		if err := io.SetIOConfiguration([]hardware.IOConfiguration{c}); err != nil {
			return err
		}
		g.listener.ParamChanged(info.direction, direction)
		return nil
	})
}

func ioConfiguration(io hardware.IODevice, p Port) (hardware.IOConfiguration, error) {
	cfgs, err := io.IOConfiguration(uint16(p))
	if err != nil {
		return hardware.IOConfiguration{}, err
	}
	if len(cfgs) == 0 {
		return hardware.IOConfiguration{}, errors.Wrapf(ErrInvalidState, "missing IO configuration for port %s", p)
	}
	return cfgs[0], nil
}
