//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"fmt"

	"github.com/pelletier/go-toml"
)

// MockConfigClient implements EdgeX's configuration.Client interface for unit tests.
// Tests set the configuration it returns and the next error it fails with,
// and check the values that were put through it.
type MockConfigClient struct {
	config *ConsulConfig
	// nextErr is returned by the next call, then cleared.
	nextErr error
	// putTomlErr is always returned by PutConfigurationToml.
	putTomlErr error
	alive      bool

	// tree is the last tree given to PutConfigurationToml.
	tree *toml.Tree
	// valueMap holds the values given to PutConfigurationValue,
	// and the antenna names of PutConfigurationToml.
	valueMap map[string][]byte
}

func NewMockConfigClient() *MockConfigClient {
	return &MockConfigClient{
		valueMap: make(map[string][]byte),
		config:   &ConsulConfig{},
		alive:    true,
	}
}

func (m *MockConfigClient) takeErr() error {
	err := m.nextErr
	m.nextErr = nil
	return err
}

// Not currently needed, so not implemented.
func (m *MockConfigClient) HasConfiguration() (bool, error) {
	panic("Not implemented.")
}

func (m *MockConfigClient) PutConfigurationToml(configuration *toml.Tree, overwrite bool) error {
	if err := m.takeErr(); err != nil {
		return err
	}
	if m.putTomlErr != nil {
		return m.putTomlErr
	}

	m.tree = configuration
	if configuration.Has(antennasConfigKey) {
		val, ok := configuration.Get(antennasConfigKey).(*toml.Tree)
		if !ok {
			panic("unable to convert config to toml.Tree")
		}
		for _, k := range val.Keys() {
			m.valueMap[k] = []byte(fmt.Sprintf("%v", val.Get(k)))
		}
	}
	return nil
}

// Not currently needed, so not implemented.
func (m *MockConfigClient) PutConfiguration(configStruct interface{}, overwrite bool) error {
	panic("Not implemented.")
}

// GetConfiguration returns the configured *ConsulConfig, whatever the target.
func (m *MockConfigClient) GetConfiguration(configStruct interface{}) (interface{}, error) {
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	return m.config, nil
}

// Not currently needed, so not implemented.
func (m *MockConfigClient) WatchForChanges(updateChannel chan<- interface{}, errorChannel chan<- error, configuration interface{}, waitKey string) {
	panic("Not implemented.")
}

func (m *MockConfigClient) IsAlive() bool {
	return m.alive
}

// Not currently needed, so not implemented.
func (m *MockConfigClient) ConfigurationValueExists(name string) (bool, error) {
	panic("Not implemented.")
}

// Not currently needed, so not implemented.
func (m *MockConfigClient) GetConfigurationValue(name string) ([]byte, error) {
	panic("Not implemented.")
}

func (m *MockConfigClient) PutConfigurationValue(name string, value []byte) error {
	if err := m.takeErr(); err != nil {
		return err
	}
	m.valueMap[name] = value
	return nil
}
