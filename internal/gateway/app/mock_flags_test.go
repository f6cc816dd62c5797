//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

// MockFlags implements EdgeX's flags.Common interface.
type MockFlags struct {
	overwriteConfig   bool
	useRegistry       bool
	registryUrl       string
	configProviderUrl string
	profile           string
	configDirectory   string
	configFileName    string
}

func (m MockFlags) OverwriteConfig() bool {
	return m.overwriteConfig
}

func (m MockFlags) UseRegistry() bool {
	return m.useRegistry
}

func (m MockFlags) RegistryUrl() string {
	return m.registryUrl
}

func (m MockFlags) ConfigProviderUrl() string {
	return m.configProviderUrl
}

func (m MockFlags) Profile() string {
	return m.profile
}

func (m MockFlags) ConfigDirectory() string {
	return m.configDirectory
}

func (m MockFlags) ConfigFileName() string {
	return m.configFileName
}

func (m MockFlags) Parse([]string) {
	panic("Not implemented.")
}

func (m MockFlags) Help() {
	panic("Not implemented.")
}
