//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/edgexfoundry/go-mod-bootstrap/bootstrap/flags"
	"github.com/edgexfoundry/go-mod-configuration/configuration"
	"github.com/edgexfoundry/go-mod-configuration/pkg/types"
	"github.com/pkg/errors"
)

const (
	baseConsulPath = "edgex/appservices/1.0/"
	defaultCPPort  = 8500
)

// getConfigClient returns a configuration client for the provider named by the command line flags.
// The SDK doesn't hand out its own client, so this parses the provider URL the same way it does.
func getConfigClient(f flags.Common) (configuration.Client, error) {
	cpURL, err := url.Parse(f.ConfigProviderUrl())
	if err != nil {
		return nil, errors.Wrap(err, "bad config provider URL")
	}

	cpPort := defaultCPPort
	if port := cpURL.Port(); port != "" {
		if cpPort, err = strconv.Atoi(port); err != nil {
			return nil, errors.Wrap(err, "bad config port")
		}
	}

	configClient, err := configuration.NewConfigurationClient(types.ServiceConfig{
		Host:     cpURL.Hostname(),
		Port:     cpPort,
		BasePath: baseConsulPath + ServiceKey,
		Type:     strings.Split(cpURL.Scheme, ".")[0],
	})

	return configClient, errors.Wrap(err, "failed to get config client")
}
