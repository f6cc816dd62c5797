//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"edgexfoundry/app-rfid-reader-gateway/internal/gateway"
	"github.com/edgexfoundry/go-mod-bootstrap/bootstrap/flags"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// antennasConfigKey is the folder of the configuration provider that holds antenna names,
// keyed by antenna ID.
const antennasConfigKey = "Antennas"

// ConsulConfig is the part of the service's configuration tree the app reads back.
type ConsulConfig struct {
	ApplicationSettings map[string]string
	Antennas            map[string]string
}

func (app *GatewayApp) consulConfig() (*ConsulConfig, error) {
	raw, err := app.configClient.GetConfiguration(&ConsulConfig{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get configuration")
	}
	cfg, ok := raw.(*ConsulConfig)
	if !ok {
		return nil, errors.Errorf("unexpected configuration type %T", raw)
	}
	return cfg, nil
}

// bootstrapAntennaConfig seeds the configuration provider's antenna names
// from the Antennas table of the service's configuration file.
//
// If the folder already exists, even empty, it's left alone
// unless the flags ask to overwrite the configuration.
func (app *GatewayApp) bootstrapAntennaConfig(f flags.Common) error {
	existing, err := app.consulConfig()
	if err != nil {
		return err
	}
	if existing.Antennas != nil && !f.OverwriteConfig() {
		app.lc.Debug("Antenna names already exist in the configuration provider.")
		return nil
	}

	path := filepath.Join(f.ConfigDirectory(), f.Profile(), f.ConfigFileName())
	tree, err := toml.LoadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", path)
	}
	if !tree.Has(antennasConfigKey) {
		return errors.Errorf("%s has no %s table", path, antennasConfigKey)
	}
	antennas, ok := tree.Get(antennasConfigKey).(*toml.Tree)
	if !ok {
		return errors.Errorf("%s in %s is not a table", antennasConfigKey, path)
	}

	if len(antennas.Keys()) == 0 {
		// a nil value makes an empty folder
		return errors.Wrap(app.configClient.PutConfigurationValue(antennasConfigKey+"/", nil),
			"failed to create the antenna names folder")
	}

	seed, err := toml.TreeFromMap(map[string]interface{}{antennasConfigKey: antennas.ToMap()})
	if err != nil {
		return errors.Wrap(err, "failed to build the antenna names")
	}
	app.lc.Info("Seeding antenna names.", "count", len(antennas.Keys()), "overwrite", f.OverwriteConfig())
	return errors.Wrap(app.configClient.PutConfigurationToml(seed, f.OverwriteConfig()),
		"failed to put the antenna names")
}

// loadAntennaNames reads the antenna names back from the configuration provider
// and hands them to the gateway. Without any, the gateway keeps using all antennas.
func (app *GatewayApp) loadAntennaNames() error {
	cfg, err := app.consulConfig()
	if err != nil {
		return err
	}
	if len(cfg.Antennas) == 0 {
		return nil
	}
	names, err := parseAntennaNames(cfg.Antennas)
	if err != nil {
		return err
	}
	app.gw.SetAntennaNames(names)
	return nil
}

// storeAntennaNames writes names to the configuration provider, one key per antenna.
func (app *GatewayApp) storeAntennaNames(names []gateway.AntennaName) error {
	for _, n := range names {
		key := antennasConfigKey + "/" + strconv.Itoa(int(n.ID))
		if err := app.configClient.PutConfigurationValue(key, []byte(n.Name)); err != nil {
			return errors.Wrapf(err, "failed to store the name of antenna %d", n.ID)
		}
	}
	return nil
}

// parseAntennaNames turns the provider's id to name map into a list ordered by ID.
func parseAntennaNames(m map[string]string) ([]gateway.AntennaName, error) {
	names := make([]gateway.AntennaName, 0, len(m))
	for k, v := range m {
		id, err := strconv.ParseUint(strings.TrimSpace(k), 10, 16)
		if err != nil {
			return nil, errors.Wrapf(gateway.ErrInvalidArgument, "bad antenna ID %q", k)
		}
		names = append(names, gateway.AntennaName{ID: uint16(id), Name: v})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].ID < names[j].ID })
	return names, nil
}
