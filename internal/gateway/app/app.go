//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"edgexfoundry/app-rfid-reader-gateway/internal/gateway"
	"edgexfoundry/app-rfid-reader-gateway/internal/logutil"
	"edgexfoundry/app-rfid-reader-gateway/internal/simulator"
	"github.com/edgexfoundry/app-functions-sdk-go/appcontext"
	"github.com/edgexfoundry/app-functions-sdk-go/appsdk"
	"github.com/edgexfoundry/app-functions-sdk-go/pkg/transforms"
	"github.com/edgexfoundry/go-mod-bootstrap/bootstrap/flags"
	"github.com/edgexfoundry/go-mod-configuration/configuration"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
	"github.com/pkg/errors"
)

const (
	ServiceKey = "rfid-reader-gateway"

	eventChSz = 100
)

type GatewayApp struct {
	edgexSdk     *appsdk.AppFunctionsSDK
	lc           logger.LoggingClient
	configClient configuration.Client
	config       gateway.Config
	reader       *simulator.Reader
	gw           *gateway.Gateway
	eventCh      chan gateway.Event

	ctxMu           sync.RWMutex
	edgexSdkContext *appcontext.Context
}

func NewGatewayApp() *GatewayApp {
	return &GatewayApp{
		eventCh: make(chan gateway.Event, eventChSz),
	}
}

// Initialize starts the SDK, parses the configuration,
// opens the reader, and registers the REST routes.
func (app *GatewayApp) Initialize() error {
	app.edgexSdk = &appsdk.AppFunctionsSDK{ServiceKey: ServiceKey}
	if err := app.edgexSdk.Initialize(); err != nil {
		return errors.Wrap(err, "SDK initialization failed")
	}

	app.lc = app.edgexSdk.LoggingClient
	lgr := logutil.LogWrap{LoggingClient: app.lc}
	app.lc.Info("Starting.")

	appSettings := app.edgexSdk.ApplicationSettings()
	if appSettings == nil {
		return errors.New("missing application settings")
	}

	var err error
	app.config, err = gateway.ParseSettings(appSettings)
	unexpected := errors.Is(err, gateway.ErrUnexpectedConfigItems)
	if err != nil && !unexpected {
		return errors.Wrap(err, "config parse error")
	}
	// unexpected config items are a warning, not a reason to exit
	lgr.WarnIf(unexpected, "Ignoring unexpected configuration.", logutil.KV("items", fmt.Sprint(err)))

	if app.reader, err = openReader(app.config); err != nil {
		return err
	}
	app.lc.Info("Opened simulated reader.", "file", app.config.SimulatorFile,
		"region", app.reader.Region(), "devMode", app.config.DevMode.Enabled)

	app.gw = gateway.New(app.lc, app.reader.RF(), app.reader.IO(), app.config,
		gateway.ListenerFunc(app.enqueue))

	sdkFlags := flags.New()
	sdkFlags.Parse(os.Args[1:])
	if app.configClient, err = getConfigClient(sdkFlags); err != nil {
		return errors.Wrap(err, "failed to create config client")
	}
	app.initAntennaNames(sdkFlags)

	return app.addRoutes(app.edgexSdk)
}

// initAntennaNames seeds and loads antenna names.
// Failures leave the gateway using all antennas.
func (app *GatewayApp) initAntennaNames(f flags.Common) {
	lgr := logutil.LogWrap{LoggingClient: app.lc}
	if !app.configClient.IsAlive() {
		app.lc.Warn("Configuration provider is not available; using all antennas.")
		return
	}
	err := app.bootstrapAntennaConfig(f)
	lgr.WarnIf(err != nil, "Failed to seed antenna names.", logutil.KV("error", fmt.Sprint(err)))
	err = app.loadAntennaNames()
	lgr.WarnIf(err != nil, "Failed to load antenna names.", logutil.KV("error", fmt.Sprint(err)))
}

// openReader opens the simulated reader, the only RF and IO driver this service has.
func openReader(cfg gateway.Config) (*simulator.Reader, error) {
	if cfg.SimulatorFile == "" {
		return nil, errors.New("no reader is configured: set SimulatorFile")
	}
	r, err := simulator.Open(cfg.SimulatorFile)
	return r, errors.Wrap(err, "failed to open the simulated reader")
}

// RunUntilCancelled runs the SDK pipeline and the task loop
// until the process is asked to stop.
func (app *GatewayApp) RunUntilCancelled() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.taskLoop(ctx)
		app.lc.Info("Task loop has exited.")
	}()

	// The SDK may not hand control back when it's stopped,
	// so the task loop watches for the signals itself.
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-signals:
			app.lc.Info(fmt.Sprintf("Received '%s' signal from OS.", s.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()

	if err := app.edgexSdk.SetFunctionsPipeline(
		app.contextGrabber,
		transforms.NewFilter([]string{resourceScanStart, resourceScanStop}).FilterByValueDescriptor,
		app.processEvents,
	); err != nil {
		cancel()
		wg.Wait()
		return errors.Wrap(err, "failed to build pipeline")
	}

	runErr := app.edgexSdk.MakeItRun()
	cancel()
	wg.Wait()
	app.lc.Info("Exiting.")

	return errors.Wrap(runErr, "failed to run pipeline")
}
