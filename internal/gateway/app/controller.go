//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"context"
	"encoding/json"
	"strings"

	"edgexfoundry/app-rfid-reader-gateway/internal/gateway"
	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
	"edgexfoundry/app-rfid-reader-gateway/internal/logutil"
	"github.com/edgexfoundry/app-functions-sdk-go/appcontext"
	"github.com/edgexfoundry/go-mod-core-contracts/models"
	"github.com/pkg/errors"
)

// Readings other services send to control scans.
const (
	// resourceScanStart carries JSON scan settings.
	resourceScanStart = "RfidScanStart"
	resourceScanStop  = "RfidScanStop"
)

// errNoContext is returned when an event must be pushed
// before the pipeline has seen its first event.
var errNoContext = errors.New("app-functions-sdk context has not been grabbed yet")

// contextGrabber keeps the SDK's appcontext.Context.
// The SDK only hands it out inside the pipeline, but it's needed to push events to core data.
func (app *GatewayApp) contextGrabber(edgexContext *appcontext.Context, params ...interface{}) (bool, interface{}) {
	app.ctxMu.Lock()
	if app.edgexSdkContext == nil {
		app.edgexSdkContext = edgexContext
		app.lc.Debug("grabbed app-functions-sdk context")
	}
	app.ctxMu.Unlock()

	if len(params) < 1 {
		return false, errors.New("no event received")
	}

	existingEvent, ok := params[0].(models.Event)
	if !ok {
		return false, errors.New("type received is not an Event")
	}

	return true, existingEvent
}

// processEvents starts and stops scans requested by EdgeX events.
// The SDK filter has already dropped other readings.
func (app *GatewayApp) processEvents(_ *appcontext.Context, params ...interface{}) (bool, interface{}) {
	if len(params) < 1 {
		return false, errors.New("no event received")
	}
	event, ok := params[0].(models.Event)
	if !ok {
		return false, errors.New("type received is not an Event")
	}
	if len(event.Readings) < 1 {
		return false, errors.New("event contains no Readings")
	}

	for _, reading := range event.Readings {
		switch reading.Name {
		case resourceScanStart:
			var settings inventory.Settings
			decoder := json.NewDecoder(strings.NewReader(reading.Value))
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&settings); err != nil {
				app.lc.Error("Failed to decode scan settings.", "device", event.Device, "error", err.Error())
				continue
			}

			code, err := app.gw.ScanStart(settings)
			if err != nil {
				app.lc.Error("Failed to start scan.", "device", event.Device, "error", err.Error())
				continue
			}
			app.lc.Info("Scan requested.", "device", event.Device, "status", code.String())

		case resourceScanStop:
			stopped, err := app.gw.ScanStop()
			if err != nil {
				app.lc.Error("Failed to stop scan.", "device", event.Device, "error", err.Error())
				continue
			}
			logutil.LogWrap{LoggingClient: app.lc}.WarnIf(!stopped, "Scan did not stop in time.",
				logutil.KV("device", event.Device))

		default:
			app.lc.Error("Unknown reading name.", "reading", reading.Name)
		}
	}

	return false, nil
}

// enqueue is the gateway's listener.
// It never blocks, since the gateway calls it while holding its lock.
func (app *GatewayApp) enqueue(ev gateway.Event) {
	select {
	case app.eventCh <- ev:
	default:
		app.lc.Warn("Event queue is full; dropping event.", "type", string(ev.OfType()))
	}
}

// taskLoop pushes the gateway's events to core data until ctx is cancelled,
// then stops any running scan.
func (app *GatewayApp) taskLoop(ctx context.Context) {
	app.lc.Info("Starting task loop.")
	for {
		select {
		case <-ctx.Done():
			app.lc.Info("Stopping task loop.")
			app.gw.Shutdown()
			app.drainEvents()
			return

		case ev := <-app.eventCh:
			if err := app.pushEventToCoreData(ev); err != nil {
				app.lc.Error("Failed to push event to core data.",
					"type", string(ev.OfType()), "error", err.Error())
			}
		}
	}
}

// drainEvents pushes what's queued without waiting for more.
func (app *GatewayApp) drainEvents() {
	for {
		select {
		case ev := <-app.eventCh:
			if err := app.pushEventToCoreData(ev); err != nil {
				app.lc.Warn("Dropping event during shutdown.", "type", string(ev.OfType()), "error", err.Error())
			}
		default:
			return
		}
	}
}

// pushEventToCoreData sends an event as a reading named after its type.
// The service generates these itself, so the service key is the device name.
func (app *GatewayApp) pushEventToCoreData(ev gateway.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "error marshalling event")
	}

	app.ctxMu.RLock()
	edgexContext := app.edgexSdkContext
	app.ctxMu.RUnlock()
	if edgexContext == nil {
		return errNoContext
	}

	resource := string(ev.OfType())
	app.lc.Debug("Pushing event.", "type", resource,
		"time", inventory.FromUnixMilli(eventTimestamp(ev)).String())
	if _, err := edgexContext.PushToCoreData(ServiceKey, resource, string(payload)); err != nil {
		return errors.Wrap(err, "unable to push event to core data")
	}
	return nil
}

func eventTimestamp(ev gateway.Event) int64 {
	switch e := ev.(type) {
	case gateway.ScanEvent:
		return e.Timestamp
	case gateway.ParamChangedEvent:
		return e.Timestamp
	}
	return 0
}
