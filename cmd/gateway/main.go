//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	gatewayapp "edgexfoundry/app-rfid-reader-gateway/internal/gateway/app"
	"edgexfoundry/app-rfid-reader-gateway/internal/logutil"
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
)

func main() {
	// the SDK's logger isn't available until the app is initialized
	lgr := logutil.LogWrap{LoggingClient: logger.NewClientStdOut(gatewayapp.ServiceKey, false, "INFO")}

	app := gatewayapp.NewGatewayApp()
	lgr.ExitIfErr(app.Initialize(), "Failed to initialize the service.")
	lgr.ExitIfErr(app.RunUntilCancelled(), "The service stopped with an error.")

	os.Exit(0)
}
