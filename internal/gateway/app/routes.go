//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"edgexfoundry/app-rfid-reader-gateway/internal/gateway"
	"edgexfoundry/app-rfid-reader-gateway/internal/inventory"
	"edgexfoundry/app-rfid-reader-gateway/internal/logutil"
	"edgexfoundry/app-rfid-reader-gateway/internal/status"
	"github.com/edgexfoundry/go-mod-core-contracts/clients"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

const (
	maxBodyBytes = 100 * 1024

	statusRoute       = clients.ApiBase + "/status"
	scanRoute         = clients.ApiBase + "/scan"
	scanStartRoute    = clients.ApiBase + "/scan/start"
	scanStopRoute     = clients.ApiBase + "/scan/stop"
	tagReadRoute      = clients.ApiBase + "/tag/{epc}/read"
	tagWriteRoute     = clients.ApiBase + "/tag/{epc}/write"
	tagLockRoute      = clients.ApiBase + "/tag/{epc}/lock"
	tagKillRoute      = clients.ApiBase + "/tag/{epc}/kill"
	tagPasswordRoute  = clients.ApiBase + "/tag/{epc}/password"
	rfPowerRoute      = clients.ApiBase + "/rfpower"
	minRSSIRoute      = clients.ApiBase + "/minrssi"
	antennasRoute     = clients.ApiBase + "/antennas"
	ioStateRoute      = clients.ApiBase + "/io/{port}/state"
	ioDirectionRoute  = clients.ApiBase + "/io/{port}/direction"
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Query parameters of the tag read route.
const (
	queryBank     = "bank"
	queryOffset   = "offset"
	queryLength   = "length"
	queryCodeType = "code_type"
	queryPassword = "password"
)

type ctxKey string

const operationKey = ctxKey("operation")

// routeAdder is satisfied by the SDK, and by a mux.Router wrapper in tests.
type routeAdder interface {
	AddRoute(route string, handler func(http.ResponseWriter, *http.Request), methods ...string) error
}

type route struct {
	path      string
	method    string
	operation string
	handler   http.HandlerFunc
}

func (app *GatewayApp) routes() []route {
	return []route{
		{statusRoute, http.MethodGet, "get status", app.getStatus},
		{scanRoute, http.MethodPost, "scan", app.scan},
		{scanStartRoute, http.MethodPost, "start scan", app.scanStart},
		{scanStopRoute, http.MethodPost, "stop scan", app.scanStop},
		{tagReadRoute, http.MethodGet, "read tag", app.readTag},
		{tagWriteRoute, http.MethodPut, "write tag", app.writeTag},
		{tagLockRoute, http.MethodPut, "lock tag", app.lockTag},
		{tagKillRoute, http.MethodPut, "kill tag", app.killTag},
		{tagPasswordRoute, http.MethodPut, "set tag password", app.setTagPassword},
		{rfPowerRoute, http.MethodGet, "get RF power", app.getRFPower},
		{rfPowerRoute, http.MethodPut, "set RF power", app.setRFPower},
		{minRSSIRoute, http.MethodGet, "get min RSSI", app.getMinRSSI},
		{minRSSIRoute, http.MethodPut, "set min RSSI", app.setMinRSSI},
		{antennasRoute, http.MethodGet, "get antenna names", app.getAntennas},
		{antennasRoute, http.MethodPut, "set antenna names", app.setAntennas},
		{ioStateRoute, http.MethodGet, "get IO state", app.getIOState},
		{ioStateRoute, http.MethodPut, "set IO state", app.setIOState},
		{ioDirectionRoute, http.MethodGet, "get IO direction", app.getIODirection},
		{ioDirectionRoute, http.MethodPut, "set IO direction", app.setIODirection},
	}
}

func (app *GatewayApp) addRoutes(ra routeAdder) error {
	for _, r := range app.routes() {
		if err := ra.AddRoute(r.path, withOperation(r.operation, r.handler), r.method); err != nil {
			return errors.Wrapf(err, "failed to add route, path=%s, method=%s", r.path, r.method)
		}
	}
	return nil
}

// withOperation names the request's operation for the handler's logs.
func withOperation(name string, handler http.HandlerFunc) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), operationKey, name)
		handler(w, r.WithContext(ctx))
	}
}

func operation(req *http.Request) string {
	if name, ok := req.Context().Value(operationKey).(string); ok {
		return name
	}
	return req.URL.Path
}

// httpStatus maps the gateway's caller errors to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (app *GatewayApp) fail(w http.ResponseWriter, req *http.Request, code int, msg string) {
	app.lc.Error(msg, "operation", operation(req))
	http.Error(w, msg, code)
}

func (app *GatewayApp) failErr(w http.ResponseWriter, req *http.Request, err error) {
	app.fail(w, req, httpStatus(err), fmt.Sprintf("Failed to %s: %v", operation(req), err))
}

func (app *GatewayApp) writeJSON(w http.ResponseWriter, req *http.Request, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		app.fail(w, req, http.StatusInternalServerError, fmt.Sprintf("Failed to marshal response: %v", err))
		return
	}
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	if _, err := w.Write(data); err != nil {
		app.lc.Error("Error writing response.", "operation", operation(req), "error", err.Error())
	}
}

// readJSON decodes the request body into v. An empty body leaves v alone.
func readJSON(req *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && err != io.EOF {
		return errors.Wrapf(gateway.ErrInvalidArgument, "bad request body: %v", err)
	}
	return nil
}

// hexBytes is a byte slice that travels as a hex string.
type hexBytes []byte

func (h hexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *hexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := decodeHex(s)
	*h = b
	return err
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	return b, errors.Wrapf(err, "bad hex value %q", s)
}

type statusResponse struct {
	DeviceName   string                `json:"device_name"`
	DeviceStatus status.DeviceStatus   `json:"device_status"`
	Scanning     bool                  `json:"scanning"`
	LastScanData *inventory.ScanData   `json:"last_scan_data"`
	Antennas     []gateway.AntennaName `json:"antennas"`
	Properties   gateway.Properties    `json:"properties"`
}

func (app *GatewayApp) getStatus(w http.ResponseWriter, req *http.Request) {
	app.writeJSON(w, req, statusResponse{
		DeviceName:   app.gw.DeviceName(),
		DeviceStatus: app.gw.DeviceStatus(),
		Scanning:     app.gw.Scanning(),
		LastScanData: app.gw.LastScanData(),
		Antennas:     app.gw.AntennaNames(),
		Properties:   app.gw.Properties(),
	})
}

type scanResponse struct {
	Status  status.Code            `json:"status"`
	Results []inventory.ScanResult `json:"results,omitempty"`
}

func (app *GatewayApp) scan(w http.ResponseWriter, req *http.Request) {
	var settings inventory.Settings
	if err := readJSON(req, &settings); err != nil {
		app.failErr(w, req, err)
		return
	}
	results, code, err := app.gw.Scan(settings)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, scanResponse{Status: code, Results: results})
}

func (app *GatewayApp) scanStart(w http.ResponseWriter, req *http.Request) {
	var settings inventory.Settings
	if err := readJSON(req, &settings); err != nil {
		app.failErr(w, req, err)
		return
	}
	code, err := app.gw.ScanStart(settings)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, scanResponse{Status: code})
}

type stopResponse struct {
	Stopped bool `json:"stopped"`
}

func (app *GatewayApp) scanStop(w http.ResponseWriter, req *http.Request) {
	stopped, err := app.gw.ScanStop()
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	logutil.LogWrap{LoggingClient: app.lc}.WarnIf(!stopped, "Scan did not stop in time.",
		logutil.KV("operation", operation(req)))
	app.writeJSON(w, req, stopResponse{Stopped: stopped})
}

// tagID decodes the EPC path variable.
func tagID(req *http.Request) ([]byte, error) {
	id, err := decodeHex(mux.Vars(req)["epc"])
	if err != nil {
		return nil, errors.WithMessage(gateway.ErrInvalidArgument, err.Error())
	}
	return id, nil
}

type tagResponse struct {
	Status status.Code `json:"status"`
	Data   hexBytes    `json:"data,omitempty"`
}

func (app *GatewayApp) readTag(w http.ResponseWriter, req *http.Request) {
	id, err := tagID(req)
	if err != nil {
		app.failErr(w, req, err)
		return
	}

	q := req.URL.Query()
	bank, err := gateway.ParseBank(q.Get(queryBank))
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	offset, err := parseUint32(q.Get(queryOffset), queryOffset)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	length, err := parseUint32(q.Get(queryLength), queryLength)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	password, err := decodeHex(q.Get(queryPassword))
	if err != nil {
		app.failErr(w, req, errors.WithMessage(gateway.ErrInvalidArgument, err.Error()))
		return
	}

	data, code := app.gw.ReadTag(id, q.Get(queryCodeType), bank, offset, length, password)
	app.writeJSON(w, req, tagResponse{Status: code, Data: data})
}

func parseUint32(s, name string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(gateway.ErrInvalidArgument, "bad %s %q", name, s)
	}
	return uint32(v), nil
}

type writeRequest struct {
	CodeType string   `json:"code_type"`
	Bank     string   `json:"bank"`
	Offset   uint32   `json:"offset"`
	Data     hexBytes `json:"data"`
	Password hexBytes `json:"password"`
}

func (app *GatewayApp) writeTag(w http.ResponseWriter, req *http.Request) {
	var body writeRequest
	id, ok := app.tagRequest(w, req, &body)
	if !ok {
		return
	}
	bank, err := gateway.ParseBank(body.Bank)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	code := app.gw.WriteTag(id, body.CodeType, bank, body.Offset, body.Data, body.Password)
	app.writeJSON(w, req, tagResponse{Status: code})
}

type lockRequest struct {
	CodeType string   `json:"code_type"`
	Password hexBytes `json:"password"`
	Region   string   `json:"region"`
	Action   string   `json:"action"`
}

func (app *GatewayApp) lockTag(w http.ResponseWriter, req *http.Request) {
	var body lockRequest
	id, ok := app.tagRequest(w, req, &body)
	if !ok {
		return
	}
	region, regionErr := gateway.ParseLockRegion(body.Region)
	action, actionErr := gateway.ParseLockAction(body.Action)
	if regionErr != nil || actionErr != nil {
		app.lc.Warn("Unsupported lock request.", "region", body.Region, "action", body.Action)
		app.writeJSON(w, req, tagResponse{Status: status.NotSupportedByDevice})
		return
	}
	code := app.gw.LockTag(id, body.CodeType, body.Password, region, action)
	app.writeJSON(w, req, tagResponse{Status: code})
}

type killRequest struct {
	CodeType string   `json:"code_type"`
	Password hexBytes `json:"password"`
}

func (app *GatewayApp) killTag(w http.ResponseWriter, req *http.Request) {
	var body killRequest
	id, ok := app.tagRequest(w, req, &body)
	if !ok {
		return
	}
	code := app.gw.KillTag(id, body.CodeType, body.Password)
	app.writeJSON(w, req, tagResponse{Status: code})
}

type passwordRequest struct {
	CodeType       string   `json:"code_type"`
	Type           string   `json:"type"`
	AccessPassword hexBytes `json:"access_password"`
	NewPassword    hexBytes `json:"new_password"`
}

func (app *GatewayApp) setTagPassword(w http.ResponseWriter, req *http.Request) {
	var body passwordRequest
	id, ok := app.tagRequest(w, req, &body)
	if !ok {
		return
	}
	code := app.gw.SetTagPassword(id, body.CodeType, gateway.PasswordType(strings.ToUpper(body.Type)),
		body.AccessPassword, body.NewPassword)
	app.writeJSON(w, req, tagResponse{Status: code})
}

// tagRequest decodes the EPC and the body of a tag operation.
// If it returns false, the response is already written.
func (app *GatewayApp) tagRequest(w http.ResponseWriter, req *http.Request, body interface{}) ([]byte, bool) {
	id, err := tagID(req)
	if err != nil {
		app.failErr(w, req, err)
		return nil, false
	}
	if err := readJSON(req, body); err != nil {
		app.failErr(w, req, err)
		return nil, false
	}
	return id, true
}

type rfPowerBody struct {
	RFPower int8 `json:"rf_power"`
}

func (app *GatewayApp) getRFPower(w http.ResponseWriter, req *http.Request) {
	power, err := app.gw.RFPower()
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, rfPowerBody{RFPower: power})
}

func (app *GatewayApp) setRFPower(w http.ResponseWriter, req *http.Request) {
	var body rfPowerBody
	if err := readJSON(req, &body); err != nil {
		app.failErr(w, req, err)
		return
	}
	if err := app.gw.SetRFPower(body.RFPower); err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, body)
}

type minRSSIBody struct {
	MinRSSI int `json:"min_rssi"`
}

func (app *GatewayApp) getMinRSSI(w http.ResponseWriter, req *http.Request) {
	minRSSI, err := app.gw.MinRSSI()
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, minRSSIBody{MinRSSI: minRSSI})
}

func (app *GatewayApp) setMinRSSI(w http.ResponseWriter, req *http.Request) {
	var body minRSSIBody
	if err := readJSON(req, &body); err != nil {
		app.failErr(w, req, err)
		return
	}
	if err := app.gw.SetMinRSSI(body.MinRSSI); err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, body)
}

func (app *GatewayApp) getAntennas(w http.ResponseWriter, req *http.Request) {
	app.writeJSON(w, req, app.gw.AntennaNames())
}

// setAntennas stores the names in the configuration provider, when there is one,
// and then selects them on the gateway.
func (app *GatewayApp) setAntennas(w http.ResponseWriter, req *http.Request) {
	var names []gateway.AntennaName
	if err := readJSON(req, &names); err != nil {
		app.failErr(w, req, err)
		return
	}
	if len(names) == 0 {
		app.failErr(w, req, errors.Wrap(gateway.ErrInvalidArgument, "no antennas given"))
		return
	}
	if app.configClient != nil {
		if err := app.storeAntennaNames(names); err != nil {
			app.failErr(w, req, err)
			return
		}
	}
	app.gw.SetAntennaNames(names)
	app.writeJSON(w, req, app.gw.AntennaNames())
}

type ioStateBody struct {
	Port  string          `json:"port,omitempty"`
	State gateway.IOState `json:"state"`
}

type ioDirectionBody struct {
	Port      string              `json:"port,omitempty"`
	Direction gateway.IODirection `json:"direction"`
}

// port decodes the port path variable.
// If it returns false, the response is already written.
func (app *GatewayApp) port(w http.ResponseWriter, req *http.Request) (gateway.Port, bool) {
	p, err := gateway.ParsePort(mux.Vars(req)["port"])
	if err != nil {
		app.fail(w, req, http.StatusNotFound, fmt.Sprintf("Failed to %s: %v", operation(req), err))
		return 0, false
	}
	return p, true
}

func (app *GatewayApp) getIOState(w http.ResponseWriter, req *http.Request) {
	p, ok := app.port(w, req)
	if !ok {
		return
	}
	state, err := app.gw.IOState(p)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, ioStateBody{Port: p.String(), State: state})
}

func (app *GatewayApp) setIOState(w http.ResponseWriter, req *http.Request) {
	p, ok := app.port(w, req)
	if !ok {
		return
	}
	body := ioStateBody{State: gateway.IOUnknown}
	if err := readJSON(req, &body); err != nil {
		app.failErr(w, req, err)
		return
	}
	if body.State == gateway.IOUnknown {
		app.failErr(w, req, errors.Wrap(gateway.ErrInvalidArgument, "the state must be LOW or HIGH"))
		return
	}
	if err := app.gw.SetIOState(p, body.State); err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, ioStateBody{Port: p.String(), State: body.State})
}

func (app *GatewayApp) getIODirection(w http.ResponseWriter, req *http.Request) {
	p, ok := app.port(w, req)
	if !ok {
		return
	}
	direction, err := app.gw.IODirection(p)
	if err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, ioDirectionBody{Port: p.String(), Direction: direction})
}

func (app *GatewayApp) setIODirection(w http.ResponseWriter, req *http.Request) {
	p, ok := app.port(w, req)
	if !ok {
		return
	}
	var body ioDirectionBody
	if err := readJSON(req, &body); err != nil {
		app.failErr(w, req, err)
		return
	}
	if err := app.gw.SetIODirection(p, body.Direction); err != nil {
		app.failErr(w, req, err)
		return
	}
	app.writeJSON(w, req, ioDirectionBody{Port: p.String(), Direction: body.Direction})
}
