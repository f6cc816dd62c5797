//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package gatewayapp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"edgexfoundry/app-rfid-reader-gateway/internal/gateway"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// muxAdder registers routes the way the SDK does.
type muxAdder struct {
	*mux.Router
}

func (m muxAdder) AddRoute(route string, handler func(http.ResponseWriter, *http.Request), methods ...string) error {
	m.HandleFunc(route, handler).Methods(methods...)
	return nil
}

func newTestRouter(t *testing.T) (*GatewayApp, *MockConfigClient, http.Handler) {
	t.Helper()
	app, cc := makeTestApp(t)
	router := mux.NewRouter()
	require.NoError(t, app.addRoutes(muxAdder{router}))
	return app, cc, router
}

// do sends a request and decodes a JSON response into out, if it isn't nil.
func do(t *testing.T, h http.Handler, method, path, body string, out interface{}) int {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if out != nil && w.Code == http.StatusOK {
		assert.Equal(t, contentTypeJSON, w.Header().Get(contentTypeHeader))
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

type tagResult struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

func TestAddRoutesFailure(t *testing.T) {
	app, _ := makeTestApp(t)
	assert.Error(t, app.addRoutes(failingAdder{}))
}

type failingAdder struct{}

func (failingAdder) AddRoute(string, func(http.ResponseWriter, *http.Request), ...string) error {
	return errors.New("route in use")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpStatus(errors.Wrap(gateway.ErrInvalidArgument, "x")))
	assert.Equal(t, http.StatusConflict, httpStatus(errors.Wrap(gateway.ErrInvalidState, "x")))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(errors.New("x")))
}

func TestOperationName(t *testing.T) {
	var name string
	h := withOperation("read tag", func(_ http.ResponseWriter, req *http.Request) {
		name = operation(req)
	})
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "read tag", name)

	assert.Equal(t, "/y", operation(httptest.NewRequest(http.MethodGet, "/y", nil)))
}

func TestStatusRoute(t *testing.T) {
	_, _, h := newTestRouter(t)

	var st struct {
		DeviceName   string                `json:"device_name"`
		DeviceStatus string                `json:"device_status"`
		Scanning     bool                  `json:"scanning"`
		Antennas     []gateway.AntennaName `json:"antennas"`
		Properties   gateway.Properties    `json:"properties"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, statusRoute, "", &st))
	assert.Equal(t, "rfid-reader", st.DeviceName)
	assert.Equal(t, "IDLE", st.DeviceStatus)
	assert.False(t, st.Scanning)
	assert.Equal(t, []gateway.AntennaName{{ID: 0, Name: "All"}}, st.Antennas)
	assert.Equal(t, gateway.DefaultProperties(), st.Properties)
}

func TestScanRoute(t *testing.T) {
	app, _, h := newTestRouter(t)

	var res struct {
		Status  string `json:"status"`
		Results []struct {
			CodeType string `json:"code_type"`
		} `json:"results"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, scanRoute, `{"cycles": 1}`, &res))
	assert.Equal(t, "SUCCESS", res.Status)
	assert.Len(t, res.Results, 2)

	scanEvents := 0
	for len(app.eventCh) > 0 {
		if ev := <-app.eventCh; ev.OfType() == gateway.ScanEventType {
			scanEvents++
		}
	}
	assert.Equal(t, 2, scanEvents)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"never ends", "", http.StatusBadRequest},
		{"bad json", "{", http.StatusBadRequest},
		{"unknown field", `{"rounds": 2}`, http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.code, do(t, h, http.MethodPost, scanRoute, test.body, nil))
		})
	}
}

func TestScanStartStopRoutes(t *testing.T) {
	app, _, h := newTestRouter(t)

	var res struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, scanStartRoute, "{}", &res))
	assert.Equal(t, "SUCCESS", res.Status)
	assert.True(t, app.gw.Scanning())

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, scanStartRoute, "{}", nil))
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, scanRoute, `{"cycles": 1}`, nil))

	var stop struct {
		Stopped bool `json:"stopped"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, scanStopRoute, "", &stop))
	assert.True(t, stop.Stopped)
	assert.False(t, app.gw.Scanning())

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, scanStopRoute, "", nil))
}

func TestReadTagRoute(t *testing.T) {
	_, _, h := newTestRouter(t)

	tests := []struct {
		name   string
		path   string
		code   int
		status string
		data   string
	}{
		{"epc", "/tag/" + fixtureEPC + "/read?bank=EPC&offset=4&length=12",
			http.StatusOK, "SUCCESS", "300833b2ddd9004433221100"},
		{"unaligned", "/tag/" + fixtureEPC + "/read?bank=EPC&offset=5&length=3",
			http.StatusOK, "SUCCESS", "0833b2"},
		{"user", "/tag/" + fixtureEPC + "/read?bank=USR&offset=0&length=4",
			http.StatusOK, "SUCCESS", "00000000"},
		{"no such tag", "/tag/AABBCCDD/read?bank=EPC&offset=4&length=4",
			http.StatusOK, "NO_IDENTIFIER", ""},
		{"bad epc", "/tag/XYZ/read?bank=EPC&offset=4&length=4", http.StatusBadRequest, "", ""},
		{"bad bank", "/tag/" + fixtureEPC + "/read?bank=ROM&offset=0&length=4", http.StatusBadRequest, "", ""},
		{"bad offset", "/tag/" + fixtureEPC + "/read?bank=EPC&offset=-1&length=4", http.StatusBadRequest, "", ""},
		{"no length", "/tag/" + fixtureEPC + "/read?bank=EPC&offset=0", http.StatusBadRequest, "", ""},
		{"bad password", "/tag/" + fixtureEPC + "/read?bank=EPC&offset=0&length=2&password=XX",
			http.StatusBadRequest, "", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var res tagResult
			require.Equal(t, test.code, do(t, h, http.MethodGet, "/api/v1"+test.path, "", &res))
			if test.code == http.StatusOK {
				assert.Equal(t, test.status, res.Status)
				assert.Equal(t, test.data, res.Data)
			}
		})
	}
}

func TestWriteTagRoute(t *testing.T) {
	_, _, h := newTestRouter(t)
	write := "/api/v1/tag/" + fixtureEPC + "/write"

	var res tagResult
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, write,
		`{"bank": "USR", "offset": 2, "data": "CAFE"}`, &res))
	assert.Equal(t, "SUCCESS", res.Status)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet,
		"/api/v1/tag/"+fixtureEPC+"/read?bank=USR&offset=0&length=4", "", &res))
	assert.Equal(t, "0000cafe", res.Data)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/v1/tag/"+lockedEPC+"/write",
		`{"bank": "USR", "offset": 0, "data": "CAFE"}`, &res))
	assert.Equal(t, "PERMISSION_ERROR", res.Status)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, write,
		`{"bank": "USR", "offset": 0, "data": "XYZ"}`, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, write,
		`{"bank": "ROM", "offset": 0, "data": "CAFE"}`, nil))
}

func TestLockTagRoute(t *testing.T) {
	_, _, h := newTestRouter(t)
	lock := "/api/v1/tag/" + fixtureEPC + "/lock"

	var res tagResult
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, lock,
		`{"region": "user", "action": "lock"}`, &res))
	assert.Equal(t, "SUCCESS", res.Status)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, lock,
		`{"region": "ROM", "action": "LOCK"}`, &res))
	assert.Equal(t, "NOT_SUPPORTED_BY_DEVICE", res.Status)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, lock,
		`{"region": "USER", "action": "SHUT"}`, &res))
	assert.Equal(t, "NOT_SUPPORTED_BY_DEVICE", res.Status)
}

func TestKillTagRoute(t *testing.T) {
	_, _, h := newTestRouter(t)

	var res tagResult
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/v1/tag/"+fixtureEPC+"/kill", `{}`, &res))
	assert.Equal(t, "PERMISSION_ERROR", res.Status)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/v1/tag/"+lockedEPC+"/kill",
		`{"password": "CAFEBABE"}`, &res))
	assert.Equal(t, "SUCCESS", res.Status)

	var scan struct {
		Results []json.RawMessage `json:"results"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, scanRoute, `{"cycles": 1}`, &scan))
	assert.Len(t, scan.Results, 1)
}

func TestSetTagPasswordRoute(t *testing.T) {
	_, _, h := newTestRouter(t)
	password := "/api/v1/tag/" + fixtureEPC + "/password"

	var res tagResult
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, password,
		`{"type": "access", "new_password": "01020304"}`, &res))
	assert.Equal(t, "SUCCESS", res.Status)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet,
		"/api/v1/tag/"+fixtureEPC+"/read?bank=PSW&offset=4&length=4&password=01020304", "", &res))
	assert.Equal(t, "01020304", res.Data)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, password, `{"new_password": 5}`, nil))
}

func TestRFPowerRoutes(t *testing.T) {
	_, _, h := newTestRouter(t)

	var power rfPowerBody
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, rfPowerRoute, "", &power))
	assert.EqualValues(t, 27, power.RFPower)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, rfPowerRoute, `{"rf_power": 25}`, &power))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, rfPowerRoute, "", &power))
	assert.EqualValues(t, 25, power.RFPower)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPut, rfPowerRoute, `{"rf_power": 99}`, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, rfPowerRoute, `{"rf_power": "max"}`, nil))
}

func TestMinRSSIRoutes(t *testing.T) {
	_, _, h := newTestRouter(t)

	var rssi minRSSIBody
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, minRSSIRoute, "", &rssi))
	assert.Equal(t, -70, rssi.MinRSSI)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, minRSSIRoute, `{"min_rssi": -45}`, &rssi))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, minRSSIRoute, "", &rssi))
	assert.Equal(t, -45, rssi.MinRSSI)

	// the second tag is now below the threshold
	var scan struct {
		Results []json.RawMessage `json:"results"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, scanRoute, `{"cycles": 1}`, &scan))
	assert.Len(t, scan.Results, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, minRSSIRoute, `{"min_rssi": 40000}`, nil))
}

func TestAntennaRoutes(t *testing.T) {
	app, cc, h := newTestRouter(t)

	var names []gateway.AntennaName
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, antennasRoute, "", &names))
	assert.Equal(t, []gateway.AntennaName{{ID: 0, Name: "All"}}, names)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, antennasRoute,
		`[{"antenna_id": 2, "antenna_name": "Exit"}]`, &names))
	assert.Equal(t, []gateway.AntennaName{{ID: 2, Name: "Exit"}}, names)
	assert.Equal(t, map[string][]byte{"Antennas/2": []byte("Exit")}, cc.valueMap)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, antennasRoute, `[]`, nil))

	cc.nextErr = errors.New("spoof error in ConfigClient.PutConfigurationValue")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPut, antennasRoute,
		`[{"antenna_id": 1, "antenna_name": "Dock Door"}]`, nil))
	assert.Equal(t, []gateway.AntennaName{{ID: 2, Name: "Exit"}}, app.gw.AntennaNames())
}

func TestIORoutes(t *testing.T) {
	_, _, h := newTestRouter(t)
	hs1State := "/api/v1/io/HS1/state"

	var state struct {
		Port  string `json:"port"`
		State string `json:"state"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, hs1State, "", &state))
	assert.Equal(t, "HS1", state.Port)
	assert.Equal(t, "LOW", state.State)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, hs1State, `{"state": "HIGH"}`, &state))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, hs1State, "", &state))
	assert.Equal(t, "HIGH", state.State)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/io/sws1_swd1/state", "", &state))
	assert.Equal(t, "SWS1_SWD1", state.Port)
	assert.Equal(t, "HIGH", state.State)

	var direction struct {
		Direction string `json:"direction"`
	}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/io/SWS1_SWD1/direction", "", &direction))
	assert.Equal(t, "INPUT", direction.Direction)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"unknown port", http.MethodGet, "/api/v1/io/HS9/state", "", http.StatusNotFound},
		{"set input", http.MethodPut, "/api/v1/io/SWS1_SWD1/state", `{"state": "LOW"}`, http.StatusConflict},
		{"missing state", http.MethodPut, hs1State, `{}`, http.StatusBadRequest},
		{"bad state", http.MethodPut, hs1State, `{"state": "MAYBE"}`, http.StatusBadRequest},
		{"bad direction", http.MethodPut, "/api/v1/io/HS1/direction", `{"direction": "UP"}`, http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.code, do(t, h, test.method, test.path, test.body, nil))
		})
	}

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/v1/io/HS1/direction",
		`{"direction": "INPUT"}`, &direction))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/io/HS1/direction", "", &direction))
	assert.Equal(t, "INPUT", direction.Direction)
}
