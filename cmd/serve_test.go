// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/adbhost/pkg/adb"
	"github.com/Thermoquad/adbhost/pkg/adb/adbtest"
	"github.com/Thermoquad/adbhost/pkg/monitor"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	lineEmulator = "emulator-5554\tdevice product:sdk_gphone model:Pixel_7 transport_id:1"
	linePhone    = "R58M123\tdevice product:beyond1 model:SM_G973F transport_id:2"
)

// hostDaemon answers the handful of host requests the router issues
func hostDaemon(t *testing.T, lines ...string) *adbtest.Daemon {
	t.Helper()
	return adbtest.NewDaemon(t, func(request string) []byte {
		switch request {
		case adb.DevicesCommand:
			return adbtest.Devices(lines...)
		case adb.VersionCommand:
			return adbtest.OkayLength("0029")
		case "host:features":
			return adbtest.Okay("shell_v2,cmd")
		case "host:transport:missing":
			return adbtest.Fail("device 'missing' not found")
		default:
			return adbtest.Fail("unknown host service")
		}
	})
}

// offlineServer points at a port nothing listens on
func offlineServer(t *testing.T) adb.Server {
	t.Helper()
	d := adbtest.NewDaemon(t, nil)
	srv := d.Server()
	d.Close()
	return srv
}

type testAPI struct {
	*httptest.Server
	registry *prometheus.Registry
}

func newTestAPI(t *testing.T, srv adb.Server, accounts gin.Accounts) *testAPI {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg)
	router := newRouter(srv, routerOptions{
		Registry: reg,
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
		Accounts: accounts,
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testAPI{Server: ts, registry: reg}
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func TestServe_Health(t *testing.T) {
	api := newTestAPI(t, offlineServer(t), nil)

	var body map[string]string
	resp := getJSON(t, api.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServe_Devices(t *testing.T) {
	d := hostDaemon(t, lineEmulator, "0123456789\tunauthorized", linePhone)
	api := newTestAPI(t, d.Server(), nil)

	var body struct {
		Devices  []adb.DeviceInfo `json:"devices"`
		Warnings []string         `json:"warnings"`
	}
	resp := getJSON(t, api.URL+"/api/v1/devices", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if len(body.Devices) != 2 {
		t.Fatalf("got %d devices, want 2: %+v", len(body.Devices), body.Devices)
	}
	if body.Devices[0].Serial != "emulator-5554" || body.Devices[1].Serial != "R58M123" {
		t.Errorf("unexpected order: %+v", body.Devices)
	}
	if body.Devices[0].Model() != "Pixel_7" {
		t.Errorf("model = %q, want Pixel_7", body.Devices[0].Model())
	}
	if len(body.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", body.Warnings)
	}
}

func TestServe_ActiveDevice(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		query      string
		wantStatus int
		wantSerial string
		wantKind   string
	}{
		{"first of many", []string{lineEmulator, linePhone}, "", http.StatusOK, "emulator-5554", ""},
		{"single of one", []string{linePhone}, "?single=true", http.StatusOK, "R58M123", ""},
		{"single of many", []string{lineEmulator, linePhone}, "?single=true", http.StatusConflict, "", "multiple_devices"},
		{"none", nil, "", http.StatusNotFound, "", "no_devices"},
		{"single of none", nil, "?single=1", http.StatusNotFound, "", "no_devices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := hostDaemon(t, tt.lines...)
			api := newTestAPI(t, d.Server(), nil)

			resp, err := http.Get(api.URL + "/api/v1/devices/active" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				var device adb.DeviceInfo
				if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
					t.Fatal(err)
				}
				if device.Serial != tt.wantSerial {
					t.Errorf("serial = %q, want %q", device.Serial, tt.wantSerial)
				}
				return
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
		})
	}
}

func TestServe_Version(t *testing.T) {
	d := hostDaemon(t)
	api := newTestAPI(t, d.Server(), nil)

	var body struct {
		Version int `json:"version"`
	}
	resp := getJSON(t, api.URL+"/api/v1/version", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Version != 41 {
		t.Errorf("version = %d, want 41", body.Version)
	}
}

func TestServe_Exec(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantOutput string
		wantKind   string
	}{
		{
			name:       "raw output",
			body:       `{"command": "host:features", "output": true}`,
			wantStatus: http.StatusOK,
			wantOutput: "shell_v2,cmd",
		},
		{
			name:       "length prefixed",
			body:       `{"command": "host:version", "output": true, "length": true}`,
			wantStatus: http.StatusOK,
			wantOutput: "0029",
		},
		{
			name:       "daemon failure",
			body:       `{"command": "host:transport:missing"}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   "adb",
		},
		{
			name:       "too long",
			body:       fmt.Sprintf(`{"command": %q}`, strings.Repeat("x", adb.MaxMessageLength+1)),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantKind:   "encoding_overflow",
		},
		{
			name:       "missing command",
			body:       `{"output": true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"command":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	d := hostDaemon(t)
	api := newTestAPI(t, d.Server(), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(api.URL+"/api/v1/exec", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				data, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, data)
			}

			if tt.wantStatus == http.StatusOK {
				var body struct {
					Output string `json:"output"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatal(err)
				}
				if body.Output != tt.wantOutput {
					t.Errorf("output = %q, want %q", body.Output, tt.wantOutput)
				}
				return
			}
			if tt.wantKind != "" {
				var body errorBody
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatal(err)
				}
				if body.Kind != tt.wantKind {
					t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
				}
			}
		})
	}
}

func TestServe_Offline(t *testing.T) {
	api := newTestAPI(t, offlineServer(t), nil)

	var body errorBody
	resp := getJSON(t, api.URL+"/api/v1/devices", &body)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if body.Kind != "offline" {
		t.Errorf("kind = %q, want offline", body.Kind)
	}
}

func TestServe_BasicAuth(t *testing.T) {
	d := hostDaemon(t, lineEmulator)
	api := newTestAPI(t, d.Server(), gin.Accounts{"lab": "secret"})

	resp, err := http.Get(api.URL + "/api/v1/devices")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without credentials: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, api.URL+"/api/v1/devices", nil)
	req.SetBasicAuth("lab", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with credentials: status = %d, want 200", resp.StatusCode)
	}

	// Health stays public
	resp, err = http.Get(api.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: status = %d, want 200", resp.StatusCode)
	}
}

func TestServe_RequestID(t *testing.T) {
	api := newTestAPI(t, offlineServer(t), nil)

	resp, err := http.Get(api.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if _, err := uuid.Parse(resp.Header.Get("X-Request-ID")); err != nil {
		t.Errorf("generated request id %q is not a UUID", resp.Header.Get("X-Request-ID"))
	}

	id := uuid.NewString()
	req, _ := http.NewRequest(http.MethodGet, api.URL+"/health", nil)
	req.Header.Set("X-Request-ID", id)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != id {
		t.Errorf("request id = %q, want %q", got, id)
	}

	req, _ = http.NewRequest(http.MethodGet, api.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "not a uuid")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got == "not a uuid" {
		t.Error("invalid request id should be replaced")
	}
}

func TestServe_Metrics(t *testing.T) {
	d := hostDaemon(t, lineEmulator)
	api := newTestAPI(t, d.Server(), nil)

	getJSON(t, api.URL+"/api/v1/devices", nil).Body.Close()
	getJSON(t, api.URL+"/api/v1/version", nil).Body.Close()

	resp, err := http.Get(api.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`adbhost_exchanges_total{command="devices",result="ok"} 1`,
		`adbhost_exchanges_total{command="host:version",result="ok"} 1`,
		`adbhost_exchange_duration_seconds_count{command="devices"} 1`,
	} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServe_MetricsLabelsBounded(t *testing.T) {
	d := hostDaemon(t)
	api := newTestAPI(t, d.Server(), nil)

	for _, command := range []string{"junk-1", "junk-2", "junk-3", strings.Repeat("y", 300)} {
		body := fmt.Sprintf(`{"command": %q}`, command)
		resp, err := http.Post(api.URL+"/api/v1/exec", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(api.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Contains(data, []byte(`adbhost_exchanges_total{command="other",result="adb"} 4`)) {
		t.Errorf("unknown commands not folded into one series:\n%s", data)
	}
	if bytes.Contains(data, []byte("junk")) {
		t.Error("request text leaked into metric labels")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{adb.ErrEncodingOverflow, http.StatusRequestEntityTooLarge},
		{&adb.ConnectionError{Op: "dial", Err: fmt.Errorf("%w: refused", adb.ErrOffline)}, http.StatusServiceUnavailable},
		{&adb.ConnectionError{Op: "read banner", Err: os.ErrDeadlineExceeded}, http.StatusGatewayTimeout},
		{adb.ErrNoDevices, http.StatusNotFound},
		{adb.ErrMultipleDevices, http.StatusConflict},
		{&adb.AdbError{Message: "closed"}, http.StatusBadGateway},
		{&adb.DecodingError{Kind: adb.DecodeTruncated}, http.StatusBadGateway},
		{errors.New("other"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
