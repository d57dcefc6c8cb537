package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mineq-project/mineq/pkg/calibration"
	"github.com/mineq-project/mineq/pkg/version"
)

func doRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := setupRoutes()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestTrackingRatesHandlers(t *testing.T) {
	setupTestDaemon(t, "")

	tests := []struct {
		name string
		path string
		code int
		body string
	}{
		{"list", "/tracking-rates", http.StatusOK, `[{"index":1,"rate":"sidereal"}]`},
		{"first item", "/tracking-rates/1", http.StatusOK, `{"index":1,"rate":"sidereal"}`},
		{"index zero", "/tracking-rates/0", http.StatusNotFound, ""},
		{"past end", "/tracking-rates/2", http.StatusNotFound, ""},
		{"not a number", "/tracking-rates/abc", http.StatusBadRequest, ""},
		{"axis rates", "/axis-rates/primary", http.StatusOK, `[]`},
		{"axis rates by number", "/axis-rates/2", http.StatusOK, `[]`},
		{"unknown axis", "/axis-rates/quaternary", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, http.MethodGet, tt.path, "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.code, w.Body.String())
			}
			if tt.body == "" {
				return
			}
			var got, want any
			_ = json.Unmarshal(w.Body.Bytes(), &got)
			_ = json.Unmarshal([]byte(tt.body), &want)
			gb, _ := json.Marshal(got)
			wb, _ := json.Marshal(want)
			if string(gb) != string(wb) {
				t.Fatalf("body = %s, want %s", gb, wb)
			}
		})
	}
}

func TestBoundsHandlers(t *testing.T) {
	setupTestDaemon(t, "")

	if b := decodeBody[calibration.Bounds](t, doRequest(t, http.MethodGet, "/bounds", "")); b.Low != 128 || b.High != 128 {
		t.Fatalf("unexpected default bounds %+v", b)
	}

	w := doRequest(t, http.MethodPut, "/bounds", `{"low":40,"high":210}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("set bounds: %d %s", w.Code, w.Body.String())
	}
	if b := conf.Bounds(); b.Low != 40 || b.High != 210 {
		t.Fatalf("bounds not applied, got %+v", b)
	}

	for _, body := range []string{`{"low":-1,"high":10}`, `{"low":0,"high":256}`, `"nope"`} {
		if w := doRequest(t, http.MethodPut, "/bounds", body); w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, w.Code)
		}
	}
	if b := conf.Bounds(); b.Low != 40 || b.High != 210 {
		t.Fatalf("rejected request changed bounds to %+v", b)
	}
}

func TestPortHandlers(t *testing.T) {
	setupTestDaemon(t, "")

	orig := listPorts
	defer func() { listPorts = orig }()
	listPorts = func() ([]string, error) { return []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil }

	ports := decodeBody[[]string](t, doRequest(t, http.MethodGet, "/ports", ""))
	if len(ports) != 2 || ports[1] != "/dev/ttyUSB0" {
		t.Fatalf("unexpected ports %v", ports)
	}

	if w := doRequest(t, http.MethodPut, "/port", `"/dev/ttyUSB0"`); w.Code != http.StatusCreated {
		t.Fatalf("set port: %d %s", w.Code, w.Body.String())
	}
	if p := decodeBody[string](t, doRequest(t, http.MethodGet, "/port", "")); p != "/dev/ttyUSB0" {
		t.Fatalf("unexpected port %q", p)
	}

	listPorts = func() ([]string, error) { return nil, errors.New("no serial ports") }
	if w := doRequest(t, http.MethodGet, "/ports", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestCalibrationHandlers(t *testing.T) {
	setupTestDaemon(t, "")

	if w := doRequest(t, http.MethodPost, "/calibration/start", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("start without port: status = %d, want 400", w.Code)
	}
	if w := doRequest(t, http.MethodPost, "/calibration/cancel", ""); w.Code != http.StatusConflict {
		t.Fatalf("cancel when idle: status = %d, want 409", w.Code)
	}

	conf.SetPort("/dev/ttyFAKE")
	stubDevice(t, silentDevice)

	if w := doRequest(t, http.MethodPost, "/calibration/start", ""); w.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(t, http.MethodPost, "/calibration/start", ""); w.Code != http.StatusConflict {
		t.Fatalf("second start: status = %d, want 409", w.Code)
	}
	if w := doRequest(t, http.MethodPut, "/bounds", `{"low":1,"high":2}`); w.Code != http.StatusConflict {
		t.Fatalf("set bounds while running: status = %d, want 409", w.Code)
	}

	st := decodeBody[calibration.Status](t, doRequest(t, http.MethodGet, "/calibration", ""))
	if st.Phase != calibration.PhaseLow || !st.CanCancel || st.Port != "/dev/ttyFAKE" {
		t.Fatalf("unexpected status %+v", st)
	}

	if w := doRequest(t, http.MethodPost, "/calibration/cancel", ""); w.Code != http.StatusCreated {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	st = decodeBody[calibration.Status](t, doRequest(t, http.MethodGet, "/calibration", ""))
	if st.Phase != calibration.PhaseIdle || st.CanCancel {
		t.Fatalf("unexpected status after cancel %+v", st)
	}
}

func TestScheduleHandlers(t *testing.T) {
	setupTestDaemon(t, "/dev/ttyFAKE")
	scheduler.Start()

	w := doRequest(t, http.MethodPut, "/schedule", `"0 0 3 * * *"`)
	if w.Code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", w.Code, w.Body.String())
	}
	if runs := decodeBody[[]time.Time](t, w); len(runs) != 3 {
		t.Fatalf("expected 3 next runs, got %v", runs)
	}

	if w := doRequest(t, http.MethodPost, "/schedule/postpone", `"1h"`); w.Code != http.StatusCreated {
		t.Fatalf("postpone: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(t, http.MethodPost, "/schedule/postpone", `"soon"`); w.Code != http.StatusBadRequest {
		t.Fatalf("postpone with bad duration: status = %d, want 400", w.Code)
	}
	if w := doRequest(t, http.MethodPost, "/schedule/skip", ""); w.Code != http.StatusCreated {
		t.Fatalf("skip: %d %s", w.Code, w.Body.String())
	}

	if w := doRequest(t, http.MethodPut, "/schedule", `"whenever"`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid schedule: status = %d, want 400", w.Code)
	}

	w = doRequest(t, http.MethodPut, "/schedule", `""`)
	if w.Code != http.StatusCreated {
		t.Fatalf("disable: %d %s", w.Code, w.Body.String())
	}
	if runs := decodeBody[[]time.Time](t, w); len(runs) != 0 {
		t.Fatalf("expected no runs after disable, got %v", runs)
	}
	if w := doRequest(t, http.MethodPost, "/schedule/skip", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("skip without schedule: status = %d, want 400", w.Code)
	}
}

func TestMiscHandlers(t *testing.T) {
	setupTestDaemon(t, "/dev/ttyFAKE")

	if v := decodeBody[string](t, doRequest(t, http.MethodGet, "/version", "")); v != version.Version {
		t.Fatalf("version = %q, want %q", v, version.Version)
	}

	cfg := decodeBody[map[string]any](t, doRequest(t, http.MethodGet, "/config", ""))
	if cfg["port"] != "/dev/ttyFAKE" || cfg["driver"] != "bugst" {
		t.Fatalf("unexpected config %v", cfg)
	}

	w := doRequest(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "mineq_malformed_lines_total") {
		t.Fatalf("unexpected metrics response %d", w.Code)
	}
}

func httptestServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(setupRoutes())
	t.Cleanup(srv.Close)
	return srv.URL
}
