package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/heater-share/internal/gpio"
	"github.com/sweeney/heater-share/internal/group"
	"github.com/sweeney/heater-share/internal/heater"
	"github.com/sweeney/heater-share/internal/metrics"
	"github.com/sweeney/heater-share/internal/status"
)

type fixture struct {
	ts       *httptest.Server
	tracker  *status.Tracker
	registry *group.Registry
	heaters  map[string]*heater.Heater
}

func newTestServer(t *testing.T) fixture {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	heaters := map[string]*heater.Heater{
		"bed0": heater.New("bed0", gpio.NewFakeOutput()),
		"bed1": heater.New("bed1", gpio.NewFakeOutput()),
	}
	cfg := group.DefaultConfig()
	cfg.IsBed = true
	cfg.Heaters = []string{"bed0", "bed1"}
	reg := group.NewRegistry()
	if err := reg.Load([]group.Spec{{Name: "bed", Config: cfg}}, func(name string) (*heater.Heater, bool) {
		h, ok := heaters[name]
		return h, ok
	}); err != nil {
		t.Fatalf("load: %v", err)
	}

	tr := status.NewTracker(start, status.Config{
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		TopicPrefix: "heater-share",
		HTTPAddr:    ":80",
	}, reg)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	g, _ := reg.Lookup("bed")
	g.AddObserver(m)
	g.AddObserver(tr)

	srv := New(":0", tr, promReg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return fixture{ts: ts, tracker: tr, registry: reg, heaters: heaters}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	f := newTestServer(t)
	f.tracker.SetMQTTConnected(true)
	f.heaters["bed0"].SetDuty(time.Now(), 0.4)
	g, _ := f.registry.Lookup("bed")
	g.Tick(time.Now())

	resp, body := get(t, f.ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if len(sj.Status.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(sj.Status.Groups))
	}
	gj := sj.Status.Groups[0]
	if gj.Name != "bed" || gj.Cycles != 1 || gj.Active != 1 {
		t.Errorf("unexpected group: %+v", gj)
	}
	if gj.Heaters[0].Duty != 0.4 {
		t.Errorf("bed0 duty: got %v, want 0.4", gj.Heaters[0].Duty)
	}
}

func TestGroupEndpoint(t *testing.T) {
	f := newTestServer(t)

	resp, body := get(t, f.ts.URL+"/groups/bed")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var gj status.GroupJSON
	if err := json.Unmarshal([]byte(body), &gj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if gj.Name != "bed" || !gj.IsBed || len(gj.Heaters) != 2 {
		t.Errorf("unexpected group: %+v", gj)
	}

	resp, _ = get(t, f.ts.URL+"/groups/chamber")
	if resp.StatusCode != 404 {
		t.Errorf("unknown group: got %d, want 404", resp.StatusCode)
	}
}

func TestHTMLEndpoints(t *testing.T) {
	f := newTestServer(t)
	f.heaters["bed1"].ReportTemperature(42.5, 60)

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, f.ts.URL+path)
		if resp.StatusCode != 200 {
			t.Errorf("%s: status %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: Content-Type %q, want text/html", path, ct)
		}
		for _, want := range []string{"Heater Share", "bed (bed)", "bed1", "42.5", "60.0", "IDLE"} {
			if !strings.Contains(body, want) {
				t.Errorf("%s: body missing %q", path, want)
			}
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newTestServer(t)
	f.heaters["bed0"].SetDuty(time.Now(), 0.5)
	g, _ := f.registry.Lookup("bed")
	g.Tick(time.Now())

	resp, body := get(t, f.ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	for _, want := range []string{
		`heater_share_cycles_total{group="bed"} 1`,
		`heater_share_heater_requested_duty{group="bed",heater="bed0"} 0.5`,
		`heater_share_active_heaters{group="bed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	f := newTestServer(t)
	resp, _ := get(t, f.ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newTestServer(t)
	resp, err := http.Post(f.ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	f := newTestServer(t)

	_, body := get(t, f.ts.URL+"/index.json")
	var sj1 status.StatusJSON
	json.Unmarshal([]byte(body), &sj1)
	if sj1.Status.MQTT.Connected || sj1.Status.Groups[0].Cycles != 0 {
		t.Errorf("unexpected initial state: %+v", sj1.Status)
	}

	f.tracker.SetMQTTConnected(true)
	g, _ := f.registry.Lookup("bed")
	g.Tick(time.Now())

	_, body = get(t, f.ts.URL+"/index.json")
	var sj2 status.StatusJSON
	json.Unmarshal([]byte(body), &sj2)
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
	if sj2.Status.Groups[0].Cycles != 1 {
		t.Errorf("expected 1 cycle after tick, got %d", sj2.Status.Groups[0].Cycles)
	}
}
