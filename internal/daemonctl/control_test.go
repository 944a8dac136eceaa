package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"punchsync/internal/api"
	"punchsync/internal/services"
	"punchsync/internal/testsupport"
)

func TestClientRoundTrips(t *testing.T) {
	var gotSync api.SyncRequest
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 42})
	})
	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DevicesResponse{Devices: []api.Device{{Name: "gate"}}})
	})
	mux.HandleFunc("POST /api/sync", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotSync)
		if gotSync.Device == "roof" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "device \"roof\" is not configured", Kind: "not_found"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.SyncReport{RunID: "run-1", TotalInserted: 2})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL+"/", "tok", server.Client())
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil || !status.Running || status.PID != 42 {
		t.Fatalf("Status: %+v %v", status, err)
	}
	devices, err := client.Devices(ctx)
	if err != nil || len(devices.Devices) != 1 {
		t.Fatalf("Devices: %+v %v", devices, err)
	}
	days := 3
	report, err := client.Sync(ctx, api.SyncRequest{Device: "gate", Days: &days})
	if err != nil || report.RunID != "run-1" || report.TotalInserted != 2 {
		t.Fatalf("Sync: %+v %v", report, err)
	}
	if gotSync.Device != "gate" || gotSync.Days == nil || *gotSync.Days != 3 {
		t.Fatalf("unexpected sync request %+v", gotSync)
	}

	_, err = client.Sync(ctx, api.SyncRequest{Device: "roof"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = NewClient(server.URL, "bad", server.Client()).Status(ctx)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for bad token, got %v", err)
	}
}

func TestClientReportsDaemonNotRunning(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, "", nil).Status(context.Background())
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestFromConfigUsesLoopbackForWildcard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "0.0.0.0:7488"
	client, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if client.baseURL != "http://127.0.0.1:7488" {
		t.Fatalf("unexpected base url %q", client.baseURL)
	}

	cfg.Paths.APIBind = ""
	if _, err := FromConfig(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStopRefusesCurrentProcess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: os.Getpid()})
	}))
	defer server.Close()

	if _, err := Stop(context.Background(), NewClient(server.URL, "", server.Client()), time.Second); err == nil {
		t.Fatal("expected refusal to signal the test process")
	}
}

func TestWaitForDaemonTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: false})
	}))
	defer server.Close()

	_, err := WaitForDaemon(context.Background(), NewClient(server.URL, "", server.Client()), 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
