package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"punchsync/internal/config"
	"punchsync/internal/services"
	"punchsync/internal/terminal"
	"punchsync/internal/terminal/bridge"
)

type gateway struct {
	mu    sync.Mutex
	calls []string
	user  terminal.User
}

func (g *gateway) record(r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, r.Method+" "+r.URL.Path)
}

func (g *gateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req struct {
			Host      string `json:"host"`
			Port      int    `json:"port"`
			TimeoutMS int64  `json:"timeout_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode open request: %v", err)
		}
		if req.Host != "10.0.0.5" || req.Port != 4370 || req.TimeoutMS != 5000 {
			t.Errorf("unexpected open request %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"session_id":"s-1"}`))
	})
	mux.HandleFunc("POST /v1/sessions/s-1/disable", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/sessions/s-1/enable", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v1/sessions/s-1/attendance", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		_, _ = w.Write([]byte(`{"records":[
			{"user_id":"7","timestamp":"2024-03-04T09:00:00+03:00","punch":0,"status":1},
			{"user_id":8,"timestamp":"2024-03-04 17:30:00"},
			{"user_id":"9","timestamp":"garbage"}
		]}`))
	})
	mux.HandleFunc("GET /v1/sessions/s-1/info", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		_, _ = w.Write([]byte(`{"serial_number":"A1","platform":"ZEM560","firmware_version":"6.60","device_time":"2024-03-04T10:00:00Z","users_count":2,"records_count":3}`))
	})
	mux.HandleFunc("PUT /v1/sessions/s-1/users/7", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		g.mu.Lock()
		defer g.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&g.user); err != nil {
			t.Errorf("decode user: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /v1/sessions/s-1", func(w http.ResponseWriter, r *http.Request) {
		g.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestBridgeSessionLifecycle(t *testing.T) {
	gw := &gateway{}
	server := httptest.NewServer(gw.handler(t))
	defer server.Close()

	driver := bridge.New(server.URL+"/", "tok-1", server.Client())
	ctx := context.Background()

	session, err := driver.Connect(ctx, "10.0.0.5", 4370, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := session.DisableDevice(ctx); err != nil {
		t.Fatalf("DisableDevice: %v", err)
	}

	records, err := session.Attendance(ctx)
	if err != nil {
		t.Fatalf("Attendance: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	first := records[0]
	if first.UserID != "7" || first.Naive || first.Punch == nil || *first.Punch != 0 || first.Status == nil || *first.Status != 1 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first timestamp %v", first.Timestamp)
	}
	second := records[1]
	if second.UserID != "8" || !second.Naive || second.Punch != nil || second.Status != nil {
		t.Fatalf("unexpected second record %+v", second)
	}
	if second.Timestamp.Hour() != 17 || second.Timestamp.Minute() != 30 {
		t.Fatalf("expected wall clock preserved, got %v", second.Timestamp)
	}
	if !records[2].Timestamp.IsZero() {
		t.Fatalf("expected garbage timestamp to stay zero, got %v", records[2].Timestamp)
	}

	info, err := session.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Serial != "A1" || info.UsersCount != 2 || info.RecordsCount != 3 || info.DeviceTime.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}

	if err := session.SetUser(ctx, terminal.User{UID: 7, UserID: "7", Name: "Sara"}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if gw.user.Name != "Sara" || gw.user.UID != 7 {
		t.Fatalf("unexpected user sent %+v", gw.user)
	}

	if err := session.EnableDevice(ctx); err != nil {
		t.Fatalf("EnableDevice: %v", err)
	}
	if err := session.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	want := []string{
		"POST /v1/sessions",
		"POST /v1/sessions/s-1/disable",
		"GET /v1/sessions/s-1/attendance",
		"GET /v1/sessions/s-1/info",
		"PUT /v1/sessions/s-1/users/7",
		"POST /v1/sessions/s-1/enable",
		"DELETE /v1/sessions/s-1",
	}
	if len(gw.calls) != len(want) {
		t.Fatalf("unexpected calls %v", gw.calls)
	}
	for i := range want {
		if gw.calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, gw.calls[i], want[i])
		}
	}
}

func TestBridgeStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusNotImplemented, terminal.ErrDriverUnavailable},
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusGatewayTimeout, services.ErrConnection},
		{http.StatusInternalServerError, services.ErrTransient},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"terminal says no"}`))
		}))
		driver := bridge.New(server.URL, "", server.Client())
		_, err := driver.Connect(context.Background(), "10.0.0.5", 4370, time.Second)
		server.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestBridgeUnreachableGatewayIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	driver := bridge.New(url, "", nil)
	_, err := driver.Connect(context.Background(), "10.0.0.5", 4370, time.Second)
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestNewFromConfigWithoutURLIsUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Devices.BridgeURL = ""
	_, err := bridge.NewFromConfig(&cfg).Connect(context.Background(), "10.0.0.5", 4370, time.Second)
	if !errors.Is(err, terminal.ErrDriverUnavailable) {
		t.Fatalf("expected driver unavailable, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, naive, err := bridge.ParseTimestamp("2024-03-04T09:15:00Z")
	if err != nil || naive || !ts.Equal(time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected aware parse %v %v %v", ts, naive, err)
	}
	ts, naive, err = bridge.ParseTimestamp("2024-03-04 09:15:00")
	if err != nil || !naive || ts.Hour() != 9 {
		t.Fatalf("unexpected naive parse %v %v %v", ts, naive, err)
	}
	if _, _, err := bridge.ParseTimestamp(""); err == nil {
		t.Fatal("expected error for empty timestamp")
	}
}
