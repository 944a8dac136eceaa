package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"punchsync/internal/api"
	"punchsync/internal/config"
	"punchsync/internal/logging"
	"punchsync/internal/services"
	"punchsync/internal/syncer"
)

const maxSyncRequestBytes = 4 << 10

type apiServer struct {
	bind          string
	logger        *slog.Logger
	daemon        *Daemon
	lookbackDays  int
	autoAggregate bool
	now           func() time.Time

	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when no bind address is configured; the nil
// server's methods are no-ops.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil || cfg.Paths.APIBind == "" {
		return nil
	}
	srv := &apiServer{
		bind:          cfg.Paths.APIBind,
		logger:        logging.NewComponentLogger(logger, "api-server"),
		daemon:        d,
		lookbackDays:  cfg.Schedule.LookbackDays,
		autoAggregate: cfg.Schedule.AutoAggregate,
		now:           time.Now,
	}
	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Syncs of slow terminals can take a while with retries.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String(logging.FieldAddress, listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	if status.SyncError != "" {
		s.writeError(w, http.StatusInternalServerError, errors.New(status.SyncError))
		return
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Sync:         api.FromSyncStatus(status.Sync),
		Jobs:         api.FromJobs(status.Jobs),
	})
}

func (s *apiServer) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.daemon.orch.ListConfiguredDevices()
	s.writeJSON(w, http.StatusOK, api.DevicesResponse{Devices: api.FromDevices(devices)})
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	body := http.MaxBytesReader(w, r.Body, maxSyncRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, services.Wrap(services.ErrValidation, "api", "sync", "decode request", err))
		return
	}

	days := s.lookbackDays
	if req.Days != nil {
		if *req.Days < 0 {
			s.writeError(w, http.StatusBadRequest, services.Wrap(services.ErrValidation, "api", "sync", "days must be >= 0", nil))
			return
		}
		days = *req.Days
	}
	autoAggregate := s.autoAggregate
	if req.AutoAggregate != nil {
		autoAggregate = *req.AutoAggregate
	}
	since, until := syncer.Window(days, s.now())

	report, err := s.daemon.Sync(r.Context(), syncer.Options{
		Device:        req.Device,
		Since:         since,
		Until:         until,
		AutoAggregate: autoAggregate,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReport(report))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}
