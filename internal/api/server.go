// Package api serves discovery progress, discovered accounts and metrics
// over HTTP while a discovery run is in progress.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrz1836/scout/internal/account"
	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/discovery"
	"github.com/mrz1836/scout/internal/output"
	"github.com/mrz1836/scout/internal/telemetry"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Sessions reads discovery sessions.
type Sessions interface {
	List() []discovery.Session
	Snapshot(deviceState string) (discovery.Snapshot, bool)
}

// Accounts lists discovered accounts.
type Accounts interface {
	List(deviceState string) []account.Account
}

// Devices lists connected device states.
type Devices interface {
	States() []string
}

// Gate reports whether a device operation is in flight.
type Gate interface {
	Busy() bool
}

// Events lists recorded telemetry events.
type Events interface {
	Events() []telemetry.Event
}

// Server is the read-only status API.
type Server struct {
	sessions Sessions
	accounts Accounts
	devices  Devices
	gate     Gate
	events   Events
	gatherer prometheus.Gatherer
	logger   *config.Logger
	router   *mux.Router
}

// NewServer creates a server. A nil gatherer disables /metrics.
func NewServer(sessions Sessions, accounts Accounts, gatherer prometheus.Gatherer, logger *config.Logger) *Server {
	if logger == nil {
		logger = config.NullLogger()
	}
	s := &Server{
		sessions: sessions,
		accounts: accounts,
		gatherer: gatherer,
		logger:   logger.Named("api"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.sessionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{device}", s.sessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{device}", s.accountsHandler).Methods(http.MethodGet)
	r.HandleFunc("/events", s.eventsHandler).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, scouterr.ErrNotFound)
	})
	s.router = r
	return s
}

// WithDevices adds connected devices and gate activity to /healthz.
func (s *Server) WithDevices(devices Devices, gate Gate) *Server {
	s.devices = devices
	s.gate = gate
	return s
}

// WithEvents serves recorded completion events on /events.
func (s *Server) WithEvents(events Events) *Server {
	s.events = events
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return scouterr.WithCause(scouterr.ErrInvalidInput, err)
	}
	return s.Serve(ctx, ln)
}

type healthView struct {
	Status     string   `json:"status"`
	Devices    []string `json:"devices,omitempty"`
	DeviceBusy bool     `json:"device_busy,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	view := healthView{Status: "ok"}
	if s.devices != nil {
		view.Devices = s.devices.States()
	}
	if s.gate != nil {
		view.DeviceBusy = s.gate.Busy()
	}
	writeJSON(w, http.StatusOK, view)
}

type eventView struct {
	telemetry.Event
	Networks []string `json:"networks"`
}

func (s *Server) eventsHandler(w http.ResponseWriter, _ *http.Request) {
	out := []eventView{}
	if s.events != nil {
		for _, e := range s.events.Events() {
			out = append(out, eventView{Event: e, Networks: e.Networks()})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type sessionView struct {
	DeviceState string `json:"device_state"`
	discovery.Snapshot
}

func (s *Server) sessionsHandler(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.List()
	out := make([]sessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionView{
			DeviceState: sess.DeviceState,
			Snapshot: discovery.Snapshot{
				Status:         sess.Status,
				Total:          sess.Total,
				Loaded:         sess.Loaded,
				FailedNetworks: sess.Failed,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	snap, ok := s.sessions.Snapshot(device)
	if !ok {
		writeError(w, http.StatusNotFound, scouterr.WithDetails(scouterr.ErrNotFound, map[string]string{"device": device}))
		return
	}
	writeJSON(w, http.StatusOK, sessionView{DeviceState: device, Snapshot: snap})
}

func (s *Server) accountsHandler(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeJSON(w, http.StatusOK, []account.Account{})
		return
	}
	writeJSON(w, http.StatusOK, s.accounts.List(mux.Vars(r)["device"]))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, output.ErrorOutput{Error: output.NewErrorDetail(err)})
}
