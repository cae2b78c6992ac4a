package health_server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/lanmaster/lanmaster/shared/logger"
)

const shutdownTimeout = 2 * time.Second

// RoundStatus summarises the last control round a master ran.
type RoundStatus struct {
	ID          string    `json:"id"`
	Responses   int       `json:"responses"`
	Brightness  int32     `json:"brightness"`
	Text        string    `json:"text"`
	CompletedAt time.Time `json:"completed_at"`
}

// Status is the document served on /status.
type Status struct {
	Identity   string       `json:"identity"`
	State      string       `json:"state"`
	Master     string       `json:"master,omitempty"`
	MasterAddr string       `json:"master_addr,omitempty"`
	LastRound  *RoundStatus `json:"last_round,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// HealthServer exposes a liveness probe and the node's current status over
// HTTP. The status is replaced wholesale, so handlers never see a partial
// update.
type HealthServer struct {
	port     string
	listener net.Listener
	server   *http.Server
	status   atomic.Value // Status
	wg       sync.WaitGroup
}

func NewHealthServer(port string) *HealthServer {
	hs := &HealthServer{port: port}
	hs.status.Store(Status{State: "Starting", UpdatedAt: time.Now()})
	return hs
}

// SetStatus publishes a new status document.
func (hs *HealthServer) SetStatus(s Status) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	hs.status.Store(s)
}

func (hs *HealthServer) Status() Status {
	return hs.status.Load().(Status)
}

// Handler returns the router serving /health and /status.
func (hs *HealthServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", hs.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", hs.handleStatus).Methods(http.MethodGet)
	return router
}

func (hs *HealthServer) Start() error {
	listener, err := net.Listen("tcp", ":"+hs.port)
	if err != nil {
		return fmt.Errorf("failed to start health server on port %s: %w", hs.port, err)
	}

	hs.listener = listener
	hs.server = &http.Server{
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 2 * time.Second,
	}
	logger.LogInfo("HealthServer", "Listening on %s", listener.Addr())

	hs.wg.Add(1)
	go func() {
		defer hs.wg.Done()
		if err := hs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("HealthServer", "Serve failed: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (hs *HealthServer) Addr() net.Addr {
	if hs.listener == nil {
		return nil
	}
	return hs.listener.Addr()
}

func (hs *HealthServer) Stop() {
	if hs.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.server.Shutdown(ctx); err != nil {
		logger.LogWarn("HealthServer", "Shutdown: %v", err)
	}

	hs.wg.Wait()
	logger.LogInfo("HealthServer", "Stopped")
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (hs *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(hs.Status()); err != nil {
		logger.LogWarn("HealthServer", "Failed to write status: %v", err)
	}
}
