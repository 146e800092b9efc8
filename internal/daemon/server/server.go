// Package server provides the HTTP API of a request daemon, served over
// a Unix socket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/internal/daemon/askd"
	"github.com/ccbridge/ccb/pkg/sentinel"
)

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Body string `json:"body"`
	// ReqID is a caller-supplied request id. Empty means the daemon
	// generates one.
	ReqID string `json:"req_id,omitempty"`
	// TimeoutSecs overrides the daemon's per-request deadline for this
	// request only. Zero means the daemon default.
	TimeoutSecs int `json:"timeout_secs,omitempty"`
}

// AskResponse is the success body of POST /api/ask.
type AskResponse struct {
	ReqID string `json:"req_id,omitempty"`
	Reply string `json:"reply"`
}

// StatusResponse is the body of GET /api/state.
type StatusResponse struct {
	Provider   string    `json:"provider"`
	Phase      string    `json:"phase"`
	QueueDepth int       `json:"queue_depth"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
}

// Server exposes one Daemon over a Unix socket.
type Server struct {
	logger    *logrus.Entry
	server    *http.Server
	daemon    *askd.Daemon
	provider  string
	startedAt time.Time
}

// New creates a Server fronting daemon.
func New(daemon *askd.Daemon, provider string, logger *logrus.Entry) *Server {
	return &Server{
		logger:    logger,
		daemon:    daemon,
		provider:  provider,
		startedAt: time.Now(),
	}
}

// ListenAndServe starts serving on the given unix socket path. It
// blocks until the server stops or fails. The socket is owner-only; a
// stale socket from a crashed daemon is removed first.
func (s *Server) ListenAndServe(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/state", s.handleState)

	s.server = &http.Server{
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	if s.logger != nil {
		s.logger.WithField("socket", socketPath).Info("Daemon listening")
	}
	return s.server.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("Shutting down server...")
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleAsk runs one request through the daemon's queue and returns the
// reply. Ask requests do not have an HTTP-level timeout; the deadline
// is the daemon's own per-request one, so the connection stays open for
// slow assistants.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "unreadable request body"))
		return
	}
	var req AskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed ask request"))
		return
	}
	if req.Body == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "empty ask body"))
		return
	}

	reqID := req.ReqID
	if reqID == "" {
		reqID = sentinel.NewReqID()
	}

	// The per-request deadline travels with the queued request, not
	// the HTTP context; a timed-out request resolves as
	// REQUEST_TIMEOUT while the connection stays open for the answer.
	reply, err := s.daemon.Submit(r.Context(), askd.Request{
		ID:      reqID,
		Body:    req.Body,
		Timeout: time.Duration(req.TimeoutSecs) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AskResponse{ReqID: reqID, Reply: reply})
}

// handleState reports the daemon's live cycle state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Provider:   s.provider,
		Phase:      string(s.daemon.Phase()),
		QueueDepth: s.daemon.QueueDepth(),
		PID:        os.Getpid(),
		StartedAt:  s.startedAt,
	})
}

// errorBody is the JSON error envelope. Clients rebuild a CCBError
// from it so error codes survive the HTTP hop.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeRequestTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrCodeDaemonUnreachable:
		status = http.StatusServiceUnavailable
	}
	var body errorBody
	body.Error.Code = string(code)
	body.Error.Message = err.Error()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
