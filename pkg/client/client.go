// Package client talks to a request daemon's HTTP API over its Unix
// socket, and can start a daemon on demand when none is running.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/internal/daemon/state"
)

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// RemoteClient calls one daemon's HTTP API over its Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
}

// NewRemoteClient creates a RemoteClient for the daemon socket.
func NewRemoteClient(socketPath string) *RemoteClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}
	return &RemoteClient{
		// No client-level timeout: ask requests legitimately run for
		// up to the daemon's per-request deadline.
		httpClient: &http.Client{Transport: transport},
		socketPath: socketPath,
	}
}

// IsRunning reports whether the daemon answers its health check.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// AskRequest mirrors the daemon's POST /api/ask body.
type AskRequest struct {
	Body        string `json:"body"`
	ReqID       string `json:"req_id,omitempty"`
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
}

// AskOptions tunes one Ask call. The zero value means a generated
// request id and the daemon's default deadline.
type AskOptions struct {
	ReqID   string
	Timeout time.Duration
}

// AskResult is one completed Ask: the reply text and the id the
// request was tracked under, caller-supplied or daemon-generated.
type AskResult struct {
	ReqID string
	Reply string
}

type askResponse struct {
	ReqID string `json:"req_id"`
	Reply string `json:"reply"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Ask submits a request body and blocks for the reply. Structured error
// codes returned by the daemon are rebuilt as CCBErrors so callers can
// distinguish a timeout from a dead daemon.
func (c *RemoteClient) Ask(ctx context.Context, body string, opts AskOptions) (*AskResult, error) {
	payload, err := json.Marshal(AskRequest{
		Body:        body,
		ReqID:       opts.ReqID,
		TimeoutSecs: int(opts.Timeout / time.Second),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/ask", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonUnreachable, "daemon did not answer")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil && env.Error.Code != "" {
			return nil, errors.New(errors.ErrorCode(env.Error.Code), env.Error.Message)
		}
		return nil, errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("daemon returned status %d", resp.StatusCode))
	}

	var ask askResponse
	if err := json.NewDecoder(resp.Body).Decode(&ask); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "undecodable daemon reply")
	}
	return &AskResult{ReqID: ask.ReqID, Reply: ask.Reply}, nil
}

// State fetches the daemon's live cycle state as raw JSON fields.
func (c *RemoteClient) State(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/api/state", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonUnreachable, "daemon did not answer")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("daemon returned status %d", resp.StatusCode))
	}
	var st map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return st, nil
}

// Close releases the client's connections.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// EnsureDaemon returns a client for the (project, provider) daemon,
// starting one when none answers. The started daemon is detached into
// its own session and records the current process as its parent, so it
// winds down when this controller goes away.
func EnsureDaemon(ctx context.Context, runDir, projectKey, provider, workDir string) (*RemoteClient, error) {
	socketPath := state.SocketPath(runDir, projectKey, provider)
	c := NewRemoteClient(socketPath)
	if c.IsRunning() {
		return c, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "cannot locate own executable")
	}
	cmd := exec.Command(exe, "askd", "start",
		"--provider", provider,
		"--dir", workDir,
		"--parent", fmt.Sprintf("%d", os.Getpid()))
	cmd.Dir = workDir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "starting daemon failed")
	}
	_ = cmd.Process.Release()

	// Wait for the socket to answer.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		if c.IsRunning() {
			return c, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDaemonUnreachable,
		fmt.Sprintf("daemon for %s did not come up on %s", provider, socketPath))
}
