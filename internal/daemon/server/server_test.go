package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccbridge/ccb/internal/daemon/askd"
	"github.com/ccbridge/ccb/pkg/sentinel"
)

func echoSpawn() askd.SpawnFunc {
	return func(ctx context.Context) (*askd.Child, error) {
		stdinR, stdinW := io.Pipe()
		stdoutR, stdoutW := io.Pipe()
		go func() {
			sc := bufio.NewScanner(stdinR)
			reqID := ""
			var body []string
			inBody := false
			for sc.Scan() {
				line := sc.Text()
				switch {
				case strings.HasPrefix(line, sentinel.ReqIDPrefix):
					reqID = strings.TrimSpace(strings.TrimPrefix(line, sentinel.ReqIDPrefix))
					body = body[:0]
					inBody = true
				case strings.HasPrefix(line, "End your reply"):
					inBody = false
				case strings.HasPrefix(line, sentinel.DonePrefix):
					fmt.Fprintf(stdoutW, "echo: %s\n%s %s\n",
						strings.TrimSpace(strings.Join(body, " ")), sentinel.DonePrefix, reqID)
				case inBody:
					body = append(body, line)
				}
			}
			_ = stdoutW.Close()
		}()
		return &askd.Child{Stdin: stdinW, Stdout: stdoutR, Wait: func() error { return nil }}, nil
	}
}

func startServer(t *testing.T) (socketPath string, client *http.Client) {
	t.Helper()
	return startServerWith(t, echoSpawn())
}

func startServerWith(t *testing.T, spawn askd.SpawnFunc) (socketPath string, client *http.Client) {
	t.Helper()
	socketPath = filepath.Join(t.TempDir(), "askd.sock")

	d := askd.New(askd.Options{Provider: "claude", Timeout: 5 * time.Second, Spawn: spawn})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	srv := New(d, "claude", nil)
	go srv.ListenAndServe(socketPath)
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	client = &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var dialer net.Dialer
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 10 * time.Second,
	}

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://unix/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	return socketPath, client
}

func TestAskEndpoint(t *testing.T) {
	_, client := startServer(t)

	payload, _ := json.Marshal(AskRequest{Body: "hello"})
	resp, err := client.Post("http://unix/api/ask", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ask AskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ask))
	assert.Equal(t, "echo: hello", ask.Reply)
	assert.NotEmpty(t, ask.ReqID)
}

func TestAskEndpointEchoesCallerReqID(t *testing.T) {
	_, client := startServer(t)

	payload, _ := json.Marshal(AskRequest{Body: "hello", ReqID: "20260829-120000-000-1234-7"})
	resp, err := client.Post("http://unix/api/ask", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ask AskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ask))
	assert.Equal(t, "20260829-120000-000-1234-7", ask.ReqID)
}

// mutedFirstSpawn builds a fake assistant that never answers its first
// request and echoes every later one.
func mutedFirstSpawn() askd.SpawnFunc {
	return func(ctx context.Context) (*askd.Child, error) {
		stdinR, stdinW := io.Pipe()
		stdoutR, stdoutW := io.Pipe()
		go func() {
			sc := bufio.NewScanner(stdinR)
			reqID := ""
			call := 0
			for sc.Scan() {
				line := sc.Text()
				switch {
				case strings.HasPrefix(line, sentinel.ReqIDPrefix):
					reqID = strings.TrimSpace(strings.TrimPrefix(line, sentinel.ReqIDPrefix))
				case strings.HasPrefix(line, sentinel.DonePrefix):
					call++
					if call == 1 {
						continue
					}
					fmt.Fprintf(stdoutW, "late echo\n%s %s\n", sentinel.DonePrefix, reqID)
				}
			}
			_ = stdoutW.Close()
		}()
		return &askd.Child{Stdin: stdinW, Stdout: stdoutR, Wait: func() error { return nil }}, nil
	}
}

func TestAskEndpointTimeoutIsGatewayTimeout(t *testing.T) {
	_, client := startServerWith(t, mutedFirstSpawn())

	// A caller timeout shorter than the daemon default must resolve as
	// REQUEST_TIMEOUT over the wire, not an internal error, and the
	// daemon must keep serving afterwards.
	payload, _ := json.Marshal(AskRequest{Body: "void", TimeoutSecs: 1})
	resp, err := client.Post("http://unix/api/ask", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "REQUEST_TIMEOUT", body.Error.Code)

	payload, _ = json.Marshal(AskRequest{Body: "again"})
	resp2, err := client.Post("http://unix/api/ask", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var ask AskResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&ask))
	assert.Equal(t, "late echo", ask.Reply)
}

func TestAskEndpointRejectsEmptyBody(t *testing.T) {
	_, client := startServer(t)

	resp, err := client.Post("http://unix/api/ask", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INVALID_INPUT", body.Error.Code)
}

func TestStateEndpoint(t *testing.T) {
	_, client := startServer(t)

	resp, err := client.Get("http://unix/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "claude", st.Provider)
	assert.GreaterOrEqual(t, st.QueueDepth, 0)
}
