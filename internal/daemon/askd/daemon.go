// Package askd implements the request daemon: the single owner of one
// assistant process per (project, provider), serializing all requests
// through it in strict FIFO order and correlating replies with the
// sentinel protocol.
package askd

import (
	"bufio"
	"context"
	goerrors "errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/internal/daemon/state"
	"github.com/ccbridge/ccb/pkg/sentinel"
)

// Phase names the daemon's position in its request cycle. Exposed for
// status tooling; the cycle itself lives in dispatch.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseReady    Phase = "ready"
	PhaseDispatch Phase = "dispatching"
	PhaseAwaiting Phase = "awaiting-reply"
	PhaseExiting  Phase = "exiting"
)

// Child is a spawned assistant process reduced to the three things the
// daemon touches: its stdin, its stdout, and its exit.
type Child struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Wait   func() error
}

// SpawnFunc produces the assistant child process. Injectable so the
// request cycle can be tested against an in-process fake.
type SpawnFunc func(ctx context.Context) (*Child, error)

// CommandSpawner returns a SpawnFunc that execs the provider command in
// workDir, with stderr routed into the daemon log.
func CommandSpawner(command []string, workDir string, logger *logrus.Entry) SpawnFunc {
	return func(ctx context.Context) (*Child, error) {
		if len(command) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "empty provider command")
		}
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Dir = workDir
		if logger != nil {
			cmd.Stderr = logger.WriterLevel(logrus.DebugLevel)
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &Child{Stdin: stdin, Stdout: stdout, Wait: cmd.Wait}, nil
	}
}

// Options configures a Daemon.
type Options struct {
	Provider  string
	WorkDir   string
	ParentPID int
	// Timeout is the default per-request deadline, used when a
	// submission carries none. A timed-out request fails; the child
	// and the queue keep going.
	Timeout time.Duration
	Spawn   SpawnFunc
	State   *state.Store
	Logger  *logrus.Entry
}

type result struct {
	reply string
	err   error
}

type request struct {
	id       string
	body     string
	timeout  time.Duration
	deadline time.Time
	done     chan result
}

// Request is one submission to the daemon's queue. ID and Timeout are
// optional: a missing id is minted, a zero timeout falls back to the
// daemon default.
type Request struct {
	ID      string
	Body    string
	Timeout time.Duration
}

// Daemon serializes requests to one assistant process. At most one
// request is in flight; the rest wait in FIFO order.
type Daemon struct {
	provider  string
	workDir   string
	parentPID int
	timeout   time.Duration
	spawn     SpawnFunc
	store     *state.Store
	logger    *logrus.Entry

	queue chan *request
	child *Child

	mu      sync.Mutex
	phase   Phase
	depth   int
	managed bool
}

// New creates a Daemon from opts. Run must be called before requests
// make progress; Ask may be called immediately and will queue.
func New(opts Options) *Daemon {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Daemon{
		provider:  opts.Provider,
		workDir:   opts.WorkDir,
		parentPID: opts.ParentPID,
		timeout:   timeout,
		spawn:     opts.Spawn,
		store:     opts.State,
		logger:    opts.Logger,
		queue:     make(chan *request, 128),
		phase:     PhaseStarting,
	}
}

// Phase returns the current cycle phase.
func (d *Daemon) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// QueueDepth returns the number of accepted, uncompleted requests,
// including the in-flight one.
func (d *Daemon) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depth
}

// Run spawns the child and serves the queue until ctx is canceled or
// the child's pipe breaks. On return the child's stdin is closed and
// the published state file is removed. A canceled context is a normal
// shutdown, not an error.
func (d *Daemon) Run(ctx context.Context) error {
	d.setPhase(PhaseStarting)
	d.publishState()

	child, err := d.spawn(ctx)
	if err != nil {
		d.setPhase(PhaseExiting)
		d.failAll(errors.Wrap(err, errors.ErrCodeInternal, "spawning assistant process failed"))
		return errors.Wrap(err, errors.ErrCodeInternal, "spawning assistant process failed")
	}
	d.child = child
	d.mu.Lock()
	d.managed = true
	d.mu.Unlock()
	d.publishState()

	lines := make(chan string, 64)
	go d.readOutput(child.Stdout, lines)

	err = d.dispatch(ctx, lines)

	d.setPhase(PhaseExiting)
	if child.Stdin != nil {
		_ = child.Stdin.Close()
	}
	// Unblock the reader if it is still mid-send.
	go func() {
		for range lines {
		}
	}()
	if d.store != nil {
		_ = d.store.Delete()
	}
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Ask submits body with a generated id and the daemon's default
// timeout. See Submit.
func (d *Daemon) Ask(ctx context.Context, body string) (string, error) {
	return d.Submit(ctx, Request{Body: body})
}

// Submit enqueues r and blocks until its reply, its deadline, or ctx
// cancellation. The deadline is carried by the queued request itself,
// so it keeps counting while the request waits behind others. Safe for
// concurrent use; concurrent callers are served strictly in enqueue
// order.
func (d *Daemon) Submit(ctx context.Context, r Request) (string, error) {
	id := r.ID
	if id == "" {
		id = sentinel.NewReqID()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	req := &request{
		id:       id,
		body:     r.Body,
		timeout:  timeout,
		deadline: time.Now().Add(timeout),
		done:     make(chan result, 1),
	}
	d.addDepth(1)
	select {
	case d.queue <- req:
	case <-ctx.Done():
		d.addDepth(-1)
		return "", ctx.Err()
	}
	d.publishState()

	select {
	case res := <-req.done:
		return res.reply, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Daemon) readOutput(r io.Reader, lines chan<- string) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines <- sc.Text()
	}
	if err := sc.Err(); err != nil && d.logger != nil {
		d.logger.WithError(err).Warn("Assistant stdout closed with error")
	}
	close(lines)
}

// dispatch is the request cycle: Ready, pop one request, Dispatching
// (write frame), Awaiting-reply (accumulate lines to a DONE marker or
// the deadline), back to Ready. A closed line channel means the child
// is gone and is fatal.
func (d *Daemon) dispatch(ctx context.Context, lines <-chan string) error {
	for {
		d.setPhase(PhaseReady)
		var req *request
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return d.pipeBroken(nil)
			}
			if d.logger != nil {
				d.logger.WithField("line", line).Debug("Unsolicited assistant output")
			}
			continue
		case req = <-d.queue:
		}

		// A request can expire while queued behind a slow one. Do not
		// hand it to the assistant; resolve it and take the next.
		if !req.deadline.After(time.Now()) {
			if d.logger != nil {
				d.logger.WithField("req_id", req.id).
					Warn("Request expired while queued, skipping dispatch")
			}
			d.finish(req, result{err: errors.RequestTimeout(req.id, req.timeout.String())})
			continue
		}

		d.setPhase(PhaseDispatch)
		frame := sentinel.WrapRequest(req.body, req.id)
		if _, err := io.WriteString(d.child.Stdin, frame); err != nil {
			e := d.pipeBroken(req)
			return e
		}

		d.setPhase(PhaseAwaiting)
		if err := d.await(ctx, req, lines); err != nil {
			return err
		}
	}
}

// await accumulates reply lines for req. It returns a non-nil error
// only for fatal conditions; timeouts and sentinel mismatches resolve
// the request and keep the daemon running. The deadline was fixed at
// submission, so time spent queued counts against it.
func (d *Daemon) await(ctx context.Context, req *request, lines <-chan string) error {
	timer := time.NewTimer(time.Until(req.deadline))
	defer timer.Stop()

	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			d.finish(req, result{err: ctx.Err()})
			return ctx.Err()
		case <-timer.C:
			if d.logger != nil {
				d.logger.WithFields(logrus.Fields{
					"req_id":  req.id,
					"timeout": req.timeout.String(),
				}).Warn("Request deadline elapsed, advancing queue")
			}
			d.finish(req, result{err: errors.RequestTimeout(req.id, req.timeout.String())})
			return nil
		case line, ok := <-lines:
			if !ok {
				return d.pipeBroken(req)
			}
			id, isDone := sentinel.ParseDone(line)
			if !isDone {
				buf.WriteString(line)
				buf.WriteByte('\n')
				continue
			}
			// Any DONE marker satisfies the oldest outstanding
			// request. A wrong or missing id is logged and tolerated:
			// assistants do not always echo ids faithfully.
			if id != req.id && d.logger != nil {
				mismatch := errors.SentinelMismatch(req.id, id)
				d.logger.WithField("code", string(errors.GetCode(mismatch))).
					Warn(mismatch.Message)
			}
			reply := sentinel.StripReply(buf.String(), req.id)
			d.finish(req, result{reply: reply})
			return nil
		}
	}
}

// pipeBroken resolves the in-flight request (if any) and every queued
// request with DAEMON_UNREACHABLE, then returns the fatal error.
func (d *Daemon) pipeBroken(inflight *request) error {
	e := errors.DaemonUnreachable(d.provider, io.ErrClosedPipe)
	if d.logger != nil {
		d.logger.WithField("code", string(errors.GetCode(e))).
			Error("Assistant process pipe broken, exiting")
	}
	if inflight != nil {
		d.finish(inflight, result{err: e})
	}
	d.failAll(e)
	return e
}

func (d *Daemon) failAll(err error) {
	for {
		select {
		case req := <-d.queue:
			d.finish(req, result{err: err})
		default:
			return
		}
	}
}

func (d *Daemon) finish(req *request, res result) {
	req.done <- res
	d.addDepth(-1)
	d.publishState()
}

func (d *Daemon) setPhase(p Phase) {
	d.mu.Lock()
	d.phase = p
	d.mu.Unlock()
}

func (d *Daemon) addDepth(delta int) {
	d.mu.Lock()
	d.depth += delta
	if d.depth < 0 {
		d.depth = 0
	}
	d.mu.Unlock()
}

func (d *Daemon) publishState() {
	if d.store == nil {
		return
	}
	d.mu.Lock()
	st := &state.DaemonState{
		PID:        os.Getpid(),
		ParentPID:  d.parentPID,
		Managed:    d.managed,
		WorkDir:    d.workDir,
		Provider:   d.provider,
		QueueDepth: d.depth,
	}
	d.mu.Unlock()
	if err := d.store.Write(st); err != nil && d.logger != nil {
		d.logger.WithError(err).Warn("Writing daemon state failed")
	}
}
