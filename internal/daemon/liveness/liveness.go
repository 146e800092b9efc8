// Package liveness terminates a daemon when its logical parent process
// disappears, so daemons never outlive the controller session that
// spawned them.
package liveness

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccbridge/ccb/pkg/process"
)

// DefaultInterval is the parent poll period. A liveness heuristic, not
// a scheduler: the guarantee is "within a few intervals," not exact
// timing.
const DefaultInterval = 2 * time.Second

// Monitor polls a parent pid and fires a callback once when it is gone.
type Monitor struct {
	ParentPID int
	Interval  time.Duration
	OnGone    func()
	Logger    *logrus.Entry
}

// New returns a Monitor for parentPID with the default interval.
func New(parentPID int, onGone func(), logger *logrus.Entry) *Monitor {
	return &Monitor{
		ParentPID: parentPID,
		Interval:  DefaultInterval,
		OnGone:    onGone,
		Logger:    logger,
	}
}

// Run polls until the context is canceled or the parent disappears.
// The probe is signal 0, zero-cost; no IPC handshake. A parent pid of 0
// disables monitoring (explicitly detached daemons).
func (m *Monitor) Run(ctx context.Context) {
	if m.ParentPID <= 0 {
		<-ctx.Done()
		return
	}

	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if process.IsAlive(m.ParentPID) {
				continue
			}
			if m.Logger != nil {
				m.Logger.WithField("parent_pid", m.ParentPID).Info("Parent process gone, shutting down")
			}
			if m.OnGone != nil {
				m.OnGone()
			}
			return
		}
	}
}
