package binding

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/ccbridge/ccb/pkg/paths"
)

// Watcher notifies when a project's binding files change, so a running
// daemon can pick up a session switch without polling. Bindings are
// published by rename, so the watcher watches the .ccb directory, not the
// file itself.
type Watcher struct {
	watcher  *fsnotify.Watcher
	provider string
	logger   *logrus.Entry

	// Changed receives the provider name after its binding is rewritten.
	Changed chan string
}

// NewWatcher watches the binding file for (projectDir, provider). An
// empty provider watches all bindings in the project.
func NewWatcher(projectDir, provider string, logger *logrus.Entry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(paths.ProjectStateDir(projectDir)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  fsw,
		provider: provider,
		logger:   logger,
		Changed:  make(chan string, 4),
	}, nil
}

// Run pumps filesystem events until the context is canceled. Rapid
// rewrites are debounced to one notification.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			prov, ok := providerFromEvent(event)
			if !ok {
				continue
			}
			if w.provider != "" && prov != w.provider {
				continue
			}
			if time.Since(last) < 100*time.Millisecond {
				continue
			}
			last = time.Now()
			select {
			case w.Changed <- prov:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("binding watcher error")
		}
	}
}

// providerFromEvent extracts the provider name from a binding file event.
// Temp files from atomic writes are ignored; the rename that publishes
// them is what matters.
func providerFromEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	name := filepath.Base(event.Name)
	const suffix = "-session.json"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	if name[0] == '.' {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}
