// Package provider defines the adapter contract for reading a
// provider's stored session transcript. Each provider's format differs;
// adapters expose the same read contract and everything else in ccb is
// provider-agnostic. New providers are added by implementing Adapter and
// registering it, never by branching inside shared logic.
package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/binding"
)

// Message is one assistant-authored message read from a transcript.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Adapter is the read contract every provider implements.
type Adapter interface {
	// Name returns the provider name used in bindings and CLI flags.
	Name() string

	// Latest returns the most recent assistant-authored message in the
	// session transcript. A transcript with no assistant message yet is
	// NO_REPLY, an expected condition.
	Latest(sessionPath string) (*Message, error)

	// IsActive reports whether a binding still points at a usable
	// session (staleness check).
	IsActive(b *binding.Binding) bool
}

// Follower is implemented by adapters that can stream new assistant
// messages as the transcript grows.
type Follower interface {
	Follow(ctx context.Context, sessionPath string) (<-chan Message, error)
}

var (
	adaptersMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// Register makes an adapter available by name. Later registrations
// replace earlier ones.
func Register(a Adapter) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	adapters[a.Name()] = a
}

// Get returns the adapter for a provider name.
func Get(name string) (Adapter, error) {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	a, ok := adapters[name]
	if !ok {
		return nil, errors.ProviderUnknown(name)
	}
	return a, nil
}

// Names returns the registered provider names, sorted.
func Names() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
