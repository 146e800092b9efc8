// Package codex reads Codex CLI session transcripts. The format is
// JSONL like Claude's but with a flat shape: role and content live at
// the top level of each line.
package codex

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/binding"
	"github.com/ccbridge/ccb/pkg/provider"
)

// Name is the provider name for bindings and CLI flags.
const Name = "codex"

const maxLineBytes = 4 * 1024 * 1024

func init() {
	provider.Register(&Adapter{})
}

// Adapter implements provider.Adapter for Codex transcripts.
type Adapter struct{}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return Name }

type record struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// Latest implements provider.Adapter.
func (a *Adapter) Latest(sessionPath string) (*provider.Message, error) {
	file, err := os.Open(sessionPath)
	if err != nil {
		return nil, errors.NoReply(sessionPath)
	}
	defer file.Close()

	var latest *provider.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Role != "assistant" || rec.Content == "" {
			continue
		}
		msg := &provider.Message{
			Role:      "assistant",
			Text:      rec.Content,
			SessionID: rec.SessionID,
		}
		if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
			msg.Timestamp = ts
		}
		latest = msg
	}
	if latest == nil {
		return nil, errors.NoReply(sessionPath)
	}
	return latest, nil
}

// IsActive implements provider.Adapter.
func (a *Adapter) IsActive(b *binding.Binding) bool {
	if b == nil || !b.Active || b.SessionPath == "" {
		return false
	}
	info, err := os.Stat(b.SessionPath)
	return err == nil && !info.IsDir()
}
