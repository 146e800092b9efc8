// Package claude reads Claude CLI session transcripts: JSONL files with
// one envelope per line. Only the minimal fields ccb needs are parsed;
// unknown lines are skipped rather than rejected, because the native log
// format varies across CLI versions.
package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/hpcloud/tail"

	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/binding"
	"github.com/ccbridge/ccb/pkg/provider"
)

// Name is the provider name for bindings and CLI flags.
const Name = "claude"

// maxLineBytes bounds the scanner buffer; transcript lines carry whole
// tool outputs and can be large.
const maxLineBytes = 4 * 1024 * 1024

func init() {
	provider.Register(&Adapter{})
}

// Adapter implements provider.Adapter for Claude transcripts.
type Adapter struct{}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return Name }

// envelope is one transcript line. Content is either a plain string or
// a list of typed blocks, depending on CLI version.
type envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Latest implements provider.Adapter: the last assistant-authored
// message in the transcript.
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
		if msg := parseLine(scanner.Bytes()); msg != nil {
			latest = msg
		}
	}
	if latest == nil {
		return nil, errors.NoReply(sessionPath)
	}
	return latest, nil
}

// IsActive implements provider.Adapter: the binding is active and its
// transcript still exists.
func (a *Adapter) IsActive(b *binding.Binding) bool {
	if b == nil || !b.Active || b.SessionPath == "" {
		return false
	}
	info, err := os.Stat(b.SessionPath)
	return err == nil && !info.IsDir()
}

// Follow streams assistant messages appended to the transcript from now
// on. The channel closes when the context is canceled.
func (a *Adapter) Follow(ctx context.Context, sessionPath string) (<-chan provider.Message, error) {
	t, err := tail.TailFile(sessionPath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "tail transcript")
	}

	out := make(chan provider.Message, 8)
	go func() {
		defer close(out)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					continue
				}
				if msg := parseLine([]byte(line.Text)); msg != nil {
					select {
					case out <- *msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// parseLine extracts an assistant message from one transcript line, or
// nil for anything else (user turns, tool events, malformed lines).
func parseLine(line []byte) *provider.Message {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil
	}
	if env.Type != "assistant" || len(env.Message) == 0 {
		return nil
	}

	var body messageBody
	if err := json.Unmarshal(env.Message, &body); err != nil {
		return nil
	}
	if body.Role != "" && body.Role != "assistant" {
		return nil
	}

	text := flattenContent(body.Content)
	if text == "" {
		return nil
	}

	msg := &provider.Message{
		Role:      "assistant",
		Text:      text,
		SessionID: env.SessionID,
	}
	if ts, err := time.Parse(time.RFC3339, env.Timestamp); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

// flattenContent joins the text blocks of a content field that is either
// a plain string or a block list.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	text := ""
	for _, block := range blocks {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += block.Text
	}
	return text
}
