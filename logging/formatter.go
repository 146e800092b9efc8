package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// TextFormatter is the default ccb log formatter:
// "2006-01-02 15:04:05 [LEVEL] [component] message key=value".
type TextFormatter struct {
	DisableTimestamp bool
}

// Format renders a single log entry.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}

	levelStr := entry.Level.String()
	if levelStr == "warning" {
		levelStr = "warn"
	}
	b.WriteString(fmt.Sprintf("[%s]", strings.ToUpper(levelStr)))

	if component, ok := entry.Data["component"]; ok {
		b.WriteString(fmt.Sprintf(" [%v]", component))
	}

	if entry.HasCaller() {
		fileName := filepath.Base(entry.Caller.File)
		b.WriteString(fmt.Sprintf(" [%s:%d]", fileName, entry.Caller.Line))
	}

	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", key, entry.Data[key]))
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}
