// Package sentinel implements the in-band text protocol that correlates
// requests and replies inside an assistant process's otherwise
// unstructured stream. Outbound, a REQ_ID marker precedes the request
// body; inbound, a DONE marker line ends a reply.
//
// The protocol is best-effort: assistants are not guaranteed to echo
// request ids faithfully, so parsing tolerates bare and mismatched DONE
// markers.
package sentinel

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// ReqIDPrefix tags the outbound request id line.
	ReqIDPrefix = "REQ_ID:"
	// DonePrefix tags the inbound completion line.
	DonePrefix = "DONE:"
)

var (
	doneLineRE = regexp.MustCompile(`^\s*DONE:\s*(\S*)\s*$`)

	// Generic completion tags some harnesses append after the requested
	// DONE line. Ignorable trailers, not completion markers.
	trailerTagRE = regexp.MustCompile(`^\s*(?:[A-Z][A-Z0-9_]*_)?DONE(?:\s*:.*)?\s*$`)

	reqCounter atomic.Int64
)

// NewReqID mints a readable request id:
// YYYYMMDD-HHMMSS-mmm-<pid>-<counter>.
func NewReqID() string {
	now := time.Now()
	ms := now.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%s-%03d-%d-%d",
		now.Format("20060102-150405"), ms, os.Getpid(), reqCounter.Add(1))
}

// WrapRequest frames a request body for the child process's stdin: the
// REQ_ID marker, the body, and the instruction to close the reply with
// the matching DONE line.
func WrapRequest(body, reqID string) string {
	body = strings.TrimRight(body, " \t\r\n")
	return fmt.Sprintf("%s %s\n\n%s\n\nEnd your reply with this exact final line (verbatim, on its own line):\n%s %s\n",
		ReqIDPrefix, reqID, body, DonePrefix, reqID)
}

// ParseDone inspects one output line. ok reports whether the line is a
// DONE marker at all; id is the carried request id ("" for a bare
// marker in degraded mode).
func ParseDone(line string) (id string, ok bool) {
	m := doneLineRE.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsTrailerNoise reports whether a line is an ignorable trailer: blank,
// or a generic completion tag that is not our own DONE marker.
func IsTrailerNoise(line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	if doneLineRE.MatchString(line) {
		return false
	}
	return trailerTagRE.MatchString(line)
}

// StripReply removes the DONE marker for reqID and any trailer noise
// from the end of an accumulated reply.
func StripReply(text, reqID string) string {
	lines := strings.Split(text, "\n")

	for len(lines) > 0 && IsTrailerNoise(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 {
		if id, ok := ParseDone(lines[len(lines)-1]); ok && (id == reqID || id == "") {
			lines = lines[:len(lines)-1]
		}
	}
	for len(lines) > 0 && IsTrailerNoise(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\r\n")
}

// StripTrailingMarkers removes all trailing marker lines (DONE lines of
// any request id, generic completion tags, blanks) from a recalled
// reply, for display paths that only want the content.
func StripTrailingMarkers(text string) string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 {
		last := lines[len(lines)-1]
		if _, ok := ParseDone(last); ok || IsTrailerNoise(last) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\r\n")
}
