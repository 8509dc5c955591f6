// Package recording owns the lifecycle of one recording session: start,
// transcript accumulation, memory linkage, finalize, persist.
package recording

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Speaker tags a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "USER"
	SpeakerAgent Speaker = "AI"
)

// TranscriptEntry is one line of a session transcript. Entries are
// append-only and ordered by session-relative offset.
type TranscriptEntry struct {
	// OffsetSeconds is the session-relative offset, whole seconds.
	OffsetSeconds int     `json:"offset_seconds"`
	Speaker       Speaker `json:"speaker"`
	Text          string  `json:"text"`
	// Confidence is optional; 0 means not reported.
	Confidence float64 `json:"confidence,omitempty"`
}

// transcriptLine matches the persisted format: [<seconds>s] SPEAKER: text
var transcriptLine = regexp.MustCompile(`^\[(\d+)s\] (USER|AI): (.*)$`)

// FormatTranscript renders entries in the persisted transcript format,
// one line per entry.
func FormatTranscript(entries []TranscriptEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%ds] %s: %s", e.OffsetSeconds, e.Speaker, e.Text)
	}
	return b.String()
}

// ParseTranscript parses persisted transcript text. Lines that do not
// match the format are kept as plain user text at offset 0 rather than
// rejected.
func ParseTranscript(text string) []TranscriptEntry {
	if text == "" {
		return nil
	}
	var entries []TranscriptEntry
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		m := transcriptLine.FindStringSubmatch(line)
		if m == nil {
			entries = append(entries, TranscriptEntry{Speaker: SpeakerUser, Text: line})
			continue
		}
		offset, _ := strconv.Atoi(m[1])
		entries = append(entries, TranscriptEntry{
			OffsetSeconds: offset,
			Speaker:       Speaker(m[2]),
			Text:          m[3],
		})
	}
	return entries
}
