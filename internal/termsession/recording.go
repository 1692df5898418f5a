package termsession

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultRecordLimit caps a session transcript when no limit is configured.
const DefaultRecordLimit = 10000

// RecordingEntry is a single timestamped event in a session transcript.
// The layout follows asciinema v2 event lines.
type RecordingEntry struct {
	// Elapsed is the time since the recording started, in seconds.
	Elapsed float64 `json:"elapsed"`
	// Type is "i" for submitted commands and "o" for output lines.
	Type string `json:"type"`
	Data string `json:"data"`
}

// Recording captures the commands and output of one session for audit.
// It is safe for concurrent use.
type Recording struct {
	mu         sync.Mutex
	entries    []RecordingEntry
	startTime  time.Time
	maxEntries int
}

// NewRecording creates a recording. If maxEntries <= 0, there is no limit.
func NewRecording(maxEntries int) *Recording {
	return &Recording{
		startTime:  time.Now(),
		maxEntries: maxEntries,
	}
}

// RecordOutput adds an output line.
func (r *Recording) RecordOutput(line string) {
	r.add("o", line)
}

// RecordInput adds a submitted command.
func (r *Recording) RecordInput(command string) {
	r.add("i", command)
}

func (r *Recording) add(kind, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		return // drop if at capacity
	}
	r.entries = append(r.entries, RecordingEntry{
		Elapsed: time.Since(r.startTime).Seconds(),
		Type:    kind,
		Data:    data,
	})
}

// Entries returns a copy of all recorded entries.
func (r *Recording) Entries() []RecordingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]RecordingEntry, len(r.entries))
	copy(result, r.entries)
	return result
}

// ExportJSON returns the transcript as a JSON array.
func (r *Recording) ExportJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.entries)
}
