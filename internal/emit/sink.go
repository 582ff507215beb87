// Package emit serialises backend events onto the record stream and owns
// the monotone incremental transcript emitter.
package emit

import (
	"encoding/json"
	"io"
	"sync"
)

// Sink writes newline-delimited JSON records. A single mutex serialises
// writers so lines never interleave.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink wraps the record stream writer (normally stdout).
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Emit marshals one record and writes it as a single line. Failures are
// swallowed: a broken record stream must not take down capture persistence.
func (s *Sink) Emit(record any) {
	line, err := json.Marshal(record)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(line)
}

// Status is a generic lifecycle record.
type Status struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// LiveStatus reports one live processing pass.
type LiveStatus struct {
	Type     string  `json:"type"`
	Message  string  `json:"message"`
	Stream   string  `json:"stream"`
	Duration float64 `json:"duration"`
	Finalize bool    `json:"finalize"`
	Turns    int     `json:"turns,omitempty"`
}

// Meter reports the RMS level of one audio frame.
type Meter struct {
	Type   string  `json:"type"`
	Stream string  `json:"stream"`
	T      float64 `json:"t"`
	RMS    float64 `json:"rms"`
}

// SpeakerInfo is one entry of a speakers record.
type SpeakerInfo struct {
	SpeakerID string `json:"speaker_id"`
	Name      string `json:"name"`
}

// Speakers announces the full known speaker list.
type Speakers struct {
	Type  string        `json:"type"`
	Known []SpeakerInfo `json:"known"`
}

// SegmentRecord is one finalised transcript segment.
type SegmentRecord struct {
	Type      string  `json:"type"`
	Speaker   string  `json:"speaker"`
	SpeakerID string  `json:"speaker_id"`
	Stream    string  `json:"stream,omitempty"`
	T0        float64 `json:"t0"`
	T1        float64 `json:"t1"`
	Text      string  `json:"text"`
}

// PartialRecord is the in-progress tail turn of one stream.
type PartialRecord struct {
	Type      string  `json:"type"`
	SpeakerID string  `json:"speaker_id"`
	Stream    string  `json:"stream,omitempty"`
	T0        float64 `json:"t0"`
	Text      string  `json:"text"`
}

// ErrorRecord reports a contained failure.
type ErrorRecord struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error emits an error record.
func (s *Sink) Error(message string) {
	s.Emit(ErrorRecord{Type: "error", Message: message})
}

// Screenshot passes an upstream screenshot payload through with type set.
func (s *Sink) Screenshot(payload map[string]any) {
	record := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		record[k] = v
	}
	record["type"] = "screenshot"
	s.Emit(record)
}
