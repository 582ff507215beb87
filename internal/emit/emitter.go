package emit

import (
	"sort"
	"sync"

	"github.com/davidfarrell/muesli-backend/internal/merge"
)

// emitSlack absorbs floating-point jitter when the same tail is reprocessed:
// a turn only counts as new when it extends past the high-water mark by
// more than this.
const emitSlack = 0.02

// partialFingerprint identifies one partial emission for de-duplication.
type partialFingerprint struct {
	speaker string
	start   float64
	text    string
}

// Emitter turns merged transcripts into monotone incremental segment and
// partial records.
//
// last-emitted state is tracked per stream name; the seen-speakers set is
// deliberately global across streams so one speakers record always carries
// the full known list.
type Emitter struct {
	sink        *Sink
	finalizeLag float64

	mu          sync.Mutex
	lastT1      map[string]float64
	lastPartial map[string]partialFingerprint
	hasPartial  map[string]bool
	seen        map[string]struct{}
}

// NewEmitter builds the process-wide transcript emitter.
func NewEmitter(sink *Sink, finalizeLag float64) *Emitter {
	return &Emitter{
		sink:        sink,
		finalizeLag: finalizeLag,
		lastT1:      make(map[string]float64),
		lastPartial: make(map[string]partialFingerprint),
		hasPartial:  make(map[string]bool),
		seen:        make(map[string]struct{}),
	}
}

// EmitTranscript emits the incremental records for one pipeline result.
//
// Turns ending at or before the cutoff (currentDuration minus the finalize
// lag, or currentDuration when finalising) that extend the per-stream
// high-water mark become segment records. A still-growing tail turn becomes
// a partial record unless its fingerprint matches the previous partial.
func (e *Emitter) EmitTranscript(merged merge.Transcript, currentDuration float64, finalize bool, streamName string) {
	if len(merged.Turns) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	streamKey := streamName
	if streamKey == "" {
		streamKey = "default"
	}
	lastT1 := e.lastT1[streamKey]

	newSpeakers := false
	for _, turn := range merged.Turns {
		id := speakerID(streamName, turn.Speaker)
		if _, ok := e.seen[id]; !ok {
			e.seen[id] = struct{}{}
			newSpeakers = true
		}
	}
	if newSpeakers {
		known := make([]SpeakerInfo, 0, len(e.seen))
		ids := make([]string, 0, len(e.seen))
		for id := range e.seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			known = append(known, SpeakerInfo{SpeakerID: id, Name: id})
		}
		e.sink.Emit(Speakers{Type: "speakers", Known: known})
	}

	cutoff := currentDuration
	if !finalize {
		cutoff = currentDuration - e.finalizeLag
		if cutoff < 0 {
			cutoff = 0
		}
	}

	for _, turn := range merged.Turns {
		if turn.End <= cutoff && turn.End > lastT1+emitSlack {
			e.sink.Emit(SegmentRecord{
				Type:      "segment",
				Speaker:   turn.Speaker,
				SpeakerID: speakerID(streamName, turn.Speaker),
				Stream:    streamName,
				T0:        turn.Start,
				T1:        turn.End,
				Text:      turn.Text,
			})
			if turn.End > lastT1 {
				lastT1 = turn.End
			}
		}
	}

	if !finalize {
		lastTurn := merged.Turns[len(merged.Turns)-1]
		if lastTurn.End > cutoff {
			fingerprint := partialFingerprint{speaker: lastTurn.Speaker, start: lastTurn.Start, text: lastTurn.Text}
			if !e.hasPartial[streamKey] || e.lastPartial[streamKey] != fingerprint {
				e.sink.Emit(PartialRecord{
					Type:      "partial",
					SpeakerID: speakerID(streamName, lastTurn.Speaker),
					Stream:    streamName,
					T0:        lastTurn.Start,
					Text:      lastTurn.Text,
				})
				e.lastPartial[streamKey] = fingerprint
				e.hasPartial[streamKey] = true
			}
		}
	}

	e.lastT1[streamKey] = lastT1
}

// speakerID namespaces a diariser label by stream.
func speakerID(streamName, speaker string) string {
	if streamName == "" {
		return speaker
	}
	return streamName + ":" + speaker
}
