// Package merge combines ASR word timestamps with diarisation segments into
// speaker-labelled transcripts.
package merge

import "sort"

// UnknownSpeaker labels words no diarisation segment could claim.
const UnknownSpeaker = "UNKNOWN"

// Word is one recognised word with timestamps in seconds from stream origin.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one diarised speaker interval. Speaker labels are opaque
// strings assigned by the diariser; segment order is not assumed.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// LabelledWord is a word with its assigned speaker.
type LabelledWord struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Turn is a maximal run of consecutive words by one speaker.
type Turn struct {
	Speaker string
	Start   float64
	End     float64
	Text    string
	Words   []LabelledWord
}

// Transcript is the full merged output: turns, the flat labelled word list,
// and the diarisation segments that produced them.
type Transcript struct {
	Turns    []Turn
	Words    []LabelledWord
	Segments []Segment
}

// Options tunes speaker assignment and turn grouping.
type Options struct {
	// GapThreshold is the inter-word gap in seconds that forces a new turn.
	GapThreshold float64
	// SpeakerTolerance is the maximum distance in seconds from a word
	// midpoint to the nearest segment for fallback assignment.
	SpeakerTolerance float64
	// MaxTurnDuration bounds one turn's length in seconds.
	MaxTurnDuration float64
}

// DefaultOptions returns the tuning used by the live pipeline.
func DefaultOptions() Options {
	return Options{
		GapThreshold:     0.8,
		SpeakerTolerance: 0.5,
		MaxTurnDuration:  60.0,
	}
}

// Merge assigns speakers to words, groups them into turns, and returns the
// complete transcript.
func Merge(words []Word, segments []Segment, opts Options) Transcript {
	labelled := AssignSpeakers(words, segments, opts.SpeakerTolerance)
	turns := WordsToTurns(labelled, opts.GapThreshold, opts.MaxTurnDuration)
	return Transcript{Turns: turns, Words: labelled, Segments: segments}
}

// AssignSpeakers labels each word with the segment it overlaps most.
//
// Words are processed sorted by start time; words with end <= start are
// discarded. A word overlapping no segment takes the nearest segment's
// speaker when its midpoint lies within tolerance seconds, else UNKNOWN.
// Remaining UNKNOWN labels are interpolated from surrounding context.
func AssignSpeakers(words []Word, segments []Segment, tolerance float64) []LabelledWord {
	sorted := make([]Word, 0, len(words))
	for _, w := range words {
		if w.End > w.Start {
			sorted = append(sorted, w)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	labelled := make([]LabelledWord, 0, len(sorted))
	for _, word := range sorted {
		mid := (word.Start + word.End) / 2
		bestSpeaker := UnknownSpeaker
		bestOverlap := 0.0
		nearestSpeaker := ""
		minDistance := 0.0
		haveNearest := false

		for _, seg := range segments {
			overlapStart := word.Start
			if seg.Start > overlapStart {
				overlapStart = seg.Start
			}
			overlapEnd := word.End
			if seg.End < overlapEnd {
				overlapEnd = seg.End
			}
			if overlap := overlapEnd - overlapStart; overlap > bestOverlap {
				bestOverlap = overlap
				bestSpeaker = seg.Speaker
			}

			var dist float64
			switch {
			case mid < seg.Start:
				dist = seg.Start - mid
			case mid > seg.End:
				dist = mid - seg.End
			}
			if !haveNearest || dist < minDistance {
				haveNearest = true
				minDistance = dist
				nearestSpeaker = seg.Speaker
			}
		}

		if bestOverlap == 0 && haveNearest && minDistance <= tolerance {
			bestSpeaker = nearestSpeaker
		}

		labelled = append(labelled, LabelledWord{
			Text:    word.Text,
			Start:   word.Start,
			End:     word.End,
			Speaker: bestSpeaker,
		})
	}

	return interpolateUnknown(labelled)
}

// interpolateUnknown smooths UNKNOWN labels from surrounding context.
//
// Forward pass: an UNKNOWN word inherits the last known speaker when the
// next known speaker (looked up within 10 positions) matches it or does not
// exist. Backward pass: any remaining UNKNOWN adopts the next known speaker.
func interpolateUnknown(words []LabelledWord) []LabelledWord {
	if len(words) == 0 {
		return words
	}

	result := make([]LabelledWord, len(words))
	copy(result, words)

	lastKnown := ""
	for i := range result {
		if result[i].Speaker != UnknownSpeaker {
			lastKnown = result[i].Speaker
			continue
		}
		if lastKnown == "" {
			continue
		}
		nextKnown := ""
		limit := i + 11
		if limit > len(result) {
			limit = len(result)
		}
		for j := i + 1; j < limit; j++ {
			if result[j].Speaker != UnknownSpeaker {
				nextKnown = result[j].Speaker
				break
			}
		}
		if nextKnown == "" || nextKnown == lastKnown {
			result[i].Speaker = lastKnown
		}
	}

	nextKnown := ""
	for i := len(result) - 1; i >= 0; i-- {
		if result[i].Speaker != UnknownSpeaker {
			nextKnown = result[i].Speaker
			continue
		}
		if nextKnown != "" {
			result[i].Speaker = nextKnown
		}
	}

	return result
}

// WordsToTurns groups consecutive words into speaker turns. A new turn
// starts when the speaker changes, the inter-word gap exceeds gapThreshold,
// or the turn would exceed maxTurnDuration.
func WordsToTurns(words []LabelledWord, gapThreshold, maxTurnDuration float64) []Turn {
	if len(words) == 0 {
		return []Turn{}
	}

	var turns []Turn
	current := []LabelledWord{words[0]}
	speaker := words[0].Speaker

	flush := func() {
		turns = append(turns, Turn{
			Speaker: speaker,
			Start:   current[0].Start,
			End:     current[len(current)-1].End,
			Text:    joinWords(current),
			Words:   current,
		})
	}

	for _, word := range words[1:] {
		gap := word.Start - current[len(current)-1].End
		turnDuration := word.End - current[0].Start

		if word.Speaker != speaker || gap > gapThreshold || turnDuration > maxTurnDuration {
			flush()
			current = []LabelledWord{word}
			speaker = word.Speaker
			continue
		}
		current = append(current, word)
	}
	flush()

	return turns
}

// Shift offsets all word and segment times by offset seconds, in place.
func Shift(words []Word, segments []Segment, offset float64) {
	if offset == 0 {
		return
	}
	for i := range words {
		words[i].Start += offset
		words[i].End += offset
	}
	for i := range segments {
		segments[i].Start += offset
		segments[i].End += offset
	}
}
