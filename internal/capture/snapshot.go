package capture

import (
	"math"
	"os"
)

// Snapshot is an immutable view of a stream's durable bytes.
//
// SizeBytes is the exclusive read limit: the raw file may keep growing after
// the snapshot is taken, and readers must never read past it.
type Snapshot struct {
	RawPath    string
	SampleRate int
	Channels   int
	SizeBytes  int64
}

// Snapshot captures the stream's current durable size. Callers hold the
// dispatcher state lock for the duration of the call.
func (w *StreamWriter) Snapshot(sampleRate, channels int) Snapshot {
	var size int64
	if info, err := os.Stat(w.rawPath); err == nil {
		size = info.Size()
	}
	return Snapshot{
		RawPath:    w.rawPath,
		SampleRate: sampleRate,
		Channels:   channels,
		SizeBytes:  size,
	}
}

// Duration converts the snapshot size into seconds of audio.
func (s Snapshot) Duration() float64 {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	return float64(s.SizeBytes) / float64(BytesPerSample*s.Channels*s.SampleRate)
}

// RMS computes the root-mean-square level of an s16le payload, scaled to 0..1.
func RMS(payload []byte) float64 {
	if len(payload) < BytesPerSample {
		return 0
	}
	count := len(payload) / BytesPerSample
	var acc float64
	for i := 0; i < count; i++ {
		v := int16(uint16(payload[2*i]) | uint16(payload[2*i+1])<<8)
		x := float64(v) / 32768.0
		acc += x * x
	}
	return math.Sqrt(acc / float64(count))
}
