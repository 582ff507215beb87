// Package capture persists per-stream meeting audio as aligned PCM buffers.
//
// Each stream owns a raw PCM file (the canonical durable bytes) and a WAV
// mirror holding exactly the same samples. Incoming frames carry a
// presentation timestamp; the aligner maps it to a sample index, filling
// gaps with silence and dropping overlapping prefixes so the buffers stay
// sample-accurate against wall clock.
package capture

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/davidfarrell/muesli-backend/internal/wav"
)

// BytesPerSample is the width of one s16le sample for one channel.
const BytesPerSample = wav.BytesPerSample

const silenceChunkBytes = 256 << 10

// StreamWriter is the durable buffer pair for one capture stream.
//
// Methods are not safe for concurrent use; the dispatcher serialises access
// under its state lock.
type StreamWriter struct {
	rawPath string
	raw     *os.File
	wav     *wav.Writer

	// LastSampleIndex counts samples (per channel) already written,
	// including inserted silence. Monotonically non-decreasing.
	LastSampleIndex int64
	// BytesWritten counts raw bytes appended to both sinks.
	BytesWritten int64
}

// OpenStreamWriter creates <name>.pcm and <name>.wav under dir.
func OpenStreamWriter(dir, name string, sampleRate, channels int) (*StreamWriter, error) {
	rawPath := filepath.Join(dir, name+".pcm")
	raw, err := os.OpenFile(rawPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create raw pcm %q: %w", rawPath, err)
	}

	container, err := wav.Create(filepath.Join(dir, name+".wav"), sampleRate, channels)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	return &StreamWriter{rawPath: rawPath, raw: raw, wav: container}, nil
}

// RawPath returns the canonical raw PCM path.
func (w *StreamWriter) RawPath() string {
	return w.rawPath
}

// ContainerPath returns the WAV mirror path.
func (w *StreamWriter) ContainerPath() string {
	ext := filepath.Ext(w.rawPath)
	return w.rawPath[:len(w.rawPath)-len(ext)] + ".wav"
}

// append writes identical bytes to both sinks and flushes the raw sink so
// snapshots only ever observe durable bytes.
func (w *StreamWriter) append(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := w.raw.Write(p); err != nil {
		return fmt.Errorf("append raw pcm: %w", err)
	}
	if err := w.wav.WriteSamples(p); err != nil {
		return err
	}
	if err := w.raw.Sync(); err != nil {
		return fmt.Errorf("flush raw pcm: %w", err)
	}
	w.BytesWritten += int64(len(p))
	return nil
}

// AppendAligned writes payload at the sample position named by ptsMicros.
//
// The payload is truncated to a whole-frame multiple. A timestamp ahead of
// the write position inserts zero-sample silence; a timestamp behind it
// drops the overlapping prefix. A payload that overlaps entirely is skipped.
func (w *StreamWriter) AppendAligned(payload []byte, ptsMicros int64, sampleRate, channels int) error {
	if len(payload) == 0 {
		return nil
	}

	bytesPerFrame := BytesPerSample * channels
	usable := (len(payload) / bytesPerFrame) * bytesPerFrame
	if usable <= 0 {
		return nil
	}
	payload = payload[:usable]

	startSample := int64(math.Round(float64(ptsMicros) * float64(sampleRate) / 1e6))
	if startSample < 0 {
		startSample = 0
	}

	if startSample > w.LastSampleIndex {
		gapFrames := startSample - w.LastSampleIndex
		if err := w.writeSilence(gapFrames * int64(bytesPerFrame)); err != nil {
			return err
		}
		w.LastSampleIndex += gapFrames
	} else if startSample < w.LastSampleIndex {
		dropBytes := (w.LastSampleIndex - startSample) * int64(bytesPerFrame)
		if dropBytes >= int64(len(payload)) {
			return nil
		}
		payload = payload[dropBytes:]
	}

	if err := w.append(payload); err != nil {
		return err
	}
	w.LastSampleIndex += int64(len(payload) / bytesPerFrame)
	return nil
}

// writeSilence appends n zero bytes in bounded chunks.
func (w *StreamWriter) writeSilence(n int64) error {
	zero := make([]byte, min(n, silenceChunkBytes))
	for n > 0 {
		chunk := zero[:min(n, int64(len(zero)))]
		if err := w.append(chunk); err != nil {
			return err
		}
		n -= int64(len(chunk))
	}
	return nil
}

// Close finalises the WAV header and closes both sinks.
func (w *StreamWriter) Close() error {
	wavErr := w.wav.Close()
	rawErr := w.raw.Close()
	if wavErr != nil {
		return wavErr
	}
	if rawErr != nil {
		return fmt.Errorf("close raw pcm: %w", rawErr)
	}
	return nil
}
