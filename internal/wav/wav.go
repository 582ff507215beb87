// Package wav reads and writes PCM s16le audio in RIFF/WAVE containers.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	headerSize    = 44
	bitsPerSample = 16
)

// BytesPerSample is the sample width used throughout the capture path.
const BytesPerSample = 2

// Writer appends s16le sample bytes under a finalisable RIFF header.
//
// The header is written with zero sizes at creation and patched with the
// final byte counts on Close, mirroring the streaming-writer behaviour of
// the capture path: data bytes on disk always match what was appended.
type Writer struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  int64
}

// Create opens path for writing and emits the provisional header.
func Create(path string, sampleRate, channels int) (*Writer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: rate=%d channels=%d", sampleRate, channels)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create wav %q: %w", path, err)
	}

	w := &Writer{f: f, sampleRate: sampleRate, channels: channels}
	if _, err := f.Write(header(sampleRate, channels, 0)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

// WriteSamples appends raw s16le sample bytes to the data chunk.
func (w *Writer) WriteSamples(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := w.f.Write(p); err != nil {
		return fmt.Errorf("append wav samples: %w", err)
	}
	w.dataBytes += int64(len(p))
	return nil
}

// Close patches the header with final sizes and closes the file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	defer func() { w.f = nil }()

	if _, err := w.f.WriteAt(header(w.sampleRate, w.channels, w.dataBytes), 0); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("finalise wav header: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

// header renders a 44-byte PCM RIFF header for the given data length.
func header(sampleRate, channels int, dataBytes int64) []byte {
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	h := make([]byte, headerSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataBytes))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataBytes))
	return h
}

// Format describes the sample format parsed from a WAV header.
type Format struct {
	SampleRate int
	Channels   int
	Bits       int
	PCM        bool
}

// ReadFormat parses the fmt chunk of a RIFF/WAVE file.
func ReadFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("open wav %q: %w", path, err)
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return Format{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, errors.New("not a RIFF/WAVE file")
	}

	// Walk chunks until "fmt " is found.
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return Format{}, fmt.Errorf("read chunk header: %w", err)
		}
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		if string(chunk[0:4]) != "fmt " {
			if _, err := f.Seek(size+(size&1), io.SeekCurrent); err != nil {
				return Format{}, fmt.Errorf("skip chunk: %w", err)
			}
			continue
		}
		if size < 16 {
			return Format{}, errors.New("fmt chunk too small")
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(f, body); err != nil {
			return Format{}, fmt.Errorf("read fmt chunk: %w", err)
		}
		return Format{
			SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
			Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
			Bits:       int(binary.LittleEndian.Uint16(body[14:16])),
			PCM:        binary.LittleEndian.Uint16(body[0:2]) == 1,
		}, nil
	}
}

// Is16kMono reports whether path is already 16kHz mono s16 PCM, the format
// the ASR and diarisation engines consume directly.
func Is16kMono(path string) bool {
	format, err := ReadFormat(path)
	if err != nil {
		return false
	}
	return format.PCM && format.SampleRate == 16000 && format.Channels == 1 && format.Bits == 16
}
