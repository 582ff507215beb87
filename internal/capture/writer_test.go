package capture

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func pcmSamples(values ...int16) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		out = append(out, b[:]...)
	}
	return out
}

func openTestWriter(t *testing.T, sampleRate, channels int) (*StreamWriter, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := OpenStreamWriter(dir, "system", sampleRate, channels)
	require.NoError(t, err)
	return w, dir
}

func rawBytes(t *testing.T, w *StreamWriter) []byte {
	t.Helper()
	data, err := os.ReadFile(w.RawPath())
	require.NoError(t, err)
	return data
}

func containerPayload(t *testing.T, w *StreamWriter) []byte {
	t.Helper()
	data, err := os.ReadFile(w.ContainerPath())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 44)
	return data[44:]
}

func TestContiguousWritesRoundTrip(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	payload := pcmSamples(1, 2, 3, 4)
	// Four samples per frame at 16kHz: each frame advances pts by 250us.
	var want bytes.Buffer
	for i := 0; i < 5; i++ {
		pts := int64(i) * int64(len(payload)/2) * 1_000_000 / 16000
		require.NoError(t, w.AppendAligned(payload, pts, 16000, 1))
		want.Write(payload)
	}
	require.NoError(t, w.Close())

	require.Equal(t, want.Bytes(), rawBytes(t, w))
	require.Equal(t, want.Bytes(), containerPayload(t, w))
	require.Equal(t, int64(20), w.LastSampleIndex)
	require.Equal(t, int64(want.Len()), w.BytesWritten)
}

func TestSilenceInsertion(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	payload := pcmSamples(100, -100)
	// pts 62500us at 16kHz is sample 1000: expect 2000 zero bytes first.
	require.NoError(t, w.AppendAligned(payload, 62500, 16000, 1))
	require.NoError(t, w.Close())

	raw := rawBytes(t, w)
	require.Len(t, raw, 2000+len(payload))
	require.Equal(t, make([]byte, 2000), raw[:2000])
	require.Equal(t, payload, raw[2000:])
	require.Equal(t, int64(1000+2), w.LastSampleIndex)
}

func TestSingleFrameGapInsertsOneSilentFrame(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	require.NoError(t, w.AppendAligned(pcmSamples(7), 0, 16000, 1))
	// One frame-duration ahead of the last sample: 2 samples / 16kHz = 125us.
	require.NoError(t, w.AppendAligned(pcmSamples(8), 125, 16000, 1))
	require.NoError(t, w.Close())

	require.Equal(t, pcmSamples(7, 0, 8), rawBytes(t, w))
	require.Equal(t, int64(3), w.LastSampleIndex)
}

func TestOverlapDropsPrefix(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	require.NoError(t, w.AppendAligned(pcmSamples(1, 2, 3, 4), 0, 16000, 1))
	// Rewind to sample 2: first two samples of the new payload overlap.
	pts := int64(2) * 1_000_000 / 16000
	require.NoError(t, w.AppendAligned(pcmSamples(30, 40, 50, 60), pts, 16000, 1))
	require.NoError(t, w.Close())

	require.Equal(t, pcmSamples(1, 2, 3, 4, 50, 60), rawBytes(t, w))
	require.Equal(t, int64(6), w.LastSampleIndex)
}

func TestFullyOverlappedPayloadSkipped(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	require.NoError(t, w.AppendAligned(pcmSamples(1, 2, 3, 4), 0, 16000, 1))
	require.NoError(t, w.AppendAligned(pcmSamples(9, 9), 0, 16000, 1))
	require.NoError(t, w.Close())

	require.Equal(t, pcmSamples(1, 2, 3, 4), rawBytes(t, w))
	require.Equal(t, int64(4), w.LastSampleIndex)
}

func TestPartialTrailingSampleTruncated(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	payload := append(pcmSamples(5, 6), 0xFF)
	require.NoError(t, w.AppendAligned(payload, 0, 16000, 1))
	require.NoError(t, w.Close())

	require.Equal(t, pcmSamples(5, 6), rawBytes(t, w))
}

func TestSubFramePayloadIgnored(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 2)

	// Three bytes is less than one stereo frame.
	require.NoError(t, w.AppendAligned([]byte{1, 2, 3}, 0, 16000, 2))
	require.NoError(t, w.Close())

	require.Empty(t, rawBytes(t, w))
	require.Equal(t, int64(0), w.LastSampleIndex)
}

func TestNegativePTSClampedToZero(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	require.NoError(t, w.AppendAligned(pcmSamples(1, 2), -40_000, 16000, 1))
	require.NoError(t, w.Close())

	require.Equal(t, pcmSamples(1, 2), rawBytes(t, w))
}

func TestSnapshotAndDuration(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)

	require.NoError(t, w.AppendAligned(make([]byte, 32000), 0, 16000, 1))

	snap := w.Snapshot(16000, 1)
	require.Equal(t, w.RawPath(), snap.RawPath)
	require.Equal(t, int64(32000), snap.SizeBytes)
	require.InDelta(t, 1.0, snap.Duration(), 1e-9)
	require.NoError(t, w.Close())
}

func TestSnapshotEmptyStream(t *testing.T) {
	w, _ := openTestWriter(t, 16000, 1)
	snap := w.Snapshot(16000, 1)
	require.Equal(t, int64(0), snap.SizeBytes)
	require.NoError(t, w.Close())
}

func TestRMS(t *testing.T) {
	require.Equal(t, 0.0, RMS(nil))
	require.Equal(t, 0.0, RMS([]byte{1}))

	full := pcmSamples(-32768, -32768)
	require.InDelta(t, 1.0, RMS(full), 1e-9)

	silent := pcmSamples(0, 0, 0, 0)
	require.Equal(t, 0.0, RMS(silent))
}

// Mirror invariants: after any frame sequence the raw and container bytes
// are identical, the sample counter never decreases, and the raw size is
// exactly last_sample_index frames.
func TestAlignerInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		channels := rapid.IntRange(1, 2).Draw(rt, "channels")
		sampleRate := rapid.SampledFrom([]int{8000, 16000, 48000}).Draw(rt, "rate")

		w, err := OpenStreamWriter(dir, "stream", sampleRate, channels)
		if err != nil {
			rt.Fatalf("open: %v", err)
		}

		frames := rapid.IntRange(1, 12).Draw(rt, "frames")
		lastIndex := int64(0)
		for i := 0; i < frames; i++ {
			payload := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(rt, "payload")
			pts := rapid.Int64Range(-10_000, 500_000).Draw(rt, "pts")
			if err := w.AppendAligned(payload, pts, sampleRate, channels); err != nil {
				rt.Fatalf("append: %v", err)
			}
			if w.LastSampleIndex < lastIndex {
				rt.Fatalf("sample index decreased: %d -> %d", lastIndex, w.LastSampleIndex)
			}
			lastIndex = w.LastSampleIndex
		}
		if err := w.Close(); err != nil {
			rt.Fatalf("close: %v", err)
		}

		raw, err := os.ReadFile(w.RawPath())
		if err != nil {
			rt.Fatalf("read raw: %v", err)
		}
		container, err := os.ReadFile(filepath.Join(dir, "stream.wav"))
		if err != nil {
			rt.Fatalf("read container: %v", err)
		}
		if !bytes.Equal(raw, container[44:]) {
			rt.Fatalf("raw and container bytes diverged")
		}
		if int64(len(raw)) != lastIndex*int64(BytesPerSample*channels) {
			rt.Fatalf("raw size %d != %d samples x frame", len(raw), lastIndex)
		}
	})
}
