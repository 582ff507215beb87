package wav

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const copyBufferSize = 1 << 20

// WriteChunk materialises a WAV file wrapping the raw PCM bytes
// [startByte, sizeBytes-(sizeBytes mod frame)) of rawPath.
//
// sizeBytes is the snapshot read limit: bytes past it are never read even if
// the raw file has grown since the snapshot was taken. Returns the path of
// the ephemeral WAV, or "" when the window holds no complete frame.
func WriteChunk(rawPath, destDir string, sampleRate, channels int, sizeBytes, startByte int64) (string, error) {
	bytesPerFrame := int64(BytesPerSample * channels)
	limit := sizeBytes - (sizeBytes % bytesPerFrame)
	if startByte < 0 {
		startByte = 0
	}
	if limit-startByte <= 0 {
		return "", nil
	}

	raw, err := os.Open(rawPath)
	if err != nil {
		return "", fmt.Errorf("open raw pcm %q: %w", rawPath, err)
	}
	defer raw.Close()

	path := filepath.Join(destDir, "muesli_live_"+uuid.NewString()+".wav")
	out, err := Create(path, sampleRate, channels)
	if err != nil {
		return "", err
	}

	section := io.NewSectionReader(raw, startByte, limit-startByte)
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := section.Read(buf)
		if n > 0 {
			if err := out.WriteSamples(buf[:n]); err != nil {
				_ = out.Close()
				_ = os.Remove(path)
				return "", err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("read raw pcm: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
