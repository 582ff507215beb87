// Package main provides muesli-feed, a capture feeder that records the
// default PulseAudio source and emits the muesli framed protocol on stdout.
// It exists to exercise the backend without the desktop capture app:
//
//	muesli-feed --rate 48000 --duration 30 | muesli-backend --transcribe-stream mic
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/spf13/pflag"

	"github.com/davidfarrell/muesli-backend/internal/protocol"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		rate     = pflag.Int("rate", 48000, "capture sample rate")
		channels = pflag.Int("channels", 1, "capture channel count (1 or 2)")
		duration = pflag.Duration("duration", 0, "capture length (0 = until interrupted)")
		stream   = pflag.String("stream", "mic", "stream id to tag frames with: system or mic")
	)
	pflag.Parse()

	var streamID uint8
	switch *stream {
	case "system":
		streamID = protocol.StreamSystem
	case "mic":
		streamID = protocol.StreamMic
	default:
		fmt.Fprintf(os.Stderr, "error: stream must be system or mic (got %q)\n", *stream)
		return 2
	}
	if *channels != 1 && *channels != 2 {
		fmt.Fprintf(os.Stderr, "error: channels must be 1 or 2 (got %d)\n", *channels)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := feed(ctx, os.Stdout, streamID, *rate, *channels, *duration); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// feed captures PCM from the default source and writes framed messages.
func feed(ctx context.Context, out io.Writer, streamID uint8, rate, channels int, duration time.Duration) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("muesli-feed"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	source, err := client.DefaultSource()
	if err != nil {
		return fmt.Errorf("resolve default source: %w", err)
	}

	buffered := bufio.NewWriter(out)
	defer buffered.Flush()

	frames := protocol.NewWriter(buffered)
	feedWriter := &frameFeed{
		frames:   frames,
		streamID: streamID,
		rate:     rate,
		channels: channels,
	}

	meta, err := json.Marshal(map[string]int{"sample_rate": rate, "channels": channels})
	if err != nil {
		return err
	}
	if err := frames.Write(protocol.Frame{Type: protocol.TypeStart, Payload: meta}); err != nil {
		return err
	}

	recordOpts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(rate),
	}
	if channels == 2 {
		recordOpts = append(recordOpts, pulse.RecordStereo)
	} else {
		recordOpts = append(recordOpts, pulse.RecordMono)
	}

	record, err := client.NewRecord(pulse.NewWriter(feedWriter, pulseproto.FormatInt16LE), recordOpts...)
	if err != nil {
		return fmt.Errorf("create pulse record stream: %w", err)
	}
	record.Start()

	if duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(duration):
		}
	} else {
		<-ctx.Done()
	}

	record.Stop()
	record.Close()

	feedWriter.mu.Lock()
	writeErr := feedWriter.err
	feedWriter.mu.Unlock()
	if writeErr != nil {
		return fmt.Errorf("write frames: %w", writeErr)
	}

	return frames.Write(protocol.Frame{Type: protocol.TypeStop})
}

// frameFeed converts captured PCM into timestamped AUDIO frames.
type frameFeed struct {
	frames   *protocol.Writer
	streamID uint8
	rate     int
	channels int

	mu          sync.Mutex
	samplesSent int64
	err         error
}

// Write receives raw PCM from Pulse and emits one AUDIO frame per chunk,
// timestamped from the running sample counter.
func (f *frameFeed) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}

	pts := f.samplesSent * 1_000_000 / int64(f.rate)
	payload := make([]byte, len(p))
	copy(payload, p)

	if err := f.frames.Write(protocol.Frame{
		Type:      protocol.TypeAudio,
		Stream:    f.streamID,
		PTSMicros: pts,
		Payload:   payload,
	}); err != nil {
		f.err = err
		return 0, err
	}

	bytesPerFrame := 2 * f.channels
	f.samplesSent += int64(len(p) / bytesPerFrame)
	return len(p), nil
}
