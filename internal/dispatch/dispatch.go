// Package dispatch runs the top-level frame loop: it parses the framed
// capture protocol, routes audio into per-stream buffers, feeds the live
// processors, and drives orderly shutdown.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/davidfarrell/muesli-backend/internal/capture"
	"github.com/davidfarrell/muesli-backend/internal/config"
	"github.com/davidfarrell/muesli-backend/internal/emit"
	"github.com/davidfarrell/muesli-backend/internal/fsm"
	"github.com/davidfarrell/muesli-backend/internal/ipc"
	"github.com/davidfarrell/muesli-backend/internal/live"
	"github.com/davidfarrell/muesli-backend/internal/protocol"
)

// ErrNoAudio reports that no selected stream received any audio.
var ErrNoAudio = errors.New("no audio received on any selected stream")

// ErrProtocol reports a fatal framing failure on the input stream.
var ErrProtocol = errors.New("input protocol failure")

// Dispatcher owns meeting state and the input loop.
type Dispatcher struct {
	cfg     config.Config
	logger  *slog.Logger
	sink    *emit.Sink
	emitter *emit.Emitter
	runner  live.Runner

	// mu is the state mutex guarding writers and meeting format. It is held
	// only for brief append/snapshot operations, never across pipeline runs.
	mu         sync.Mutex
	sampleRate int
	channels   int
	writers    map[string]*capture.StreamWriter
	failed     map[string]bool
	meetingID  string

	// state is guarded by mu: the control-socket handler reads it from its
	// own goroutine.
	state      fsm.State
	processors map[string]*live.Processor

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New wires a dispatcher. runner is shared with the live processors and
// already bound to the process-wide pipeline mutex.
func New(cfg config.Config, runner live.Runner, sink *emit.Sink, emitter *emit.Emitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		logger:     logger,
		sink:       sink,
		emitter:    emitter,
		runner:     runner,
		writers:    make(map[string]*capture.StreamWriter),
		failed:     make(map[string]bool),
		state:      fsm.StateWaiting,
		processors: make(map[string]*live.Processor),
		stopCh:     make(chan struct{}),
	}
}

// frameResult carries one decoded frame or the reader's terminal error.
type frameResult struct {
	frame protocol.Frame
	err   error
}

// Run consumes frames from input until STOP, end-of-input, context
// cancellation, or a control-socket stop, then drains: processors finalise,
// writers close, retention applies. Returns ErrNoAudio when no selected
// stream received audio and ErrProtocol on framing failures.
func (d *Dispatcher) Run(ctx context.Context, input io.Reader) error {
	frames := make(chan frameResult)
	go func() {
		reader := protocol.NewReader(input)
		for {
			frame, err := reader.Next()
			select {
			case frames <- frameResult{frame: frame, err: err}:
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var protoErr error

loop:
	for {
		var result frameResult
		select {
		case <-ctx.Done():
			d.logInfo("context cancelled, draining")
			break loop
		case <-d.stopCh:
			d.logInfo("control stop requested, draining")
			break loop
		case result = <-frames:
		}

		if result.err != nil {
			if errors.Is(result.err, io.EOF) {
				break loop
			}
			d.sink.Error(fmt.Sprintf("input protocol failure: %v", result.err))
			protoErr = fmt.Errorf("%w: %v", ErrProtocol, result.err)
			break loop
		}

		switch result.frame.Type {
		case protocol.TypeStart:
			d.handleStart(ctx, result.frame)
		case protocol.TypeAudio:
			d.handleAudio(result.frame)
		case protocol.TypeScreenshot:
			d.handleScreenshot(result.frame)
		case protocol.TypeStop:
			d.sink.Emit(emit.Status{Type: "status", Message: "meeting_stopped"})
			break loop
		default:
			d.logWarn("ignoring unknown frame type", "type", result.frame.Type)
		}
	}

	// Release the frame reader goroutine before draining.
	d.RequestStop()

	drainErr := d.drain(ctx)
	if protoErr != nil {
		return protoErr
	}
	return drainErr
}

// handleStart opens stream writers and spawns live processors.
func (d *Dispatcher) handleStart(ctx context.Context, frame protocol.Frame) {
	if err := d.transition(fsm.EventStart); err != nil {
		d.sink.Error("unexpected start frame")
		d.logWarn("start frame rejected", "error", err.Error())
		return
	}

	meta := map[string]any{}
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &meta); err != nil {
			d.logWarn("malformed meeting meta, using defaults", "error", err.Error())
			meta = map[string]any{}
		}
	}

	sampleRate := metaInt(meta, "sample_rate", 48000)
	channels := metaInt(meta, "channels", 1)

	var openErrs []string
	d.mu.Lock()
	d.sampleRate = sampleRate
	d.channels = channels
	d.meetingID = uuid.NewString()
	for _, stream := range []string{config.StreamSystem, config.StreamMic} {
		writer, err := capture.OpenStreamWriter(d.cfg.OutputDir, stream, sampleRate, channels)
		if err != nil {
			d.failed[stream] = true
			openErrs = append(openErrs, fmt.Sprintf("open stream %s: %v", stream, err))
			continue
		}
		d.writers[stream] = writer
	}
	meetingID := d.meetingID
	d.mu.Unlock()

	for _, msg := range openErrs {
		d.sink.Error(msg)
		d.logError("open stream writer failed", "error", msg)
	}

	if !d.cfg.NoLive {
		for _, stream := range d.cfg.SelectedStreams() {
			processor := live.NewProcessor(
				stream,
				live.Config{Interval: d.cfg.LiveInterval, MinSeconds: d.cfg.LiveMinSeconds},
				d.snapshotFunc(stream),
				d.runner,
				d.sink,
				d.emitter,
				d.logger,
			)
			processor.Start(ctx)
			d.processors[stream] = processor
		}
	}

	statusMeta := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		statusMeta[k] = v
	}
	statusMeta["meeting_id"] = meetingID
	d.sink.Emit(emit.Status{Type: "status", Message: "meeting_started", Meta: statusMeta})
	d.logInfo("meeting started", "meeting_id", meetingID, "sample_rate", sampleRate, "channels", channels)
}

// handleAudio appends one aligned payload and notifies the live processor.
func (d *Dispatcher) handleAudio(frame protocol.Frame) {
	stream := protocol.StreamName(frame.Stream)

	d.mu.Lock()
	writer, ok := d.writers[stream]
	if !ok || d.failed[stream] {
		d.mu.Unlock()
		return
	}
	sampleRate := d.sampleRate
	channels := d.channels

	appendErr := writer.AppendAligned(frame.Payload, frame.PTSMicros, sampleRate, channels)
	duration := float64(writer.LastSampleIndex) / float64(sampleRate)
	if appendErr != nil {
		d.failed[stream] = true
	}
	d.mu.Unlock()

	if appendErr != nil {
		d.sink.Error(fmt.Sprintf("write stream %s: %v", stream, appendErr))
		d.logError("stream append failed, disabling stream", "stream", stream, "error", appendErr.Error())
		return
	}

	if d.cfg.EmitMeters {
		d.sink.Emit(emit.Meter{
			Type:   "meter",
			Stream: stream,
			T:      float64(frame.PTSMicros) / 1e6,
			RMS:    capture.RMS(frame.Payload),
		})
	}

	if processor, ok := d.processors[stream]; ok {
		processor.NotifyDuration(duration)
	}
}

// handleScreenshot passes the payload through as a screenshot record.
func (d *Dispatcher) handleScreenshot(frame protocol.Frame) {
	if len(frame.Payload) == 0 {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		d.logWarn("malformed screenshot payload", "error", err.Error())
		return
	}
	d.sink.Screenshot(payload)
}

// drain performs orderly shutdown: final processor passes, writer close,
// zero-audio reporting, optional no-live processing, retention.
func (d *Dispatcher) drain(ctx context.Context) error {
	started := d.currentState() != fsm.StateWaiting
	if started {
		_ = d.transition(fsm.EventStop)
	}

	for _, processor := range d.processors {
		processor.Stop(true)
	}

	d.mu.Lock()
	writers := make(map[string]*capture.StreamWriter, len(d.writers))
	for stream, writer := range d.writers {
		writers[stream] = writer
	}
	sampleRate := d.sampleRate
	channels := d.channels
	d.mu.Unlock()

	for stream, writer := range writers {
		if err := writer.Close(); err != nil {
			d.logWarn("close stream writer", "stream", stream, "error", err.Error())
		}
	}

	hadAudio := false
	for _, stream := range d.cfg.SelectedStreams() {
		writer := writers[stream]
		if writer == nil || writer.BytesWritten == 0 {
			d.sink.Error("no_audio_for_stream_" + stream)
			continue
		}
		hadAudio = true
	}

	if hadAudio && d.cfg.NoLive {
		d.finalPass(ctx, writers, sampleRate, channels)
	}

	if started {
		d.applyRetention(writers)
		_ = d.transition(fsm.EventDrained)
	}

	if !hadAudio {
		return ErrNoAudio
	}
	return nil
}

// finalPass runs one finalising pipeline execution per selected stream when
// live processing was disabled.
func (d *Dispatcher) finalPass(ctx context.Context, writers map[string]*capture.StreamWriter, sampleRate, channels int) {
	for _, stream := range d.cfg.SelectedStreams() {
		writer := writers[stream]
		if writer == nil || writer.BytesWritten == 0 {
			continue
		}

		snap := writer.Snapshot(sampleRate, channels)
		merged, err := d.runner.Process(ctx, snap, 0, 0)
		if err != nil {
			d.sink.Error(err.Error())
			d.logError("final pass failed", "stream", stream, "error", err.Error())
			continue
		}

		duration := float64(writer.LastSampleIndex) / float64(sampleRate)
		d.emitter.EmitTranscript(merged, duration, true, stream)
	}
}

// applyRetention removes capture artefacts unless retention flags keep them.
func (d *Dispatcher) applyRetention(writers map[string]*capture.StreamWriter) {
	for _, writer := range writers {
		if !d.cfg.KeepContainer {
			removeQuiet(writer.ContainerPath())
		}
		if !d.cfg.KeepRaw {
			removeQuiet(writer.RawPath())
		}
	}
}

// snapshotFunc builds the state-locked snapshot closure for one stream.
func (d *Dispatcher) snapshotFunc(stream string) func() (capture.Snapshot, bool) {
	return func() (capture.Snapshot, bool) {
		d.mu.Lock()
		defer d.mu.Unlock()
		writer, ok := d.writers[stream]
		if !ok || d.failed[stream] {
			return capture.Snapshot{}, false
		}
		return writer.Snapshot(d.sampleRate, d.channels), true
	}
}

// Handle serves control-socket commands.
func (d *Dispatcher) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		d.mu.Lock()
		state := d.state
		streams := make(map[string]float64, len(d.writers))
		for stream, writer := range d.writers {
			if d.sampleRate > 0 {
				streams[stream] = float64(writer.LastSampleIndex) / float64(d.sampleRate)
			}
		}
		d.mu.Unlock()
		return ipc.Response{OK: true, State: string(state), Message: "status", Streams: streams}
	case "stop":
		d.RequestStop()
		return ipc.Response{OK: true, State: string(d.currentState()), Message: "stop requested"}
	default:
		return ipc.Response{OK: false, State: string(d.currentState()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// RequestStop asks the frame loop to drain, as if a STOP frame had arrived.
func (d *Dispatcher) RequestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// transition applies one lifecycle event.
func (d *Dispatcher) transition(event fsm.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, err := fsm.Transition(d.state, event)
	if err != nil {
		return err
	}
	d.state = next
	return nil
}

// currentState reads the lifecycle state.
func (d *Dispatcher) currentState() fsm.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// metaInt reads a positive integer field from meeting meta.
func metaInt(meta map[string]any, key string, fallback int) int {
	value, ok := meta[key]
	if !ok {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}

func (d *Dispatcher) logInfo(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

func (d *Dispatcher) logWarn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}

func (d *Dispatcher) logError(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Error(msg, args...)
	}
}
