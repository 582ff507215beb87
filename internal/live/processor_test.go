package live

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davidfarrell/muesli-backend/internal/capture"
	"github.com/davidfarrell/muesli-backend/internal/emit"
	"github.com/davidfarrell/muesli-backend/internal/merge"
)

// stubRunner counts pipeline passes and signals each invocation.
type stubRunner struct {
	mu      sync.Mutex
	calls   int
	err     error
	result  merge.Transcript
	invoked chan struct{}
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		invoked: make(chan struct{}, 16),
		result: merge.Transcript{Turns: []merge.Turn{
			{Speaker: "SPEAKER_00", Start: 0, End: 1, Text: "hello"},
		}},
	}
}

func (s *stubRunner) Process(context.Context, capture.Snapshot, int64, float64) (merge.Transcript, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	s.invoked <- struct{}{}
	if err != nil {
		return merge.Transcript{}, err
	}
	return s.result, nil
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// snapshotOf returns a snapshot func reporting a fixed buffered size.
func snapshotOf(seconds float64) func() (capture.Snapshot, bool) {
	return func() (capture.Snapshot, bool) {
		return capture.Snapshot{
			RawPath:    "unused.pcm",
			SampleRate: 16000,
			Channels:   1,
			SizeBytes:  int64(seconds * 16000 * 2),
		}, true
	}
}

func newTestProcessor(runner Runner, snapshot func() (capture.Snapshot, bool), buf *bytes.Buffer) *Processor {
	sink := emit.NewSink(buf)
	return NewProcessor("system", Config{Interval: 15, MinSeconds: 10}, snapshot, runner, sink, emit.NewEmitter(sink, 5), nil)
}

func waitInvoked(t *testing.T, runner *stubRunner) {
	t.Helper()
	select {
	case <-runner.invoked:
	case <-time.After(2 * time.Second):
		t.Fatalf("pipeline pass did not run")
	}
}

func TestProcessorRunsWhenThresholdsMet(t *testing.T) {
	runner := newStubRunner()
	var buf bytes.Buffer
	p := newTestProcessor(runner, snapshotOf(20), &buf)

	p.Start(context.Background())
	p.NotifyDuration(20)
	waitInvoked(t, runner)
	p.Stop(false)

	if got := runner.callCount(); got != 1 {
		t.Fatalf("expected exactly one pass, got %d", got)
	}
}

func TestProcessorSkipsBelowMinSeconds(t *testing.T) {
	runner := newStubRunner()
	var buf bytes.Buffer
	p := newTestProcessor(runner, snapshotOf(5), &buf)

	p.Start(context.Background())
	p.NotifyDuration(5)
	// Allow at least one timed wake to pass through the gate.
	time.Sleep(700 * time.Millisecond)
	p.Stop(false)

	if got := runner.callCount(); got != 0 {
		t.Fatalf("expected no passes below min duration, got %d", got)
	}
}

func TestProcessorSkipsWithoutEnoughGrowth(t *testing.T) {
	runner := newStubRunner()
	var buf bytes.Buffer

	seconds := 20.0
	var mu sync.Mutex
	snapshot := func() (capture.Snapshot, bool) {
		mu.Lock()
		defer mu.Unlock()
		return capture.Snapshot{RawPath: "unused.pcm", SampleRate: 16000, Channels: 1, SizeBytes: int64(seconds * 16000 * 2)}, true
	}

	p := newTestProcessor(runner, snapshot, &buf)
	p.Start(context.Background())

	p.NotifyDuration(20)
	waitInvoked(t, runner)

	// Growth below the interval: notify must not schedule another pass.
	mu.Lock()
	seconds = 25
	mu.Unlock()
	p.NotifyDuration(25)
	time.Sleep(700 * time.Millisecond)
	p.Stop(false)

	if got := runner.callCount(); got != 1 {
		t.Fatalf("expected one pass, got %d", got)
	}
}

func TestProcessorFinalizeOnStopBypassesThresholds(t *testing.T) {
	runner := newStubRunner()
	var buf bytes.Buffer
	p := newTestProcessor(runner, snapshotOf(3), &buf)

	p.Start(context.Background())
	p.Stop(true)

	if got := runner.callCount(); got != 1 {
		t.Fatalf("expected the finalize pass, got %d", got)
	}

	var sawFinalize bool
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("bad record: %v", err)
		}
		if record["message"] == "live_process_done" && record["finalize"] == true {
			sawFinalize = true
		}
	}
	if !sawFinalize {
		t.Fatalf("expected a finalize live_process_done record")
	}
}

func TestProcessorStopWithoutFinalizeSkipsFinalPass(t *testing.T) {
	runner := newStubRunner()
	var buf bytes.Buffer
	p := newTestProcessor(runner, snapshotOf(30), &buf)

	p.Start(context.Background())
	p.Stop(false)

	if got := runner.callCount(); got != 0 {
		t.Fatalf("expected no passes, got %d", got)
	}
}

func TestProcessorEmptySnapshotFinalizeIsNoOp(t *testing.T) {
	runner := newStubRunner()
	var buf bytes.Buffer
	p := newTestProcessor(runner, snapshotOf(0), &buf)

	p.Start(context.Background())
	p.Stop(true)

	if got := runner.callCount(); got != 0 {
		t.Fatalf("expected no passes for an empty stream, got %d", got)
	}
}

func TestProcessorContinuesAfterPipelineFailure(t *testing.T) {
	runner := newStubRunner()
	runner.err = errors.New("engine exploded")
	var buf bytes.Buffer

	seconds := 20.0
	var mu sync.Mutex
	snapshot := func() (capture.Snapshot, bool) {
		mu.Lock()
		defer mu.Unlock()
		return capture.Snapshot{RawPath: "unused.pcm", SampleRate: 16000, Channels: 1, SizeBytes: int64(seconds * 16000 * 2)}, true
	}

	p := newTestProcessor(runner, snapshot, &buf)
	p.Start(context.Background())

	p.NotifyDuration(20)
	waitInvoked(t, runner)

	// Failure must not advance last_processed: the same duration is
	// eligible again, and the worker keeps scheduling.
	runner.mu.Lock()
	runner.err = nil
	runner.mu.Unlock()
	p.NotifyDuration(20)
	waitInvoked(t, runner)
	p.Stop(false)

	if got := runner.callCount(); got < 2 {
		t.Fatalf("expected worker to keep scheduling after failure, got %d", got)
	}

	var sawError bool
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("bad record: %v", err)
		}
		if record["type"] == "error" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected an error record for the failed pass")
	}
}
