// Package live schedules incremental pipeline passes over growing stream
// buffers.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/davidfarrell/muesli-backend/internal/capture"
	"github.com/davidfarrell/muesli-backend/internal/emit"
	"github.com/davidfarrell/muesli-backend/internal/merge"
)

// wakeWait bounds the worker's level-triggered wait so scheduling survives
// missed notifications.
const wakeWait = 500 * time.Millisecond

// Config tunes one processor's scheduling rules.
type Config struct {
	// Interval is the minimum growth in seconds between pipeline passes.
	Interval float64
	// MinSeconds is the minimum buffered duration before the first pass.
	MinSeconds float64
}

// Runner is the pipeline surface the processor drives.
type Runner interface {
	Process(ctx context.Context, snap capture.Snapshot, startByte int64, timestampOffset float64) (merge.Transcript, error)
}

// Processor is the cooperative per-stream scheduler. It wakes on duration
// notifications (or every wakeWait), snapshots the stream, and runs the
// pipeline when the interval and minimum-duration rules allow.
type Processor struct {
	stream   string
	cfg      Config
	snapshot func() (capture.Snapshot, bool)
	runner   Runner
	sink     *emit.Sink
	emitter  *emit.Emitter
	logger   *slog.Logger

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	mu             sync.Mutex
	current        float64
	lastProcessed  float64
	finalizeOnStop bool
}

// NewProcessor wires a processor for one stream. snapshot must capture the
// stream state under the dispatcher's state lock and report false when the
// stream has no writer yet.
func NewProcessor(
	stream string,
	cfg Config,
	snapshot func() (capture.Snapshot, bool),
	runner Runner,
	sink *emit.Sink,
	emitter *emit.Emitter,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		stream:   stream,
		cfg:      cfg,
		snapshot: snapshot,
		runner:   runner,
		sink:     sink,
		emitter:  emitter,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (p *Processor) Start(ctx context.Context) {
	go p.run(ctx)
}

// NotifyDuration records the stream's current buffered duration and wakes
// the worker when the scheduling rules could admit a pass.
func (p *Processor) NotifyDuration(duration float64) {
	p.mu.Lock()
	p.current = duration
	ready := duration >= p.cfg.MinSeconds && duration-p.lastProcessed >= p.cfg.Interval
	p.mu.Unlock()

	if !ready {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop signals the worker and joins it. When finalize is set the worker
// performs one final pass with the full buffered duration before exiting.
func (p *Processor) Stop(finalize bool) {
	p.mu.Lock()
	p.finalizeOnStop = finalize
	p.mu.Unlock()

	close(p.stop)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
}

// run is the worker loop. In-flight pipeline calls always complete; the
// stop signal is only observed between passes.
func (p *Processor) run(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(wakeWait)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			p.drain(ctx)
			return
		case <-p.wake:
		case <-timer.C:
		}

		// A wake and a stop can be ready together; stop takes priority.
		select {
		case <-p.stop:
			p.drain(ctx)
			return
		default:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wakeWait)

		p.maybeProcess(ctx, false)
	}
}

// drain runs the final pass when requested.
func (p *Processor) drain(ctx context.Context) {
	p.mu.Lock()
	finalize := p.finalizeOnStop
	p.mu.Unlock()

	if finalize {
		p.maybeProcess(ctx, true)
	}
}

// maybeProcess snapshots the stream and runs one pipeline pass when the
// scheduling rules admit it. Reports whether a pass ran to completion.
func (p *Processor) maybeProcess(ctx context.Context, finalize bool) bool {
	snap, ok := p.snapshot()
	if !ok || snap.SizeBytes <= 0 {
		return false
	}

	duration := snap.Duration()
	if !finalize {
		p.mu.Lock()
		lastProcessed := p.lastProcessed
		p.mu.Unlock()
		if duration < p.cfg.MinSeconds {
			return false
		}
		if duration-lastProcessed < p.cfg.Interval {
			return false
		}
	}

	p.sink.Emit(emit.LiveStatus{
		Type:     "status",
		Message:  "live_process_start",
		Stream:   p.stream,
		Duration: duration,
		Finalize: finalize,
	})

	merged, err := p.runner.Process(ctx, snap, 0, 0)
	if err != nil {
		p.sink.Error(err.Error())
		p.logWarn("live pass failed", "stream", p.stream, "error", err.Error())
		return false
	}

	p.sink.Emit(emit.LiveStatus{
		Type:     "status",
		Message:  "live_process_done",
		Stream:   p.stream,
		Duration: duration,
		Finalize: finalize,
		Turns:    len(merged.Turns),
	})

	p.emitter.EmitTranscript(merged, duration, finalize, p.stream)

	p.mu.Lock()
	if duration > p.lastProcessed {
		p.lastProcessed = duration
	}
	p.mu.Unlock()
	return true
}

func (p *Processor) logWarn(msg string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Warn(msg, args...)
}
