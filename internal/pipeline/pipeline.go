// Package pipeline drives one stream snapshot through normalisation, ASR,
// diarisation, and merging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/davidfarrell/muesli-backend/internal/asr"
	"github.com/davidfarrell/muesli-backend/internal/capture"
	"github.com/davidfarrell/muesli-backend/internal/diar"
	"github.com/davidfarrell/muesli-backend/internal/merge"
	"github.com/davidfarrell/muesli-backend/internal/wav"
)

// ErrEmptySnapshot reports a snapshot window holding no complete frame.
var ErrEmptySnapshot = errors.New("snapshot holds no audio")

// ErrFFmpegMissing reports that the audio transcoder is not installed.
var ErrFFmpegMissing = errors.New("ffmpeg is not installed or not in PATH")

// Runner executes the transcribe+diarise pipeline for snapshots.
//
// All Runner instances sharing one mutex observe the single-flight
// invariant: at most one pipeline execution runs process-wide, reflecting
// contention on the heavyweight models behind the engine commands.
type Runner struct {
	mu       *sync.Mutex
	asr      asr.Engine
	diar     diar.Engine
	opts     merge.Options
	language string
	workDir  string
	logger   *slog.Logger

	// test seams
	lookPath  func(string) (string, error)
	normalise func(input, output string) error
}

// NewRunner wires a pipeline runner. mu is the process-wide pipeline mutex,
// shared by every live processor and the final-pass dispatcher.
func NewRunner(
	mu *sync.Mutex,
	asrEngine asr.Engine,
	diarEngine diar.Engine,
	opts merge.Options,
	language string,
	workDir string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		mu:        mu,
		asr:       asrEngine,
		diar:      diarEngine,
		opts:      opts,
		language:  language,
		workDir:   workDir,
		logger:    logger,
		lookPath:  exec.LookPath,
		normalise: normaliseAudio,
	}
}

// Process materialises the snapshot window starting at startByte into an
// ephemeral WAV, runs the engines under the pipeline mutex, and merges the
// results. timestampOffset shifts all engine times into meeting time before
// merging. Ephemeral files are removed on success and failure.
func (r *Runner) Process(ctx context.Context, snap capture.Snapshot, startByte int64, timestampOffset float64) (merge.Transcript, error) {
	chunk, err := wav.WriteChunk(snap.RawPath, r.workDir, snap.SampleRate, snap.Channels, snap.SizeBytes, startByte)
	if err != nil {
		return merge.Transcript{}, err
	}
	if chunk == "" {
		return merge.Transcript{}, ErrEmptySnapshot
	}
	defer removeQuiet(chunk)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, chunk, timestampOffset)
}

// run executes normalise -> ASR -> diarise -> merge over one input file.
// Callers hold the pipeline mutex.
func (r *Runner) run(ctx context.Context, inputPath string, timestampOffset float64) (merge.Transcript, error) {
	enginePath := inputPath
	if !wav.Is16kMono(inputPath) {
		if _, err := r.lookPath("ffmpeg"); err != nil {
			return merge.Transcript{}, ErrFFmpegMissing
		}

		r.logDebug("normalising audio to 16kHz mono")
		normalised := filepath.Join(r.workDir, "muesli_norm_"+uuid.NewString()+".wav")
		if err := r.normalise(inputPath, normalised); err != nil {
			removeQuiet(normalised)
			return merge.Transcript{}, fmt.Errorf("normalise audio: %w", err)
		}
		defer removeQuiet(normalised)
		enginePath = normalised
	}

	r.logDebug("running ASR")
	transcript, err := r.asr.Transcribe(ctx, enginePath, r.language)
	if err != nil {
		return merge.Transcript{}, err
	}

	r.logDebug("running diarisation")
	segments, err := r.diar.Diarise(ctx, enginePath)
	if err != nil {
		return merge.Transcript{}, err
	}

	merge.Shift(transcript.Words, segments, timestampOffset)
	return merge.Merge(transcript.Words, segments, r.opts), nil
}

// normaliseAudio transcodes any input into 16kHz mono s16 WAV.
func normaliseAudio(input, output string) error {
	return ffmpeg.Input(input).
		Output(output, ffmpeg.KwArgs{
			"ar":     16000,
			"ac":     1,
			"acodec": "pcm_s16le",
			"f":      "wav",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
}

func removeQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func (r *Runner) logDebug(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(msg, args...)
}
