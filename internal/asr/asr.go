// Package asr adapts external speech recognition engines behind a narrow
// transcription contract.
package asr

import (
	"context"
	"fmt"

	"github.com/davidfarrell/muesli-backend/internal/engine"
	"github.com/davidfarrell/muesli-backend/internal/merge"
)

// Result is a full transcription with word-level timestamps, ordered by
// word start time in seconds.
type Result struct {
	Text  string
	Words []merge.Word
}

// Engine transcribes one audio file (16kHz mono s16 WAV).
type Engine interface {
	Transcribe(ctx context.Context, audioPath, language string) (Result, error)
}

// CommandEngine drives a helper process that prints
// {"text": ..., "words": [{"text","start","end"}]} on stdout.
type CommandEngine struct {
	cmd engine.Command
}

// NewCommandEngine builds an engine from an argv template and model id.
func NewCommandEngine(argv []string, model string) (*CommandEngine, error) {
	cmd := engine.Command{Argv: argv, Model: model}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("asr: %w", err)
	}
	return &CommandEngine{cmd: cmd}, nil
}

// Binary returns the engine executable name for diagnostics.
func (e *CommandEngine) Binary() string {
	return e.cmd.Binary()
}

// Transcribe runs the helper over audioPath. A non-empty language is passed
// through as a --language hint; otherwise the engine auto-detects.
func (e *CommandEngine) Transcribe(ctx context.Context, audioPath, language string) (Result, error) {
	var extra []string
	if language != "" {
		extra = []string{"--language", language}
	}

	var payload struct {
		Text  string       `json:"text"`
		Words []merge.Word `json:"words"`
	}
	if err := e.cmd.Run(ctx, extra, audioPath, &payload); err != nil {
		return Result{}, fmt.Errorf("asr: %w", err)
	}
	return Result{Text: payload.Text, Words: payload.Words}, nil
}
