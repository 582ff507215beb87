// Package diar adapts external speaker diarisation engines.
package diar

import (
	"context"
	"fmt"

	"github.com/davidfarrell/muesli-backend/internal/engine"
	"github.com/davidfarrell/muesli-backend/internal/merge"
)

// Backend names accepted by the --diar-backend flag.
const (
	BackendSenko      = "senko"
	BackendSortformer = "sortformer"
)

// Engine diarises one audio file (16kHz mono s16 WAV) into speaker
// segments. Segment order is unspecified; speaker labels are opaque.
type Engine interface {
	Diarise(ctx context.Context, audioPath string) ([]merge.Segment, error)
}

// CommandEngine drives a helper process that prints
// {"segments": [{"start","end","speaker"}]} on stdout.
type CommandEngine struct {
	name string
	cmd  engine.Command
}

// NewCommandEngine builds a named diariser from an argv template and model.
func NewCommandEngine(name string, argv []string, model string) (*CommandEngine, error) {
	cmd := engine.Command{Argv: argv, Model: model}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("diariser %s: %w", name, err)
	}
	return &CommandEngine{name: name, cmd: cmd}, nil
}

// Name returns the configured backend name.
func (e *CommandEngine) Name() string {
	return e.name
}

// Binary returns the engine executable name for diagnostics.
func (e *CommandEngine) Binary() string {
	return e.cmd.Binary()
}

// Diarise runs the helper over audioPath.
func (e *CommandEngine) Diarise(ctx context.Context, audioPath string) ([]merge.Segment, error) {
	var payload struct {
		Segments []merge.Segment `json:"segments"`
	}
	if err := e.cmd.Run(ctx, nil, audioPath, &payload); err != nil {
		return nil, fmt.Errorf("diariser %s: %w", e.name, err)
	}
	return payload.Segments, nil
}
