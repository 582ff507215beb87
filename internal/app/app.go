// Package app wires configuration, logging, engines, and the dispatcher
// into the backend process entrypoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/pflag"

	"github.com/davidfarrell/muesli-backend/internal/asr"
	"github.com/davidfarrell/muesli-backend/internal/config"
	"github.com/davidfarrell/muesli-backend/internal/diar"
	"github.com/davidfarrell/muesli-backend/internal/dispatch"
	"github.com/davidfarrell/muesli-backend/internal/doctor"
	"github.com/davidfarrell/muesli-backend/internal/emit"
	"github.com/davidfarrell/muesli-backend/internal/ipc"
	"github.com/davidfarrell/muesli-backend/internal/logging"
	"github.com/davidfarrell/muesli-backend/internal/merge"
	"github.com/davidfarrell/muesli-backend/internal/pipeline"
	"github.com/davidfarrell/muesli-backend/internal/version"
)

// Runner holds process-level dependencies used by command handlers.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Execute is the package entrypoint used by cmd/muesli-backend/main.go.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses the optional subcommand and flags, then dispatches.
func (r Runner) Execute(ctx context.Context, args []string) int {
	command := "run"
	if len(args) > 0 && !isFlag(args[0]) {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "version":
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	case "run", "doctor":
	default:
		fmt.Fprintf(r.Stderr, "error: unknown command %q\n\n%s", command, helpText())
		return 2
	}

	cfg := config.Default()
	fs := pflag.NewFlagSet("muesli-backend", pflag.ContinueOnError)
	fs.SetOutput(r.Stderr)
	fs.Usage = func() { fmt.Fprint(r.Stderr, helpText()) }
	config.Register(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	engines, err := config.LoadEngines(cfg.EnginesConfig)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	cfg.Engines = engines

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if command == "doctor" {
		report := doctor.Run(cfg)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	}

	return r.runBackend(ctx, cfg)
}

// runBackend wires the full capture pipeline and drives it to completion.
func (r Runner) runBackend(ctx context.Context, cfg config.Config) int {
	logger := logging.New(r.Stderr, cfg.Verbose)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Fprintf(r.Stderr, "error: create output dir: %v\n", err)
		return 1
	}

	asrEngine, err := asr.NewCommandEngine(cfg.Engines.ASR.Command, cfg.ASRModel)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	diarEngine, err := diar.NewCommandEngine(cfg.DiarBackend, cfg.DiarCommand().Command, cfg.DiarModel)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	opts := merge.DefaultOptions()
	opts.GapThreshold = cfg.GapThreshold
	opts.SpeakerTolerance = cfg.SpeakerTolerance

	var pipelineMu sync.Mutex
	runner := pipeline.NewRunner(&pipelineMu, asrEngine, diarEngine, opts, cfg.Language, cfg.OutputDir, logger)

	sink := emit.NewSink(r.Stdout)
	emitter := emit.NewEmitter(sink, cfg.FinalizeLag)
	dispatcher := dispatch.New(cfg, runner, sink, emitter, logger)

	if cfg.ControlSocket != "" {
		listener, err := ipc.Listen(cfg.ControlSocket)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		serverCtx, serverCancel := context.WithCancel(ctx)
		defer serverCancel()
		go func() {
			if serveErr := ipc.Serve(serverCtx, listener, dispatcher); serveErr != nil {
				logger.Error("control server failed", "error", serveErr.Error())
			}
		}()
		defer func() { _ = os.Remove(cfg.ControlSocket) }()
	}

	err = dispatcher.Run(ctx, r.Stdin)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, dispatch.ErrNoAudio):
		logger.Error("no audio captured")
		return 1
	default:
		logger.Error("backend failed", "error", err.Error())
		return 1
	}
}

// isFlag reports whether an argument is a flag rather than a subcommand.
func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

// helpText renders CLI usage.
func helpText() string {
	return `Usage:
  muesli-backend [command] [flags]

Commands:
  run       Read the framed capture protocol on stdin and emit JSONL events (default)
  doctor    Check ffmpeg, engine commands, and output directory
  version   Print version information

Key flags:
  --output-dir DIR            directory for capture artefacts (default ".")
  --transcribe-stream NAME    system, mic, or both (default "system")
  --diar-backend NAME         senko or sortformer (default "senko")
  --asr-model ID              ASR model id
  --language CODE             ASR language hint (auto-detect when empty)
  --live-interval SECONDS     seconds between live updates (default 15)
  --live-min-seconds SECONDS  minimum audio before the first update (default 10)
  --finalize-lag SECONDS      hold-back for final segments (default 5)
  --emit-meters               emit RMS meter events
  --keep-raw / --keep-container  retain capture artefacts
  --no-live                   process only on stop
  --control-socket PATH       unix socket accepting status/stop
  --engines-config PATH       YAML overriding engine helper commands
  --verbose                   debug diagnostics on stderr
`
}
