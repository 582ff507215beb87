package config

import (
	"github.com/spf13/pflag"
)

// Register binds every runtime flag onto fs, writing into cfg.
func Register(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for capture artefacts")
	fs.StringVar(&cfg.TranscribeStream, "transcribe-stream", cfg.TranscribeStream, "stream to transcribe: system, mic, or both")
	fs.StringVar(&cfg.DiarBackend, "diar-backend", cfg.DiarBackend, "diarisation backend: senko or sortformer")
	fs.StringVar(&cfg.DiarModel, "diar-model", cfg.DiarModel, "sortformer model variant")
	fs.StringVar(&cfg.ASRModel, "asr-model", cfg.ASRModel, "ASR model id")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "language code for ASR (auto-detected when empty)")

	fs.Float64Var(&cfg.GapThreshold, "gap-threshold", cfg.GapThreshold, "gap threshold seconds for speaker turns")
	fs.Float64Var(&cfg.SpeakerTolerance, "speaker-tolerance", cfg.SpeakerTolerance, "tolerance seconds for word-speaker assignment")
	fs.Float64Var(&cfg.LiveInterval, "live-interval", cfg.LiveInterval, "seconds between live transcript updates")
	fs.Float64Var(&cfg.LiveMinSeconds, "live-min-seconds", cfg.LiveMinSeconds, "minimum audio seconds before the first live update")
	fs.Float64Var(&cfg.FinalizeLag, "finalize-lag", cfg.FinalizeLag, "seconds to hold back final segments")

	fs.BoolVar(&cfg.EmitMeters, "emit-meters", cfg.EmitMeters, "emit RMS meter events for incoming audio")
	fs.BoolVar(&cfg.KeepRaw, "keep-raw", cfg.KeepRaw, "keep captured raw PCM files after processing")
	fs.BoolVar(&cfg.KeepContainer, "keep-container", cfg.KeepContainer, "keep captured WAV files after processing")
	fs.BoolVar(&cfg.NoLive, "no-live", cfg.NoLive, "disable live updates (process only on stop)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "verbose diagnostics on stderr")

	fs.StringVar(&cfg.ControlSocket, "control-socket", cfg.ControlSocket, "unix socket accepting status/stop commands")
	fs.StringVar(&cfg.EnginesConfig, "engines-config", cfg.EnginesConfig, "YAML file overriding engine helper commands")
}
