package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the backend cannot run with.
func Validate(cfg Config) error {
	switch cfg.TranscribeStream {
	case StreamSystem, StreamMic, StreamBoth:
	default:
		return fmt.Errorf("transcribe-stream must be system, mic, or both (got %q)", cfg.TranscribeStream)
	}

	switch cfg.DiarBackend {
	case "senko", "sortformer":
	default:
		return fmt.Errorf("diar-backend must be senko or sortformer (got %q)", cfg.DiarBackend)
	}

	if strings.TrimSpace(cfg.OutputDir) == "" {
		return fmt.Errorf("output-dir must not be empty")
	}
	if strings.TrimSpace(cfg.ASRModel) == "" {
		return fmt.Errorf("asr-model must not be empty")
	}

	if cfg.GapThreshold <= 0 {
		return fmt.Errorf("gap-threshold must be positive (got %g)", cfg.GapThreshold)
	}
	if cfg.SpeakerTolerance < 0 {
		return fmt.Errorf("speaker-tolerance must not be negative (got %g)", cfg.SpeakerTolerance)
	}
	if cfg.LiveInterval <= 0 {
		return fmt.Errorf("live-interval must be positive (got %g)", cfg.LiveInterval)
	}
	if cfg.LiveMinSeconds < 0 {
		return fmt.Errorf("live-min-seconds must not be negative (got %g)", cfg.LiveMinSeconds)
	}
	if cfg.FinalizeLag < 0 {
		return fmt.Errorf("finalize-lag must not be negative (got %g)", cfg.FinalizeLag)
	}

	if len(cfg.Engines.ASR.Command) == 0 {
		return fmt.Errorf("engines.asr command must not be empty")
	}
	if len(cfg.DiarCommand().Command) == 0 {
		return fmt.Errorf("engines.%s command must not be empty", cfg.DiarBackend)
	}
	return nil
}
