package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestRegisterParsesFlagSurface(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Register(fs, &cfg)

	require.NoError(t, fs.Parse([]string{
		"--output-dir", "/tmp/meeting",
		"--transcribe-stream", "both",
		"--diar-backend", "sortformer",
		"--diar-model", "nvidia_high",
		"--language", "en",
		"--gap-threshold", "1.2",
		"--live-interval", "30",
		"--emit-meters",
		"--keep-raw",
		"--no-live",
	}))

	require.Equal(t, "/tmp/meeting", cfg.OutputDir)
	require.Equal(t, StreamBoth, cfg.TranscribeStream)
	require.Equal(t, "sortformer", cfg.DiarBackend)
	require.Equal(t, "nvidia_high", cfg.DiarModel)
	require.Equal(t, "en", cfg.Language)
	require.Equal(t, 1.2, cfg.GapThreshold)
	require.Equal(t, 30.0, cfg.LiveInterval)
	require.True(t, cfg.EmitMeters)
	require.True(t, cfg.KeepRaw)
	require.True(t, cfg.NoLive)
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "bad stream", mutate: func(c *Config) { c.TranscribeStream = "all" }, wantErr: "transcribe-stream"},
		{name: "bad backend", mutate: func(c *Config) { c.DiarBackend = "pyannote" }, wantErr: "diar-backend"},
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = " " }, wantErr: "output-dir"},
		{name: "empty asr model", mutate: func(c *Config) { c.ASRModel = "" }, wantErr: "asr-model"},
		{name: "zero gap", mutate: func(c *Config) { c.GapThreshold = 0 }, wantErr: "gap-threshold"},
		{name: "negative tolerance", mutate: func(c *Config) { c.SpeakerTolerance = -1 }, wantErr: "speaker-tolerance"},
		{name: "zero interval", mutate: func(c *Config) { c.LiveInterval = 0 }, wantErr: "live-interval"},
		{name: "negative lag", mutate: func(c *Config) { c.FinalizeLag = -0.5 }, wantErr: "finalize-lag"},
		{name: "empty asr command", mutate: func(c *Config) { c.Engines.ASR.Command = nil }, wantErr: "engines.asr"},
		{name: "empty diar command", mutate: func(c *Config) { c.Engines.Senko.Command = nil }, wantErr: "engines.senko"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSelectedStreams(t *testing.T) {
	cfg := Default()
	require.Equal(t, []string{"system"}, cfg.SelectedStreams())

	cfg.TranscribeStream = StreamMic
	require.Equal(t, []string{"mic"}, cfg.SelectedStreams())

	cfg.TranscribeStream = StreamBoth
	require.Equal(t, []string{"system", "mic"}, cfg.SelectedStreams())
}

func TestLoadEnginesOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
asr:
  command: ["whisper-cli", "--model", "{model}", "--json"]
sortformer:
  command: ["diarize", "--variant", "{model}"]
`), 0o644))

	engines, err := LoadEngines(path)
	require.NoError(t, err)
	require.Equal(t, []string{"whisper-cli", "--model", "{model}", "--json"}, engines.ASR.Command)
	require.Equal(t, []string{"diarize", "--variant", "{model}"}, engines.Sortformer.Command)
	// Untouched section keeps its default.
	require.Equal(t, DefaultEngines().Senko, engines.Senko)
}

func TestLoadEnginesMissingFile(t *testing.T) {
	_, err := LoadEngines(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnginesEmptyPathUsesDefaults(t *testing.T) {
	engines, err := LoadEngines("")
	require.NoError(t, err)
	require.Equal(t, DefaultEngines(), engines)
}
