package config

// DefaultASRModel is the model id handed to the ASR helper.
const DefaultASRModel = "mlx-community/parakeet-tdt-0.6b-v3"

// Default returns the canonical runtime configuration used when no flags
// override it.
func Default() Config {
	return Config{
		OutputDir:        ".",
		TranscribeStream: StreamSystem,
		DiarBackend:      "senko",
		DiarModel:        "default",
		ASRModel:         DefaultASRModel,
		Language:         "",

		GapThreshold:     0.8,
		SpeakerTolerance: 0.25,
		LiveInterval:     15.0,
		LiveMinSeconds:   10.0,
		FinalizeLag:      5.0,

		Engines: DefaultEngines(),
	}
}

// DefaultEngines returns the helper command templates used when no engines
// file overrides them.
func DefaultEngines() Engines {
	return Engines{
		ASR:        CommandSpec{Command: []string{"parakeet-transcribe", "--model", "{model}", "--output-json"}},
		Senko:      CommandSpec{Command: []string{"senko-diarise", "--output-json"}},
		Sortformer: CommandSpec{Command: []string{"sortformer-diarise", "--model", "{model}", "--output-json"}},
	}
}
