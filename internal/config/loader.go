package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":     {"whisper"},
	"llm":     {"openai", "vllm", "ollama"},
	"tts":     {"xtts"},
	"lipsync": {"ditto"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Protocol != "" && !cfg.Server.Protocol.IsValid() {
		errs = append(errs, fmt.Errorf("server.protocol %q is invalid; valid values: h2c, h2", cfg.Server.Protocol))
	}
	if cfg.Server.Protocol == ProtocolH2 && cfg.Server.TLS == nil {
		errs = append(errs, errors.New("server.protocol h2 requires server.tls"))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("lipsync", cfg.Providers.LipSync.Name)

	for kind, entry := range map[string]ProviderEntry{
		"asr":     cfg.Providers.ASR,
		"tts":     cfg.Providers.TTS,
		"lipsync": cfg.Providers.LipSync,
	} {
		if entry.Name != "" && entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s.base_url is required for the %q backend", kind, entry.Name))
		}
	}

	if cfg.Chunker.FirstChunkHardLimit != 0 && cfg.Chunker.MaxChars != 0 &&
		cfg.Chunker.FirstChunkHardLimit < cfg.Chunker.MaxChars {
		errs = append(errs, fmt.Errorf("chunker.first_chunk_hard_limit %d is below chunker.max_chars %d",
			cfg.Chunker.FirstChunkHardLimit, cfg.Chunker.MaxChars))
	}

	if cfg.Video.FPS < 0 || cfg.Video.Resolution < 0 || cfg.Video.DiffusionSteps < 0 {
		errs = append(errs, errors.New("video parameters must be non-negative"))
	}

	if cfg.Pipeline.PortraitImage == "" {
		slog.Warn("pipeline.portrait_image is empty; the lip-sync backend will use its default portrait")
	}
	if cfg.Pipeline.VoiceSample == "" {
		slog.Warn("pipeline.voice_sample is empty; the TTS backend will use its default voice")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
