// Package config provides the configuration schema and loader for the
// Mirrorcast avatar gateway.
package config

import "time"

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Protocol selects the HTTP transport flavour.
type Protocol string

const (
	// ProtocolH2C serves cleartext HTTP/2. The default; browsers reach it
	// through a terminating proxy, local clients connect directly.
	ProtocolH2C Protocol = "h2c"

	// ProtocolH2 serves HTTP/2 over TLS and requires server.tls.
	ProtocolH2 Protocol = "h2"
)

// IsValid reports whether p is a recognised protocol.
func (p Protocol) IsValid() bool {
	return p == ProtocolH2C || p == ProtocolH2
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	AssetStore AssetStoreConfig `yaml:"asset_store"`
	Video      VideoConfig      `yaml:"video"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Protocol selects h2c (default) or h2 over TLS.
	Protocol Protocol `yaml:"protocol"`

	// TLS configures certificates for the h2 protocol. When nil and the
	// protocol is h2c, the server runs cleartext.
	TLS *TLSConfig `yaml:"tls"`

	// WebDir is the directory holding the browser playback client. Empty
	// disables static file serving.
	WebDir string `yaml:"web_dir"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the inference backend for each pipeline stage.
type ProvidersConfig struct {
	ASR     ProviderEntry `yaml:"asr"`
	LLM     ProviderEntry `yaml:"llm"`
	TTS     ProviderEntry `yaml:"tts"`
	LipSync ProviderEntry `yaml:"lipsync"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL is the provider's API endpoint. Required for the self-hosted
	// backends (whisper-server, XTTS, the lip-sync service).
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "Qwen/Qwen2.5-7B-Instruct").
	Model string `yaml:"model"`

	// Timeout bounds a single call to this provider. Zero uses the
	// stage default.
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig carries the avatar persona and turn behaviour.
type PipelineConfig struct {
	// SystemPrompt shapes the avatar's persona.
	SystemPrompt string `yaml:"system_prompt"`

	// PortraitImage is the server-side reference image the lip-sync backend
	// animates.
	PortraitImage string `yaml:"portrait_image"`

	// VoiceSample is the server-side reference recording the TTS backend
	// clones.
	VoiceSample string `yaml:"voice_sample"`

	// FallbackText replaces the dialogue model's output when it fails. Empty
	// uses the built-in apology.
	FallbackText string `yaml:"fallback_text"`

	// HistoryLength bounds the per-user conversation transcript in
	// messages. Zero uses the default.
	HistoryLength int `yaml:"history_length"`

	// PortraitsDir and VoicesDir back the asset listing endpoints that
	// playback clients use to populate their pickers. Empty disables the
	// respective endpoint.
	PortraitsDir string `yaml:"portraits_dir"`
	VoicesDir    string `yaml:"voices_dir"`
}

// ChunkerConfig tunes utterance splitting.
type ChunkerConfig struct {
	// MaxChars caps ordinary chunk length. Zero uses the default.
	MaxChars int `yaml:"max_chars"`

	// FirstChunkHardLimit caps the merged first chunk. Zero uses the
	// default; non-zero values below max_chars are invalid.
	FirstChunkHardLimit int `yaml:"first_chunk_hard_limit"`
}

// AssetStoreConfig tunes artifact storage.
type AssetStoreConfig struct {
	// Dir is the root directory for artifact files.
	Dir string `yaml:"dir"`

	// StablePoll is the size-sampling interval when confirming an artifact
	// is fully on disk.
	StablePoll time.Duration `yaml:"stable_poll"`

	// StableBudget is the total confirmation budget per artifact.
	StableBudget time.Duration `yaml:"stable_budget"`

	// GracePeriod is how long served artifacts stay on disk before the
	// eviction sweeper may remove them.
	GracePeriod time.Duration `yaml:"grace_period"`
}

// VideoConfig carries lip-sync rendering parameters.
type VideoConfig struct {
	// FPS is the output frame rate. Zero uses the backend default.
	FPS int `yaml:"fps"`

	// Resolution is the output square edge length in pixels.
	Resolution int `yaml:"resolution"`

	// DiffusionSteps trades quality for speed. Zero uses the backend
	// default.
	DiffusionSteps int `yaml:"diffusion_steps"`
}
