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

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "ollama", "anyllm"},
	"stt": {"whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; records will be drafted by rule extraction only")
	}
	if cfg.Providers.LLMFallback.Name != "" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallback is set but providers.llm is not"))
	}
	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.Model == "" {
		errs = append(errs, errors.New("providers.stt.model (GGML model path) is required for the whisper provider"))
	}

	// ASR
	if cfg.ASR.SampleRate != 0 && cfg.ASR.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("asr.sample_rate %d is unsupported; recordings must be 16000 Hz mono", cfg.ASR.SampleRate))
	}
	if cfg.ASR.MinConfidence < 0 || cfg.ASR.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("asr.min_confidence %.2f is out of range [0, 1]", cfg.ASR.MinConfidence))
	}
	if cfg.ASR.GapSeconds < 0 {
		errs = append(errs, fmt.Errorf("asr.gap_seconds %.2f must not be negative", cfg.ASR.GapSeconds))
	}
	if cfg.ASR.MinChars < 0 {
		errs = append(errs, fmt.Errorf("asr.min_chars %d must not be negative", cfg.ASR.MinChars))
	}

	// Knowledge
	if cfg.Knowledge.BootstrapCount < 0 {
		errs = append(errs, fmt.Errorf("knowledge.bootstrap_count %d must not be negative", cfg.Knowledge.BootstrapCount))
	}
	if cfg.Knowledge.BootstrapQuery != "" && cfg.Knowledge.Dir == "" {
		errs = append(errs, errors.New("knowledge.bootstrap_query is set but knowledge.dir is not"))
	}

	// Evidence
	if cfg.Evidence.TopK < 0 || cfg.Evidence.TopK > 50 {
		errs = append(errs, fmt.Errorf("evidence.top_k %d is out of range [0, 50]", cfg.Evidence.TopK))
	}
	if cfg.Evidence.MinProvenanceScore < 0 || cfg.Evidence.MinProvenanceScore > 1 {
		errs = append(errs, fmt.Errorf("evidence.min_provenance_score %.2f is out of range [0, 1]", cfg.Evidence.MinProvenanceScore))
	}
	if cfg.Evidence.MaxBoost < 0 || cfg.Evidence.MaxBoost > 1 {
		errs = append(errs, fmt.Errorf("evidence.max_boost %.2f is out of range [0, 1]", cfg.Evidence.MaxBoost))
	}
	if cfg.Knowledge.PubMedTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("knowledge.pubmed_timeout_seconds %d must not be negative", cfg.Knowledge.PubMedTimeoutSeconds))
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; encounters will not survive a restart")
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
