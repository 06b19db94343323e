package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/mirevald/daybook/internal/tools"
)

// KnownProviderNames lists the LLM backend names the default registry can
// construct. [Validate] warns about anything else so typos surface at startup
// instead of at the first fallback turn.
var KnownProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq",
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset values with the baseline the server runs with
// when the config file says nothing about them.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Speech.MaxConnections == 0 {
		cfg.Speech.MaxConnections = 10
	}
	if cfg.Speech.RateLimitPerMinute == 0 {
		cfg.Speech.RateLimitPerMinute = 10
	}
	if cfg.Speech.SessionWarningMinutes == 0 {
		cfg.Speech.SessionWarningMinutes = 50
	}
	if cfg.Speech.SessionRenewalMinutes == 0 {
		cfg.Speech.SessionRenewalMinutes = 55
	}
	if cfg.Memory.CleanupSchedule == "" {
		cfg.Memory.CleanupSchedule = "0 3 * * *"
	}
	if cfg.Memory.LearnSchedule == "" {
		cfg.Memory.LearnSchedule = "30 3 * * *"
	}
	if cfg.Memory.CacheFlushSchedule == "" {
		cfg.Memory.CacheFlushSchedule = "0 * * * *"
	}
}

// applyEnv overlays secrets from the environment. Environment values win over
// the file so deployments can keep credentials out of checked-in configs.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SPEECH_API_KEY"); v != "" {
		cfg.Speech.APIKey = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Assistant
	if name := cfg.Assistant.Provider.Name; name != "" {
		if !slices.Contains(KnownProviderNames, name) {
			slog.Warn("unknown assistant provider name, may be a typo",
				"name", name, "known", KnownProviderNames)
		}
		if cfg.Assistant.Provider.Model == "" {
			errs = append(errs, fmt.Errorf("assistant.provider.model is required when provider %q is configured", name))
		}
	}
	if cfg.Assistant.Temperature < 0 || cfg.Assistant.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", cfg.Assistant.Temperature))
	}
	if cfg.Assistant.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tokens %d must not be negative", cfg.Assistant.MaxTokens))
	}

	// Speech
	if cfg.Speech.URL != "" && cfg.Speech.APIKey == "" {
		slog.Warn("speech.url is configured without an api_key; upstream dials will likely be rejected")
	}
	if cfg.Speech.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("speech.max_connections %d must not be negative", cfg.Speech.MaxConnections))
	}
	if cfg.Speech.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("speech.rate_limit_per_minute %d must not be negative", cfg.Speech.RateLimitPerMinute))
	}
	if cfg.Speech.SessionRenewalMinutes > 0 && cfg.Speech.SessionWarningMinutes >= cfg.Speech.SessionRenewalMinutes {
		errs = append(errs, fmt.Errorf("speech.session_warning_minutes (%d) must be less than session_renewal_minutes (%d)",
			cfg.Speech.SessionWarningMinutes, cfg.Speech.SessionRenewalMinutes))
	}

	// Memory schedules
	for _, s := range []struct{ field, spec string }{
		{"memory.cleanup_schedule", cfg.Memory.CleanupSchedule},
		{"memory.learn_schedule", cfg.Memory.LearnSchedule},
		{"memory.cache_flush_schedule", cfg.Memory.CacheFlushSchedule},
	} {
		if s.spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(s.spec); err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a valid cron expression: %w", s.field, s.spec, err))
		}
	}

	// MCP servers
	namesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			namesSeen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == tools.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == tools.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
