package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("MaxIterations = %d, want 8", cfg.Agent.MaxIterations)
	}
	if cfg.Retrieval.StyleK != 3 {
		t.Errorf("StyleK = %d, want 3", cfg.Retrieval.StyleK)
	}
	if cfg.Retrieval.ContentK != 4 {
		t.Errorf("ContentK = %d, want 4", cfg.Retrieval.ContentK)
	}
	if cfg.Ingest.MaxEmails != 50 {
		t.Errorf("MaxEmails = %d, want 50", cfg.Ingest.MaxEmails)
	}
	if cfg.Ingest.MinWords != 10 {
		t.Errorf("MinWords = %d, want 10", cfg.Ingest.MinWords)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("Model = %q, want default", cfg.LLM.Model)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
agent:
  max_iterations: 3
llm:
  model: gpt-4o-mini
retrieval:
  style_k: 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.Agent.MaxIterations)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", cfg.LLM.Model)
	}
	if cfg.Retrieval.StyleK != 5 {
		t.Errorf("StyleK = %d, want 5", cfg.Retrieval.StyleK)
	}
	// Untouched fields keep defaults.
	if cfg.Retrieval.ContentK != 4 {
		t.Errorf("ContentK = %d, want default 4", cfg.Retrieval.ContentK)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent: [not a map"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOPPEL_LLM_API_KEY", "sk-test")
	t.Setenv("DOPPEL_LLM_MODEL", "gpt-test")
	t.Setenv("DOPPEL_AGENT_MAX_ITERATIONS", "5")
	t.Setenv("DOPPEL_TRACER_ENABLED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-test" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
}

func TestEnvOverrideBadInt(t *testing.T) {
	t.Setenv("DOPPEL_AGENT_MAX_ITERATIONS", "banana")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("MaxIterations = %d, want default 8", cfg.Agent.MaxIterations)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"negative timeout", func(c *Config) { c.Agent.Timeout = -time.Second }},
		{"empty llm model", func(c *Config) { c.LLM.Model = "" }},
		{"empty llm base url", func(c *Config) { c.LLM.BaseURL = "" }},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3 }},
		{"zero embedding dims", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"empty db path", func(c *Config) { c.Retrieval.DBPath = "" }},
		{"zero style k", func(c *Config) { c.Retrieval.StyleK = 0 }},
		{"unknown mail backend", func(c *Config) { c.Mail.Backend = "imap" }},
		{"zero unread limit", func(c *Config) { c.Mail.UnreadLimit = 0 }},
		{"unknown calendar backend", func(c *Config) { c.Calendar.Backend = "caldav" }},
		{"zero max emails", func(c *Config) { c.Ingest.MaxEmails = 0 }},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"proactive without schedule", func(c *Config) { c.Proactive.Enabled = true; c.Proactive.Schedule = " " }},
		{"bad logger level", func(c *Config) { c.Logger.Level = "verbose" }},
		{"bad logger format", func(c *Config) { c.Logger.Format = "xml" }},
		{"bad tracer exporter", func(c *Config) { c.Tracer.Exporter = "jaeger" }},
		{"breaker enabled zero failures", func(c *Config) {
			c.LLM.CircuitBreaker.Enabled = true
			c.LLM.CircuitBreaker.MaxFailures = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
