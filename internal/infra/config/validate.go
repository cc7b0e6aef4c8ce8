package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for invalid combinations and out-of-range
// values. It returns the first problem found.
func Validate(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %s", cfg.Agent.Timeout)
	}

	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %g", cfg.LLM.Temperature)
	}
	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		return fmt.Errorf("llm.circuit_breaker.max_failures must be positive when enabled")
	}

	if cfg.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if cfg.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}

	if cfg.Retrieval.DBPath == "" {
		return fmt.Errorf("retrieval.db_path is required")
	}
	if cfg.Retrieval.StyleK <= 0 || cfg.Retrieval.ContentK <= 0 {
		return fmt.Errorf("retrieval.style_k and retrieval.content_k must be positive")
	}

	switch cfg.Mail.Backend {
	case "file":
	default:
		return fmt.Errorf("mail.backend %q not supported", cfg.Mail.Backend)
	}
	if cfg.Mail.SendPerMin <= 0 {
		return fmt.Errorf("mail.send_per_min must be positive, got %g", cfg.Mail.SendPerMin)
	}
	if cfg.Mail.UnreadLimit <= 0 {
		return fmt.Errorf("mail.unread_limit must be positive, got %d", cfg.Mail.UnreadLimit)
	}

	switch cfg.Calendar.Backend {
	case "file":
	default:
		return fmt.Errorf("calendar.backend %q not supported", cfg.Calendar.Backend)
	}
	if cfg.Calendar.EventLimit <= 0 {
		return fmt.Errorf("calendar.event_limit must be positive, got %d", cfg.Calendar.EventLimit)
	}

	if cfg.Ingest.MaxEmails <= 0 {
		return fmt.Errorf("ingest.max_emails must be positive, got %d", cfg.Ingest.MaxEmails)
	}
	if cfg.Ingest.MinWords < 0 {
		return fmt.Errorf("ingest.min_words must not be negative, got %d", cfg.Ingest.MinWords)
	}
	if cfg.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", cfg.Ingest.BatchSize)
	}

	if cfg.Proactive.Enabled && strings.TrimSpace(cfg.Proactive.Schedule) == "" {
		return fmt.Errorf("proactive.schedule is required when proactive mode is enabled")
	}

	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger.level %q not recognized", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logger.format %q not recognized", cfg.Logger.Format)
	}

	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("tracer.exporter %q not supported", cfg.Tracer.Exporter)
	}

	return nil
}
