package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"doppel/internal/adapter/calendar"
	"doppel/internal/adapter/embedding"
	"doppel/internal/adapter/llm"
	"doppel/internal/adapter/mail"
	"doppel/internal/adapter/retrieval"
	"doppel/internal/adapter/tool"
	"doppel/internal/domain"
	"doppel/internal/infra/config"
	"doppel/internal/infra/logger"
	"doppel/internal/infra/tracer"
	"doppel/internal/usecase"
)

// runtime holds everything a subcommand needs, wired once from config.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	agent    *usecase.Agent
	sessions *usecase.SessionManager
	tools    domain.ToolExecutor
	mail     domain.MailProvider
	store    domain.RetrievalStore

	closers []func() error
}

// commonFlags parses flags shared by all subcommands and returns the
// config path plus the remaining flag set for callers that add their own.
func commonFlags(name string, args []string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	session := fs.String("session", "cli-default", "chat session name")
	_ = fs.Parse(args)
	return fs, configPath, session
}

// buildRuntime loads config and wires the full dependency graph.
func buildRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: log}
	rt.closers = append(rt.closers, closeLog)

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	rt.closers = append(rt.closers, func() error { return shutdownTracer(context.Background()) })

	embedder := embedding.NewCachedEmbedder(
		embedding.NewOpenAIProvider(cfg.Embedding),
		cfg.Embedding.CacheSize,
	)

	store, err := retrieval.New(cfg.Retrieval.DBPath, embedder, log)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("retrieval store: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	rt.mail = mail.NewFileProvider(cfg.Mail.DataDir)
	cal := calendar.NewFileProvider(cfg.Calendar.DataDir)

	registry := tool.NewRegistry(log)
	for _, t := range []domain.Tool{
		tool.NewCalendarScheduleTool(cal, cfg.Calendar.EventLimit, log),
		tool.NewCreateEventTool(cal, log),
		tool.NewInboxSummaryTool(rt.mail, cfg.Mail.UnreadLimit, log),
		tool.NewSendEmailTool(rt.mail, cfg.Mail.SendPerMin, cfg.Mail.SendBurst, log),
		tool.NewStyleLookupTool(store, cfg.Retrieval.StyleK, log),
		tool.NewContentLookupTool(store, cfg.Retrieval.ContentK, log),
	} {
		if err := registry.Register(t); err != nil {
			rt.close()
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}
	rt.tools = registry

	var provider domain.LLMProvider = llm.NewOpenAIProvider(cfg.LLM, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}

	builder := usecase.NewContextBuilder(cfg.Agent.SystemPrompt, cfg.LLM.Model, cfg.Agent.UserName, 50)
	builder.SetSampling(cfg.LLM.MaxTokens, cfg.LLM.Temperature)

	rt.agent = usecase.NewAgent(usecase.AgentDeps{
		LLM:            provider,
		Tools:          registry,
		ContextBuilder: builder,
		Logger:         log,
		MaxIterations:  cfg.Agent.MaxIterations,
	})
	rt.sessions = usecase.NewSessionManager(cfg.Agent.SessionDir)

	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && rt.logger != nil {
			rt.logger.Warn("shutdown error", "error", err)
		}
	}
}
