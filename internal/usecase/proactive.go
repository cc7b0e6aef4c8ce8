package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"doppel/internal/domain"
)

const briefingSessionKey = "proactive-briefing"

// Briefer runs the assistant on a schedule without user input, producing a
// morning-briefing style summary. It gathers the unread inbox and today's
// schedule itself, so the model starts each briefing with fresh context
// instead of spending iterations on read calls. The output goes to the
// configured sink, which for the CLI is stdout.
type Briefer struct {
	agent    *Agent
	sessions *SessionManager
	tools    domain.ToolExecutor
	logger   *slog.Logger
	prompt   string
	schedule string
	sink     func(string)

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewBriefer creates a briefer. schedule is a cron expression ("0 7 * * *")
// or a duration string ("24h"). sink receives each briefing; nil logs it.
func NewBriefer(agent *Agent, sessions *SessionManager, tools domain.ToolExecutor, prompt, schedule string, logger *slog.Logger, sink func(string)) *Briefer {
	return &Briefer{
		agent:    agent,
		sessions: sessions,
		tools:    tools,
		logger:   logger,
		prompt:   prompt,
		schedule: schedule,
		sink:     sink,
		cron:     cron.New(),
	}
}

// Start schedules the briefing job and begins the cron loop.
func (b *Briefer) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	schedule, err := parseSchedule(b.schedule)
	if err != nil {
		return fmt.Errorf("briefer: invalid schedule %q: %w", b.schedule, err)
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.cron.Schedule(schedule, cron.FuncJob(b.runOnce))
	b.cron.Start()
	b.started = true
	b.logger.Info("proactive briefing scheduled", "schedule", b.schedule)
	return nil
}

// Stop halts the cron loop and waits for a running briefing to finish.
func (b *Briefer) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	b.cancel()
	<-b.cron.Stop().Done()
	b.started = false
	return nil
}

// RunNow produces a briefing immediately, outside the schedule. Any write
// action the model proposes is parked on the briefing session the same way
// a chat turn parks one, so nothing executes without a confirmation.
func (b *Briefer) RunNow(ctx context.Context) (string, error) {
	session := b.sessions.GetOrCreate(briefingSessionKey)
	reply, err := b.agent.RunTurn(ctx, session, b.composePrompt(ctx))
	if err != nil {
		return "", err
	}
	if err := b.sessions.Save(briefingSessionKey); err != nil {
		b.logger.Warn("saving briefing session failed", "error", err)
	}
	return reply, nil
}

// composePrompt appends the unread inbox and today's schedule to the
// briefing prompt. A failed lookup drops its section rather than aborting
// the briefing.
func (b *Briefer) composePrompt(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(b.prompt)

	sections := []struct {
		tool   string
		header string
	}{
		{"inbox_summary", "Unread inbox"},
		{"calendar_schedule", "Today's schedule"},
	}
	for _, s := range sections {
		content, err := b.runReadTool(ctx, s.tool)
		if err != nil {
			b.logger.Warn("briefing context lookup failed", "tool", s.tool, "error", err)
			continue
		}
		fmt.Fprintf(&sb, "\n\n%s:\n%s", s.header, content)
	}
	return sb.String()
}

func (b *Briefer) runReadTool(ctx context.Context, name string) (string, error) {
	tool, err := b.tools.Get(name)
	if err != nil {
		return "", err
	}
	res, err := tool.Execute(ctx, json.RawMessage(`{}`))
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", fmt.Errorf("%s", res.Content)
	}
	return res.Content, nil
}

func (b *Briefer) runOnce() {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	reply, err := b.RunNow(runCtx)
	if err != nil {
		b.logger.Warn("briefing run failed", "error", err, "duration", time.Since(start))
		return
	}

	b.logger.Info("briefing run completed", "duration", time.Since(start))
	if b.sink != nil {
		b.sink(reply)
	} else {
		b.logger.Info("briefing", "content", reply)
	}
}

// parseSchedule tries a cron expression first, then time.ParseDuration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
