package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"doppel/internal/domain"
	"doppel/internal/infra/tracer"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

const (
	cancelledNotice  = "Okay, I won't proceed. The pending action has been discarded."
	iterationsNotice = "I wasn't able to finish that within the allowed number of steps. " +
		"Here is where I got to; ask me to continue if you'd like."
	droppedWriteContent = "not executed: another action is already awaiting confirmation"
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM            domain.LLMProvider
	Tools          domain.ToolExecutor
	ContextBuilder *ContextBuilder
	Logger         *slog.Logger
	MaxIterations  int
}

// Agent orchestrates the receive-think-act loop. Read tools run as soon as
// the model asks for them; write tools are parked on the session as a
// pending action and only run after the user confirms.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 8
	}
	return &Agent{deps: deps}
}

// RunTurn processes a single user input through the agent loop and returns
// the assistant's reply.
func (a *Agent) RunTurn(ctx context.Context, session *Session, userInput string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.run_turn")
	defer span.End()

	input := strings.TrimSpace(userInput)
	if input == "" {
		err := domain.NewDomainError("Agent.RunTurn", domain.ErrInvalidInput, "empty input")
		tracer.RecordError(span, err)
		return "", err
	}

	ctx = domain.WithSessionID(ctx, session.ID)

	if session.HasPending() {
		return a.resolvePending(ctx, span, session, input)
	}

	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: input, Timestamp: time.Now()})
	return a.loop(ctx, span, session, session.Len()-1)
}

// resolvePending settles a stored write action. Only an explicit "y" or
// "yes" executes it; any other reply discards it, and the reply is then
// handled as an ordinary turn.
func (a *Agent) resolvePending(ctx context.Context, span trace.Span, session *Session, input string) (string, error) {
	pending := session.TakePending()
	if pending == nil {
		err := domain.NewDomainError("Agent.resolvePending", domain.ErrNoPendingAction, session.ID)
		tracer.RecordError(span, err)
		return "", err
	}

	if isAffirmative(input) {
		a.deps.Logger.Info("pending action confirmed", "tool", pending.Call.Name, "session", session.ID)
		resultMsg := a.executeTool(ctx, pending.Call)
		session.AddMessage(resultMsg)
		// Checkpoint after the result so a model failure cannot erase the
		// record of what was executed.
		return a.loop(ctx, span, session, session.Len())
	}

	a.deps.Logger.Info("pending action abandoned", "tool", pending.Call.Name, "session", session.ID)
	session.AddMessage(domain.Message{
		Role:       domain.RoleTool,
		Name:       pending.Call.Name,
		ToolCallID: pending.Call.ID,
		Content:    "cancelled by the user; nothing was executed",
		Timestamp:  time.Now(),
	})

	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: input, Timestamp: time.Now()})
	return a.loop(ctx, span, session, session.Len()-1)
}

// loop runs model rounds until the turn settles. An exhausted iteration
// budget surfaces from runRounds as ErrMaxIterations and is converted here
// into a friendly closing message rather than a turn failure.
func (a *Agent) loop(ctx context.Context, span trace.Span, session *Session, checkpoint int) (string, error) {
	reply, err := a.runRounds(ctx, span, session, checkpoint)
	if errors.Is(err, domain.ErrMaxIterations) {
		a.deps.Logger.Warn("iteration budget exhausted", "session", session.ID, "max", a.deps.MaxIterations)
		session.AddMessage(domain.Message{
			Role:      domain.RoleAssistant,
			Content:   iterationsNotice,
			Timestamp: time.Now(),
		})
		tracer.SetOK(span)
		return iterationsNotice, nil
	}
	return reply, err
}

// runRounds drives model rounds until the model produces a final text
// response or proposes a valid write action. checkpoint is the history
// length to rewind to if a model call fails.
func (a *Agent) runRounds(ctx context.Context, span trace.Span, session *Session, checkpoint int) (string, error) {
	for i := 0; i < a.deps.MaxIterations; i++ {
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		chatReq := a.deps.ContextBuilder.Build(session.Messages(), a.deps.Tools.Schemas())

		resp, err := a.chatWithRetry(ctx, chatReq)
		if err != nil {
			session.Rewind(checkpoint)
			tracer.RecordError(span, err)
			return "", err
		}

		msg := resp.Message
		session.AddMessage(msg)

		a.deps.Logger.Debug("llm response",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return msg.Content, nil
		}

		reads, writes := a.splitCalls(msg.ToolCalls)

		for _, resultMsg := range a.executeReads(ctx, reads) {
			session.AddMessage(resultMsg)
		}

		if writes = a.rejectInvalidWrites(session, writes); len(writes) > 0 {
			return a.parkWrite(session, msg.Content, writes), nil
		}
	}

	return "", domain.NewDomainError("Agent.loop", domain.ErrMaxIterations,
		fmt.Sprintf("budget %d", a.deps.MaxIterations))
}

// argValidator is implemented by tools that can check arguments without
// executing them.
type argValidator interface {
	ValidateArgs(params json.RawMessage) error
}

// rejectInvalidWrites drops write calls whose arguments fail schema
// validation, recording an error result for each so the model can correct
// itself on the next round. The user is never asked to confirm a call that
// cannot execute.
func (a *Agent) rejectInvalidWrites(session *Session, writes []domain.ToolCall) []domain.ToolCall {
	valid := writes[:0:0]
	for _, call := range writes {
		if err := a.validateWrite(call); err != nil {
			a.deps.Logger.Warn("write call rejected", "tool", call.Name, "error", err)
			session.AddMessage(domain.Message{
				Role:       domain.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    "not executed: " + err.Error(),
				Timestamp:  time.Now(),
			})
			continue
		}
		valid = append(valid, call)
	}
	return valid
}

// validateWrite checks a write call's arguments against the tool's schema.
// Unknown tools pass: they are parked so their failure is reported at
// execute time, never run unconfirmed.
func (a *Agent) validateWrite(call domain.ToolCall) error {
	t, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		return nil
	}
	if v, ok := t.(argValidator); ok {
		return v.ValidateArgs(call.Arguments)
	}
	return nil
}

// parkWrite stores the first proposed write action as pending and answers
// with a plan for the user to confirm. Any further writes in the same batch
// are refused; the model must propose them again after this one settles.
func (a *Agent) parkWrite(session *Session, assistantText string, writes []domain.ToolCall) string {
	first := writes[0]
	plan := describePlan(first)

	for _, extra := range writes[1:] {
		a.deps.Logger.Warn("dropping extra write call", "tool", extra.Name, "session", session.ID)
		session.AddMessage(domain.Message{
			Role:       domain.RoleTool,
			Name:       extra.Name,
			ToolCallID: extra.ID,
			Content:    droppedWriteContent,
			Timestamp:  time.Now(),
		})
	}

	session.SetPending(&domain.PendingAction{
		Call:      first,
		Plan:      plan,
		CreatedAt: time.Now(),
	})

	var sb strings.Builder
	if assistantText != "" {
		sb.WriteString(assistantText)
		sb.WriteString("\n\n")
	}
	sb.WriteString(plan)
	sb.WriteString("\n\n")
	sb.WriteString(domain.ConfirmationSentinel)
	return sb.String()
}

// splitCalls partitions a batch of tool calls by kind. Calls whose name is
// not registered count as writes so nothing unknown runs unconfirmed.
func (a *Agent) splitCalls(calls []domain.ToolCall) (reads, writes []domain.ToolCall) {
	for _, call := range calls {
		if a.toolKind(call.Name) == domain.ToolKindRead {
			reads = append(reads, call)
		} else {
			writes = append(writes, call)
		}
	}
	return reads, writes
}

func (a *Agent) toolKind(name string) domain.ToolKind {
	for _, s := range a.deps.Tools.Schemas() {
		if s.Name == name {
			return s.Kind
		}
	}
	return domain.ToolKindWrite
}

// executeReads runs read calls concurrently, preserving call order in the
// returned messages.
func (a *Agent) executeReads(ctx context.Context, calls []domain.ToolCall) []domain.Message {
	results := make([]domain.Message, len(calls))
	done := make(chan struct{})
	for i, call := range calls {
		go func(idx int, c domain.ToolCall) {
			results[idx] = a.executeTool(ctx, c)
			done <- struct{}{}
		}(i, call)
	}
	for range calls {
		<-done
	}
	return results
}

// executeTool runs a single tool call and returns the result as a message.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	msg := domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}

	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		msg.Content = err.Error()
		return msg
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		err = domain.NewDomainError("Agent.executeTool", domain.ErrToolFailure, err.Error())
		tracer.RecordError(span, err)
		msg.Content = err.Error()
		return msg
	}

	tracer.SetOK(span)
	msg.Content = result.Content
	return msg
}

// chatWithRetry calls the LLM, retrying transient failures with backoff.
func (a *Agent) chatWithRetry(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxLLMRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff(attempt - 1)):
			}
			a.deps.Logger.Info("retrying llm call", "attempt", attempt+1)
		}

		resp, err := a.deps.LLM.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !domain.IsRetryableError(err) {
			break
		}
	}
	return nil, lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// isAffirmative reports whether input confirms a pending action.
func isAffirmative(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	}
	return false
}

// describePlan renders a write call as a human-readable plan.
func describePlan(call domain.ToolCall) string {
	switch call.Name {
	case "send_email":
		var p struct {
			To      []string `json:"to"`
			Subject string   `json:"subject"`
			Body    string   `json:"body"`
		}
		if err := json.Unmarshal(call.Arguments, &p); err == nil {
			return fmt.Sprintf("I'm ready to send this email:\nTo: %s\nSubject: %s\n\n%s",
				strings.Join(p.To, ", "), p.Subject, p.Body)
		}
	case "create_event":
		var p struct {
			Summary  string `json:"summary"`
			Start    string `json:"start_time"`
			End      string `json:"end_time"`
			Location string `json:"location"`
		}
		if err := json.Unmarshal(call.Arguments, &p); err == nil {
			plan := fmt.Sprintf("I'm ready to create this event:\nSummary: %s\nStart: %s\nEnd: %s",
				p.Summary, p.Start, p.End)
			if p.Location != "" {
				plan += "\nLocation: " + p.Location
			}
			return plan
		}
	}
	return fmt.Sprintf("I'm ready to run %s with arguments:\n%s", call.Name, string(call.Arguments))
}
