package usecase

import (
	"fmt"
	"time"

	"doppel/internal/domain"
)

// ContextBuilder constructs the prompt message array for LLM calls.
type ContextBuilder struct {
	systemPrompt string
	model        string
	userName     string
	maxMessages  int
	maxTokens    int
	temperature  float64
	now          func() time.Time
}

// NewContextBuilder creates a context builder. The system prompt is a
// template; the current date and the user's name are appended at build time
// so the model always knows what day it is.
func NewContextBuilder(systemPrompt, model, userName string, maxMessages int) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		userName:     userName,
		maxMessages:  maxMessages,
		now:          time.Now,
	}
}

// SetSampling sets the token limit and temperature for LLM requests.
// Zero values leave provider defaults in place.
func (cb *ContextBuilder) SetSampling(maxTokens int, temperature float64) {
	cb.maxTokens = maxTokens
	cb.temperature = temperature
}

// Build assembles: system prompt + conversation history.
func (cb *ContextBuilder) Build(history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	messages := make([]domain.Message, 0, 1+len(history))

	systemContent := cb.systemPrompt
	systemContent += fmt.Sprintf("\n\nToday is %s.", cb.now().Format("Monday, January 2, 2006"))
	if cb.userName != "" {
		systemContent += fmt.Sprintf("\nYou are assisting %s.", cb.userName)
	}
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   systemContent,
		Timestamp: cb.now(),
	})

	messages = append(messages, cb.truncateHistory(history)...)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   cb.maxTokens,
		Temperature: cb.temperature,
	}
}

func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}

	// Partition messages into atomic groups so that
	// [Assistant(tool_calls), ToolResult...] are never split.
	groups := groupMessages(history)

	var kept [][]domain.Message
	total := 0
	for i := len(groups) - 1; i >= 0; i-- {
		groupLen := len(groups[i])
		if total+groupLen > cb.maxMessages && total > 0 {
			break
		}
		kept = append(kept, groups[i])
		total += groupLen
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	result := make([]domain.Message, 0, total)
	for _, g := range kept {
		result = append(result, g...)
	}
	return result
}

// groupMessages partitions messages into atomic groups. An assistant message
// with tool calls and its immediately following tool result messages form a
// single group. All other messages are individual groups.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}
