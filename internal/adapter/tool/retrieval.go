package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"doppel/internal/domain"
	"doppel/internal/infra/tracer"
)

// lookupTool answers similarity queries against one corpus of the retrieval
// store. The two public constructors fix the corpus, the parameter name,
// and the result count.
type lookupTool struct {
	name        string
	description string
	param       string
	paramDesc   string
	store       domain.RetrievalStore
	corpus      domain.Corpus
	k           int
	header      string
	emptyMsg    string
	logger      *slog.Logger
}

// NewStyleLookupTool creates the writing-style exemplar tool. It returns the
// k sent-mail excerpts most similar to the topic so replies can be drafted
// in the user's own voice.
func NewStyleLookupTool(store domain.RetrievalStore, k int, logger *slog.Logger) domain.Tool {
	if k <= 0 {
		k = 3
	}
	return &lookupTool{
		name: "style_lookup",
		description: "Retrieve examples of the user's own writing similar to the given topic. " +
			"Use these to match tone and phrasing when drafting messages.",
		param:     "topic",
		paramDesc: "Topic or draft text to find similar writing samples for",
		store:     store,
		corpus:    domain.CorpusStyle,
		k:         k,
		header:    "Writing style examples",
		emptyMsg:  "No relevant style examples found.",
		logger:    logger,
	}
}

// NewContentLookupTool creates the factual recall tool over past sent mail.
func NewContentLookupTool(store domain.RetrievalStore, k int, logger *slog.Logger) domain.Tool {
	if k <= 0 {
		k = 4
	}
	return &lookupTool{
		name: "content_lookup",
		description: "Search the user's past sent emails for facts, commitments, and context " +
			"relevant to the query.",
		param:     "query",
		paramDesc: "The user's question, verbatim",
		store:     store,
		corpus:    domain.CorpusContent,
		k:         k,
		header:    "Relevant past emails",
		emptyMsg:  "No relevant information found in your emails matching that query.",
		logger:    logger,
	}
}

func (t *lookupTool) Name() string        { return t.name }
func (t *lookupTool) Description() string { return t.description }

func (t *lookupTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.name,
		Description: t.description,
		Kind:        domain.ToolKindRead,
		Parameters: json.RawMessage(fmt.Sprintf(`{
			"type": "object",
			"properties": {
				"%s": {
					"type": "string",
					"description": "%s"
				}
			},
			"required": ["%s"]
		}`, t.param, t.paramDesc, t.param)),
	}
}

func (t *lookupTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+t.name, t.logger, params,
		func(ctx context.Context, span trace.Span, p map[string]string) (any, error) {
			query := strings.TrimSpace(p[t.param])
			if err := RequireField(t.param, query); err != nil {
				return ErrResult("%v", err)
			}
			span.SetAttributes(
				tracer.StringAttr("retrieval.corpus", string(t.corpus)),
				tracer.IntAttr("retrieval.k", t.k),
			)

			docs, err := t.store.Query(ctx, t.corpus, query, t.k)
			if err != nil {
				// Degrade to an empty result so one bad lookup does not
				// sink the whole turn.
				t.logger.Warn("retrieval query failed", "tool", t.name, "error", err)
				docs = nil
			}
			if len(docs) == 0 {
				return t.emptyMsg, nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%s:\n", t.header)
			for i, d := range docs {
				fmt.Fprintf(&b, "--- %d ---\n%s\n", i+1, strings.TrimSpace(d.Text))
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	)
}
