package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragdemo-go/internal/budget"
	"github.com/54b3r/ragdemo-go/internal/logging"
	"github.com/54b3r/ragdemo-go/internal/rag"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("pipeline: question must not be empty")

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// Config holds the dependencies of the question-answering pipeline.
type Config struct {
	// Retriever finds the chunks relevant to a question. If nil, the
	// pipeline has no index and Ask returns rag.ErrIndexUnavailable;
	// AskDirect still works.
	Retriever rag.Retriever

	// ChatModel writes the answer. Required.
	ChatModel model.BaseChatModel

	// TopK is the number of chunks retrieved. Defaults to DefaultTopK.
	TopK int

	// MaxContextTokens is the estimated input budget. Lowest-ranked chunks
	// are dropped until the prompt fits. Defaults to
	// budget.DefaultMaxContextTokens; negative disables trimming.
	MaxContextTokens int
}

// Answer is the result of a question.
type Answer struct {
	// Text is the model's answer.
	Text string
	// Sources are the chunks placed in the prompt, best first. Empty for
	// direct questions.
	Sources []rag.Hit
}

// Pipeline answers questions. It is safe for concurrent use.
type Pipeline struct {
	retriever        rag.Retriever
	chatModel        model.BaseChatModel
	tpl              prompt.ChatTemplate
	chain            compose.Runnable[map[string]any, *schema.Message]
	topK             int
	maxContextTokens int
}

// New compiles the chat chain (template then model) once and returns a
// ready Pipeline.
func New(ctx context.Context, cfg *Config) (*Pipeline, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("pipeline: ChatModel must not be nil")
	}

	tpl := newTemplate()
	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl).
		AppendChatModel(cfg.ChatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compile chain: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx == 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Pipeline{
		retriever:        cfg.Retriever,
		chatModel:        cfg.ChatModel,
		tpl:              tpl,
		chain:            chain,
		topK:             topK,
		maxContextTokens: maxCtx,
	}, nil
}

// Ready reports whether the pipeline has an index to retrieve from.
func (p *Pipeline) Ready() bool {
	return p.retriever != nil
}

// Ask retrieves the chunks most relevant to question, renders the grounded
// prompt and returns the model's answer with the chunks it was given.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if p.retriever == nil {
		return nil, rag.ErrIndexUnavailable
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	hits, err := p.retriever.Retrieve(ctx, question, p.topK)
	if err != nil {
		return nil, fmt.Errorf("pipeline: retrieve: %w", err)
	}

	hits, err = p.fitContext(ctx, question, hits)
	if err != nil {
		return nil, err
	}

	msg, err := p.chain.Invoke(ctx, templateVars(question, hits))
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate answer: %w", err)
	}

	log.Info("pipeline: question answered",
		slog.Int("sources", len(hits)),
		slog.Duration("duration", time.Since(start)),
	)
	return &Answer{Text: msg.Content, Sources: hits}, nil
}

// AskDirect sends question to the model without retrieval.
func (p *Pipeline) AskDirect(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	msg, err := p.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(question)})
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate answer: %w", err)
	}
	return &Answer{Text: msg.Content}, nil
}

// fitContext drops the lowest-ranked hits until the estimated prompt fits
// the configured budget.
func (p *Pipeline) fitContext(ctx context.Context, question string, hits []rag.Hit) ([]rag.Hit, error) {
	if p.maxContextTokens < 0 || len(hits) <= 1 {
		return hits, nil
	}

	fixed, err := p.tpl.Format(ctx, templateVars(question, nil))
	if err != nil {
		return nil, fmt.Errorf("pipeline: format prompt: %w", err)
	}

	kept := budget.FitHits(budget.EstimateMessages(fixed), hits, p.maxContextTokens)
	if dropped := len(hits) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped retrieved chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", p.maxContextTokens),
		)
	}
	return kept, nil
}
