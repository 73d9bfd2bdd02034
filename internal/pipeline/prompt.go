package pipeline

import (
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragdemo-go/internal/rag"
)

// systemPrompt instructs the model to answer only from the retrieved context.
const systemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. " +
	"Keep the answer concise and based ONLY on the provided context."

// userTemplate is rendered with the FString format; {context} and
// {question} are the only variables.
const userTemplate = "Context:\n{context}\n\nQuestion:\n{question}\n\nAnswer:"

// contextSeparator joins chunk texts inside {context}.
const contextSeparator = "\n\n"

// newTemplate returns the grounded question-answering chat template.
func newTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userTemplate),
	)
}

// templateVars builds the variables map consumed by the chat template.
func templateVars(question string, hits []rag.Hit) map[string]any {
	return map[string]any{
		"context":  formatContext(hits),
		"question": question,
	}
}

// formatContext joins the chunk texts, best hit first, with a blank line.
func formatContext(hits []rag.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Chunk.Content
	}
	return strings.Join(parts, contextSeparator)
}
