// Package llm provides clients for the language-model providers the
// extraction pipeline can run against.
package llm

import "context"

// TextGenerator is the interface for LLM text completion. Extraction prompts
// use single-string completion style (not chat history).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating fact embeddings, used by
// the near-duplicate report on backends that support vector similarity.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
