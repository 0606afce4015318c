package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/time/rate"

	"github.com/companio/eterna/internal/llm"
	"github.com/companio/eterna/pkg/types"
)

// ErrUnavailable is returned when the model cannot be reached — the circuit
// breaker is open or the provider call failed. Extraction is best-effort, so
// callers treat this like a gated message: log and move on.
var ErrUnavailable = errors.New("extraction: model unavailable")

// Config tunes the extraction pipeline.
type Config struct {
	// ContextFactLimit caps how many current facts are included in the
	// prompt. Default: 30.
	ContextFactLimit int

	// RatePerSecond limits extraction calls across all users, protecting
	// the provider quota from message bursts. Default: 5.
	RatePerSecond float64

	// Burst is the rate limiter burst size. Default: 10.
	Burst int
}

// Pipeline converts one user message into zero or more memory candidates.
// It owns gating, prompt assembly, rate limiting, the provider call, and
// response parsing; deciding what to do with the candidates is the engine's
// job.
type Pipeline struct {
	generator llm.TextGenerator
	limiter   *rate.Limiter
	cfg       Config
}

// NewPipeline creates an extraction pipeline over the given text generator.
func NewPipeline(generator llm.TextGenerator, cfg Config) *Pipeline {
	if cfg.ContextFactLimit <= 0 {
		cfg.ContextFactLimit = 30
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Pipeline{
		generator: generator,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:       cfg,
	}
}

// ContextFactLimit returns how many current facts the pipeline wants in the
// prompt. Callers use it as the list limit when loading facts.
func (p *Pipeline) ContextFactLimit() int {
	return p.cfg.ContextFactLimit
}

// Extract runs the model over a message and returns the parsed candidates.
//
// A gated message returns (nil, nil) — not an error, just nothing worth
// extracting. Provider failures come back as ErrUnavailable and malformed
// model output as ErrMalformedOutput; both leave the message's save path
// unaffected.
func (p *Pipeline) Extract(ctx context.Context, message string, currentFacts []types.MemoryRecord) ([]Candidate, error) {
	if !ShouldExtract(message) {
		return nil, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(currentFacts) > p.cfg.ContextFactLimit {
		currentFacts = currentFacts[:p.cfg.ContextFactLimit]
	}

	raw, err := p.generator.Complete(ctx, BuildPrompt(message, currentFacts))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	candidates, err := ParseResponse(raw)
	if err != nil {
		log.Printf("extraction: unparseable model output: %q", truncate(raw, 200))
		return nil, err
	}
	return candidates, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
