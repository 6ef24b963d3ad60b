package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/persona/internal/llm"
)

var (
	// ErrEmptyCorpus is returned when no post survives sanitizing.
	ErrEmptyCorpus = errors.New("no posts to build a persona from")
	// ErrUpstreamGeneration wraps failures of the generative provider.
	ErrUpstreamGeneration = errors.New("generation failed")
)

// Completer produces a chat completion.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Options are the tunable prompt and sampling constants.
type Options struct {
	CharBudget  int
	MaxTokens   int
	Temperature float64
	TopK        int
	TopP        float64
}

// DefaultOptions returns the stock sampling configuration.
func DefaultOptions() Options {
	return Options{
		CharBudget:  DefaultCharBudget,
		MaxTokens:   150,
		Temperature: 0.8,
		TopK:        40,
		TopP:        0.9,
	}
}

// Synthesizer turns a post corpus and profile into an in-character reply.
type Synthesizer struct {
	llm  Completer
	opts Options
}

// New returns a Synthesizer that sends prompts to c. Zero sampling fields in
// opts are left to the provider's defaults.
func New(c Completer, opts Options) *Synthesizer {
	return &Synthesizer{llm: c, opts: opts}
}

// Synthesize builds the persona prompt and returns the model's reply
// verbatim.
func (s *Synthesizer) Synthesize(ctx context.Context, posts []string, p Profile, message string) (string, error) {
	pc := NewContext(p, posts, s.opts.CharBudget)
	if pc.Corpus == "" {
		return "", ErrEmptyCorpus
	}

	slog.Debug("synthesizing persona reply",
		"handle", p.Handle,
		"posts", len(posts),
		"corpus_chars", len(pc.Corpus),
	)

	reply, err := s.llm.Complete(ctx, llm.ChatRequest{
		Messages:    BuildMessages(pc, message),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		TopK:        s.opts.TopK,
		TopP:        s.opts.TopP,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrUpstreamGeneration, err)
	}
	return reply, nil
}
