// Package pipeline runs the tokenize -> embed -> encode -> pool walkthrough
// over single sentences and records every intermediate result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Forwarder is the model side of the pipeline.
type Forwarder interface {
	Forward(ctx context.Context, in model.Input) (*model.Output, error)
	EncoderName() string
	Config() model.Config
}

// Pipeline couples a tokenizer and a model under a model id.
type Pipeline struct {
	modelID string
	tok     tokenizer.Tokenizer
	model   Forwarder
	workers int
	log     zerolog.Logger
}

// Trace is the complete record of one single-shot run.
type Trace struct {
	RunID     uuid.UUID
	ModelID   string
	Encoder   string
	Text      string
	Encoding  *tokenizer.Encoding
	Decoded   string
	Output    *model.Output
	StartedAt time.Time
	Elapsed   time.Duration
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the goroutines used by EmbedBatch.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func New(modelID string, tok tokenizer.Tokenizer, m Forwarder, opts ...Option) *Pipeline {
	p := &Pipeline{
		modelID: modelID,
		tok:     tok,
		model:   m,
		workers: 1,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("component", "pipeline").Str("model", modelID).Logger()
	return p
}

func (p *Pipeline) Tokenizer() tokenizer.Tokenizer { return p.tok }
func (p *Pipeline) ModelID() string                { return p.modelID }

// Run performs one forward pass over text.
func (p *Pipeline) Run(ctx context.Context, text string) (*Trace, error) {
	tr := &Trace{
		RunID:     uuid.New(),
		ModelID:   p.modelID,
		Encoder:   p.model.EncoderName(),
		Text:      text,
		StartedAt: time.Now(),
	}
	log := p.log.With().Str("run", tr.RunID.String()).Logger()

	enc, err := p.tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if enc.Truncated {
		log.Warn().Int("limit", p.tok.MaxSeqLen()).Msg("input truncated to maximum sequence length")
	}
	tr.Encoding = enc
	tr.Decoded = p.tok.Decode(enc.IDs)

	out, err := p.model.Forward(ctx, model.Input{IDs: enc.IDs, TypeIDs: enc.TypeIDs, Mask: enc.Mask})
	if err != nil {
		return nil, err
	}
	tr.Output = out
	tr.Elapsed = time.Since(tr.StartedAt)

	log.Info().
		Int("tokens", enc.Len()).
		Ints("pooled", out.PooledShape()).
		Dur("elapsed", tr.Elapsed).
		Msg("forward pass complete")
	return tr, nil
}

// EmbedBatch runs independent passes over texts and returns the traces in
// input order. The first failure cancels the remaining runs.
func (p *Pipeline) EmbedBatch(ctx context.Context, texts []string) ([]*Trace, error) {
	if len(texts) == 0 {
		return nil, errors.New("no input texts")
	}
	traces := make([]*Trace, len(texts))
	wp := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(p.workers)
	for i, text := range texts {
		i, text := i, text
		wp.Go(func(ctx context.Context) error {
			tr, err := p.Run(ctx, text)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			traces[i] = tr
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}
	return traces, nil
}
