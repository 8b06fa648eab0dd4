package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Model wires the four stages of the forward pass. Embedder and pooler run
// in process from checkpoint weights; the encoder is pluggable.
type Model struct {
	cfg      Config
	embedder *Embedder
	encoder  Encoder
	pooler   *Pooler
	log      zerolog.Logger
}

// Input is one tokenized sequence. TypeIDs and Mask may be nil.
type Input struct {
	IDs     []int64
	TypeIDs []int64
	Mask    []int64
}

// Output holds every intermediate tensor of one forward pass.
type Output struct {
	Embeddings *Hidden
	Context    *Hidden
	Pooled     []float64
	// BackendPooled is the encoder backend's own pooled vector, if it has one.
	BackendPooled []float64
	Timings       Timings
}

// Timings records wall time per stage.
type Timings struct {
	Embed  time.Duration
	Encode time.Duration
	Pool   time.Duration
}

// PooledShape reports the pooled vector as (batch, hidden).
func (o *Output) PooledShape() []int { return []int{1, len(o.Pooled)} }

func New(cfg Config, w *Weights, enc Encoder, log zerolog.Logger) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if w == nil || enc == nil {
		return nil, fmt.Errorf("model needs weights and an encoder")
	}
	return &Model{
		cfg:      cfg,
		embedder: NewEmbedder(cfg, w),
		encoder:  enc,
		pooler:   NewPooler(cfg, w),
		log:      log.With().Str("component", "model").Str("encoder", enc.Name()).Logger(),
	}, nil
}

func (m *Model) Config() Config      { return m.cfg }
func (m *Model) EncoderName() string { return m.encoder.Name() }

// Forward runs embed -> encode -> pool for one sequence.
func (m *Model) Forward(ctx context.Context, in Input) (*Output, error) {
	out := &Output{}

	start := time.Now()
	emb, err := m.embedder.Embed(in.IDs, in.TypeIDs)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	out.Embeddings = emb
	out.Timings.Embed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start = time.Now()
	enc, err := m.encoder.Encode(ctx, EncoderInput{IDs: in.IDs, TypeIDs: in.TypeIDs, Mask: in.Mask, Embeddings: emb})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if !emb.SameShape(enc.Context) {
		var got []int
		if enc.Context != nil {
			got = enc.Context.Shape()
		}
		return nil, fmt.Errorf("%w: encoder returned %v for input %v", ErrShapeMismatch, got, emb.Shape())
	}
	out.Context = enc.Context
	out.BackendPooled = enc.Pooled
	out.Timings.Encode = time.Since(start)

	start = time.Now()
	pooled, err := m.pooler.Pool(enc.Context)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	out.Pooled = pooled
	out.Timings.Pool = time.Since(start)

	m.log.Debug().
		Ints("embeddings", emb.Shape()).
		Ints("context", enc.Context.Shape()).
		Ints("pooled", out.PooledShape()).
		Dur("encode", out.Timings.Encode).
		Msg("forward pass")
	return out, nil
}

func (m *Model) Close() error { return m.encoder.Close() }

// Options select the weights and encoder backend for Open.
type Options struct {
	// Backend is "onnx" (checkpoint weights + ONNX encoder) or "synthetic"
	// (seeded random weights + mixing encoder).
	Backend     string
	Config      Config
	WeightsPath string
	Seed        int64
	ONNX        ONNXOptions
}

// Open builds a Model from opts.
func Open(opts Options, log zerolog.Logger) (*Model, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "synthetic":
		w, err := NewSyntheticWeights(opts.Config, opts.Seed)
		if err != nil {
			return nil, err
		}
		return New(opts.Config, w, NewMixingEncoder(opts.Config.LayerNormEps), log)
	case "onnx", "":
		w, err := LoadWeights(opts.WeightsPath, opts.Config)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("path", opts.WeightsPath).
			Interface("metadata", w.Metadata).
			Msg("loaded checkpoint weights")
		enc, err := NewONNXEncoder(opts.ONNX, log)
		if err != nil {
			return nil, err
		}
		return New(opts.Config, w, enc, log)
	default:
		return nil, fmt.Errorf("unknown model backend %q", opts.Backend)
	}
}
