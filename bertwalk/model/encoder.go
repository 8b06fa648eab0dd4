package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Encoder is the transformer stack. bertwalk treats it as an opaque,
// shape-preserving transform from input vectors to context vectors.
type Encoder interface {
	Name() string
	Encode(ctx context.Context, in EncoderInput) (*EncoderOutput, error)
	Close() error
}

// EncoderInput carries both views of the sequence: backends that run the
// whole checkpoint consume the ids, in-process backends the embeddings.
type EncoderInput struct {
	IDs        []int64
	TypeIDs    []int64
	Mask       []int64
	Embeddings *Hidden
}

// EncoderOutput is the context sequence and, when the backend computes one
// itself, its own pooled vector.
type EncoderOutput struct {
	Context *Hidden
	Pooled  []float64
}

// MixingEncoder is a deterministic stand-in for the pretrained stack used
// when no ONNX export is available: each output row is layer-normed x_i plus
// the masked mean of all rows, so every output depends on every input.
type MixingEncoder struct {
	eps float64
}

func NewMixingEncoder(eps float64) *MixingEncoder {
	if eps <= 0 {
		eps = 1e-12
	}
	return &MixingEncoder{eps: eps}
}

func (m *MixingEncoder) Name() string { return "mixing" }

func (m *MixingEncoder) Close() error { return nil }

func (m *MixingEncoder) Encode(ctx context.Context, in EncoderInput) (*EncoderOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Embeddings == nil || in.Embeddings.SeqLen() == 0 {
		return nil, ErrEmptySequence
	}
	seq, dim := in.Embeddings.SeqLen(), in.Embeddings.Dim()
	if in.Mask != nil && len(in.Mask) != seq {
		return nil, fmt.Errorf("%w: mask length %d for %d positions", ErrShapeMismatch, len(in.Mask), seq)
	}

	mean := make([]float64, dim)
	var count float64
	for i := 0; i < seq; i++ {
		if in.Mask != nil && in.Mask[i] == 0 {
			continue
		}
		floats.Add(mean, in.Embeddings.Row(i))
		count++
	}
	if count > 0 {
		floats.Scale(1/count, mean)
	}

	out := NewHidden(seq, dim, nil)
	for i := 0; i < seq; i++ {
		row := out.Row(i)
		floats.AddTo(row, in.Embeddings.Row(i), mean)
		layerNorm(row, nil, nil, m.eps)
	}
	return &EncoderOutput{Context: out}, nil
}
