package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Pooler turns the context vector of the first position into the sentence
// vector: tanh(W h_0 + b). Every other position is ignored.
type Pooler struct {
	cfg Config
	w   *Weights
}

func NewPooler(cfg Config, w *Weights) *Pooler {
	return &Pooler{cfg: cfg, w: w}
}

func (p *Pooler) Pool(context *Hidden) ([]float64, error) {
	if context == nil || context.SeqLen() == 0 {
		return nil, ErrEmptySequence
	}
	if context.Dim() != p.cfg.HiddenSize {
		return nil, fmt.Errorf("%w: context dim %d, pooler expects %d", ErrShapeMismatch, context.Dim(), p.cfg.HiddenSize)
	}
	first := mat.NewVecDense(context.Dim(), context.Row(0))
	out := mat.NewVecDense(p.cfg.HiddenSize, nil)
	out.MulVec(p.w.PoolerWeight, first)

	pooled := make([]float64, p.cfg.HiddenSize)
	for i := range pooled {
		pooled[i] = out.AtVec(i)
	}
	floats.Add(pooled, p.w.PoolerBias)
	for i, v := range pooled {
		pooled[i] = math.Tanh(v)
	}
	return pooled, nil
}
