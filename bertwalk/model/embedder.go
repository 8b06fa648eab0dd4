package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Embedder maps token ids to input vectors: word + position + token type,
// followed by layer normalisation.
type Embedder struct {
	cfg Config
	w   *Weights
}

func NewEmbedder(cfg Config, w *Weights) *Embedder {
	return &Embedder{cfg: cfg, w: w}
}

// Embed returns one normalised vector per id. typeIDs may be nil (all zero).
func (e *Embedder) Embed(ids, typeIDs []int64) (*Hidden, error) {
	n := len(ids)
	if n == 0 {
		return nil, ErrEmptySequence
	}
	if n > e.cfg.MaxPositionEmbeddings {
		return nil, fmt.Errorf("%w: %d tokens, %d positions", ErrPositionOutOfRange, n, e.cfg.MaxPositionEmbeddings)
	}
	if typeIDs != nil && len(typeIDs) != n {
		return nil, fmt.Errorf("%w: %d type ids for %d tokens", ErrShapeMismatch, len(typeIDs), n)
	}

	out := NewHidden(n, e.cfg.HiddenSize, nil)
	for pos, id := range ids {
		if id < 0 || id >= int64(e.cfg.VocabSize) {
			return nil, fmt.Errorf("%w: id %d at position %d", ErrUnknownID, id, pos)
		}
		var typ int64
		if typeIDs != nil {
			typ = typeIDs[pos]
		}
		if typ < 0 || typ >= int64(e.cfg.TypeVocabSize) {
			return nil, fmt.Errorf("%w: token type %d at position %d", ErrUnknownID, typ, pos)
		}
		row := out.Row(pos)
		copy(row, e.w.WordEmbeddings.RawRowView(int(id)))
		floats.Add(row, e.w.PositionEmbeddings.RawRowView(pos))
		floats.Add(row, e.w.TokenTypeEmbeddings.RawRowView(int(typ)))
		layerNorm(row, e.w.LayerNormGamma, e.w.LayerNormBeta, e.cfg.LayerNormEps)
	}
	return out, nil
}

// layerNorm normalises x in place to zero mean and unit variance, then
// scales by gamma and shifts by beta. nil gamma/beta mean identity.
func layerNorm(x, gamma, beta []float64, eps float64) {
	n := float64(len(x))
	mean := floats.Sum(x) / n
	floats.AddConst(-mean, x)
	variance := floats.Dot(x, x) / n
	floats.Scale(1/math.Sqrt(variance+eps), x)
	if gamma != nil {
		floats.Mul(x, gamma)
	}
	if beta != nil {
		floats.Add(x, beta)
	}
}
