package model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Hidden is a batch-of-one sequence of vectors, one row per sequence slot.
type Hidden struct {
	data *mat.Dense
}

// NewHidden wraps data (row-major, seqLen x dim). A nil data allocates zeros.
func NewHidden(seqLen, dim int, data []float64) *Hidden {
	return &Hidden{data: mat.NewDense(seqLen, dim, data)}
}

func (h *Hidden) SeqLen() int {
	r, _ := h.data.Dims()
	return r
}

func (h *Hidden) Dim() int {
	_, c := h.data.Dims()
	return c
}

// Shape reports (batch, sequence, hidden) with batch fixed at 1.
func (h *Hidden) Shape() []int {
	return []int{1, h.SeqLen(), h.Dim()}
}

// Row returns the vector at sequence position i. The slice aliases h.
func (h *Hidden) Row(i int) []float64 {
	return h.data.RawRowView(i)
}

// Range returns the smallest and largest element.
func (h *Hidden) Range() (lo, hi float64) {
	raw := h.data.RawMatrix().Data
	return floats.Min(raw), floats.Max(raw)
}

// SameShape reports whether h and o have identical shapes.
func (h *Hidden) SameShape(o *Hidden) bool {
	return o != nil && h.SeqLen() == o.SeqLen() && h.Dim() == o.Dim()
}
