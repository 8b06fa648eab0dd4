package pipeline

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// CheckResult is the outcome of one pipeline-contract check.
type CheckResult struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
}

// backendPoolerTolerance bounds the difference between the in-process pooler
// and a backend's own pooled output; both run in float32 upstream.
const backendPoolerTolerance = 1e-3

// Check runs text through the pipeline and verifies the documented
// contract of every stage against the result.
func (p *Pipeline) Check(ctx context.Context, text string) ([]CheckResult, *Trace, error) {
	tr, err := p.Run(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	cfg := p.model.Config()
	sp := p.tok.SpecialIDs()
	ids := tr.Encoding.IDs
	out := tr.Output

	var results []CheckResult
	add := func(name string, passed bool, format string, args ...any) {
		results = append(results, CheckResult{Name: name, Passed: passed, Detail: fmt.Sprintf(format, args...)})
	}

	add("sequence markers",
		len(ids) >= 2 && ids[0] == sp.CLS && ids[len(ids)-1] == sp.SEP,
		"first id %d (want %d), last id %d (want %d)", ids[0], sp.CLS, ids[len(ids)-1], sp.SEP)

	again, err := p.tok.Encode(text)
	add("tokenizer determinism", err == nil && slices.Equal(again.IDs, ids), "re-encoded %d ids", len(ids))

	second, third, err := p.roundTrip(ids)
	switch {
	case err != nil:
		add("detokenize round trip", false, "%v", err)
	default:
		add("detokenize round trip", slices.Equal(second, third),
			"second pass %d ids, third pass %d ids, first pass stable: %t", len(second), len(third), slices.Equal(ids, second))
	}

	n := len(ids)
	add("embedding shape",
		slices.Equal(out.Embeddings.Shape(), []int{1, n, cfg.HiddenSize}) && n <= cfg.MaxPositionEmbeddings,
		"got %v, want [1 %d %d]", out.Embeddings.Shape(), n, cfg.HiddenSize)

	add("encoder preserves shape",
		slices.Equal(out.Context.Shape(), out.Embeddings.Shape()),
		"context %v, embeddings %v", out.Context.Shape(), out.Embeddings.Shape())

	add("pooled shape",
		slices.Equal(out.PooledShape(), []int{1, cfg.HiddenSize}),
		"got %v, want [1 %d]", out.PooledShape(), cfg.HiddenSize)

	lo, hi := floats.Min(out.Pooled), floats.Max(out.Pooled)
	add("pooled range", lo >= -1 && hi <= 1, "min %.6f, max %.6f", lo, hi)

	if len(out.BackendPooled) == len(out.Pooled) {
		diff := maxAbsDiff(out.Pooled, out.BackendPooled)
		add("backend pooler agreement", diff <= backendPoolerTolerance, "max abs difference %.2e", diff)
	} else {
		results = append(results, CheckResult{
			Name:    "backend pooler agreement",
			Skipped: true,
			Detail:  fmt.Sprintf("encoder %q reports no pooled output", tr.Encoder),
		})
	}
	return results, tr, nil
}

// roundTrip returns tokenize(detokenize(ids)) and the same applied again.
func (p *Pipeline) roundTrip(ids []int64) ([]int64, []int64, error) {
	second, err := p.reencode(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("second pass: %w", err)
	}
	third, err := p.reencode(second)
	if err != nil {
		return nil, nil, fmt.Errorf("third pass: %w", err)
	}
	return second, third, nil
}

// reencode decodes ids and tokenizes the text again. Text that decodes to
// nothing (only markers and [UNK]) becomes the bare [CLS] [SEP] sequence.
func (p *Pipeline) reencode(ids []int64) ([]int64, error) {
	text := p.tok.Decode(ids)
	if strings.TrimSpace(text) == "" {
		sp := p.tok.SpecialIDs()
		return []int64{sp.CLS, sp.SEP}, nil
	}
	enc, err := p.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	return enc.IDs, nil
}

// Passed reports whether no check failed.
func Passed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Passed && !r.Skipped {
			return false
		}
	}
	return true
}

func maxAbsDiff(a, b []float64) float64 {
	var m float64
	for i := range a {
		m = math.Max(m, math.Abs(a[i]-b[i]))
	}
	return m
}
