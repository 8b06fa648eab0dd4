package pipeline

import (
	"fmt"
	"io"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
)

// Handoff is the JSON document passed to the downstream image generator.
type Handoff struct {
	RunID     string    `json:"run_id"`
	ModelID   string    `json:"model_id"`
	Encoder   string    `json:"encoder"`
	Text      string    `json:"text"`
	Tokens    int       `json:"tokens"`
	Shape     []int     `json:"shape"`
	Pooled    []float64 `json:"pooled"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHandoff extracts the hand-off record from a trace.
func NewHandoff(tr *Trace) Handoff {
	return Handoff{
		RunID:     tr.RunID.String(),
		ModelID:   tr.ModelID,
		Encoder:   tr.Encoder,
		Text:      tr.Text,
		Tokens:    tr.Encoding.Len(),
		Shape:     tr.Output.PooledShape(),
		Pooled:    tr.Output.Pooled,
		CreatedAt: tr.StartedAt.UTC(),
	}
}

// WriteHandoff encodes the pooled vectors of traces as a JSON array.
func WriteHandoff(w io.Writer, traces ...*Trace) error {
	docs := make([]Handoff, len(traces))
	for i, tr := range traces {
		docs[i] = NewHandoff(tr)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("encode handoff: %w", err)
	}
	return nil
}

// ReadHandoff decodes a document written by WriteHandoff.
func ReadHandoff(r io.Reader) ([]Handoff, error) {
	var docs []Handoff
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode handoff: %w", err)
	}
	return docs, nil
}

// Similarity is the cosine similarity of two pooled vectors.
func Similarity(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("vectors of length %d and %d are not comparable", len(a), len(b))
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return floats.Dot(a, b) / (na * nb), nil
}

// SimilarityMatrix compares every pair of pooled vectors.
func SimilarityMatrix(traces []*Trace) ([][]float64, error) {
	out := make([][]float64, len(traces))
	for i := range traces {
		out[i] = make([]float64, len(traces))
		for j := range traces {
			s, err := Similarity(traces[i].Output.Pooled, traces[j].Output.Pooled)
			if err != nil {
				return nil, err
			}
			out[i][j] = math.Round(s*1e6) / 1e6
		}
	}
	return out, nil
}
