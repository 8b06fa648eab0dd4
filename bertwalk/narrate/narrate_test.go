package narrate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer/tokenizertest"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/model"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/pipeline"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	tok, err := tokenizer.LoadWordPieceFromVocab(tokenizertest.WriteVocab(t), 512, true)
	require.NoError(t, err)
	cfg := model.DefaultConfig()
	cfg.VocabSize = tok.Vocab().Size()
	m, err := model.Open(model.Options{Backend: "synthetic", Config: cfg, Seed: 7}, zerolog.Nop())
	require.NoError(t, err)
	return pipeline.New("bert-base-uncased", tok, m)
}

func TestWalkRendersEveryCell(t *testing.T) {
	tr, err := testPipeline(t).Run(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, New(&buf, 3, false).Walk(tr))
	out := buf.String()

	for _, heading := range []string{"[1] Tokenizer", "[2] Embeddings", "[3] Encoder", "[4] Pooler", "[5] Hand-off"} {
		assert.Contains(t, out, heading)
	}
	assert.Contains(t, out, "[2 5 6 7 8 9 10 11 12 13 14 15 16 17 3]")
	assert.Contains(t, out, "(1, 15, 768)")
	assert.Contains(t, out, "(1, 768)")
	assert.Contains(t, out, "##board")
	assert.Contains(t, out, `"hello, my dog is cute. he likes snowboarding!"`)
	assert.Contains(t, out, "Same shape as embeddings: true")
	assert.Contains(t, out, tr.RunID.String())
	assert.Contains(t, out, "first 3 of 768 values")
	assert.NotContains(t, out, "\x1b[")

	// headings appear in pipeline order
	last := -1
	for _, heading := range []string{"Tokenizer", "Embeddings", "Encoder", "Pooler", "Hand-off"} {
		idx := strings.Index(out, heading)
		assert.Greater(t, idx, last, heading)
		last = idx
	}
}

func TestTokensRendersOnlyTokenizerCell(t *testing.T) {
	tr, err := testPipeline(t).Run(context.Background(), "the cat sat")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, New(&buf, 5, false).Tokens(tr))
	assert.Contains(t, buf.String(), "[1] Tokenizer")
	assert.NotContains(t, buf.String(), "Embeddings")
}

func TestChecks(t *testing.T) {
	var buf bytes.Buffer
	err := New(&buf, 5, false).Checks([]pipeline.CheckResult{
		{Name: "pooled shape", Passed: true, Detail: "(1, 768)"},
		{Name: "pooled range", Passed: false, Detail: "value 1.5 at 3"},
		{Name: "backend pooler agreement", Skipped: true, Detail: "encoder has no pooled output"},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "PASS  pooled shape")
	assert.Contains(t, out, "FAIL  pooled range")
	assert.Contains(t, out, "SKIP  backend pooler agreement")
}

func TestBatch(t *testing.T) {
	p := testPipeline(t)
	traces, err := p.EmbedBatch(context.Background(), []string{"dog", "the cat sat"})
	require.NoError(t, err)
	sim, err := pipeline.SimilarityMatrix(traces)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, New(&buf, 2, false).Batch(traces, sim))
	out := buf.String()
	assert.Contains(t, out, `[0] "dog"`)
	assert.Contains(t, out, `[1] "the cat sat"`)
	assert.Contains(t, out, "Cosine similarity")
	assert.Contains(t, out, " 1.0000")
}

func TestVocab(t *testing.T) {
	var buf bytes.Buffer
	n := New(&buf, 5, false)
	require.NoError(t, n.Vocab("sn", []tokenizer.VocabEntry{{Token: "snow", ID: 14}}))
	assert.Contains(t, buf.String(), "14  snow")

	buf.Reset()
	require.NoError(t, n.Vocab("zz", nil))
	assert.Contains(t, buf.String(), "none")
}

func TestFormatVector(t *testing.T) {
	tests := []struct {
		name string
		v    []float64
		n    int
		want string
	}{
		{"truncated", []float64{0.5, -0.25, 1}, 2, "[+0.5000 -0.2500 ...]"},
		{"whole", []float64{0.5}, 4, "[+0.5000]"},
		{"none shown", []float64{0.5}, 0, "[...]"},
		{"empty", nil, 3, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatVector(tt.v, tt.n))
		})
	}
}

func TestFormatShape(t *testing.T) {
	assert.Equal(t, "(1, 15, 768)", formatShape([]int{1, 15, 768}))
	assert.Equal(t, "()", formatShape(nil))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteErrorIsReturned(t *testing.T) {
	err := New(failingWriter{}, 5, false).Vocab("a", nil)
	assert.EqualError(t, err, "closed")
}
