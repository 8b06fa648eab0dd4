package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer/tokenizertest"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, maxSeq int) *Pipeline {
	t.Helper()
	tok, err := tokenizer.LoadWordPieceFromVocab(tokenizertest.WriteVocab(t), maxSeq, true)
	require.NoError(t, err)
	cfg := model.DefaultConfig()
	cfg.VocabSize = tok.Vocab().Size()
	m, err := model.Open(model.Options{Backend: "synthetic", Config: cfg, Seed: 42}, zerolog.Nop())
	require.NoError(t, err)
	return New("bert-base-uncased", tok, m, WithWorkers(3))
}

func TestRunWalkthroughSentence(t *testing.T) {
	p := newTestPipeline(t, 512)

	tr, err := p.Run(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)

	ids := tr.Encoding.IDs
	assert.Equal(t, tokenizertest.SentenceIDs, ids)
	assert.Equal(t, "hello, my dog is cute. he likes snowboarding!", tr.Decoded)
	assert.Equal(t, []int{1, len(ids), 768}, tr.Output.Embeddings.Shape())
	assert.Equal(t, tr.Output.Embeddings.Shape(), tr.Output.Context.Shape())
	assert.Equal(t, []int{1, 768}, tr.Output.PooledShape())
	for _, v := range tr.Output.Pooled {
		require.True(t, v >= -1 && v <= 1)
	}
	assert.Equal(t, "mixing", tr.Encoder)
	assert.NotEqual(t, uuid.Nil, tr.RunID)
}

func TestRunIsDeterministic(t *testing.T) {
	p := newTestPipeline(t, 512)
	a, err := p.Run(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)
	b, err := p.Run(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)
	assert.Equal(t, a.Output.Pooled, b.Output.Pooled)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRunPooledShapeIndependentOfLength(t *testing.T) {
	p := newTestPipeline(t, 512)
	for _, s := range []string{"dog", "the cat sat on a mat", strings.Repeat("he likes snowboarding ", 30)} {
		tr, err := p.Run(context.Background(), s)
		require.NoError(t, err, s)
		assert.Equal(t, []int{1, 768}, tr.Output.PooledShape())
	}
}

func TestRunTruncatesLongInput(t *testing.T) {
	p := newTestPipeline(t, 16)
	tr, err := p.Run(context.Background(), strings.Repeat("dog ", 40))
	require.NoError(t, err)
	assert.True(t, tr.Encoding.Truncated)
	assert.Equal(t, []int{1, 16, 768}, tr.Output.Embeddings.Shape())
}

func TestRunAtBertLengthLimit(t *testing.T) {
	p := newTestPipeline(t, 512)
	for _, words := range []int{510, 511, 600} {
		tr, err := p.Run(context.Background(), strings.Repeat("dog ", words))
		require.NoError(t, err, words)
		assert.Equal(t, words > 510, tr.Encoding.Truncated, words)
		assert.Equal(t, []int{1, 512, 768}, tr.Output.Embeddings.Shape(), words)
		assert.Equal(t, []int{1, 512, 768}, tr.Output.Context.Shape(), words)
		assert.Equal(t, []int{1, 768}, tr.Output.PooledShape(), words)
	}

	tok, err := tokenizer.LoadWordPieceFromVocab(tokenizertest.WriteVocab(t), 512, false)
	require.NoError(t, err)
	strict := New("bert-base-uncased", tok, p.model)
	_, err = strict.Run(context.Background(), strings.Repeat("dog ", 511))
	assert.ErrorIs(t, err, tokenizer.ErrSequenceTooLong)
}

func TestRunRejectsEmptyInput(t *testing.T) {
	p := newTestPipeline(t, 512)
	_, err := p.Run(context.Background(), " ")
	assert.ErrorIs(t, err, tokenizer.ErrEmptyInput)
}

func TestCheckAllPropertiesHold(t *testing.T) {
	p := newTestPipeline(t, 512)
	results, tr, err := p.Check(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.Len(t, results, 8)
	for _, r := range results {
		if r.Name == "backend pooler agreement" {
			assert.True(t, r.Skipped)
			continue
		}
		assert.True(t, r.Passed, "%s: %s", r.Name, r.Detail)
	}
	assert.True(t, Passed(results))
}

func TestCheckRoundTripWithUnknownWords(t *testing.T) {
	p := newTestPipeline(t, 512)
	for _, text := range []string{"zebra café [CLS] don't", "zebra", "HÉ likes zebras!"} {
		results, _, err := p.Check(context.Background(), text)
		require.NoError(t, err, text)
		for _, r := range results {
			if r.Name == "detokenize round trip" {
				assert.True(t, r.Passed, "%s: %s", text, r.Detail)
			}
		}
		assert.True(t, Passed(results), text)
	}
}

type fakeForwarder struct {
	inner   *model.Model
	backend []float64
}

func (f *fakeForwarder) Forward(ctx context.Context, in model.Input) (*model.Output, error) {
	out, err := f.inner.Forward(ctx, in)
	if err != nil {
		return nil, err
	}
	out.BackendPooled = f.backend
	if f.backend == nil {
		out.BackendPooled = append([]float64(nil), out.Pooled...)
	}
	return out, nil
}

func (f *fakeForwarder) EncoderName() string  { return "fake" }
func (f *fakeForwarder) Config() model.Config { return f.inner.Config() }

func TestCheckBackendPoolerAgreement(t *testing.T) {
	base := newTestPipeline(t, 512)
	inner := base.model.(*model.Model)

	agree := New("bert", base.tok, &fakeForwarder{inner: inner})
	results, _, err := agree.Check(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)
	last := results[len(results)-1]
	assert.True(t, last.Passed, last.Detail)

	disagree := New("bert", base.tok, &fakeForwarder{inner: inner, backend: make([]float64, 768)})
	results, _, err = disagree.Check(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)
	assert.False(t, Passed(results))
}

func TestEmbedBatchKeepsOrder(t *testing.T) {
	p := newTestPipeline(t, 512)
	texts := []string{"dog", "the cat sat", tokenizertest.Sentence, "he likes snow"}

	traces, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, traces, len(texts))
	for i, tr := range traces {
		assert.Equal(t, texts[i], tr.Text)
		assert.Equal(t, []int{1, 768}, tr.Output.PooledShape())
	}

	_, err = p.EmbedBatch(context.Background(), []string{"dog", ""})
	assert.ErrorIs(t, err, tokenizer.ErrEmptyInput)

	_, err = p.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestHandoffRoundTrip(t *testing.T) {
	p := newTestPipeline(t, 512)
	tr, err := p.Run(context.Background(), tokenizertest.Sentence)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHandoff(&buf, tr))
	docs, err := ReadHandoff(&buf)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, tr.RunID.String(), docs[0].RunID)
	assert.Equal(t, "bert-base-uncased", docs[0].ModelID)
	assert.Equal(t, []int{1, 768}, docs[0].Shape)
	assert.Equal(t, len(tokenizertest.SentenceIDs), docs[0].Tokens)
	assert.InDeltaSlice(t, tr.Output.Pooled, docs[0].Pooled, 1e-12)
}

func TestSimilarity(t *testing.T) {
	s, err := Similarity([]float64{1, 0}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, s, 1e-12)

	s, err = Similarity([]float64{1, 0}, []float64{0, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0, s, 1e-12)

	s, err = Similarity([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	_, err = Similarity([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestSimilarityMatrixDiagonal(t *testing.T) {
	p := newTestPipeline(t, 512)
	traces, err := p.EmbedBatch(context.Background(), []string{"dog", "the cat sat"})
	require.NoError(t, err)
	m, err := SimilarityMatrix(traces)
	require.NoError(t, err)
	assert.InDelta(t, 1, m[0][0], 1e-6)
	assert.InDelta(t, 1, m[1][1], 1e-6)
	assert.Equal(t, m[0][1], m[1][0])
}
