package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/safetensors"

	"gonum.org/v1/gonum/mat"
)

// Weights holds the learned parameters bertwalk evaluates itself: the
// embedding tables, the embedding layer norm and the pooler projection.
type Weights struct {
	WordEmbeddings      *mat.Dense // vocab x hidden
	PositionEmbeddings  *mat.Dense // positions x hidden
	TokenTypeEmbeddings *mat.Dense // types x hidden
	LayerNormGamma      []float64
	LayerNormBeta       []float64
	PoolerWeight        *mat.Dense // hidden(out) x hidden(in)
	PoolerBias          []float64
	// Metadata is the checkpoint's __metadata__ header, nil for synthetic weights.
	Metadata map[string]string
}

// Tensor names in a HuggingFace BertModel checkpoint.
const (
	tensorWordEmbeddings = "embeddings.word_embeddings.weight"
	tensorPosEmbeddings  = "embeddings.position_embeddings.weight"
	tensorTypeEmbeddings = "embeddings.token_type_embeddings.weight"
	tensorLNWeight       = "embeddings.LayerNorm.weight"
	tensorLNBias         = "embeddings.LayerNorm.bias"
	tensorLNGamma        = "embeddings.LayerNorm.gamma"
	tensorLNBeta         = "embeddings.LayerNorm.beta"
	tensorPoolerWeight   = "pooler.dense.weight"
	tensorPoolerBias     = "pooler.dense.bias"
)

// LoadWeights reads the embedding and pooler tensors from a safetensors file
// and checks them against cfg.
func LoadWeights(path string, cfg Config) (*Weights, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights %s: %w", path, err)
	}
	defer f.Close()
	r := &tensorReader{f: f}
	w := &Weights{
		WordEmbeddings:      r.matrix(cfg.VocabSize, cfg.HiddenSize, tensorWordEmbeddings),
		PositionEmbeddings:  r.matrix(cfg.MaxPositionEmbeddings, cfg.HiddenSize, tensorPosEmbeddings),
		TokenTypeEmbeddings: r.matrix(cfg.TypeVocabSize, cfg.HiddenSize, tensorTypeEmbeddings),
		LayerNormGamma:      r.vector(cfg.HiddenSize, tensorLNWeight, tensorLNGamma),
		LayerNormBeta:       r.vector(cfg.HiddenSize, tensorLNBias, tensorLNBeta),
		PoolerWeight:        r.matrix(cfg.HiddenSize, cfg.HiddenSize, tensorPoolerWeight),
		PoolerBias:          r.vector(cfg.HiddenSize, tensorPoolerBias),
		Metadata:            f.Metadata,
	}
	if r.err != nil {
		return nil, r.err
	}
	return w, nil
}

// tensorReader resolves names with or without the "bert." prefix of
// pretraining checkpoints and keeps the first error.
type tensorReader struct {
	f   *safetensors.File
	err error
}

func (r *tensorReader) read(names ...string) ([]float64, []int) {
	if r.err != nil {
		return nil, nil
	}
	for _, name := range names {
		for _, candidate := range []string{name, "bert." + name} {
			if _, ok := r.f.Tensor(candidate); !ok {
				continue
			}
			data, info, err := r.f.ReadTensorF64(candidate)
			if err != nil {
				r.err = err
				return nil, nil
			}
			return data, info.Shape
		}
	}
	r.err = fmt.Errorf("weights missing tensor %s", names[0])
	return nil, nil
}

func (r *tensorReader) matrix(rows, cols int, names ...string) *mat.Dense {
	data, shape := r.read(names...)
	if r.err != nil {
		return nil
	}
	if len(shape) != 2 || shape[0] != rows || shape[1] != cols {
		r.err = fmt.Errorf("%w: %s has shape %v, want [%d %d]", ErrShapeMismatch, names[0], shape, rows, cols)
		return nil
	}
	return mat.NewDense(rows, cols, data)
}

func (r *tensorReader) vector(n int, names ...string) []float64 {
	data, shape := r.read(names...)
	if r.err != nil {
		return nil
	}
	if len(shape) != 1 || shape[0] != n {
		r.err = fmt.Errorf("%w: %s has shape %v, want [%d]", ErrShapeMismatch, names[0], shape, n)
		return nil
	}
	return data
}

// NewSyntheticWeights draws deterministic random weights for offline runs.
// Embedding tables use N(0, 0.02) like BERT initialisation, the pooler a
// Xavier-scaled uniform matrix.
func NewSyntheticWeights(cfg Config, seed int64) (*Weights, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	normal := func(rows, cols int) *mat.Dense {
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = rng.NormFloat64() * 0.02
		}
		return mat.NewDense(rows, cols, data)
	}
	h := cfg.HiddenSize
	limit := math.Sqrt(6.0 / float64(2*h))
	pooler := make([]float64, h*h)
	for i := range pooler {
		pooler[i] = (rng.Float64()*2 - 1) * limit
	}
	gamma := make([]float64, h)
	for i := range gamma {
		gamma[i] = 1
	}
	return &Weights{
		WordEmbeddings:      normal(cfg.VocabSize, h),
		PositionEmbeddings:  normal(cfg.MaxPositionEmbeddings, h),
		TokenTypeEmbeddings: normal(cfg.TypeVocabSize, h),
		LayerNormGamma:      gamma,
		LayerNormBeta:       make([]float64, h),
		PoolerWeight:        mat.NewDense(h, h, pooler),
		PoolerBias:          make([]float64, h),
	}, nil
}

// Tensors lists w under checkpoint names, for writing a safetensors file.
func (w *Weights) Tensors() []safetensors.Tensor {
	dense := func(name string, m *mat.Dense) safetensors.Tensor {
		r, c := m.Dims()
		return safetensors.Tensor{Name: name, Shape: []int{r, c}, Data: m.RawMatrix().Data}
	}
	vec := func(name string, v []float64) safetensors.Tensor {
		return safetensors.Tensor{Name: name, Shape: []int{len(v)}, Data: v}
	}
	return []safetensors.Tensor{
		dense(tensorWordEmbeddings, w.WordEmbeddings),
		dense(tensorPosEmbeddings, w.PositionEmbeddings),
		dense(tensorTypeEmbeddings, w.TokenTypeEmbeddings),
		vec(tensorLNWeight, w.LayerNormGamma),
		vec(tensorLNBias, w.LayerNormBeta),
		dense(tensorPoolerWeight, w.PoolerWeight),
		vec(tensorPoolerBias, w.PoolerBias),
	}
}
