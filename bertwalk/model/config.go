package model

import (
	"errors"
	"fmt"
)

// Config describes the dimensions of a BERT checkpoint.
type Config struct {
	VocabSize             int
	HiddenSize            int
	MaxPositionEmbeddings int
	TypeVocabSize         int
	LayerNormEps          float64
}

// DefaultConfig returns the bert-base-uncased dimensions.
func DefaultConfig() Config {
	return Config{
		VocabSize:             30522,
		HiddenSize:            768,
		MaxPositionEmbeddings: 512,
		TypeVocabSize:         2,
		LayerNormEps:          1e-12,
	}
}

var (
	ErrEmptySequence      = errors.New("empty token sequence")
	ErrUnknownID          = errors.New("token id outside vocabulary")
	ErrPositionOutOfRange = errors.New("sequence position beyond position embeddings")
	ErrShapeMismatch      = errors.New("tensor shape mismatch")
	ErrONNXUnavailable    = errors.New("onnx encoder not available")
)

func (c Config) validate() error {
	if c.VocabSize <= 0 || c.HiddenSize <= 0 || c.MaxPositionEmbeddings <= 0 || c.TypeVocabSize <= 0 {
		return fmt.Errorf("invalid model config %+v", c)
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("layer norm epsilon must be positive: %g", c.LayerNormEps)
	}
	return nil
}
