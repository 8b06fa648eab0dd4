//go:build !onnx
// +build !onnx

package model

import (
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/safetensors"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenONNXWithoutBuildTag(t *testing.T) {
	cfg := tinyConfig()
	w, err := NewSyntheticWeights(cfg, 1)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, safetensors.WriteF32(path, w.Tensors(), nil))

	_, err = Open(Options{Backend: "onnx", Config: cfg, WeightsPath: path, ONNX: ONNXOptions{ModelPath: "model.onnx"}}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrONNXUnavailable)

	_, err = ListONNXProviders()
	assert.ErrorIs(t, err, ErrONNXUnavailable)
}
