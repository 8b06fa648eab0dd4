//go:build !onnx
// +build !onnx

package model

import (
	"fmt"

	"github.com/rs/zerolog"
)

// NewONNXEncoder is a stub used when built without the "onnx" build tag.
func NewONNXEncoder(opts ONNXOptions, log zerolog.Logger) (Encoder, error) {
	return nil, fmt.Errorf("%w: build with -tags onnx and provide %s", ErrONNXUnavailable, opts.ModelPath)
}

// ListONNXProviders is a stub when the package is built without ONNX support.
func ListONNXProviders() ([]string, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags=onnx to enable", ErrONNXUnavailable)
}
