package model

import "strings"

// ONNXOptions configure the ONNX Runtime encoder.
type ONNXOptions struct {
	ModelPath string
	// SharedLibrary overrides the onnxruntime shared library location.
	SharedLibrary string
	// ExecutionProvider is one of "cpu", "cuda", "tensorrt", "coreml" or "dml".
	ExecutionProvider string
	DeviceID          int
}

func (o ONNXOptions) provider() string {
	ep := strings.ToLower(strings.TrimSpace(o.ExecutionProvider))
	if ep == "" {
		return "cpu"
	}
	return ep
}
