//go:build onnx
// +build onnx

package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxEncoder runs an ONNX export of the pretrained checkpoint. It feeds ids,
// attention mask and token types and reads last_hidden_state and, when the
// export has it, pooler_output.
type onnxEncoder struct {
	opts        ONNXOptions
	log         zerolog.Logger
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
	hiddenIdx   int
	pooledIdx   int
}

var ortInit sync.Mutex

// NewONNXEncoder initializes ORT and opens a dynamic session on opts.ModelPath.
func NewONNXEncoder(opts ONNXOptions, log zerolog.Logger) (Encoder, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("onnx model path is required")
	}
	if err := initRuntime(opts.SharedLibrary); err != nil {
		return nil, err
	}
	e := &onnxEncoder{opts: opts, log: log.With().Str("component", "onnx").Logger(), pooledIdx: -1}
	if err := e.open(); err != nil {
		return nil, err
	}
	return e, nil
}

func initRuntime(sharedLibrary string) error {
	ortInit.Lock()
	defer ortInit.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if sharedLibrary != "" {
		ort.SetSharedLibraryPath(sharedLibrary)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	return nil
}

func (e *onnxEncoder) Name() string { return "onnx" }

func (e *onnxEncoder) open() error {
	ins, outs, err := ort.GetInputOutputInfo(e.opts.ModelPath)
	if err != nil {
		return fmt.Errorf("get IO info: %w", err)
	}
	// Inputs in a fixed order: ids, mask, token types.
	var idsName, maskName, typeName string
	for _, ii := range ins {
		n := strings.ToLower(ii.Name)
		switch {
		case strings.Contains(n, "input_ids") || n == "ids":
			idsName = ii.Name
		case strings.Contains(n, "attention_mask") || n == "mask":
			maskName = ii.Name
		case strings.Contains(n, "token_type"):
			typeName = ii.Name
		}
	}
	if idsName == "" {
		return fmt.Errorf("could not determine ONNX input_ids input")
	}
	for _, name := range []string{idsName, maskName, typeName} {
		if name != "" {
			e.inputNames = append(e.inputNames, name)
		}
	}

	var hiddenName, pooledName string
	for _, oi := range outs {
		if oi.DataType != ort.TensorElementDataTypeFloat {
			continue
		}
		n := strings.ToLower(oi.Name)
		switch {
		case strings.Contains(n, "last_hidden_state"):
			hiddenName = oi.Name
		case strings.Contains(n, "pooler_output") || strings.Contains(n, "pooled"):
			pooledName = oi.Name
		case hiddenName == "" && len(oi.Dimensions) == 3:
			hiddenName = oi.Name
		}
	}
	if hiddenName == "" {
		return fmt.Errorf("could not determine ONNX last_hidden_state output")
	}
	e.outputNames = []string{hiddenName}
	e.hiddenIdx = 0
	if pooledName != "" {
		e.outputNames = append(e.outputNames, pooledName)
		e.pooledIdx = 1
	}

	opts, err := e.sessionOptions()
	if err != nil {
		return err
	}
	if opts != nil {
		defer func() { _ = opts.Destroy() }()
	}
	s, err := ort.NewDynamicAdvancedSession(e.opts.ModelPath, e.inputNames, e.outputNames, opts)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	e.session = s
	e.log.Debug().
		Strs("inputs", e.inputNames).
		Strs("outputs", e.outputNames).
		Str("provider", e.opts.provider()).
		Msg("onnx session ready")
	return nil
}

// sessionOptions builds options for the requested execution provider; nil
// means the ORT defaults (CPU).
func (e *onnxEncoder) sessionOptions() (*ort.SessionOptions, error) {
	ep := e.opts.provider()
	if ep == "cpu" {
		return nil, nil
	}
	o, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
	switch ep {
	case "cuda":
		if cu, e2 := ort.NewCUDAProviderOptions(); e2 == nil {
			err = o.AppendExecutionProviderCUDA(cu)
			_ = cu.Destroy()
		} else {
			err = e2
		}
	case "tensorrt":
		if trt, e2 := ort.NewTensorRTProviderOptions(); e2 == nil {
			err = o.AppendExecutionProviderTensorRT(trt)
			_ = trt.Destroy()
		} else {
			err = e2
		}
	case "coreml":
		err = o.AppendExecutionProviderCoreMLV2(map[string]string{})
	case "dml":
		err = o.AppendExecutionProviderDirectML(e.opts.DeviceID)
	default:
		err = fmt.Errorf("unknown execution provider %q", ep)
	}
	if err != nil {
		// fall back to CPU rather than failing the run
		e.log.Warn().Err(err).Str("provider", ep).Msg("execution provider unavailable, using cpu")
		_ = o.Destroy()
		return nil, nil
	}
	return o, nil
}

func (e *onnxEncoder) Encode(ctx context.Context, in EncoderInput) (*EncoderOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := len(in.IDs)
	if seq == 0 {
		return nil, ErrEmptySequence
	}
	shape := ort.NewShape(1, int64(seq))
	values := map[string][]int64{"ids": in.IDs, "mask": in.Mask, "types": in.TypeIDs}
	if values["mask"] == nil {
		values["mask"] = ones(seq)
	}
	if values["types"] == nil {
		values["types"] = make([]int64, seq)
	}

	inVals := make([]ort.Value, len(e.inputNames))
	for i, name := range e.inputNames {
		ln := strings.ToLower(name)
		key := "types"
		switch {
		case strings.Contains(ln, "input_ids") || ln == "ids":
			key = "ids"
		case strings.Contains(ln, "attention_mask") || ln == "mask":
			key = "mask"
		}
		t, err := ort.NewTensor(shape, values[key])
		if err != nil {
			return nil, fmt.Errorf("%s tensor: %w", key, err)
		}
		defer t.Destroy()
		inVals[i] = t
	}

	outs := make([]ort.Value, len(e.outputNames))
	e.mu.Lock()
	err := e.session.Run(inVals, outs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	hidden, ok := outs[e.hiddenIdx].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected %s output type", e.outputNames[e.hiddenIdx])
	}
	hs := hidden.GetShape()
	if len(hs) != 3 || hs[0] != 1 || int(hs[1]) != seq {
		return nil, fmt.Errorf("%w: last_hidden_state shape %v", ErrShapeMismatch, hs)
	}
	out := &EncoderOutput{Context: NewHidden(seq, int(hs[2]), widen(hidden.GetData()))}

	if e.pooledIdx >= 0 {
		if pooled, ok := outs[e.pooledIdx].(*ort.Tensor[float32]); ok {
			out.Pooled = widen(pooled.GetData())
		}
	}
	return out, nil
}

func (e *onnxEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// ListONNXProviders returns the execution providers this binary can request.
func ListONNXProviders() ([]string, error) {
	if err := initRuntime(""); err != nil {
		return nil, err
	}
	// onnxruntime_go does not expose the provider list of the loaded
	// library, so report the providers the encoder knows how to configure.
	return []string{"cpu", "cuda", "tensorrt", "coreml", "dml"}, nil
}

func widen(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

func ones(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
