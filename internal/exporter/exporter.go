// Package exporter traces a model's forward pass and writes it as ONNX.
//
// Export is one synchronous call: switch the model to inference mode, run
// the sample input through a tracing backend, apply the graph passes, and
// write the ModelProto through a temp file renamed over the destination.
package exporter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/born-ml/zooexport/internal/logger"
	"github.com/born-ml/zooexport/internal/nn"
	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/tensor"
	"github.com/born-ml/zooexport/internal/trace"
)

var (
	// ErrNotTraceable is returned when the forward pass cannot be expressed
	// as an ONNX graph.
	ErrNotTraceable = errors.New("model is not traceable")

	// ErrShapeMismatch is returned when the sample input does not fit the
	// model.
	ErrShapeMismatch = errors.New("sample input shape mismatch")
)

// InputShaper is implemented by models that declare their input shape.
// Dimensions <= 0 accept any size.
type InputShaper interface {
	InputShape() tensor.Shape
}

// Result describes a written export.
type Result struct {
	Path               string
	Bytes              int
	SHA256             string
	Nodes              int
	Initializers       int
	Params             int64
	OpCounts           map[string]int
	Input              onnx.ValueInfoProto
	Output             onnx.ValueInfoProto
	FoldedBatchNorms   int
	PrunedInitializers int
	Duration           time.Duration
	ManifestPath       string
}

// Export traces model on sample and writes the graph to outputPath, with the
// graph input named inputName and the graph output named outputName. The
// parent directory is created when missing and an existing file is replaced.
func Export(
	ctx context.Context,
	model nn.Module[tensor.Backend],
	sample *tensor.Tensor[float32, tensor.Backend],
	outputPath, inputName, outputName string,
	opts ...Option,
) (*Result, error) {
	start := time.Now()
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.resolve()
	log := cfg.log
	if log == nil {
		log = logger.FromContext(ctx)
	}

	if err := validate(model, sample, outputPath, inputName, outputName, cfg.opset); err != nil {
		return nil, err
	}
	if model.Training() {
		nn.Eval[tensor.Backend](model)
		log.Debug("switched model to inference mode")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graph, err := traceForward(model, sample, inputName, outputName, cfg.backend)
	if err != nil {
		return nil, err
	}
	log.Info("traced graph",
		"nodes", len(graph.Nodes),
		"initializers", len(graph.Initializers),
		"backend", cfg.backend.Name(),
		"rss_mb", rssMB(),
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Path: outputPath}
	if cfg.foldBN {
		if result.FoldedBatchNorms, err = FoldBatchNorm(graph); err != nil {
			return nil, err
		}
		log.Debug("folded batch norms", "count", result.FoldedBatchNorms)
	}
	if cfg.prune {
		result.PrunedInitializers = PruneInitializers(graph)
		log.Debug("pruned initializers", "count", result.PrunedInitializers)
	}

	m, err := buildModel(graph, &cfg)
	if err != nil {
		return nil, err
	}
	if err := onnx.Check(m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotTraceable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	if result.Bytes, err = onnx.WriteFile(outputPath, m); err != nil {
		return nil, err
	}
	if result.SHA256, err = fileSHA256(outputPath); err != nil {
		return nil, err
	}

	result.Nodes = len(m.Graph.Nodes)
	result.Initializers = len(m.Graph.Initializers)
	result.OpCounts = graph.OpCounts()
	result.Input = m.Graph.Inputs[0]
	result.Output = m.Graph.Outputs[0]
	for _, init := range graph.Initializers {
		result.Params += int64(init.Tensor.NumElements())
	}

	if cfg.manifest {
		if result.ManifestPath, err = writeManifest(outputPath, m, result); err != nil {
			return nil, err
		}
	}
	result.Duration = time.Since(start)

	log.Info("wrote onnx",
		"path", outputPath,
		"bytes", result.Bytes,
		"sha256", result.SHA256,
		"nodes", result.Nodes,
		"opset", cfg.opset,
		"duration", result.Duration,
	)
	return result, nil
}

func validate(model nn.Module[tensor.Backend], sample *tensor.Tensor[float32, tensor.Backend], outputPath, inputName, outputName string, opset int64) error {
	switch {
	case model == nil:
		return errors.New("model is nil")
	case sample == nil:
		return errors.New("sample input is nil")
	case outputPath == "":
		return errors.New("output path is empty")
	case inputName == "" || outputName == "":
		return errors.New("input and output names must not be empty")
	case inputName == outputName:
		return fmt.Errorf("input and output share the name %q", inputName)
	case opset < onnx.MinOpset || opset > onnx.MaxOpset:
		return fmt.Errorf("opset %d outside supported range [%d, %d]", opset, onnx.MinOpset, onnx.MaxOpset)
	}

	shaper, ok := model.(InputShaper)
	if !ok {
		return nil
	}
	want, got := shaper.InputShape(), sample.Shape()
	if len(want) != len(got) {
		return fmt.Errorf("%w: got %v, model takes %v", ErrShapeMismatch, got, want)
	}
	for i := range want {
		if want[i] > 0 && want[i] != got[i] {
			return fmt.Errorf("%w: got %v, model takes %v", ErrShapeMismatch, got, want)
		}
	}
	return nil
}

// traceForward runs one forward pass through a tracing backend. Kernel
// panics are converted into errors.
func traceForward(
	model nn.Module[tensor.Backend],
	sample *tensor.Tensor[float32, tensor.Backend],
	inputName, outputName string,
	backend tensor.Backend,
) (graph *trace.Graph, err error) {
	tracer := trace.New[tensor.Backend](backend)
	for name, raw := range model.StateDict() {
		tracer.Bind(raw, name)
	}
	x := tensor.WithBackend[float32, tensor.Backend, tensor.Backend](sample, tracer)
	tracer.BindInput(x.Raw(), inputName)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if rerr, ok := r.(runtime.Error); ok {
			err = fmt.Errorf("%w: %w", ErrNotTraceable, rerr)
			return
		}
		err = fmt.Errorf("%w: %v", ErrShapeMismatch, r)
	}()

	y := model.Forward(x)
	if err := tracer.MarkOutput(y.Raw(), outputName); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotTraceable, err)
	}

	graph = tracer.Graph()
	if len(graph.Nodes) == 0 {
		return nil, fmt.Errorf("%w: forward pass recorded no ops", ErrNotTraceable)
	}
	return graph, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
