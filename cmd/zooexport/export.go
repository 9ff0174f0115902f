package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/exporter"
	"github.com/born-ml/zooexport/internal/logger"
	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/sample"
	"github.com/born-ml/zooexport/internal/tensor"
	"github.com/born-ml/zooexport/internal/zoo"
)

type exportOptions struct {
	model       string
	weights     string
	output      string
	inputName   string
	outputName  string
	opset       int64
	seed        int64
	seedSet     bool
	sampleImage string
	noFoldBN    bool
	manifest    bool
	cacheDir    string
}

func defaultExportOptions() exportOptions {
	return exportOptions{
		model:      zoo.DefaultModel,
		weights:    "default",
		inputName:  "input.0",
		outputName: "output.0",
		opset:      onnx.DefaultOpset,
	}
}

func exportCmd() *cli.Command {
	opts := defaultExportOptions()
	return &cli.Command{
		Name:  "export",
		Usage: "Trace a model and write it as ONNX",
		Flags: exportFlags(&opts),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runExport(ctx, c, &opts)
		},
	}
}

func runExport(ctx context.Context, c *cli.Command, opts *exportOptions) error {
	ctx, cfg, err := setup(ctx, c)
	if err != nil {
		return err
	}
	applyExportConfig(c, cfg, opts)

	res, err := export(ctx, opts)
	if err != nil {
		return err
	}
	printResult(os.Stdout, res)
	return nil
}

// export builds the model, loads its weights, builds the sample input and
// writes the ONNX file.
func export(ctx context.Context, o *exportOptions) (*exporter.Result, error) {
	log := logger.FromContext(ctx)

	entry, err := zoo.Lookup(o.model)
	if err != nil {
		return nil, err
	}
	if o.output == "" {
		o.output = filepath.Join("data", entry.Name+".onnx")
	}
	src, err := zoo.ParseSource(o.weights, entry)
	if err != nil {
		return nil, err
	}
	fetcher := &zoo.Fetcher{CacheDir: o.cacheDir}
	if src.Kind == zoo.SourceURL && fetcher.CacheDir == "" {
		if fetcher.CacheDir, err = zoo.CacheDir(); err != nil {
			return nil, err
		}
	}
	if !o.seedSet {
		o.seed = rand.Int64()
	}

	backend := tensor.Backend(cpu.New())
	model, err := zoo.NewResNet[tensor.Backend](entry.Config, tensor.NewRand(uint64(o.seed)), backend)
	if err != nil {
		return nil, err
	}
	weights, err := zoo.Load[tensor.Backend](ctx, fetcher, model, src)
	if err != nil {
		return nil, err
	}

	input, err := buildSample(o, model.InputShape(), backend)
	if err != nil {
		return nil, err
	}
	log.Debug("built sample input", "shape", input.Shape().String(), "seed", o.seed, "image", o.sampleImage)

	opts := []exporter.Option{
		exporter.WithBackend(backend),
		exporter.WithOpset(o.opset),
		exporter.WithFoldBatchNorm(!o.noFoldBN),
		exporter.WithManifest(o.manifest),
		exporter.WithGraphName(entry.Name),
		exporter.WithDocString(entry.Description),
		exporter.WithMetadata("architecture", entry.Name),
		exporter.WithMetadata("weights", src.String()),
	}
	if weights.SHA256 != "" {
		opts = append(opts, exporter.WithMetadata("weights_sha256", weights.SHA256))
	}
	if o.sampleImage == "" {
		opts = append(opts, exporter.WithMetadata("sample_seed", fmt.Sprint(o.seed)))
	}
	return exporter.Export(ctx, model, input, o.output, o.inputName, o.outputName, opts...)
}

// buildSample returns a batch-1 input for a model whose declared shape has
// an open batch dimension.
func buildSample(o *exportOptions, declared tensor.Shape, backend tensor.Backend) (*tensor.Tensor[float32, tensor.Backend], error) {
	shape := declared.Clone()
	shape[0] = 1
	if o.sampleImage != "" {
		return sample.FromImage(o.sampleImage, shape[2], shape[3], backend)
	}
	return sample.Random(shape, uint64(o.seed), backend)
}

func printResult(w io.Writer, r *exporter.Result) {
	_, _ = fmt.Fprintf(w, "wrote %s (%.1f MB, sha256 %s)\n", r.Path, float64(r.Bytes)/(1<<20), r.SHA256)
	_, _ = fmt.Fprintf(w, "  input   %s\n", onnx.Summarize(&r.Input))
	_, _ = fmt.Fprintf(w, "  output  %s\n", onnx.Summarize(&r.Output))
	_, _ = fmt.Fprintf(w, "  nodes %d, initializers %d, params %d, folded batch norms %d\n",
		r.Nodes, r.Initializers, r.Params, r.FoldedBatchNorms)
	if r.ManifestPath != "" {
		_, _ = fmt.Fprintf(w, "  manifest %s\n", r.ManifestPath)
	}
}
