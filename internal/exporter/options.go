package exporter

import (
	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/logger"
	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/tensor"
)

// Producer identifies the writer in ModelProto.producer_name.
const Producer = "zooexport"

// Version is the producer version recorded in exported files.
var Version = "0.1.0"

type config struct {
	backend   tensor.Backend
	log       logger.Logger
	opset     int64
	foldBN    bool
	prune     bool
	manifest  bool
	graphName string
	docString string
	metadata  []onnx.StringStringEntry
}

func defaultConfig() config {
	return config{
		opset:     onnx.DefaultOpset,
		foldBN:    true,
		prune:     true,
		graphName: "main_graph",
	}
}

// Option configures Export.
type Option func(*config)

// WithBackend sets the backend that computes the traced forward pass.
// The default is the CPU backend.
func WithBackend(b tensor.Backend) Option {
	return func(c *config) { c.backend = b }
}

// WithLogger sets the logger. The default is the logger stored in the
// context passed to Export.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithOpset sets the default-domain opset version.
func WithOpset(version int64) Option {
	return func(c *config) { c.opset = version }
}

// WithFoldBatchNorm toggles folding BatchNormalization into the preceding Conv.
func WithFoldBatchNorm(enabled bool) Option {
	return func(c *config) { c.foldBN = enabled }
}

// WithPruneInitializers toggles dropping initializers no node reads.
func WithPruneInitializers(enabled bool) Option {
	return func(c *config) { c.prune = enabled }
}

// WithManifest writes a JSON sidecar next to the model.
func WithManifest(enabled bool) Option {
	return func(c *config) { c.manifest = enabled }
}

// WithGraphName sets GraphProto.name.
func WithGraphName(name string) Option {
	return func(c *config) { c.graphName = name }
}

// WithDocString sets ModelProto.doc_string.
func WithDocString(doc string) Option {
	return func(c *config) { c.docString = doc }
}

// WithMetadata appends a metadata_props entry.
func WithMetadata(key, value string) Option {
	return func(c *config) {
		c.metadata = append(c.metadata, onnx.StringStringEntry{Key: key, Value: value})
	}
}

func (c *config) resolve() {
	if c.backend == nil {
		c.backend = cpu.New()
	}
}
