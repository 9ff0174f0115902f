package operators

import (
	"fmt"
	"slices"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Handler computes the outputs of one node.
type Handler func(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

// Env carries what handlers need besides their inputs.
type Env struct {
	Backend tensor.Backend
}

// builtin lists every operator the executor runs.
var builtin = map[string]Handler{
	// math
	"Add":    handleAdd,
	"Sum":    handleSum,
	"MatMul": handleMatMul,
	"Gemm":   handleGemm,
	"Relu":   handleRelu,

	// convolutional network
	"Conv":               handleConv,
	"BatchNormalization": handleBatchNormalization,
	"MaxPool":            handleMaxPool,
	"GlobalAveragePool":  handleGlobalAveragePool,

	// shape
	"Reshape":   handleReshape,
	"Transpose": handleTranspose,
	"Flatten":   handleFlatten,

	// pass-through at inference time
	"Identity": handleIdentity,
	"Dropout":  handleDropout,
}

// Registry maps op types to handlers. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a registry holding the builtin operators.
func NewRegistry() *Registry {
	handlers := make(map[string]Handler, len(builtin))
	for op, h := range builtin {
		handlers[op] = h
	}
	return &Registry{handlers: handlers}
}

// Register adds or replaces the handler for opType.
func (r *Registry) Register(opType string, h Handler) {
	r.handlers[opType] = h
}

// Lookup returns the handler for opType.
func (r *Registry) Lookup(opType string) (Handler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Ops returns the registered op types, sorted.
func (r *Registry) Ops() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Run executes node. A backend panic on bad shapes comes back as an error.
func (r *Registry) Run(env *Env, node *Node, inputs []*tensor.RawTensor) (outputs []*tensor.RawTensor, err error) {
	h, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("unsupported operator %s", node.OpType)
	}
	defer func() {
		if p := recover(); p != nil {
			outputs, err = nil, fmt.Errorf("%s %q: %v", node.OpType, node.Name, p)
		}
	}()
	return h(env, node, inputs)
}
