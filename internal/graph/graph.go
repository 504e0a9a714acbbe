// Package graph holds the mutable in-memory view of a loaded model graph.
// The engine executes the serialized base graph; this package tracks the
// declared outputs and the shaping nodes (softmax, transpose) the classifier
// appends before the execution handle is created.
package graph

import (
	"errors"
	"fmt"

	"github.com/example/go-image-classify/internal/tensor"
)

// Deterministic names for appended shaping nodes. Augmentation detects a
// prior run by these names, so repeating it never corrupts the graph.
const (
	SoftmaxNodeName   = "classifier_softmax"
	TransposeNodeName = "classifier_scores_nhwc"
)

// ActivationSoftmax is the activation tag a bundle declares when the model's
// final layer already normalizes its scores.
const ActivationSoftmax = "softmax"

type OpKind string

const (
	OpSoftmax   OpKind = "softmax"
	OpTranspose OpKind = "transpose"
)

// Node is one appended shaping operation.
type Node struct {
	Name  string
	Op    OpKind
	Input string
	Axis  int   // OpSoftmax
	Perm  []int // OpTranspose
}

// OutputInfo describes a declared graph output.
type OutputInfo struct {
	Name       string
	Activation string
	Shape      []int64
}

// Graph is the runtime view of a loaded model: its declared outputs plus the
// appended shaping tail. Mutable until Freeze.
type Graph struct {
	outputs     []OutputInfo
	outputIndex int
	tail        []Node
	outputName  string
	frozen      bool
}

// New builds a Graph over the declared outputs, selecting the output at
// outputIndex as the classification output.
func New(outputs []OutputInfo, outputIndex int) (*Graph, error) {
	if len(outputs) == 0 {
		return nil, errors.New("graph: model declares no outputs")
	}

	if outputIndex < 0 || outputIndex >= len(outputs) {
		return nil, fmt.Errorf("graph: output index %d out of range [0,%d)", outputIndex, len(outputs))
	}

	return &Graph{
		outputs:     append([]OutputInfo(nil), outputs...),
		outputIndex: outputIndex,
		outputName:  outputs[outputIndex].Name,
	}, nil
}

// BaseOutput returns the declared output the engine produces.
func (g *Graph) BaseOutput() OutputInfo {
	return g.outputs[g.outputIndex]
}

// OutputName returns the current classification output: the declared output,
// or the last appended shaping node.
func (g *Graph) OutputName() string {
	return g.outputName
}

// NodeCount returns the number of appended shaping nodes.
func (g *Graph) NodeCount() int {
	return len(g.tail)
}

// Frozen reports whether the execution handle has been created.
func (g *Graph) Frozen() bool {
	return g.frozen
}

// Freeze marks the graph immutable. Called when the execution handle is
// built; appends after this point are usage errors.
func (g *Graph) Freeze() {
	g.frozen = true
}

// AppendSoftmax ensures the classification output produces normalized
// probabilities. A no-op when the declared output's activation is already
// softmax, or when a prior augmentation appended the node (detected by
// name).
func (g *Graph) AppendSoftmax(axis int) error {
	if g.frozen {
		return errors.New("graph: append on frozen graph")
	}

	if g.hasNode(SoftmaxNodeName) {
		return nil
	}

	if len(g.tail) == 0 && g.BaseOutput().Activation == ActivationSoftmax {
		return nil
	}

	g.tail = append(g.tail, Node{
		Name:  SoftmaxNodeName,
		Op:    OpSoftmax,
		Input: g.outputName,
		Axis:  axis,
	})
	g.outputName = SoftmaxNodeName

	return nil
}

// AppendTranspose reorders the output axes (class axis last, the layout the
// texture readback path expects). Idempotent by node name.
func (g *Graph) AppendTranspose(perm []int) error {
	if g.frozen {
		return errors.New("graph: append on frozen graph")
	}

	if g.hasNode(TransposeNodeName) {
		return nil
	}

	g.tail = append(g.tail, Node{
		Name:  TransposeNodeName,
		Op:    OpTranspose,
		Input: g.outputName,
		Perm:  append([]int(nil), perm...),
	})
	g.outputName = TransposeNodeName

	return nil
}

// ApplyTail runs the appended shaping nodes over the engine's base output.
func (g *Graph) ApplyTail(t *tensor.Tensor) (*tensor.Tensor, error) {
	out := t

	for _, n := range g.tail {
		var err error

		switch n.Op {
		case OpSoftmax:
			out, err = tensor.Softmax(out, n.Axis)
		case OpTranspose:
			out, err = out.Permute(n.Perm)
		default:
			err = fmt.Errorf("unknown op %q", n.Op)
		}

		if err != nil {
			return nil, fmt.Errorf("graph: node %q: %w", n.Name, err)
		}
	}

	return out, nil
}

func (g *Graph) hasNode(name string) bool {
	for _, n := range g.tail {
		if n.Name == name {
			return true
		}
	}

	return false
}
