// Package operator runs named data-movement operators (concatenation,
// splitting, layout conversion, transposition, reversal and cropping) on
// 4-D tensors, queued on a runner stream like any other device work.
package operator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/TileKernel/runner"
	"github.com/samber/lo"
)

var (
	// ErrUnknownOperator is returned by Run for a name with no handler
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrBadAttr reports a missing or invalid attribute, input or output
	ErrBadAttr = errors.New("bad operator argument")
)

// handler validates an operator and returns the work to queue
type handler func(op *Operator) (func() error, error)

var registry = map[string]handler{
	"ConcatD":    concatD,
	"SplitD":     splitD,
	"TransData":  transData,
	"TransposeD": transposeD,
	"ReverseV2":  reverseV2,
	"Crop":       crop,
}

// Names lists the registered operators
func Names() []string {
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// Operator collects the inputs, outputs and attributes of one operator
// call. Build it with New and the Add methods, then Run it.
type Operator struct {
	Name      string
	Inputs    []*Tensor
	InLabels  []string
	Outputs   []*Tensor
	OutLabels []string
	Attrs     map[string]interface{}
}

// New starts an operator call by name
func New(name string) *Operator {
	return &Operator{
		Name:  name,
		Attrs: make(map[string]interface{}),
	}
}

// AddInput appends an input tensor
func (op *Operator) AddInput(t *Tensor, label string) *Operator {
	op.Inputs = append(op.Inputs, t)
	op.InLabels = append(op.InLabels, label)
	return op
}

// AddOutput appends an output tensor
func (op *Operator) AddOutput(t *Tensor, label string) *Operator {
	op.Outputs = append(op.Outputs, t)
	op.OutLabels = append(op.OutLabels, label)
	return op
}

// AddAttr sets an attribute. Integers may be any Go integer type, lists
// []int or []int64.
func (op *Operator) AddAttr(name string, value interface{}) *Operator {
	op.Attrs[name] = value
	return op
}

// Run validates the call and queues it on s. Argument errors are
// returned here; nothing is queued in that case. A nil stream runs the
// operator before Run returns.
func (op *Operator) Run(s *runner.Stream) error {
	h, ok := registry[op.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, op.Name)
	}
	for i, t := range op.Inputs {
		if err := t.check(op.InLabels[i]); err != nil {
			return fmt.Errorf("%s: %w", op.Name, err)
		}
	}
	for i, t := range op.Outputs {
		if err := t.check(op.OutLabels[i]); err != nil {
			return fmt.Errorf("%s: %w", op.Name, err)
		}
	}
	exec, err := h(op)
	if err != nil {
		return fmt.Errorf("%s: %w", op.Name, err)
	}
	if s == nil {
		return exec()
	}
	return s.Submit(op.Name, func(context.Context) error {
		return exec()
	})
}

func (op *Operator) arity(inputs, outputs int) error {
	if inputs >= 0 && len(op.Inputs) != inputs {
		return fmt.Errorf("%w: %d inputs, want %d", ErrBadAttr, len(op.Inputs), inputs)
	}
	if outputs >= 0 && len(op.Outputs) != outputs {
		return fmt.Errorf("%w: %d outputs, want %d", ErrBadAttr, len(op.Outputs), outputs)
	}
	return nil
}

func (op *Operator) intAttr(name string) (int, error) {
	v, ok := op.Attrs[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing attribute %q", ErrBadAttr, name)
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	}
	return 0, fmt.Errorf("%w: attribute %q is %T, want integer", ErrBadAttr, name, v)
}

func (op *Operator) intsAttr(name string) ([]int, error) {
	v, ok := op.Attrs[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing attribute %q", ErrBadAttr, name)
	}
	switch x := v.(type) {
	case []int:
		return x, nil
	case []int32:
		out := make([]int, len(x))
		for i, e := range x {
			out[i] = int(e)
		}
		return out, nil
	case []int64:
		out := make([]int, len(x))
		for i, e := range x {
			out[i] = int(e)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: attribute %q is %T, want integer list", ErrBadAttr, name, v)
}

func (op *Operator) formatAttr(name string) (Format, error) {
	v, ok := op.Attrs[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing attribute %q", ErrBadAttr, name)
	}
	switch x := v.(type) {
	case Format:
		return x, nil
	case string:
		return ParseFormat(x)
	}
	return 0, fmt.Errorf("%w: attribute %q is %T, want format", ErrBadAttr, name, v)
}

func checkDim(name string, d int) error {
	if d < 0 || d > 3 {
		return fmt.Errorf("%w: %s %d outside [0, 3]", ErrBadAttr, name, d)
	}
	return nil
}

func checkShape(label string, t *Tensor, want [4]int) error {
	if t.Shape != want {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrBadAttr, label, t.Shape, want)
	}
	return nil
}
