package kernels

import (
	"fmt"
)

// ArithKind selects the per-element arithmetic of Binary and Scalar
type ArithKind int

const (
	OpAdd ArithKind = iota
	OpSub
	OpMul
	OpDiv
	OpMin
	OpMax
)

func (k ArithKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	default:
		return fmt.Sprintf("ArithKind(%d)", int(k))
	}
}

func (k ArithKind) valid() bool {
	return k >= OpAdd && k <= OpMax
}

// arith evaluates a (k) b. Scale multiplies products and quotients.
// Division by zero yields zero.
func arith[T Number](k ArithKind, a, b, scale T) T {
	switch k {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b * scale
	case OpDiv:
		if b == 0 {
			return 0
		}
		return a * scale / b
	case OpMin:
		return min(a, b)
	case OpMax:
		return max(a, b)
	}
	return 0
}

// Binary combines two tensors element by element
type Binary[T Number] struct {
	Kind  ArithKind
	Scale T
}

// NewBinary returns a Binary with unit scale
func NewBinary[T Number](kind ArithKind) *Binary[T] {
	return &Binary[T]{Kind: kind, Scale: 1}
}

func (op *Binary[T]) Name() string        { return op.Kind.String() }
func (op *Binary[T]) NumInputs() int      { return 2 }
func (op *Binary[T]) ScratchBuffers() int { return 0 }

func (op *Binary[T]) Validate() error {
	if !op.Kind.valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, op.Kind)
	}
	return nil
}

func (op *Binary[T]) Apply(dst []T, srcs [][]T, _ []T) {
	a, b := srcs[0][:len(dst)], srcs[1][:len(dst)]
	for i := range dst {
		dst[i] = arith(op.Kind, a[i], b[i], op.Scale)
	}
}

// Scalar combines a tensor with a constant. With Reverse set the constant
// is the left operand, as in scalar - matrix.
type Scalar[T Number] struct {
	Kind    ArithKind
	Value   T
	Scale   T
	Reverse bool
}

// NewScalar returns a Scalar with unit scale
func NewScalar[T Number](kind ArithKind, value T, reverse bool) *Scalar[T] {
	return &Scalar[T]{Kind: kind, Value: value, Scale: 1, Reverse: reverse}
}

func (op *Scalar[T]) Name() string {
	if op.Reverse {
		return "scalar_" + op.Kind.String()
	}
	return op.Kind.String() + "_scalar"
}

func (op *Scalar[T]) NumInputs() int      { return 1 }
func (op *Scalar[T]) ScratchBuffers() int { return 0 }

func (op *Scalar[T]) Validate() error {
	if !op.Kind.valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, op.Kind)
	}
	return nil
}

func (op *Scalar[T]) Apply(dst []T, srcs [][]T, _ []T) {
	x := srcs[0][:len(dst)]
	if op.Reverse {
		for i := range dst {
			dst[i] = arith(op.Kind, op.Value, x[i], op.Scale)
		}
		return
	}
	for i := range dst {
		dst[i] = arith(op.Kind, x[i], op.Value, op.Scale)
	}
}

// Weighted computes alpha*a + beta*b + gamma
type Weighted[T Number] struct {
	Alpha, Beta, Gamma float64
}

func (op *Weighted[T]) Name() string        { return "add_weighted" }
func (op *Weighted[T]) NumInputs() int      { return 2 }
func (op *Weighted[T]) ScratchBuffers() int { return 0 }
func (op *Weighted[T]) Validate() error     { return nil }

func (op *Weighted[T]) Apply(dst []T, srcs [][]T, _ []T) {
	a, b := srcs[0][:len(dst)], srcs[1][:len(dst)]
	for i := range dst {
		dst[i] = T(op.Alpha*float64(a[i]) + op.Beta*float64(b[i]) + op.Gamma)
	}
}
