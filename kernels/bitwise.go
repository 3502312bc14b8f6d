package kernels

import (
	"fmt"
)

// Integer is the subset of Number that bitwise operators accept
type Integer interface {
	~int32 | ~int64
}

// BitwiseKind selects the per-element logic of Bitwise and BitwiseScalar
type BitwiseKind int

const (
	OpAnd BitwiseKind = iota
	OpOr
	OpXor
	OpNot
)

func (k BitwiseKind) String() string {
	switch k {
	case OpAnd:
		return "bitwise_and"
	case OpOr:
		return "bitwise_or"
	case OpXor:
		return "bitwise_xor"
	case OpNot:
		return "bitwise_not"
	default:
		return fmt.Sprintf("BitwiseKind(%d)", int(k))
	}
}

func (k BitwiseKind) valid() bool {
	return k >= OpAnd && k <= OpNot
}

func bitwise[T Integer](k BitwiseKind, a, b T) T {
	switch k {
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	case OpXor:
		return a ^ b
	case OpNot:
		return ^a
	}
	return 0
}

// Bitwise combines two integer tensors bit by bit. OpNot inverts a single
// input.
type Bitwise[T Integer] struct {
	Kind BitwiseKind
}

func (op *Bitwise[T]) Name() string { return op.Kind.String() }

func (op *Bitwise[T]) NumInputs() int {
	if op.Kind == OpNot {
		return 1
	}
	return 2
}

func (op *Bitwise[T]) ScratchBuffers() int { return 0 }

func (op *Bitwise[T]) Validate() error {
	if !op.Kind.valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, op.Kind)
	}
	return nil
}

func (op *Bitwise[T]) Apply(dst []T, srcs [][]T, _ []T) {
	a := srcs[0][:len(dst)]
	if op.Kind == OpNot {
		for i := range dst {
			dst[i] = ^a[i]
		}
		return
	}
	b := srcs[1][:len(dst)]
	for i := range dst {
		dst[i] = bitwise(op.Kind, a[i], b[i])
	}
}

// BitwiseScalar combines an integer tensor with a constant. The logic ops
// commute, so there is no reversed form.
type BitwiseScalar[T Integer] struct {
	Kind  BitwiseKind
	Value T
}

func (op *BitwiseScalar[T]) Name() string        { return op.Kind.String() + "_scalar" }
func (op *BitwiseScalar[T]) NumInputs() int      { return 1 }
func (op *BitwiseScalar[T]) ScratchBuffers() int { return 0 }

func (op *BitwiseScalar[T]) Validate() error {
	if !op.Kind.valid() || op.Kind == OpNot {
		return fmt.Errorf("%w: %v with a scalar", ErrUnsupportedMode, op.Kind)
	}
	return nil
}

func (op *BitwiseScalar[T]) Apply(dst []T, srcs [][]T, _ []T) {
	x := srcs[0][:len(dst)]
	for i := range dst {
		dst[i] = bitwise(op.Kind, x[i], op.Value)
	}
}
