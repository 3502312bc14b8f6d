package operator

import (
	"fmt"
	"sort"
)

// concatD joins the inputs along concat_dim. Every other dimension must
// match.
func concatD(op *Operator) (func() error, error) {
	if len(op.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrBadAttr)
	}
	if err := op.arity(-1, 1); err != nil {
		return nil, err
	}
	dim, err := op.intAttr("concat_dim")
	if err != nil {
		return nil, err
	}
	if err := checkDim("concat_dim", dim); err != nil {
		return nil, err
	}

	out := op.Outputs[0]
	want := op.Inputs[0].Shape
	want[dim] = 0
	starts := make([]int, len(op.Inputs))
	for i, in := range op.Inputs {
		s := in.Shape
		s[dim] = 0
		other := want
		other[dim] = 0
		if s != other || in.Format != out.Format {
			return nil, fmt.Errorf("%w: %s (%v %v) does not concatenate with %s (%v %v) on dim %d",
				ErrBadAttr, op.InLabels[i], in.Format, in.Shape, op.InLabels[0],
				op.Inputs[0].Format, op.Inputs[0].Shape, dim)
		}
		starts[i] = want[dim]
		want[dim] += in.Shape[dim]
	}
	if err := checkShape(op.OutLabels[0], out, want); err != nil {
		return nil, err
	}

	return func() error {
		fill(out, func(o [4]int) float32 {
			i := sort.SearchInts(starts, o[dim]+1) - 1
			o[dim] -= starts[i]
			return op.Inputs[i].At(o)
		})
		return nil
	}, nil
}

// splitD cuts the input into num_split equal parts along split_dim
func splitD(op *Operator) (func() error, error) {
	if err := op.arity(1, -1); err != nil {
		return nil, err
	}
	dim, err := op.intAttr("split_dim")
	if err != nil {
		return nil, err
	}
	if err := checkDim("split_dim", dim); err != nil {
		return nil, err
	}
	num, err := op.intAttr("num_split")
	if err != nil {
		return nil, err
	}
	in := op.Inputs[0]
	if num <= 0 || num != len(op.Outputs) || in.Shape[dim]%num != 0 {
		return nil, fmt.Errorf("%w: cannot split dim %d of %v into %d parts for %d outputs",
			ErrBadAttr, dim, in.Shape, num, len(op.Outputs))
	}
	part := in.Shape
	part[dim] /= num
	for i, out := range op.Outputs {
		if err := checkShape(op.OutLabels[i], out, part); err != nil {
			return nil, err
		}
	}

	return func() error {
		// read everything before writing: an output may alias the input
		parts := make([][]float32, num)
		for k := range parts {
			base := k * part[dim]
			parts[k] = gather(part, func(o [4]int) float32 {
				o[dim] += base
				return in.At(o)
			})
		}
		for k, out := range op.Outputs {
			copy(out.Data, parts[k])
		}
		return nil
	}, nil
}

// transData converts between NCHW and NHWC storage
func transData(op *Operator) (func() error, error) {
	if err := op.arity(1, 1); err != nil {
		return nil, err
	}
	from, err := op.formatAttr("src_format")
	if err != nil {
		return nil, err
	}
	to, err := op.formatAttr("dst_format")
	if err != nil {
		return nil, err
	}
	in, out := op.Inputs[0], op.Outputs[0]
	if in.Format != from || out.Format != to {
		return nil, fmt.Errorf("%w: converting %v to %v but tensors are %v and %v",
			ErrBadAttr, from, to, in.Format, out.Format)
	}

	// perm[i] is the input dimension feeding output dimension i
	perm := [4]int{0, 1, 2, 3}
	switch {
	case from == NCHW && to == NHWC:
		perm = [4]int{0, 2, 3, 1}
	case from == NHWC && to == NCHW:
		perm = [4]int{0, 3, 1, 2}
	}
	return permute(op.OutLabels[0], in, out, perm)
}

// transposeD reorders dimensions: output dimension i is input dimension
// perm[i]
func transposeD(op *Operator) (func() error, error) {
	if err := op.arity(1, 1); err != nil {
		return nil, err
	}
	p, err := op.intsAttr("perm")
	if err != nil {
		return nil, err
	}
	if len(p) != 4 {
		return nil, fmt.Errorf("%w: perm %v must have 4 entries", ErrBadAttr, p)
	}
	var perm [4]int
	var seen [4]bool
	for i, d := range p {
		if err := checkDim("perm entry", d); err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, fmt.Errorf("%w: perm %v repeats %d", ErrBadAttr, p, d)
		}
		seen[d] = true
		perm[i] = d
	}
	if op.Inputs[0].Format != op.Outputs[0].Format {
		return nil, fmt.Errorf("%w: transpose keeps the format", ErrBadAttr)
	}
	return permute(op.OutLabels[0], op.Inputs[0], op.Outputs[0], perm)
}

func permute(label string, in, out *Tensor, perm [4]int) (func() error, error) {
	var want [4]int
	for i, d := range perm {
		want[i] = in.Shape[d]
	}
	if err := checkShape(label, out, want); err != nil {
		return nil, err
	}
	return func() error {
		fill(out, func(o [4]int) float32 {
			var idx [4]int
			for i, d := range perm {
				idx[d] = o[i]
			}
			return in.At(idx)
		})
		return nil
	}, nil
}

// reverseV2 mirrors the input along every dimension listed in axis
func reverseV2(op *Operator) (func() error, error) {
	if err := op.arity(1, 1); err != nil {
		return nil, err
	}
	axis, err := op.intsAttr("axis")
	if err != nil {
		return nil, err
	}
	for _, a := range axis {
		if err := checkDim("axis", a); err != nil {
			return nil, err
		}
	}
	in, out := op.Inputs[0], op.Outputs[0]
	if err := checkShape(op.OutLabels[0], out, in.Shape); err != nil {
		return nil, err
	}

	return func() error {
		fill(out, func(o [4]int) float32 {
			for _, a := range axis {
				o[a] = in.Shape[a] - 1 - o[a]
			}
			return in.At(o)
		})
		return nil
	}, nil
}

// crop copies the window of the output's shape starting at offsets.
// offsets apply to dimensions axis..3; earlier dimensions are kept whole.
func crop(op *Operator) (func() error, error) {
	if err := op.arity(1, 1); err != nil {
		return nil, err
	}
	axis, err := op.intAttr("axis")
	if err != nil {
		return nil, err
	}
	if err := checkDim("axis", axis); err != nil {
		return nil, err
	}
	offsets, err := op.intsAttr("offsets")
	if err != nil {
		return nil, err
	}
	if len(offsets) != 4-axis {
		return nil, fmt.Errorf("%w: %d offsets for axis %d", ErrBadAttr, len(offsets), axis)
	}

	in, out := op.Inputs[0], op.Outputs[0]
	var off [4]int
	for d := 0; d < 4; d++ {
		if d < axis {
			if out.Shape[d] != in.Shape[d] {
				return nil, fmt.Errorf("%w: dim %d below axis changes size", ErrBadAttr, d)
			}
			continue
		}
		off[d] = offsets[d-axis]
		if off[d] < 0 || off[d]+out.Shape[d] > in.Shape[d] {
			return nil, fmt.Errorf("%w: window [%d, %d) outside dim %d of %v",
				ErrBadAttr, off[d], off[d]+out.Shape[d], d, in.Shape)
		}
	}

	return func() error {
		fill(out, func(o [4]int) float32 {
			for d := range o {
				o[d] += off[d]
			}
			return in.At(o)
		})
		return nil
	}, nil
}
