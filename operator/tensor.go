package operator

import (
	"fmt"
	"strings"
)

// Format is the storage order of a 4-D tensor
type Format int

const (
	NHWC Format = iota
	NCHW
)

func (f Format) String() string {
	switch f {
	case NHWC:
		return "NHWC"
	case NCHW:
		return "NCHW"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts "NHWC" or "NCHW"
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(s) {
	case "NHWC":
		return NHWC, nil
	case "NCHW":
		return NCHW, nil
	}
	return 0, fmt.Errorf("%w: unknown format %q", ErrBadAttr, s)
}

// Tensor is a dense 4-D float32 tensor. Shape is given in storage order:
// [N, H, W, C] for NHWC and [N, C, H, W] for NCHW.
type Tensor struct {
	Shape  [4]int
	Format Format
	Data   []float32
}

// NewTensor allocates a zeroed tensor
func NewTensor(format Format, shape [4]int) *Tensor {
	t := &Tensor{Shape: shape, Format: format}
	t.Data = make([]float32, t.Len())
	return t
}

// Len is the number of elements the shape describes
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) strides() [4]int {
	var s [4]int
	acc := 1
	for d := 3; d >= 0; d-- {
		s[d] = acc
		acc *= t.Shape[d]
	}
	return s
}

func (t *Tensor) offset(idx [4]int) int {
	s := t.strides()
	return idx[0]*s[0] + idx[1]*s[1] + idx[2]*s[2] + idx[3]*s[3]
}

// At returns the element at idx (storage order)
func (t *Tensor) At(idx [4]int) float32 {
	return t.Data[t.offset(idx)]
}

func (t *Tensor) check(label string) error {
	if t == nil {
		return fmt.Errorf("%w: %s is nil", ErrBadAttr, label)
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: %s has shape %v", ErrBadAttr, label, t.Shape)
		}
	}
	if len(t.Data) < t.Len() {
		return fmt.Errorf("%w: %s holds %d elements, shape %v needs %d",
			ErrBadAttr, label, len(t.Data), t.Shape, t.Len())
	}
	return nil
}

// forEach visits every index of shape in row-major order
func forEach(shape [4]int, fn func(idx [4]int)) {
	var i [4]int
	for i[0] = 0; i[0] < shape[0]; i[0]++ {
		for i[1] = 0; i[1] < shape[1]; i[1]++ {
			for i[2] = 0; i[2] < shape[2]; i[2]++ {
				for i[3] = 0; i[3] < shape[3]; i[3]++ {
					fn(i)
				}
			}
		}
	}
}

// gather evaluates at over shape into a new row-major buffer
func gather(shape [4]int, at func(o [4]int) float32) []float32 {
	tmp := make([]float32, shape[0]*shape[1]*shape[2]*shape[3])
	i := 0
	forEach(shape, func(o [4]int) {
		tmp[i] = at(o)
		i++
	})
	return tmp
}

// fill computes every element of dst from at before writing any of them,
// so dst may alias a source.
func fill(dst *Tensor, at func(o [4]int) float32) {
	copy(dst.Data, gather(dst.Shape, at))
}
