// Package kernels holds the per-chunk elementwise transforms executed by
// every core of the tiled pipeline. An operator only ever sees one staged
// chunk: it never knows where the chunk came from in global memory.
package kernels

import (
	"errors"
)

// ErrUnsupportedMode reports an operator mode outside the defined set.
// Launches fail with it before any memory is touched.
var ErrUnsupportedMode = errors.New("unsupported operator mode")

// Number is the set of element types a device buffer may hold
type Number interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// Elementwise is a pure per-element transform over staged chunks.
//
// Apply receives one staging buffer per input, all of len(dst), and a
// scratch buffer of at least len(dst) elements when ScratchBuffers is
// non-zero.
type Elementwise[T Number] interface {
	Name() string
	NumInputs() int
	ScratchBuffers() int
	Validate() error
	Apply(dst []T, srcs [][]T, scratch []T)
}

// StagingMultiplier returns how many chunk-sized buffers one core keeps
// resident: bufferNum slots per input, bufferNum output slots, and the
// operator's scratch buffers.
func StagingMultiplier[T Number](op Elementwise[T], bufferNum int) int {
	return bufferNum*(op.NumInputs()+1) + op.ScratchBuffers()
}
