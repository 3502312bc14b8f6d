// Package imgproc is the host matrix API: multi-channel float32 images
// processed on a runner device. Every operation takes the stream it is
// queued on; results are visible after the stream is synchronized.
package imgproc

import (
	"fmt"

	"github.com/notargets/TileKernel/operator"
	"github.com/notargets/TileKernel/tiling"
	"gonum.org/v1/gonum/mat"
)

// Mat is a row-major image of interleaved channels. Step is the distance
// between rows in elements and may exceed Cols*Channels for a view into a
// wider image.
type Mat struct {
	Rows, Cols, Channels int
	Step                 int
	Data                 []float32
}

// NewMat allocates a zeroed continuous image
func NewMat(rows, cols, channels int) *Mat {
	return &Mat{
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
		Step:     cols * channels,
		Data:     make([]float32, rows*cols*channels),
	}
}

// IsContinuous reports whether rows follow each other with no gap
func (m *Mat) IsContinuous() bool {
	return m.Step == m.Cols*m.Channels
}

// Empty reports whether the image has no elements
func (m *Mat) Empty() bool {
	return m == nil || m.Rows == 0 || m.Cols == 0 || m.Channels == 0
}

// Len is the number of elements excluding row padding
func (m *Mat) Len() int {
	return m.Rows * m.Cols * m.Channels
}

// At returns channel ch of pixel (r, c)
func (m *Mat) At(r, c, ch int) float32 {
	return m.Data[r*m.Step+c*m.Channels+ch]
}

// Set writes channel ch of pixel (r, c)
func (m *Mat) Set(r, c, ch int, v float32) {
	m.Data[r*m.Step+c*m.Channels+ch] = v
}

// Region returns a view of the rectangle at (x, y) sharing m's storage
func (m *Mat) Region(x, y, width, height int) (*Mat, error) {
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > m.Cols || y+height > m.Rows {
		return nil, fmt.Errorf("%w: region (%d, %d) %dx%d outside %dx%d image",
			tiling.ErrBounds, x, y, width, height, m.Cols, m.Rows)
	}
	start := y*m.Step + x*m.Channels
	end := (y+height-1)*m.Step + (x+width)*m.Channels
	return &Mat{
		Rows:     height,
		Cols:     width,
		Channels: m.Channels,
		Step:     m.Step,
		Data:     m.Data[start:end],
	}, nil
}

func (m *Mat) check(label string) error {
	if m.Empty() {
		return fmt.Errorf("%w: %s is empty", tiling.ErrConfig, label)
	}
	if m.Step < m.Cols*m.Channels {
		return fmt.Errorf("%w: %s step %d shorter than a row of %d", tiling.ErrConfig,
			label, m.Step, m.Cols*m.Channels)
	}
	if len(m.Data) < (m.Rows-1)*m.Step+m.Cols*m.Channels {
		return fmt.Errorf("%w: %s holds %d elements, too few for %dx%dx%d step %d",
			tiling.ErrConfig, label, len(m.Data), m.Rows, m.Cols, m.Channels, m.Step)
	}
	return nil
}

// create gives m the requested geometry, reallocating when it differs.
// A view of the right size is kept and written through.
func (m *Mat) create(rows, cols, channels int) {
	if m.Rows == rows && m.Cols == cols && m.Channels == channels && m.check("dst") == nil {
		return
	}
	*m = *NewMat(rows, cols, channels)
}

func (m *Mat) sameSize(o *Mat) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols && m.Channels == o.Channels
}

// packed returns the elements without row padding. Continuous images
// return their own storage.
func (m *Mat) packed() []float32 {
	n := m.Cols * m.Channels
	if m.IsContinuous() {
		return m.Data[:m.Rows*n]
	}
	out := make([]float32, 0, m.Rows*n)
	for r := 0; r < m.Rows; r++ {
		out = append(out, m.Data[r*m.Step:r*m.Step+n]...)
	}
	return out
}

// unpack writes packed rows into m honoring Step
func (m *Mat) unpack(data []float32) {
	n := m.Cols * m.Channels
	if m.IsContinuous() {
		copy(m.Data, data[:m.Rows*n])
		return
	}
	for r := 0; r < m.Rows; r++ {
		copy(m.Data[r*m.Step:r*m.Step+n], data[r*n:(r+1)*n])
	}
}

// tensor views m as an NHWC tensor of shape [1, Rows, Cols, Channels].
// m must be continuous.
func (m *Mat) tensor() *operator.Tensor {
	return &operator.Tensor{
		Shape:  [4]int{1, m.Rows, m.Cols, m.Channels},
		Format: operator.NHWC,
		Data:   m.Data[:m.Len()],
	}
}

// continuous returns m itself or a packed copy
func (m *Mat) continuous() *Mat {
	if m.IsContinuous() {
		return m
	}
	return &Mat{Rows: m.Rows, Cols: m.Cols, Channels: m.Channels,
		Step: m.Cols * m.Channels, Data: m.packed()}
}

// Plane copies channel c into a Rows x Cols gonum matrix
func (m *Mat) Plane(c int) *mat.Dense {
	if c < 0 || c >= m.Channels {
		panic(fmt.Sprintf("channel %d out of range [0, %d)", c, m.Channels))
	}
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for r := 0; r < m.Rows; r++ {
		for col := 0; col < m.Cols; col++ {
			d.Set(r, col, float64(m.At(r, col, c)))
		}
	}
	return d
}

// FromPlanes interleaves equally sized matrices into one image, plane i
// becoming channel i
func FromPlanes(planes ...mat.Matrix) (*Mat, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: no planes", tiling.ErrConfig)
	}
	rows, cols := planes[0].Dims()
	for i, p := range planes {
		r, c := p.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("%w: plane %d is %dx%d, plane 0 is %dx%d",
				tiling.ErrConfig, i, r, c, rows, cols)
		}
	}
	m := NewMat(rows, cols, len(planes))
	for ch, p := range planes {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				m.Set(r, c, ch, float32(p.At(r, c)))
			}
		}
	}
	return m, nil
}
