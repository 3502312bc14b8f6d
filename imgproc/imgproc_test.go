package imgproc

import (
	"testing"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/runner"
	"github.com/notargets/TileKernel/runner/builder"
	"github.com/notargets/TileKernel/tiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newStream(t *testing.T) *runner.Stream {
	t.Helper()
	dev, err := runner.NewDevice(builder.Config{CoreCount: 4, BufferBytes: 4096})
	require.NoError(t, err)
	s := dev.NewStream()
	t.Cleanup(func() { s.Close() })
	return s
}

// ramp returns an image whose element i holds i mod 256
func ramp(rows, cols, channels int) *Mat {
	m := NewMat(rows, cols, channels)
	for i := range m.Data {
		m.Data[i] = float32(i % 256)
	}
	return m
}

func TestMat_Planes(t *testing.T) {
	m := ramp(2, 3, 2)
	p0 := m.Plane(0)
	p1 := m.Plane(1)
	assert.True(t, mat.Equal(mat.NewDense(2, 3, []float64{0, 2, 4, 6, 8, 10}), p0))
	assert.True(t, mat.Equal(mat.NewDense(2, 3, []float64{1, 3, 5, 7, 9, 11}), p1))

	back, err := FromPlanes(p0, p1)
	require.NoError(t, err)
	assert.Equal(t, m.Data, back.Data)

	_, err = FromPlanes(p0, mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, tiling.ErrConfig)
	assert.Panics(t, func() { m.Plane(2) })
}

func TestMat_Region(t *testing.T) {
	m := ramp(4, 4, 1)
	r, err := m.Region(1, 1, 2, 2)
	require.NoError(t, err)
	assert.False(t, r.IsContinuous())
	assert.Equal(t, []float32{5, 6, 9, 10}, r.packed())

	_, err = m.Region(3, 3, 2, 2)
	assert.ErrorIs(t, err, tiling.ErrBounds)
}

func TestThreshold(t *testing.T) {
	s := newStream(t)
	src := ramp(40, 50, 3)
	for _, typ := range kernels.ThresholdTypes() {
		dst := &Mat{}
		used, err := Threshold(s, src, dst, 200, 255, typ)
		require.NoError(t, err)
		assert.Equal(t, 200.0, used)
		require.NoError(t, s.Synchronize())

		require.True(t, dst.sameSize(src))
		for i, v := range src.Data {
			want, err := kernels.ThresholdValue(v, 200, 255, typ)
			require.NoError(t, err)
			require.Equal(t, want, dst.Data[i], "%v index %d", typ, i)
		}
	}

	_, err := Threshold(s, src, &Mat{}, 1, 2, kernels.ThresholdType(9))
	assert.ErrorIs(t, err, kernels.ErrUnsupportedMode)
	_, err = Threshold(nil, src, &Mat{}, 1, 2, kernels.ThreshBinary)
	assert.ErrorIs(t, err, tiling.ErrConfig)
}

func TestThreshold_RegionWritesThrough(t *testing.T) {
	s := newStream(t)
	img := ramp(8, 8, 1)
	roi, err := img.Region(2, 2, 4, 4)
	require.NoError(t, err)

	_, err = Threshold(s, roi, roi, 0, 1, kernels.ThreshBinary)
	require.NoError(t, err)
	require.NoError(t, s.Synchronize())

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			inside := r >= 2 && r < 6 && c >= 2 && c < 6
			if inside {
				assert.Equal(t, float32(1), img.At(r, c, 0))
			} else {
				assert.Equal(t, float32((r*8+c)%256), img.At(r, c, 0))
			}
		}
	}
}

func TestArithmetic(t *testing.T) {
	s := newStream(t)
	a := ramp(16, 20, 2)
	b := NewMat(16, 20, 2)
	for i := range b.Data {
		b.Data[i] = float32(i%7 + 1)
	}
	if2 := func(f func(x, y float32) float32) []float32 {
		out := make([]float32, len(a.Data))
		for i := range out {
			out[i] = f(a.Data[i], b.Data[i])
		}
		return out
	}

	add, sub, mul, div, lo, hi, wsum := &Mat{}, &Mat{}, &Mat{}, &Mat{}, &Mat{}, &Mat{}, &Mat{}
	require.NoError(t, Add(s, a, b, add))
	require.NoError(t, Subtract(s, a, b, sub))
	require.NoError(t, Multiply(s, a, b, mul, 2))
	require.NoError(t, Divide(s, a, b, div, 1))
	require.NoError(t, Min(s, a, b, lo))
	require.NoError(t, Max(s, a, b, hi))
	require.NoError(t, AddWeighted(s, a, 0.5, b, 2, 1, wsum))
	require.NoError(t, s.Synchronize())

	assert.Equal(t, if2(func(x, y float32) float32 { return x + y }), add.Data)
	assert.Equal(t, if2(func(x, y float32) float32 { return x - y }), sub.Data)
	assert.Equal(t, if2(func(x, y float32) float32 { return x * y * 2 }), mul.Data)
	assert.Equal(t, if2(func(x, y float32) float32 { return x / y }), div.Data)
	assert.Equal(t, if2(func(x, y float32) float32 { return min(x, y) }), lo.Data)
	assert.Equal(t, if2(func(x, y float32) float32 { return max(x, y) }), hi.Data)
	assert.Equal(t, if2(func(x, y float32) float32 { return float32(0.5*float64(x) + 2*float64(y) + 1) }), wsum.Data)

	err := Add(s, a, NewMat(2, 2, 2), &Mat{})
	assert.ErrorIs(t, err, tiling.ErrConfig)
}

func TestScalarArithmetic(t *testing.T) {
	s := newStream(t)
	a := ramp(10, 10, 1)
	plus, minus, rminus, times, rdiv := &Mat{}, &Mat{}, &Mat{}, &Mat{}, &Mat{}
	require.NoError(t, AddScalar(s, a, 3, plus))
	require.NoError(t, SubtractScalar(s, a, 3, minus, false))
	require.NoError(t, SubtractScalar(s, a, 3, rminus, true))
	require.NoError(t, MultiplyScalar(s, a, 3, times, 2))
	require.NoError(t, DivideScalar(s, a, 12, rdiv, 1, true))
	require.NoError(t, s.Synchronize())

	for i, x := range a.Data {
		assert.Equal(t, x+3, plus.Data[i])
		assert.Equal(t, x-3, minus.Data[i])
		assert.Equal(t, 3-x, rminus.Data[i])
		assert.Equal(t, x*6, times.Data[i])
		if x == 0 {
			assert.Equal(t, float32(0), rdiv.Data[i])
		} else {
			assert.Equal(t, 12/x, rdiv.Data[i])
		}
	}
}

func TestStreamOrdering(t *testing.T) {
	s := newStream(t)
	a := ramp(9, 9, 1)
	// in place: every step reads what the previous one wrote
	require.NoError(t, AddScalar(s, a, 1, a))
	require.NoError(t, MultiplyScalar(s, a, 2, a, 1))
	_, err := Threshold(s, a, a, 100, 7, kernels.ThreshToZero)
	require.NoError(t, err)
	require.NoError(t, s.Synchronize())

	for i, v := range a.Data {
		x := float32((i%256+1)*2)
		if x > 100 {
			assert.Equal(t, x, v)
		} else {
			assert.Equal(t, float32(0), v)
		}
	}
}

func TestMergeSplit(t *testing.T) {
	s := newStream(t)
	src := ramp(6, 7, 3)
	planes, err := Split(s, src)
	require.NoError(t, err)
	require.Len(t, planes, 3)

	merged := &Mat{}
	require.NoError(t, Merge(s, planes, merged))
	require.NoError(t, s.Synchronize())

	for c, p := range planes {
		assert.True(t, mat.Equal(src.Plane(c), p.Plane(0)), "plane %d", c)
	}
	assert.Equal(t, src.Data, merged.Data)
	assert.Equal(t, 3, merged.Channels)
}

func TestMerge_PaddedSources(t *testing.T) {
	s := newStream(t)
	wide := ramp(5, 10, 1)
	left, err := wide.Region(0, 0, 4, 5)
	require.NoError(t, err)
	right, err := wide.Region(5, 0, 4, 5)
	require.NoError(t, err)

	dst := &Mat{}
	require.NoError(t, Merge(s, []*Mat{left, right}, dst))
	require.NoError(t, s.Synchronize())

	for r := 0; r < 5; r++ {
		for c := 0; c < 4; c++ {
			assert.Equal(t, left.At(r, c, 0), dst.At(r, c, 0))
			assert.Equal(t, right.At(r, c, 0), dst.At(r, c, 1))
		}
	}
}

func TestTranspose_MatchesGonum(t *testing.T) {
	s := newStream(t)
	src := ramp(5, 8, 2)
	dst := &Mat{}
	require.NoError(t, Transpose(s, src, dst))
	require.NoError(t, s.Synchronize())

	require.Equal(t, 8, dst.Rows)
	require.Equal(t, 5, dst.Cols)
	for c := 0; c < 2; c++ {
		want := mat.DenseCopyOf(src.Plane(c).T())
		assert.True(t, mat.Equal(want, dst.Plane(c)), "channel %d", c)
	}
}

func TestFlipRotate(t *testing.T) {
	s := newStream(t)
	// 2x3:
	// 0 1 2
	// 3 4 5
	src := ramp(2, 3, 1)
	tests := []struct {
		name string
		run  func(dst *Mat) error
		rows int
		want []float32
	}{
		{"FlipX", func(d *Mat) error { return Flip(s, src, d, 0) }, 2, []float32{3, 4, 5, 0, 1, 2}},
		{"FlipY", func(d *Mat) error { return Flip(s, src, d, 1) }, 2, []float32{2, 1, 0, 5, 4, 3}},
		{"FlipBoth", func(d *Mat) error { return Flip(s, src, d, -1) }, 2, []float32{5, 4, 3, 2, 1, 0}},
		{"Rotate90CW", func(d *Mat) error { return Rotate(s, src, d, Rotate90Clockwise) }, 3, []float32{3, 0, 4, 1, 5, 2}},
		{"Rotate180", func(d *Mat) error { return Rotate(s, src, d, Rotate180) }, 2, []float32{5, 4, 3, 2, 1, 0}},
		{"Rotate90CCW", func(d *Mat) error { return Rotate(s, src, d, Rotate90CounterClockwise) }, 3, []float32{2, 5, 1, 4, 0, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &Mat{}
			require.NoError(t, tt.run(dst))
			require.NoError(t, s.Synchronize())
			assert.Equal(t, tt.rows, dst.Rows)
			assert.Equal(t, tt.want, dst.Data)
		})
	}

	assert.ErrorIs(t, Rotate(s, src, &Mat{}, RotateFlags(5)), tiling.ErrConfig)
}

func TestCrop(t *testing.T) {
	s := newStream(t)
	src := ramp(4, 5, 1)
	dst, err := Crop(s, src, 1, 2, 3, 2)
	require.NoError(t, err)
	require.NoError(t, s.Synchronize())
	assert.Equal(t, []float32{11, 12, 13, 16, 17, 18}, dst.Data)

	_, err = Crop(s, src, 3, 0, 3, 1)
	assert.ErrorIs(t, err, tiling.ErrBounds)
}

func TestPlanarRoundTrip(t *testing.T) {
	s := newStream(t)
	src := ramp(3, 4, 3)
	planar, err := ToPlanar(s, src)
	require.NoError(t, err)
	back := &Mat{}
	require.NoError(t, FromPlanar(s, planar, back))
	require.NoError(t, s.Synchronize())

	// plane c is channel c
	for c := 0; c < 3; c++ {
		plane := planar.Data[c*12 : (c+1)*12]
		p := src.Plane(c)
		for r := 0; r < 3; r++ {
			for col := 0; col < 4; col++ {
				assert.Equal(t, float32(p.At(r, col)), plane[r*4+col])
			}
		}
	}
	assert.Equal(t, src.Data, back.Data)
}
