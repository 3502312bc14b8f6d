package operator

import (
	"testing"

	"github.com/notargets/TileKernel/runner"
	"github.com/notargets/TileKernel/runner/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seq returns a tensor holding 0, 1, 2, ... in storage order
func seq(format Format, shape [4]int) *Tensor {
	t := NewTensor(format, shape)
	for i := range t.Data {
		t.Data[i] = float32(i)
	}
	return t
}

func newStream(t *testing.T) *runner.Stream {
	t.Helper()
	dev, err := runner.NewDevice(builder.Config{})
	require.NoError(t, err)
	s := dev.NewStream()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"ConcatD", "Crop", "ReverseV2", "SplitD", "TransData", "TransposeD"}, Names())
	err := New("ResizeBicubic").Run(nil)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestConcatSplit_Channels(t *testing.T) {
	s := newStream(t)
	a := seq(NHWC, [4]int{1, 2, 3, 1})
	b := seq(NHWC, [4]int{1, 2, 3, 1})
	for i := range b.Data {
		b.Data[i] += 100
	}
	merged := NewTensor(NHWC, [4]int{1, 2, 3, 2})

	require.NoError(t, New("ConcatD").
		AddInput(a, "x0").
		AddInput(b, "x1").
		AddOutput(merged, "output_data").
		AddAttr("concat_dim", 3).
		Run(s))
	require.NoError(t, s.Synchronize())
	assert.Equal(t, []float32{0, 100, 1, 101, 2, 102, 3, 103, 4, 104, 5, 105}, merged.Data)

	y0 := NewTensor(NHWC, [4]int{1, 2, 3, 1})
	y1 := NewTensor(NHWC, [4]int{1, 2, 3, 1})
	require.NoError(t, New("SplitD").
		AddInput(merged, "x").
		AddOutput(y0, "y0").
		AddOutput(y1, "y1").
		AddAttr("split_dim", 3).
		AddAttr("num_split", int64(2)).
		Run(s))
	require.NoError(t, s.Synchronize())
	assert.Equal(t, a.Data, y0.Data)
	assert.Equal(t, b.Data, y1.Data)
}

func TestConcat_UnevenRows(t *testing.T) {
	a := seq(NHWC, [4]int{1, 1, 2, 1})
	b := seq(NHWC, [4]int{1, 2, 2, 1})
	out := NewTensor(NHWC, [4]int{1, 3, 2, 1})
	require.NoError(t, New("ConcatD").AddInput(a, "x0").AddInput(b, "x1").
		AddOutput(out, "y").AddAttr("concat_dim", 1).Run(nil))
	assert.Equal(t, []float32{0, 1, 0, 1, 2, 3}, out.Data)
}

func TestTransData_RoundTrip(t *testing.T) {
	s := newStream(t)
	src := seq(NHWC, [4]int{1, 2, 3, 4})
	planar := NewTensor(NCHW, [4]int{1, 4, 2, 3})
	back := NewTensor(NHWC, [4]int{1, 2, 3, 4})

	require.NoError(t, New("TransData").AddInput(src, "src").AddOutput(planar, "dst").
		AddAttr("src_format", "NHWC").AddAttr("dst_format", "NCHW").Run(s))
	require.NoError(t, New("TransData").AddInput(planar, "src").AddOutput(back, "dst").
		AddAttr("src_format", NCHW).AddAttr("dst_format", NHWC).Run(s))
	require.NoError(t, s.Synchronize())

	// channel c of pixel (h, w)
	for h := 0; h < 2; h++ {
		for w := 0; w < 3; w++ {
			for c := 0; c < 4; c++ {
				assert.Equal(t, src.At([4]int{0, h, w, c}), planar.At([4]int{0, c, h, w}))
			}
		}
	}
	assert.Equal(t, src.Data, back.Data)
}

func TestTransposeD(t *testing.T) {
	src := seq(NHWC, [4]int{1, 2, 3, 1})
	dst := NewTensor(NHWC, [4]int{1, 3, 2, 1})
	require.NoError(t, New("TransposeD").AddInput(src, "x").AddOutput(dst, "y").
		AddAttr("perm", []int64{0, 2, 1, 3}).Run(nil))
	// [[0 1 2] [3 4 5]] -> [[0 3] [1 4] [2 5]]
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, dst.Data)
}

func TestReverseV2(t *testing.T) {
	src := seq(NHWC, [4]int{1, 2, 3, 1})
	tests := []struct {
		axis []int
		want []float32
	}{
		{[]int{1}, []float32{3, 4, 5, 0, 1, 2}},
		{[]int{2}, []float32{2, 1, 0, 5, 4, 3}},
		{[]int{1, 2}, []float32{5, 4, 3, 2, 1, 0}},
	}
	for _, tt := range tests {
		dst := NewTensor(NHWC, src.Shape)
		require.NoError(t, New("ReverseV2").AddInput(src, "x").AddOutput(dst, "y").
			AddAttr("axis", tt.axis).Run(nil))
		assert.Equal(t, tt.want, dst.Data, "axis %v", tt.axis)
	}

	// in place
	inPlace := seq(NHWC, [4]int{1, 1, 4, 1})
	require.NoError(t, New("ReverseV2").AddInput(inPlace, "x").AddOutput(inPlace, "y").
		AddAttr("axis", []int{2}).Run(nil))
	assert.Equal(t, []float32{3, 2, 1, 0}, inPlace.Data)
}

func TestCrop(t *testing.T) {
	src := seq(NHWC, [4]int{1, 4, 4, 1})
	dst := NewTensor(NHWC, [4]int{1, 2, 3, 1})
	require.NoError(t, New("Crop").AddInput(src, "x").AddOutput(dst, "y").
		AddAttr("axis", 1).AddAttr("offsets", []int{1, 1, 0}).Run(nil))
	assert.Equal(t, []float32{5, 6, 7, 9, 10, 11}, dst.Data)

	err := New("Crop").AddInput(src, "x").AddOutput(dst, "y").
		AddAttr("axis", 1).AddAttr("offsets", []int{3, 0, 0}).Run(nil)
	assert.ErrorIs(t, err, ErrBadAttr)
}

func TestBadArguments(t *testing.T) {
	x := seq(NHWC, [4]int{1, 2, 3, 2})
	y := NewTensor(NHWC, [4]int{1, 2, 3, 1})
	tests := map[string]*Operator{
		"MissingAttr":     New("ConcatD").AddInput(x, "x0").AddOutput(y, "y"),
		"WrongAttrType":   New("ConcatD").AddInput(x, "x0").AddOutput(y, "y").AddAttr("concat_dim", "3"),
		"DimOutOfRange":   New("ConcatD").AddInput(x, "x0").AddOutput(y, "y").AddAttr("concat_dim", 4),
		"OutputShape":     New("ConcatD").AddInput(x, "x0").AddOutput(y, "y").AddAttr("concat_dim", 3),
		"SplitShape":      New("SplitD").AddInput(x, "x").AddOutput(y, "y0").AddAttr("split_dim", 2).AddAttr("num_split", 1),
		"SplitCount":      New("SplitD").AddInput(x, "x").AddOutput(y, "y0").AddAttr("split_dim", 3).AddAttr("num_split", 2),
		"RepeatedPerm":    New("TransposeD").AddInput(x, "x").AddOutput(y, "y").AddAttr("perm", []int{0, 1, 1, 3}),
		"FormatMismatch":  New("TransData").AddInput(x, "src").AddOutput(y, "dst").AddAttr("src_format", "NCHW").AddAttr("dst_format", "NHWC"),
		"UnknownFormat":   New("TransData").AddInput(x, "src").AddOutput(y, "dst").AddAttr("src_format", "HWCN").AddAttr("dst_format", "NHWC"),
		"ShortData":       New("ReverseV2").AddInput(&Tensor{Shape: [4]int{1, 1, 1, 4}, Data: make([]float32, 2)}, "x").AddOutput(y, "y").AddAttr("axis", []int{1}),
		"NilInput":        New("ReverseV2").AddInput(nil, "x").AddOutput(y, "y").AddAttr("axis", []int{1}),
		"TooManyOutputs":  New("TransposeD").AddInput(x, "x").AddOutput(y, "y").AddOutput(y, "z").AddAttr("perm", []int{0, 1, 2, 3}),
		"ReverseBadShape": New("ReverseV2").AddInput(x, "x").AddOutput(y, "y").AddAttr("axis", []int{1}),
	}
	for name, op := range tests {
		t.Run(name, func(t *testing.T) {
			before := append([]float32(nil), y.Data...)
			assert.ErrorIs(t, op.Run(nil), ErrBadAttr)
			assert.Equal(t, before, y.Data)
		})
	}
}
