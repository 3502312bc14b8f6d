package imgproc

import (
	"context"
	"fmt"

	"github.com/notargets/TileKernel/operator"
	"github.com/notargets/TileKernel/runner"
	"github.com/notargets/TileKernel/tiling"
	"github.com/samber/lo"
)

// RotateFlags selects the rotation of Rotate
type RotateFlags int

const (
	Rotate90Clockwise RotateFlags = iota
	Rotate180
	Rotate90CounterClockwise
)

func checkStream(s *runner.Stream, name string) error {
	if s == nil {
		return fmt.Errorf("%s: %w: nil stream", name, tiling.ErrConfig)
	}
	return nil
}

// input returns a tensor holding m's elements by the time the stream
// reaches the next queued operator. Padded rows are packed by a queued
// copy.
func input(s *runner.Stream, m *Mat) (*operator.Tensor, error) {
	if m.IsContinuous() {
		return m.tensor(), nil
	}
	t := operator.NewTensor(operator.NHWC, [4]int{1, m.Rows, m.Cols, m.Channels})
	err := s.Submit("pack", func(context.Context) error {
		copy(t.Data, m.packed())
		return nil
	})
	return t, err
}

// output returns the tensor an operator writes for m, and a func that
// queues the copy back into m when m has padded rows
func output(s *runner.Stream, m *Mat) (*operator.Tensor, func() error) {
	if m.IsContinuous() {
		return m.tensor(), func() error { return nil }
	}
	t := operator.NewTensor(operator.NHWC, [4]int{1, m.Rows, m.Cols, m.Channels})
	return t, func() error {
		return s.Submit("unpack", func(context.Context) error {
			m.unpack(t.Data)
			return nil
		})
	}
}

// Merge interleaves the channels of every source into dst. All sources
// must have the same rows and columns; dst gets the sum of their channels.
func Merge(s *runner.Stream, srcs []*Mat, dst *Mat) error {
	if err := checkStream(s, "merge"); err != nil {
		return err
	}
	if len(srcs) == 0 || dst == nil {
		return fmt.Errorf("merge: %w: nothing to merge", tiling.ErrConfig)
	}
	op := operator.New("ConcatD")
	for i, src := range srcs {
		if err := src.check(fmt.Sprintf("src%d", i)); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		if src.Rows != srcs[0].Rows || src.Cols != srcs[0].Cols {
			return fmt.Errorf("merge: %w: src%d is %dx%d, src0 is %dx%d", tiling.ErrConfig,
				i, src.Rows, src.Cols, srcs[0].Rows, srcs[0].Cols)
		}
		t, err := input(s, src)
		if err != nil {
			return err
		}
		op.AddInput(t, fmt.Sprintf("x%d", i))
	}

	channels := lo.SumBy(srcs, func(m *Mat) int { return m.Channels })
	dst.create(srcs[0].Rows, srcs[0].Cols, channels)
	out, flush := output(s, dst)
	if err := op.AddOutput(out, "output_data").AddAttr("concat_dim", 3).Run(s); err != nil {
		return err
	}
	return flush()
}

// Split returns one single-channel image per channel of src
func Split(s *runner.Stream, src *Mat) ([]*Mat, error) {
	if err := checkStream(s, "split"); err != nil {
		return nil, err
	}
	if err := src.check("src"); err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	in, err := input(s, src)
	if err != nil {
		return nil, err
	}
	op := operator.New("SplitD").AddInput(in, "x")
	dst := make([]*Mat, src.Channels)
	for i := range dst {
		dst[i] = NewMat(src.Rows, src.Cols, 1)
		op.AddOutput(dst[i].tensor(), fmt.Sprintf("y%d", i))
	}
	err = op.AddAttr("split_dim", 3).AddAttr("num_split", src.Channels).Run(s)
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// Transpose swaps rows and columns
func Transpose(s *runner.Stream, src, dst *Mat) error {
	if err := checkStream(s, "transpose"); err != nil {
		return err
	}
	if err := src.check("src"); err != nil {
		return fmt.Errorf("transpose: %w", err)
	}
	if dst == nil {
		return fmt.Errorf("transpose: %w: nil destination", tiling.ErrConfig)
	}
	in, err := input(s, src)
	if err != nil {
		return err
	}
	dst.create(src.Cols, src.Rows, src.Channels)
	out, flush := output(s, dst)
	err = operator.New("TransposeD").
		AddInput(in, "x").
		AddOutput(out, "y").
		AddAttr("perm", []int64{0, 2, 1, 3}).
		Run(s)
	if err != nil {
		return err
	}
	return flush()
}

// flipAxes maps a flip code to tensor axes: 0 flips rows (around the
// x-axis), positive flips columns, negative flips both.
func flipAxes(flipCode int) []int {
	switch {
	case flipCode == 0:
		return []int{1}
	case flipCode > 0:
		return []int{2}
	default:
		return []int{1, 2}
	}
}

// Flip mirrors src around the x-axis (flipCode 0), the y-axis (positive)
// or both (negative)
func Flip(s *runner.Stream, src, dst *Mat, flipCode int) error {
	if err := checkStream(s, "flip"); err != nil {
		return err
	}
	if err := src.check("src"); err != nil {
		return fmt.Errorf("flip: %w", err)
	}
	if dst == nil {
		return fmt.Errorf("flip: %w: nil destination", tiling.ErrConfig)
	}
	in, err := input(s, src)
	if err != nil {
		return err
	}
	dst.create(src.Rows, src.Cols, src.Channels)
	out, flush := output(s, dst)
	err = operator.New("ReverseV2").
		AddInput(in, "x").
		AddAttr("axis", flipAxes(flipCode)).
		AddOutput(out, "y").
		Run(s)
	if err != nil {
		return err
	}
	return flush()
}

// Rotate turns src by a multiple of 90 degrees
func Rotate(s *runner.Stream, src, dst *Mat, mode RotateFlags) error {
	switch mode {
	case Rotate90Clockwise:
		tmp := &Mat{}
		if err := Transpose(s, src, tmp); err != nil {
			return err
		}
		return Flip(s, tmp, dst, 1)
	case Rotate180:
		return Flip(s, src, dst, -1)
	case Rotate90CounterClockwise:
		tmp := &Mat{}
		if err := Transpose(s, src, tmp); err != nil {
			return err
		}
		return Flip(s, tmp, dst, 0)
	}
	return fmt.Errorf("rotate: %w: mode %d", tiling.ErrConfig, int(mode))
}

// Crop copies the width x height window at (x, y) into a new image
func Crop(s *runner.Stream, src *Mat, x, y, width, height int) (*Mat, error) {
	if err := checkStream(s, "crop"); err != nil {
		return nil, err
	}
	if err := src.check("src"); err != nil {
		return nil, fmt.Errorf("crop: %w", err)
	}
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > src.Cols || y+height > src.Rows {
		return nil, fmt.Errorf("crop: %w: window (%d, %d) %dx%d outside %dx%d image",
			tiling.ErrBounds, x, y, width, height, src.Cols, src.Rows)
	}
	in, err := input(s, src)
	if err != nil {
		return nil, err
	}
	dst := NewMat(height, width, src.Channels)
	err = operator.New("Crop").
		AddInput(in, "x").
		AddAttr("axis", 1).
		AddAttr("offsets", []int64{int64(y), int64(x), 0}).
		AddOutput(dst.tensor(), "y").
		Run(s)
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// ToPlanar converts src into an NCHW tensor, one plane per channel
func ToPlanar(s *runner.Stream, src *Mat) (*operator.Tensor, error) {
	if err := checkStream(s, "to planar"); err != nil {
		return nil, err
	}
	if err := src.check("src"); err != nil {
		return nil, fmt.Errorf("to planar: %w", err)
	}
	in, err := input(s, src)
	if err != nil {
		return nil, err
	}
	dst := operator.NewTensor(operator.NCHW, [4]int{1, src.Channels, src.Rows, src.Cols})
	err = operator.New("TransData").
		AddInput(in, "src").
		AddOutput(dst, "dst").
		AddAttr("src_format", "NHWC").
		AddAttr("dst_format", "NCHW").
		Run(s)
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// FromPlanar interleaves a single-image NCHW tensor into dst
func FromPlanar(s *runner.Stream, src *operator.Tensor, dst *Mat) error {
	if err := checkStream(s, "from planar"); err != nil {
		return err
	}
	if src == nil || src.Format != operator.NCHW || src.Shape[0] != 1 {
		return fmt.Errorf("from planar: %w: want a single NCHW image", tiling.ErrConfig)
	}
	if dst == nil {
		return fmt.Errorf("from planar: %w: nil destination", tiling.ErrConfig)
	}
	dst.create(src.Shape[2], src.Shape[3], src.Shape[1])
	out, flush := output(s, dst)
	err := operator.New("TransData").
		AddInput(src, "src").
		AddOutput(out, "dst").
		AddAttr("src_format", operator.NCHW).
		AddAttr("dst_format", operator.NHWC).
		Run(s)
	if err != nil {
		return err
	}
	return flush()
}
