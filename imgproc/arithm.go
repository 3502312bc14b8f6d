package imgproc

import (
	"context"
	"fmt"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/runner"
	"github.com/notargets/TileKernel/tiling"
)

// launch queues upload, op and download of an elementwise operation. All
// sources must have the same size; dst takes that size.
func launch(s *runner.Stream, op kernels.Elementwise[float32], dst *Mat, srcs ...*Mat) error {
	if s == nil {
		return fmt.Errorf("%s: %w: nil stream", op.Name(), tiling.ErrConfig)
	}
	if dst == nil {
		return fmt.Errorf("%s: %w: nil destination", op.Name(), tiling.ErrConfig)
	}
	for i, src := range srcs {
		if err := src.check(fmt.Sprintf("src%d", i+1)); err != nil {
			return fmt.Errorf("%s: %w", op.Name(), err)
		}
		if !src.sameSize(srcs[0]) {
			return fmt.Errorf("%s: %w: src%d is %dx%dx%d, src1 is %dx%dx%d", op.Name(), tiling.ErrConfig,
				i+1, src.Rows, src.Cols, src.Channels, srcs[0].Rows, srcs[0].Cols, srcs[0].Channels)
		}
	}
	dst.create(srcs[0].Rows, srcs[0].Cols, srcs[0].Channels)

	dev := s.Device()
	n := srcs[0].Len()
	xs := make([]*runner.DeviceMemory[float32], len(srcs))
	for i := range xs {
		x, err := runner.Malloc[float32](dev, n)
		if err != nil {
			return err
		}
		xs[i] = x
	}
	y, err := runner.Malloc[float32](dev, n)
	if err != nil {
		return err
	}

	err = s.Submit("upload", func(context.Context) error {
		for i, x := range xs {
			if err := x.Upload(srcs[i].packed()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := runner.Launch[float32](s, n, op, y, xs...); err != nil {
		return err
	}
	return s.Submit("download", func(context.Context) error {
		host := make([]float32, n)
		if err := y.Download(host); err != nil {
			return err
		}
		dst.unpack(host)
		for _, x := range xs {
			x.Free()
		}
		y.Free()
		return nil
	})
}

// Threshold applies a fixed-level threshold to every element and returns
// the threshold used.
func Threshold(s *runner.Stream, src, dst *Mat, thresh, maxVal float64, typ kernels.ThresholdType) (float64, error) {
	op := &kernels.Threshold[float32]{
		Thresh: float32(thresh),
		MaxVal: float32(maxVal),
		Type:   typ,
	}
	if err := op.Validate(); err != nil {
		return 0, fmt.Errorf("threshold: %w", err)
	}
	return thresh, launch(s, op, dst, src)
}

// Add computes dst = a + b
func Add(s *runner.Stream, a, b, dst *Mat) error {
	return launch(s, kernels.NewBinary[float32](kernels.OpAdd), dst, a, b)
}

// Subtract computes dst = a - b
func Subtract(s *runner.Stream, a, b, dst *Mat) error {
	return launch(s, kernels.NewBinary[float32](kernels.OpSub), dst, a, b)
}

// Multiply computes dst = a * b * scale
func Multiply(s *runner.Stream, a, b, dst *Mat, scale float64) error {
	return launch(s, &kernels.Binary[float32]{Kind: kernels.OpMul, Scale: float32(scale)}, dst, a, b)
}

// Divide computes dst = a * scale / b, with zero where b is zero
func Divide(s *runner.Stream, a, b, dst *Mat, scale float64) error {
	return launch(s, &kernels.Binary[float32]{Kind: kernels.OpDiv, Scale: float32(scale)}, dst, a, b)
}

// Min computes the per-element minimum of a and b
func Min(s *runner.Stream, a, b, dst *Mat) error {
	return launch(s, kernels.NewBinary[float32](kernels.OpMin), dst, a, b)
}

// Max computes the per-element maximum of a and b
func Max(s *runner.Stream, a, b, dst *Mat) error {
	return launch(s, kernels.NewBinary[float32](kernels.OpMax), dst, a, b)
}

// AddScalar computes dst = a + v on every channel
func AddScalar(s *runner.Stream, a *Mat, v float64, dst *Mat) error {
	return launch(s, kernels.NewScalar[float32](kernels.OpAdd, float32(v), false), dst, a)
}

// SubtractScalar computes dst = a - v, or v - a when reverse is set
func SubtractScalar(s *runner.Stream, a *Mat, v float64, dst *Mat, reverse bool) error {
	return launch(s, kernels.NewScalar[float32](kernels.OpSub, float32(v), reverse), dst, a)
}

// MultiplyScalar computes dst = a * v * scale
func MultiplyScalar(s *runner.Stream, a *Mat, v float64, dst *Mat, scale float64) error {
	op := kernels.NewScalar[float32](kernels.OpMul, float32(v), false)
	op.Scale = float32(scale)
	return launch(s, op, dst, a)
}

// DivideScalar computes dst = a * scale / v, or v * scale / a when
// reverse is set
func DivideScalar(s *runner.Stream, a *Mat, v float64, dst *Mat, scale float64, reverse bool) error {
	op := kernels.NewScalar[float32](kernels.OpDiv, float32(v), reverse)
	op.Scale = float32(scale)
	return launch(s, op, dst, a)
}

// AddWeighted computes dst = alpha*a + beta*b + gamma
func AddWeighted(s *runner.Stream, a *Mat, alpha float64, b *Mat, beta, gamma float64, dst *Mat) error {
	return launch(s, &kernels.Weighted[float32]{Alpha: alpha, Beta: beta, Gamma: gamma}, dst, a, b)
}
