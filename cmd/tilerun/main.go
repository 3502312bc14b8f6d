// Command tilerun runs the threshold kernel, and optionally the arithmetic
// kernels, over a ramp image and checks every output element.
//
// Usage:
//
//	tilerun                              # every mode, 4320x7680x3, 8 cores
//	tilerun --mode trunc --cores 4
//	tilerun --height 64 --width 64 --sequential --verbose
//	tilerun --backend occa               # generated OKL on an OCCA device
//	tilerun --ops all --backend occa     # threshold and arithmetic kernels
package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/occa"
	"github.com/notargets/TileKernel/runner"
	"github.com/notargets/TileKernel/runner/builder"
	"github.com/notargets/TileKernel/utils"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	threshold = 200
	maxVal    = 255
)

type options struct {
	height, width, channels int
	cores                   int
	mode                    string
	ops                     string
	backend                 string
	sequential              bool
	verbose                 bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "tilerun",
		Short:        "Run and verify the tiled threshold kernel on a ramp image",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.height, "height", 4320, "image rows")
	f.IntVar(&opts.width, "width", 7680, "image columns")
	f.IntVar(&opts.channels, "channels", 3, "channels per pixel")
	f.IntVar(&opts.cores, "cores", builder.DefaultCoreCount, "device cores")
	f.StringVar(&opts.mode, "mode", "all", "threshold mode (binary, binary_inv, trunc, tozero, tozero_inv) or all")
	f.StringVar(&opts.ops, "ops", "threshold", "kernel families to run: threshold, arith or all")
	f.StringVar(&opts.backend, "backend", "go", "execution backend: go or occa")
	f.BoolVar(&opts.sequential, "sequential", false, "run pipeline stages without overlap")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log device activity")
	return cmd
}

// backend executes one launch and waits for its result
type backend interface {
	Threshold(rec kernels.ThresholdTilingData, x, y []float32) error
	Run(op kernels.Elementwise[float32], total int, dst []float32, srcs ...[]float32) error
}

func run(opts options, out io.Writer) error {
	var withThreshold, withArith bool
	switch opts.ops {
	case "threshold":
		withThreshold = true
	case "arith":
		withArith = true
	case "all":
		withThreshold, withArith = true, true
	default:
		return fmt.Errorf("unknown kernel family %q", opts.ops)
	}
	modes := kernels.ThresholdTypes()
	if opts.mode != "all" {
		m, err := kernels.ParseThresholdType(opts.mode)
		if err != nil {
			return err
		}
		modes = []kernels.ThresholdType{m}
	}
	total := opts.height * opts.width * opts.channels
	if total <= 0 {
		return fmt.Errorf("image %dx%dx%d is empty", opts.height, opts.width, opts.channels)
	}
	if uint64(total) > math.MaxUint32 {
		return fmt.Errorf("image %dx%dx%d holds %d elements, more than a launch addresses (%d)",
			opts.height, opts.width, opts.channels, total, uint32(math.MaxUint32))
	}

	cfg := builder.Config{
		CoreCount:  opts.cores,
		Sequential: opts.sequential,
		Verbose:    opts.verbose,
		Logger:     log.New(out, "", log.LstdFlags),
	}
	be, cleanup, err := newBackend(opts.backend, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	input := make([]float32, total)
	for i := range input {
		input[i] = float32(i)
	}
	output := make([]float32, total)

	if withThreshold {
		for _, mode := range modes {
			fmt.Fprintf(out, "run thresh %s\n", mode)
			rec := kernels.ThresholdTilingData{
				MaxVal:      maxVal,
				Thresh:      threshold,
				TotalLength: uint32(total),
				ThreshType:  mode,
			}
			start := time.Now()
			if err := be.Threshold(rec, input, output); err != nil {
				return fmt.Errorf("thresh %s: %w", mode, err)
			}
			fmt.Fprintf(out, "operator execution time: %d(µs)\n", time.Since(start).Microseconds())

			if err := check(input, output, mode); err != nil {
				return err
			}
			fmt.Fprintf(out, "thresh %s test passed\n", mode)
		}
	}
	if withArith {
		return runArith(be, input, output, out)
	}
	return nil
}

// arithOps are the arithmetic kernels run by --ops arith
func arithOps() []kernels.Elementwise[float32] {
	div := kernels.NewScalar[float32](kernels.OpDiv, 1000, true)
	div.Scale = 0.5
	return []kernels.Elementwise[float32]{
		kernels.NewBinary[float32](kernels.OpAdd),
		kernels.NewBinary[float32](kernels.OpSub),
		kernels.NewBinary[float32](kernels.OpMul),
		kernels.NewBinary[float32](kernels.OpDiv),
		kernels.NewBinary[float32](kernels.OpMin),
		kernels.NewBinary[float32](kernels.OpMax),
		kernels.NewScalar[float32](kernels.OpSub, 255, true),
		div,
		&kernels.Weighted[float32]{Alpha: 0.75, Beta: 0.25, Gamma: 16},
	}
}

// runArith runs every arithmetic kernel over the ramp and a second operand
// and checks it against the host operator
func runArith(be backend, input, output []float32, out io.Writer) error {
	other := make([]float32, len(input))
	for i := range other {
		other[i] = float32(i % 17)
	}
	want := make([]float32, len(input))
	for _, op := range arithOps() {
		srcs := [][]float32{input, other}[:op.NumInputs()]
		fmt.Fprintf(out, "run %s\n", op.Name())
		start := time.Now()
		if err := be.Run(op, len(input), output, srcs...); err != nil {
			return fmt.Errorf("%s: %w", op.Name(), err)
		}
		fmt.Fprintf(out, "operator execution time: %d(µs)\n", time.Since(start).Microseconds())

		op.Apply(want, srcs, nil)
		for i := range want {
			if !scalar.EqualWithinAbsOrRel(float64(output[i]), float64(want[i]), 1e-6, 1e-6) {
				return fmt.Errorf("%s: output[%d] = %v, want %v", op.Name(), i, output[i], want[i])
			}
		}
		fmt.Fprintf(out, "%s test passed\n", op.Name())
	}
	return nil
}

func newBackend(name string, cfg builder.Config) (backend, func(), error) {
	switch name {
	case "go":
		dev, err := runner.NewDevice(cfg)
		if err != nil {
			return nil, nil, err
		}
		s := dev.NewStream()
		return goBackend{s}, func() { s.Close() }, nil
	case "occa":
		device, err := utils.CreateTestDevice()
		if err != nil {
			return nil, nil, err
		}
		b, err := occa.New(device, cfg)
		if err != nil {
			device.Free()
			return nil, nil, err
		}
		return b, func() {
			b.Free()
			device.Free()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", name)
}

// goBackend launches on a runner stream and waits for each launch
type goBackend struct {
	s *runner.Stream
}

func (g goBackend) Threshold(rec kernels.ThresholdTilingData, x, y []float32) error {
	return runGo(g.s, rec, x, y)
}

func (g goBackend) Run(op kernels.Elementwise[float32], total int, dst []float32, srcs ...[]float32) error {
	dev := g.s.Device()
	var mems []*runner.DeviceMemory[float32]
	defer func() {
		for _, m := range mems {
			m.Free()
		}
	}()
	for _, host := range append([][]float32{dst}, srcs...) {
		if len(host) < total {
			return fmt.Errorf("%s: host buffer of %d elements, launch needs %d", op.Name(), len(host), total)
		}
		m, err := runner.Malloc[float32](dev, total)
		if err != nil {
			return err
		}
		mems = append(mems, m)
		if len(mems) > 1 {
			if err := m.Upload(host[:total]); err != nil {
				return err
			}
		}
	}
	if err := runner.Launch(g.s, total, op, mems[0], mems[1:]...); err != nil {
		return err
	}
	if err := g.s.Synchronize(); err != nil {
		return err
	}
	return mems[0].Download(dst[:total])
}

// runGo uploads x and the parameter record, launches, waits and downloads
func runGo(s *runner.Stream, rec kernels.ThresholdTilingData, x, y []float32) error {
	dev := s.Device()
	n := int(rec.TotalLength)
	xMem, err := runner.Malloc[float32](dev, n)
	if err != nil {
		return err
	}
	defer xMem.Free()
	yMem, err := runner.Malloc[float32](dev, n)
	if err != nil {
		return err
	}
	defer yMem.Free()
	if err := xMem.Upload(x[:n]); err != nil {
		return err
	}
	params, err := runner.UploadParams(dev, rec)
	if err != nil {
		return err
	}

	if err := runner.LaunchThreshold(s, params, xMem, yMem); err != nil {
		return err
	}
	if err := s.Synchronize(); err != nil {
		return err
	}
	return yMem.Download(y[:n])
}

func check(input, output []float32, mode kernels.ThresholdType) error {
	for i, x := range input {
		want, err := kernels.ThresholdValue(x, threshold, maxVal, mode)
		if err != nil {
			return err
		}
		if output[i] != want {
			return fmt.Errorf("thresh %s: output[%d] = %v, want %v", mode, i, output[i], want)
		}
	}
	return nil
}
