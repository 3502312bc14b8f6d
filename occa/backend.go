// Package occa runs tiled kernels on an OCCA device. Every float32
// operator of package kernels has an OKL form. Block plans are
// computed on the host exactly as for the Go runner; the generated OKL
// kernel walks each core's share in chunks of the planned loop length.
package occa

import (
	"fmt"
	"math"
	"strconv"
	"unsafe"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/runner/builder"
	"github.com/notargets/TileKernel/tiling"
	"github.com/notargets/gocca"
)

// Backend builds and runs kernels on one OCCA device
type Backend struct {
	Device  *gocca.OCCADevice
	Config  builder.Config
	Kernels map[string]*gocca.OCCAKernel
}

// New creates a backend on device. cfg supplies the tiling parameters;
// zero fields take the reference values.
func New(device *gocca.OCCADevice, cfg builder.Config) (*Backend, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil OCCA device", tiling.ErrConfig)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backend{
		Device:  device,
		Config:  cfg,
		Kernels: make(map[string]*gocca.OCCAKernel),
	}, nil
}

// literal renders v as an OKL real_t constant. bits is the precision v
// was held at.
func literal(v float64, bits int) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("%w: constant %v has no OKL literal", tiling.ErrConfig, v)
	}
	return "(real_t)" + strconv.FormatFloat(v, 'g', -1, bits), nil
}

// thresholdExpr returns the OKL expression of the threshold mode over the
// staged value v0
func thresholdExpr(op *kernels.Threshold[float32]) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}
	thresh, err := literal(float64(op.Thresh), 32)
	if err != nil {
		return "", err
	}
	maxVal, err := literal(float64(op.MaxVal), 32)
	if err != nil {
		return "", err
	}
	cond := fmt.Sprintf("(v0 > %s)", thresh)
	switch op.Type {
	case kernels.ThreshBinary:
		return fmt.Sprintf("%s ? %s : REAL_ZERO", cond, maxVal), nil
	case kernels.ThreshBinaryInv:
		return fmt.Sprintf("%s ? REAL_ZERO : %s", cond, maxVal), nil
	case kernels.ThreshTrunc:
		return fmt.Sprintf("%s ? %s : v0", cond, maxVal), nil
	case kernels.ThreshToZero:
		return fmt.Sprintf("%s ? v0 : REAL_ZERO", cond), nil
	default:
		return fmt.Sprintf("%s ? REAL_ZERO : v0", cond), nil
	}
}

// arithExpr returns a (kind) b with the same rounding order as the Go
// operators: products are a*b*scale and quotients a*scale/b.
func arithExpr(kind kernels.ArithKind, a, b, scale string) (string, error) {
	switch kind {
	case kernels.OpAdd:
		return fmt.Sprintf("%s + %s", a, b), nil
	case kernels.OpSub:
		return fmt.Sprintf("%s - %s", a, b), nil
	case kernels.OpMul:
		return fmt.Sprintf("%s * %s * %s", a, b, scale), nil
	case kernels.OpDiv:
		return fmt.Sprintf("(%s == REAL_ZERO) ? REAL_ZERO : %s * %s / %s", b, a, scale, b), nil
	case kernels.OpMin:
		return fmt.Sprintf("(%s < %s) ? %s : %s", a, b, a, b), nil
	case kernels.OpMax:
		return fmt.Sprintf("(%s > %s) ? %s : %s", a, b, a, b), nil
	}
	return "", fmt.Errorf("%w: %v", kernels.ErrUnsupportedMode, kind)
}

// Expr returns the OKL expression computing one output element of op from
// the staged inputs v0, v1, ...
func Expr(op kernels.Elementwise[float32]) (string, error) {
	if op == nil {
		return "", fmt.Errorf("%w: nil operator", tiling.ErrConfig)
	}
	if err := op.Validate(); err != nil {
		return "", err
	}
	switch op := op.(type) {
	case *kernels.Threshold[float32]:
		return thresholdExpr(op)
	case *kernels.Binary[float32]:
		scale, err := literal(float64(op.Scale), 32)
		if err != nil {
			return "", err
		}
		return arithExpr(op.Kind, "v0", "v1", scale)
	case *kernels.Scalar[float32]:
		scale, err := literal(float64(op.Scale), 32)
		if err != nil {
			return "", err
		}
		value, err := literal(float64(op.Value), 32)
		if err != nil {
			return "", err
		}
		if op.Reverse {
			return arithExpr(op.Kind, value, "v0", scale)
		}
		return arithExpr(op.Kind, "v0", value, scale)
	case *kernels.Weighted[float32]:
		for _, c := range []float64{op.Alpha, op.Beta, op.Gamma} {
			if _, err := literal(c, 64); err != nil {
				return "", err
			}
		}
		// accumulate in double like the Go operator
		return fmt.Sprintf("(real_t)(%s * (double)v0 + %s * (double)v1 + %s)",
			strconv.FormatFloat(op.Alpha, 'g', -1, 64),
			strconv.FormatFloat(op.Beta, 'g', -1, 64),
			strconv.FormatFloat(op.Gamma, 'g', -1, 64)), nil
	}
	return "", fmt.Errorf("%w: no OKL form for %s", kernels.ErrUnsupportedMode, op.Name())
}

// Source plans total elements for op and generates its OKL kernel
func (b *Backend) Source(op kernels.Elementwise[float32], total int) (*builder.Builder, string, error) {
	expr, err := Expr(op)
	if err != nil {
		return nil, "", err
	}
	if total <= 0 || uint64(total) > math.MaxUint32 {
		return nil, "", fmt.Errorf("%w: total length %d outside (0, %d]",
			tiling.ErrConfig, total, uint32(math.MaxUint32))
	}
	plans, err := tiling.CalculateAll(b.Config.Request(total,
		builder.SizeOf[float32](), kernels.StagingMultiplier(op, b.Config.BufferNum)))
	if err != nil {
		return nil, "", err
	}
	kb := builder.NewBuilder(builder.Float32, plans, op.NumInputs())
	return kb, kb.GenerateKernel(op.Name(), expr), nil
}

// ThresholdSource generates the OKL source of the threshold kernel for rec
func (b *Backend) ThresholdSource(rec kernels.ThresholdTilingData) (*builder.Builder, string, error) {
	op, err := kernels.NewThreshold[float32](rec)
	if err != nil {
		return nil, "", err
	}
	return b.Source(op, int(rec.TotalLength))
}

// Threshold runs the threshold kernel described by rec from x into y
func (b *Backend) Threshold(rec kernels.ThresholdTilingData, x, y []float32) error {
	op, err := kernels.NewThreshold[float32](rec)
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	return b.Run(op, int(rec.TotalLength), y, x)
}

// Run executes op over the first total elements of srcs, writing dst. The
// call blocks until the result is back in dst.
func (b *Backend) Run(op kernels.Elementwise[float32], total int, dst []float32, srcs ...[]float32) error {
	if op == nil {
		return fmt.Errorf("run: %w: nil operator", tiling.ErrConfig)
	}
	name := op.Name()
	if len(srcs) != op.NumInputs() {
		return fmt.Errorf("%s: %w: %d inputs given, operator takes %d",
			name, tiling.ErrConfig, len(srcs), op.NumInputs())
	}
	for i, buf := range append([][]float32{dst}, srcs...) {
		if total <= 0 || len(buf) < total {
			return fmt.Errorf("%s: %w: total length %d with buffer %d of %d",
				name, tiling.ErrConfig, total, i, len(buf))
		}
	}
	kb, src, err := b.Source(op, total)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	kernel, err := b.build(src, name)
	if err != nil {
		return err
	}

	offsets := kb.BlockOffsets()
	lengths := kb.BlockLengths()
	bytes := int64(total * 4)
	offsetMem := b.Device.Malloc(int64(len(offsets)*8), unsafe.Pointer(&offsets[0]), nil)
	defer offsetMem.Free()
	lengthMem := b.Device.Malloc(int64(len(lengths)*8), unsafe.Pointer(&lengths[0]), nil)
	defer lengthMem.Free()

	args := []interface{}{offsetMem, lengthMem}
	for _, x := range srcs {
		xMem := b.Device.Malloc(bytes, unsafe.Pointer(&x[0]), nil)
		defer xMem.Free()
		args = append(args, xMem)
	}
	yMem := b.Device.Malloc(bytes, nil, nil)
	defer yMem.Free()
	args = append(args, yMem)

	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("failed to execute kernel %s: %w", name, err)
	}
	b.Device.Finish()
	yMem.CopyTo(unsafe.Pointer(&dst[0]), bytes)

	if b.Config.Verbose {
		b.Config.Logger.Printf("Ran %s on %s: %d elements, %d cores, chunk %d",
			name, b.Device.Mode(), total, len(offsets), kb.LoopLength())
	}
	return nil
}

// build compiles src once per distinct source
func (b *Backend) build(src, name string) (*gocca.OCCAKernel, error) {
	if k, ok := b.Kernels[src]; ok {
		return k, nil
	}
	var kernel *gocca.OCCAKernel
	var err error
	if b.Device.Mode() == "OpenMP" {
		// OpenMP does not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = b.Device.BuildKernelFromString(src, name, props)
	} else {
		kernel, err = b.Device.BuildKernelFromString(src, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", name)
	}
	b.Kernels[src] = kernel
	return kernel, nil
}

// Free releases every built kernel. The device belongs to the caller.
func (b *Backend) Free() {
	for src, k := range b.Kernels {
		k.Free()
		delete(b.Kernels, src)
	}
}
