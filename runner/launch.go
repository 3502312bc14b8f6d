package runner

import (
	"context"
	"fmt"
	"math"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/runner/builder"
	"github.com/notargets/TileKernel/tiling"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// invocation is one validated launch: the operator, its buffers and the
// plan of every core
type invocation[T kernels.Number] struct {
	dev   *Device
	name  string
	op    kernels.Elementwise[T]
	plans []tiling.VectorTiling
	dst   *DeviceMemory[T]
	srcs  []*DeviceMemory[T]
}

// Launch enqueues op over the first total elements of srcs, writing dst.
//
// Every configuration, mode and bounds error is detected here, for every
// core, before anything is queued; the call then returns without waiting.
// Failures while running (copy errors) are reported by s.Synchronize.
func Launch[T kernels.Number](s *Stream, total int, op kernels.Elementwise[T],
	dst *DeviceMemory[T], srcs ...*DeviceMemory[T]) error {
	if s == nil {
		return fmt.Errorf("launch: %w: nil stream", tiling.ErrConfig)
	}
	if op == nil {
		return fmt.Errorf("launch: %w: nil operator", tiling.ErrConfig)
	}
	inv, err := prepare(s.dev, total, op, dst, srcs)
	if err != nil {
		return fmt.Errorf("launch %s: %w", op.Name(), err)
	}
	return s.Submit(inv.name, inv.run)
}

// LaunchThreshold reads a ThresholdTilingData record from device memory and
// launches the threshold kernel from x into y
func LaunchThreshold[T kernels.Number](s *Stream, tilingMem *ParamMemory, x, y *DeviceMemory[T]) error {
	if tilingMem == nil {
		return fmt.Errorf("launch threshold: %w: nil tiling data", tiling.ErrConfig)
	}
	var rec kernels.ThresholdTilingData
	if err := rec.UnmarshalBinary(tilingMem.Bytes()); err != nil {
		return fmt.Errorf("launch threshold: %w: %w", tiling.ErrConfig, err)
	}
	op, err := kernels.NewThreshold[T](rec)
	if err != nil {
		return fmt.Errorf("launch threshold: %w", err)
	}
	return Launch[T](s, int(rec.TotalLength), op, y, x)
}

func prepare[T kernels.Number](dev *Device, total int, op kernels.Elementwise[T],
	dst *DeviceMemory[T], srcs []*DeviceMemory[T]) (*invocation[T], error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if len(srcs) != op.NumInputs() {
		return nil, fmt.Errorf("%w: %d inputs given, operator takes %d",
			tiling.ErrConfig, len(srcs), op.NumInputs())
	}
	if total <= 0 || uint64(total) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: total length %d outside (0, %d]",
			tiling.ErrConfig, total, uint32(math.MaxUint32))
	}
	for i, m := range append([]*DeviceMemory[T]{dst}, srcs...) {
		if m == nil || m.freed {
			return nil, fmt.Errorf("%w: buffer %d is not allocated", tiling.ErrConfig, i)
		}
		if m.dev != dev {
			return nil, fmt.Errorf("%w: buffer %d belongs to another device", tiling.ErrConfig, i)
		}
		if m.Len() < total {
			return nil, fmt.Errorf("%w: buffer %d holds %d elements, launch needs %d",
				tiling.ErrConfig, i, m.Len(), total)
		}
	}

	cfg := dev.Config
	req := cfg.Request(total, builder.SizeOf[T](), kernels.StagingMultiplier(op, cfg.BufferNum))
	plans, err := tiling.CalculateAll(req)
	if err != nil {
		return nil, err
	}

	return &invocation[T]{
		dev:   dev,
		name:  op.Name(),
		op:    op,
		plans: plans,
		dst:   dst,
		srcs:  srcs,
	}, nil
}

// run starts every non-idle core and joins them. The first failing core
// cancels the rest; the invocation has no partial result.
func (inv *invocation[T]) run(ctx context.Context) error {
	active := lo.Filter(inv.plans, func(p tiling.VectorTiling, _ int) bool {
		return !p.Block.Empty()
	})
	g, ctx := errgroup.WithContext(ctx)
	for _, plan := range active {
		k := newCoreKernel(inv, plan)
		g.Go(func() error {
			return k.run(ctx)
		})
	}
	err := g.Wait()
	inv.dev.launches.Add(1)

	p := inv.plans[0]
	inv.dev.logf("Launched %s: %d elements on %d/%d cores, chunk %d x %d + tail %d",
		inv.name, p.TotalLength, len(active), len(inv.plans),
		p.Loop.ChunkLength, p.Loop.ChunkCount, p.Loop.TailLength)
	return err
}
