package runner

import (
	"context"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/tiling"
	"golang.org/x/sync/errgroup"
)

// inSlot holds one chunk's staged inputs, one buffer per operator input
type inSlot[T kernels.Number] struct {
	chunk tiling.Chunk
	bufs  [][]T
}

// outSlot holds one chunk's result together with the input slot it was
// computed from; the input is released once the result is copied out.
type outSlot[T kernels.Number] struct {
	chunk tiling.Chunk
	buf   []T
	in    *inSlot[T]
}

// coreKernel runs the copy-in / compute / copy-out pipeline of one core
// over its share of the global buffers.
type coreKernel[T kernels.Number] struct {
	dev        *Device
	name       string
	plan       tiling.VectorTiling
	op         kernels.Elementwise[T]
	sequential bool

	xGM []globalTensor[T]
	yGM globalTensor[T]

	inQueue  *queue[*inSlot[T]]
	outQueue *queue[*outSlot[T]]
	scratch  []T
	srcs     [][]T
}

func newCoreKernel[T kernels.Number](inv *invocation[T], plan tiling.VectorTiling) *coreKernel[T] {
	k := &coreKernel[T]{
		dev:        inv.dev,
		name:       inv.name,
		plan:       plan,
		op:         inv.op,
		sequential: inv.dev.Config.Sequential,
		yGM:        newGlobalTensor(inv.dst, inv.name, plan.BlockIdx, plan.Block),
		srcs:       make([][]T, len(inv.srcs)),
	}
	for _, src := range inv.srcs {
		k.xGM = append(k.xGM, newGlobalTensor(src, inv.name, plan.BlockIdx, plan.Block))
	}
	return k
}

// initBuffers allocates every staging buffer of the core once. They are
// reused by all chunks and dropped when the core finishes.
func (k *coreKernel[T]) initBuffers() {
	depth := k.dev.Config.BufferNum
	length := k.plan.Loop.ChunkLength

	ins := make([]*inSlot[T], depth)
	for i := range ins {
		bufs := make([][]T, len(k.xGM))
		for j := range bufs {
			bufs[j] = make([]T, length)
		}
		ins[i] = &inSlot[T]{bufs: bufs}
	}
	outs := make([]*outSlot[T], depth)
	for i := range outs {
		outs[i] = &outSlot[T]{buf: make([]T, length)}
	}

	k.inQueue = newQueue(ins)
	k.outQueue = newQueue(outs)
	k.scratch = make([]T, length*k.op.ScratchBuffers())
}

func (k *coreKernel[T]) event(c tiling.Chunk, s ChunkState) {
	k.dev.trace(ChunkEvent{
		Kernel: k.name,
		Core:   k.plan.BlockIdx,
		Chunk:  c.Index,
		Tail:   c.Tail,
		State:  s,
	})
}

// run walks every full chunk and then the tail. Stages overlap unless the
// device is configured sequential.
func (k *coreKernel[T]) run(ctx context.Context) error {
	if k.plan.Block.Empty() {
		return nil
	}
	k.initBuffers()
	chunks := k.plan.Loop.Chunks()

	if k.sequential {
		for _, c := range chunks {
			if err := k.copyIn(ctx, c); err != nil {
				return err
			}
			if err := k.compute(ctx); err != nil {
				return err
			}
			if err := k.copyOut(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, c := range chunks {
			if err := k.copyIn(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for range chunks {
			if err := k.compute(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for range chunks {
			if err := k.copyOut(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

// copyIn: Idle -> StagedIn. Blocks while every input slot is owned.
func (k *coreKernel[T]) copyIn(ctx context.Context, c tiling.Chunk) error {
	slot, err := k.inQueue.alloc(ctx)
	if err != nil {
		return err
	}
	slot.chunk = c
	for i, x := range k.xGM {
		if err := x.copyIn(slot.bufs[i][:c.Length], c.Offset); err != nil {
			k.inQueue.release(slot)
			return err
		}
	}
	k.event(c, StagedIn)
	return k.inQueue.enque(ctx, slot)
}

// compute: StagedIn -> Computed
func (k *coreKernel[T]) compute(ctx context.Context) error {
	in, err := k.inQueue.deque(ctx)
	if err != nil {
		return err
	}
	out, err := k.outQueue.alloc(ctx)
	if err != nil {
		return err
	}

	n := in.chunk.Length
	for i, buf := range in.bufs {
		k.srcs[i] = buf[:n]
	}
	k.op.Apply(out.buf[:n], k.srcs, k.scratch)

	out.chunk = in.chunk
	out.in = in
	k.event(in.chunk, Computed)
	return k.outQueue.enque(ctx, out)
}

// copyOut: Computed -> StagedOut -> Idle. The input slot is released once
// the copy is issued, then the output slot.
func (k *coreKernel[T]) copyOut(ctx context.Context) error {
	out, err := k.outQueue.deque(ctx)
	if err != nil {
		return err
	}
	c := out.chunk
	err = k.yGM.copyOut(c.Offset, out.buf[:c.Length])
	if err == nil {
		k.event(c, StagedOut)
	}

	k.inQueue.release(out.in)
	out.in = nil
	k.outQueue.release(out)
	if err != nil {
		return err
	}
	k.event(c, Idle)
	return nil
}
