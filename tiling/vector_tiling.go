package tiling

import (
	"fmt"
)

// Request describes one invocation to be tiled across the cores of a device
type Request struct {
	TotalLength       int // elements in the global buffers
	BlockNum          int // number of cores
	ElementSize       int // bytes per element
	StagingMultiplier int // buffers resident per chunk
	BudgetBytes       int // on-chip working memory per core
	Alignment         int // elements, power of two
}

// VectorTiling is the complete plan for one core: its share of the global
// buffer and the chunk loop that walks it.
type VectorTiling struct {
	Request
	BlockIdx int
	Block    BlockShare
	Loop     LoopPlan
}

// Calculate computes the plan for core blockIdx
func Calculate(req Request, blockIdx int) (VectorTiling, error) {
	block, err := Partition(req.TotalLength, req.BlockNum, blockIdx, req.Alignment)
	if err != nil {
		return VectorTiling{}, err
	}
	loop, err := Tile(block.Length, req.BudgetBytes, req.ElementSize,
		req.StagingMultiplier, req.Alignment)
	if err != nil {
		return VectorTiling{}, err
	}
	return VectorTiling{
		Request:  req,
		BlockIdx: blockIdx,
		Block:    block,
		Loop:     loop,
	}, nil
}

// CalculateAll computes and validates the plan of every core. It fails if
// any single plan is out of bounds or if the shares do not tile the buffer.
func CalculateAll(req Request) ([]VectorTiling, error) {
	if req.BlockNum <= 0 {
		return nil, fmt.Errorf("%w: core count must be positive, got %d", ErrConfig, req.BlockNum)
	}
	plans := make([]VectorTiling, req.BlockNum)
	shares := make([]BlockShare, req.BlockNum)
	for i := range plans {
		vt, err := Calculate(req, i)
		if err != nil {
			return nil, fmt.Errorf("core %d: %w", i, err)
		}
		if err := vt.Validate(); err != nil {
			return nil, fmt.Errorf("core %d: %w", i, err)
		}
		plans[i] = vt
		shares[i] = vt.Block
	}
	if err := ValidateCoverage(req.TotalLength, shares); err != nil {
		return nil, err
	}
	return plans, nil
}

// Validate checks that every chunk of the loop stays inside the share and
// the share stays inside the global buffer.
func (vt VectorTiling) Validate() error {
	if vt.Block.Offset < 0 || vt.Block.End() > vt.TotalLength {
		return fmt.Errorf("%w: share [%d, %d) outside buffer of %d",
			ErrBounds, vt.Block.Offset, vt.Block.End(), vt.TotalLength)
	}
	if vt.Block.Empty() {
		return nil
	}
	if vt.Loop.Total() != vt.Block.Length {
		return fmt.Errorf("%w: loop covers %d elements, share has %d",
			ErrBounds, vt.Loop.Total(), vt.Block.Length)
	}
	if vt.Loop.TailLength >= vt.Loop.ChunkLength {
		return fmt.Errorf("%w: tail %d not shorter than chunk %d",
			ErrBounds, vt.Loop.TailLength, vt.Loop.ChunkLength)
	}
	for _, c := range vt.Loop.Chunks() {
		if c.Offset < 0 || c.End() > vt.Block.Length {
			return fmt.Errorf("%w: chunk %d [%d, %d) outside share of %d",
				ErrBounds, c.Index, c.Offset, c.End(), vt.Block.Length)
		}
	}
	return nil
}
