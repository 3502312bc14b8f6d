package tiling

import (
	"fmt"
)

// LoopPlan splits one core's share into ChunkCount chunks of ChunkLength
// elements followed by an optional tail of TailLength elements.
type LoopPlan struct {
	ChunkLength int
	ChunkCount  int
	TailLength  int
}

// Chunk is one pipeline iteration. Offset is relative to the start of the
// owning share.
type Chunk struct {
	Index  int
	Offset int
	Length int
	Tail   bool
}

// End returns the share-relative index one past the chunk
func (c Chunk) End() int {
	return c.Offset + c.Length
}

// Tile computes the loop plan for a share of blockLength elements.
// The on-chip budget is divided by every buffer that must be resident at
// the same time (multiplier), then rounded down to the alignment so every
// chunk copy satisfies the transfer constraint.
func Tile(blockLength, budgetBytes, elementSize, multiplier, alignment int) (LoopPlan, error) {
	if blockLength < 0 {
		return LoopPlan{}, fmt.Errorf("%w: negative block length %d", ErrConfig, blockLength)
	}
	if budgetBytes <= 0 || elementSize <= 0 || multiplier <= 0 {
		return LoopPlan{}, fmt.Errorf("%w: budget=%d elementSize=%d multiplier=%d must be positive",
			ErrConfig, budgetBytes, elementSize, multiplier)
	}
	if !IsPowerOfTwo(alignment) {
		return LoopPlan{}, fmt.Errorf("%w: alignment %d is not a power of two", ErrConfig, alignment)
	}

	chunkLength := AlignDown(budgetBytes/elementSize/multiplier, alignment)
	if chunkLength == 0 {
		return LoopPlan{}, fmt.Errorf("%w: budget of %d bytes holds no aligned chunk of %d x %d-byte elements across %d buffers",
			ErrConfig, budgetBytes, alignment, elementSize, multiplier)
	}

	count := blockLength / chunkLength
	return LoopPlan{
		ChunkLength: chunkLength,
		ChunkCount:  count,
		TailLength:  blockLength - chunkLength*count,
	}, nil
}

// Total returns the number of elements covered by the plan
func (p LoopPlan) Total() int {
	return p.ChunkLength*p.ChunkCount + p.TailLength
}

// NumChunks returns the number of pipeline iterations, tail included
func (p LoopPlan) NumChunks() int {
	if p.TailLength != 0 {
		return p.ChunkCount + 1
	}
	return p.ChunkCount
}

// Chunks lists every full chunk in order followed by the tail, if any
func (p LoopPlan) Chunks() []Chunk {
	chunks := make([]Chunk, 0, p.NumChunks())
	for i := 0; i < p.ChunkCount; i++ {
		chunks = append(chunks, Chunk{
			Index:  i,
			Offset: i * p.ChunkLength,
			Length: p.ChunkLength,
		})
	}
	if p.TailLength != 0 {
		chunks = append(chunks, Chunk{
			Index:  p.ChunkCount,
			Offset: p.ChunkCount * p.ChunkLength,
			Length: p.TailLength,
			Tail:   true,
		})
	}
	return chunks
}
