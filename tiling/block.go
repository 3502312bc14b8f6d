package tiling

import (
	"fmt"
)

// BlockShare is the contiguous range of the global buffer owned by one core.
// Offset and Length are in elements.
type BlockShare struct {
	Offset int
	Length int
}

// End returns the element index one past the share
func (b BlockShare) End() int {
	return b.Offset + b.Length
}

// Empty reports whether the core owning this share has no work
func (b BlockShare) Empty() bool {
	return b.Length == 0
}

// blockGeometry computes the aligned length of a full share, how many
// full shares fit in total, and the length of the short tail share.
//
// The per-core length is rounded up from ceil(total/cores) rather than
// total/cores so that cores*fullLength always covers total.
func blockGeometry(total, cores, alignment int) (fullLength, fullCount, tail int, err error) {
	if cores <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: core count must be positive, got %d", ErrConfig, cores)
	}
	if total <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: total length must be positive, got %d", ErrConfig, total)
	}
	if !IsPowerOfTwo(alignment) {
		return 0, 0, 0, fmt.Errorf("%w: alignment %d is not a power of two", ErrConfig, alignment)
	}

	fullLength = AlignUp((total+cores-1)/cores, alignment)
	fullCount = total / fullLength
	tail = total % fullLength
	return fullLength, fullCount, tail, nil
}

// Partition returns the share of core index out of cores for a buffer of
// total elements. Every full share is aligned in offset and length; only
// the single tail share may have an unaligned length. Cores past the tail
// receive an empty share.
func Partition(total, cores, index, alignment int) (BlockShare, error) {
	fullLength, fullCount, tail, err := blockGeometry(total, cores, alignment)
	if err != nil {
		return BlockShare{}, err
	}
	if index < 0 || index >= cores {
		return BlockShare{}, fmt.Errorf("%w: core index %d out of range [0, %d)",
			ErrConfig, index, cores)
	}

	switch {
	case index < fullCount:
		return BlockShare{Offset: index * fullLength, Length: fullLength}, nil
	case tail != 0 && index == fullCount:
		return BlockShare{Offset: fullCount * fullLength, Length: tail}, nil
	default:
		return BlockShare{}, nil
	}
}

// PartitionAll returns the shares of every core, indexed by core
func PartitionAll(total, cores, alignment int) ([]BlockShare, error) {
	shares := make([]BlockShare, cores)
	for i := range shares {
		share, err := Partition(total, cores, i, alignment)
		if err != nil {
			return nil, err
		}
		shares[i] = share
	}
	return shares, nil
}

// ValidateCoverage checks that shares tile [0, total) exactly: non-empty
// shares are contiguous from zero, they come before every empty share, and
// only the last non-empty share may be shorter than the others.
func ValidateCoverage(total int, shares []BlockShare) error {
	expected := 0
	fullLength := -1
	seenEmpty := false
	seenShort := false

	for i, s := range shares {
		if s.Offset < 0 || s.Length < 0 {
			return fmt.Errorf("%w: core %d has negative share %+v", ErrBounds, i, s)
		}
		if s.Empty() {
			seenEmpty = true
			continue
		}
		if seenEmpty {
			return fmt.Errorf("%w: core %d has work after an idle core", ErrBounds, i)
		}
		if seenShort {
			return fmt.Errorf("%w: core %d follows the tail share", ErrBounds, i)
		}
		if s.Offset != expected {
			return fmt.Errorf("%w: core %d starts at %d, expected %d",
				ErrBounds, i, s.Offset, expected)
		}
		if fullLength < 0 {
			fullLength = s.Length
		} else if s.Length > fullLength {
			return fmt.Errorf("%w: core %d share %d exceeds full share %d",
				ErrBounds, i, s.Length, fullLength)
		} else if s.Length < fullLength {
			seenShort = true
		}
		expected = s.End()
	}

	if expected != total {
		return fmt.Errorf("%w: shares cover [0, %d), expected [0, %d)", ErrBounds, expected, total)
	}
	return nil
}
