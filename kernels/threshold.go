package kernels

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ThresholdType selects the threshold transform. Values match the
// ThresholdTypes enumeration of the host image library.
type ThresholdType uint32

const (
	ThreshBinary ThresholdType = iota
	ThreshBinaryInv
	ThreshTrunc
	ThreshToZero
	ThreshToZeroInv
)

var thresholdNames = [...]string{
	ThreshBinary:    "BINARY",
	ThreshBinaryInv: "BINARY_INV",
	ThreshTrunc:     "TRUNC",
	ThreshToZero:    "TOZERO",
	ThreshToZeroInv: "TOZERO_INV",
}

// ThresholdTypes lists every supported mode in enum order
func ThresholdTypes() []ThresholdType {
	return []ThresholdType{ThreshBinary, ThreshBinaryInv, ThreshTrunc, ThreshToZero, ThreshToZeroInv}
}

func (t ThresholdType) String() string {
	if t.Valid() {
		return thresholdNames[t]
	}
	return fmt.Sprintf("ThresholdType(%d)", uint32(t))
}

// Valid reports whether t is one of the five defined modes
func (t ThresholdType) Valid() bool {
	return t <= ThreshToZeroInv
}

// ParseThresholdType accepts a mode name such as "trunc" or "BINARY_INV"
func ParseThresholdType(s string) (ThresholdType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range thresholdNames {
		if n == name {
			return ThresholdType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: threshold type %q", ErrUnsupportedMode, s)
}

// ThresholdTilingDataSize is the packed size of ThresholdTilingData
const ThresholdTilingDataSize = 16

// ThresholdTilingData is the parameter record shared by every core of a
// threshold launch. Its binary form is four little-endian 32-bit words in
// field order and must stay byte compatible with deployed kernels.
type ThresholdTilingData struct {
	MaxVal      int32
	Thresh      int32
	TotalLength uint32
	ThreshType  ThresholdType
}

// MarshalBinary encodes the record in its device layout
func (d ThresholdTilingData) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ThresholdTilingDataSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(d.MaxVal))
	binary.LittleEndian.PutUint32(buf[4:], uint32(d.Thresh))
	binary.LittleEndian.PutUint32(buf[8:], d.TotalLength)
	binary.LittleEndian.PutUint32(buf[12:], uint32(d.ThreshType))
	return buf, nil
}

// UnmarshalBinary decodes a record from its device layout
func (d *ThresholdTilingData) UnmarshalBinary(data []byte) error {
	if len(data) < ThresholdTilingDataSize {
		return fmt.Errorf("threshold tiling data needs %d bytes, got %d",
			ThresholdTilingDataSize, len(data))
	}
	d.MaxVal = int32(binary.LittleEndian.Uint32(data[0:]))
	d.Thresh = int32(binary.LittleEndian.Uint32(data[4:]))
	d.TotalLength = binary.LittleEndian.Uint32(data[8:])
	d.ThreshType = ThresholdType(binary.LittleEndian.Uint32(data[12:]))
	return nil
}

// Validate rejects records whose mode has no defined transform
func (d ThresholdTilingData) Validate() error {
	if !d.ThreshType.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, d.ThreshType)
	}
	return nil
}

// Threshold applies one of the five threshold transforms:
//
//	BINARY      x > thresh ? maxVal : 0
//	BINARY_INV  x > thresh ? 0 : maxVal
//	TRUNC       x > thresh ? maxVal : x
//	TOZERO      x > thresh ? x : 0
//	TOZERO_INV  x > thresh ? 0 : x
type Threshold[T Number] struct {
	Thresh T
	MaxVal T
	Type   ThresholdType
}

// NewThreshold builds the operator described by a parameter record
func NewThreshold[T Number](d ThresholdTilingData) (*Threshold[T], error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Threshold[T]{
		Thresh: T(d.Thresh),
		MaxVal: T(d.MaxVal),
		Type:   d.ThreshType,
	}, nil
}

func (op *Threshold[T]) Name() string { return "threshold_" + strings.ToLower(op.Type.String()) }

func (op *Threshold[T]) NumInputs() int { return 1 }

// ScratchBuffers is one: the comparison mask
func (op *Threshold[T]) ScratchBuffers() int { return 1 }

func (op *Threshold[T]) Validate() error {
	if !op.Type.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, op.Type)
	}
	return nil
}

// Apply compares the chunk against the threshold into the scratch mask,
// then selects each output from the mask.
func (op *Threshold[T]) Apply(dst []T, srcs [][]T, scratch []T) {
	x := srcs[0][:len(dst)]
	mask := scratch[:len(dst)]
	for i, v := range x {
		if v > op.Thresh {
			mask[i] = 1
		} else {
			mask[i] = 0
		}
	}

	var zero T
	switch op.Type {
	case ThreshBinary:
		selectScalar(dst, mask, op.MaxVal, zero)
	case ThreshBinaryInv:
		selectScalar(dst, mask, zero, op.MaxVal)
	case ThreshTrunc:
		for i, m := range mask {
			if m != 0 {
				dst[i] = op.MaxVal
			} else {
				dst[i] = x[i]
			}
		}
	case ThreshToZero:
		for i, m := range mask {
			if m != 0 {
				dst[i] = x[i]
			} else {
				dst[i] = zero
			}
		}
	case ThreshToZeroInv:
		for i, m := range mask {
			if m != 0 {
				dst[i] = zero
			} else {
				dst[i] = x[i]
			}
		}
	}
}

func selectScalar[T Number](dst, mask []T, set, unset T) {
	for i, m := range mask {
		if m != 0 {
			dst[i] = set
		} else {
			dst[i] = unset
		}
	}
}

// ThresholdValue is the scalar reference of the threshold table
func ThresholdValue[T Number](x, thresh, maxVal T, mode ThresholdType) (T, error) {
	var zero T
	above := x > thresh
	switch mode {
	case ThreshBinary:
		if above {
			return maxVal, nil
		}
		return zero, nil
	case ThreshBinaryInv:
		if above {
			return zero, nil
		}
		return maxVal, nil
	case ThreshTrunc:
		if above {
			return maxVal, nil
		}
		return x, nil
	case ThreshToZero:
		if above {
			return x, nil
		}
		return zero, nil
	case ThreshToZeroInv:
		if above {
			return zero, nil
		}
		return x, nil
	}
	return zero, fmt.Errorf("%w: %v", ErrUnsupportedMode, mode)
}
