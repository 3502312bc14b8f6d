package builder

import (
	"fmt"
	"io"
	"log"
	"unsafe"

	"github.com/notargets/TileKernel/tiling"
)

// DataType represents the element type held in a device buffer
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// SizeOfType returns the size in bytes of a data type
func SizeOfType(dt DataType) int {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// TypeName returns the C type name for a given DataType
func TypeName(dt DataType) string {
	switch dt {
	case Float32:
		return "float"
	case INT32:
		return "int"
	case INT64:
		return "long"
	default:
		return "double"
	}
}

// DataTypeOf returns the DataType matching the Go element type T
func DataTypeOf[T any]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return INT32
	case int64:
		return INT64
	default:
		return 0
	}
}

// SizeOf returns the byte width of one element of type T
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Reference values of the deployed kernels
const (
	DefaultCoreCount   = 8
	DefaultBufferBytes = 248 * 1024 // on-chip working memory per core
	DefaultBufferNum   = 2          // double buffering
	DefaultAlignment   = 32         // elements
)

// Config holds the device description used to tile every launch.
// Zero fields take the reference values.
type Config struct {
	CoreCount   int
	BufferBytes int
	BufferNum   int
	Alignment   int

	// Sequential runs copy-in, compute and copy-out inline for each chunk
	// instead of overlapping adjacent chunks.
	Sequential bool

	Verbose bool
	Logger  *log.Logger
}

// WithDefaults returns a copy of cfg with zero fields filled in
func (cfg Config) WithDefaults() Config {
	if cfg.CoreCount == 0 {
		cfg.CoreCount = DefaultCoreCount
	}
	if cfg.BufferBytes == 0 {
		cfg.BufferBytes = DefaultBufferBytes
	}
	if cfg.BufferNum == 0 {
		cfg.BufferNum = DefaultBufferNum
	}
	if cfg.Alignment == 0 {
		cfg.Alignment = DefaultAlignment
	}
	if cfg.Logger == nil {
		if cfg.Verbose {
			cfg.Logger = log.Default()
		} else {
			cfg.Logger = log.New(io.Discard, "", 0)
		}
	}
	return cfg
}

// Validate checks the configuration after defaults are applied
func (cfg Config) Validate() error {
	if cfg.CoreCount <= 0 {
		return fmt.Errorf("%w: core count must be positive, got %d", tiling.ErrConfig, cfg.CoreCount)
	}
	if cfg.BufferBytes <= 0 {
		return fmt.Errorf("%w: buffer bytes must be positive, got %d", tiling.ErrConfig, cfg.BufferBytes)
	}
	if cfg.BufferNum <= 0 {
		return fmt.Errorf("%w: buffer num must be positive, got %d", tiling.ErrConfig, cfg.BufferNum)
	}
	if !tiling.IsPowerOfTwo(cfg.Alignment) {
		return fmt.Errorf("%w: alignment %d is not a power of two", tiling.ErrConfig, cfg.Alignment)
	}
	return nil
}

// Request builds the tiling request for a launch of total elements of
// elementSize bytes keeping multiplier buffers resident per chunk.
func (cfg Config) Request(total, elementSize, multiplier int) tiling.Request {
	return tiling.Request{
		TotalLength:       total,
		BlockNum:          cfg.CoreCount,
		ElementSize:       elementSize,
		StagingMultiplier: multiplier,
		BudgetBytes:       cfg.BufferBytes,
		Alignment:         cfg.Alignment,
	}
}
