package builder

import (
	"strings"
	"testing"

	"github.com/notargets/TileKernel/tiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultCoreCount, cfg.CoreCount)
	assert.Equal(t, 253952, cfg.BufferBytes)
	assert.Equal(t, DefaultBufferNum, cfg.BufferNum)
	assert.Equal(t, DefaultAlignment, cfg.Alignment)
	assert.NotNil(t, cfg.Logger)

	kept := Config{CoreCount: 3, Alignment: 16}.WithDefaults()
	assert.Equal(t, 3, kept.CoreCount)
	assert.Equal(t, 16, kept.Alignment)
}

func TestConfig_Request(t *testing.T) {
	cfg := Config{}.WithDefaults()
	req := cfg.Request(4320*7680*3, SizeOf[float32](), 5)
	plans, err := tiling.CalculateAll(req)
	require.NoError(t, err)
	require.Len(t, plans, 8)
	assert.Equal(t, 12441600, plans[0].Block.Length)
	assert.Equal(t, 12672, plans[0].Loop.ChunkLength)
	assert.Equal(t, 981, plans[0].Loop.ChunkCount)
	assert.Equal(t, 10368, plans[0].Loop.TailLength)
}

func TestDataTypes(t *testing.T) {
	assert.Equal(t, Float32, DataTypeOf[float32]())
	assert.Equal(t, Float64, DataTypeOf[float64]())
	assert.Equal(t, INT32, DataTypeOf[int32]())
	assert.Equal(t, INT64, DataTypeOf[int64]())
	assert.Equal(t, DataType(0), DataTypeOf[string]())

	assert.Equal(t, 4, SizeOf[float32]())
	assert.Equal(t, 8, SizeOf[int64]())
	assert.Equal(t, SizeOfType(Float32), SizeOf[float32]())
	assert.Equal(t, "float", TypeName(Float32))
	assert.Equal(t, "double", TypeName(Float64))
	assert.Equal(t, "int32", INT32.String())
}

func testPlans(t *testing.T, total, cores, budget int) []tiling.VectorTiling {
	t.Helper()
	cfg := Config{CoreCount: cores, BufferBytes: budget}.WithDefaults()
	plans, err := tiling.CalculateAll(cfg.Request(total, 4, 5))
	require.NoError(t, err)
	return plans
}

func TestBuilder_BlockArrays(t *testing.T) {
	plans := testPlans(t, 1000, 3, 1280)
	kb := NewBuilder(Float32, plans, 1)

	assert.Equal(t, []int64{0, 352, 704}, kb.BlockOffsets())
	assert.Equal(t, []int64{352, 352, 296}, kb.BlockLengths())
	assert.Equal(t, 64, kb.LoopLength())
	assert.Equal(t, []string{"x0"}, kb.Inputs)
	assert.Equal(t, "y", kb.Output)

	assert.Panics(t, func() { NewBuilder(Float32, nil, 1) })
}

func TestBuilder_GenerateKernel(t *testing.T) {
	plans := testPlans(t, 1000, 3, 1280)
	kb := NewBuilder(Float32, plans, 2)
	src := kb.GenerateKernel("add", "v0 + v1")

	for _, want := range []string{
		"typedef float real_t;",
		"#define BLOCK_NUM 3",
		"#define LOOP_LENGTH 64",
		"#define INNER_DIM 64",
		"#define x1_BLOCK(b) (x1_global + blockOffset[b])",
		"#define y_BLOCK(b) (y_global + blockOffset[b])",
		"@kernel void add(",
		"const real_t* x0_global,\n\tconst real_t* x1_global,\n\treal_t* y_global",
		"@outer",
		"@inner",
		"const real_t v1 = x1[c + i];",
		"y[c + i] = v0 + v1;",
	} {
		assert.Contains(t, src, want)
	}
	assert.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"))
	assert.Equal(t, src[:len(kb.KernelPreamble)], kb.KernelPreamble)

	kb64 := NewBuilder(Float64, plans, 1)
	assert.Contains(t, kb64.GeneratePreamble(), "typedef double real_t;")
	assert.NotContains(t, kb64.GeneratePreamble(), "0.0f")
}
