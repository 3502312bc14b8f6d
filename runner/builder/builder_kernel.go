package builder

import (
	"fmt"
	"strings"

	"github.com/notargets/TileKernel/tiling"
)

// DefaultInnerDim is the number of @inner lanes that stride through a chunk
const DefaultInnerDim = 64

// Builder generates OKL source for a tiled elementwise kernel. The block
// plans are computed on the host; the kernel receives each core's offset
// and length and walks its share in chunks of LOOP_LENGTH.
type Builder struct {
	FloatType DataType
	Plans     []tiling.VectorTiling
	Inputs    []string
	Output    string
	InnerDim  int

	// Generated code
	KernelPreamble string
}

// NewBuilder creates a Builder for the given per-core plans. Inputs are
// named x0, x1, ... and the output y.
func NewBuilder(floatType DataType, plans []tiling.VectorTiling, numInputs int) *Builder {
	if len(plans) == 0 {
		panic("plans cannot be empty")
	}
	inputs := make([]string, numInputs)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("x%d", i)
	}
	return &Builder{
		FloatType: floatType,
		Plans:     plans,
		Inputs:    inputs,
		Output:    "y",
		InnerDim:  DefaultInnerDim,
	}
}

// BlockOffsets returns the share offset of every core, in elements
func (kb *Builder) BlockOffsets() []int64 {
	offsets := make([]int64, len(kb.Plans))
	for i, p := range kb.Plans {
		offsets[i] = int64(p.Block.Offset)
	}
	return offsets
}

// BlockLengths returns the share length of every core, in elements
func (kb *Builder) BlockLengths() []int64 {
	lengths := make([]int64, len(kb.Plans))
	for i, p := range kb.Plans {
		lengths[i] = int64(p.Block.Length)
	}
	return lengths
}

// LoopLength is the chunk length shared by every core
func (kb *Builder) LoopLength() int {
	return kb.Plans[0].Loop.ChunkLength
}

// GeneratePreamble emits type definitions, sizing constants and block
// access macros
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatSuffix = "f"
	}
	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", TypeName(kb.FloatType)))
	sb.WriteString("typedef long int_t;\n")
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define BLOCK_NUM %d\n", len(kb.Plans)))
	sb.WriteString(fmt.Sprintf("#define LOOP_LENGTH %d\n", kb.LoopLength()))
	sb.WriteString(fmt.Sprintf("#define INNER_DIM %d\n", kb.InnerDim))
	sb.WriteString("\n")

	sb.WriteString("// Block access macros\n")
	for _, name := range append(append([]string{}, kb.Inputs...), kb.Output) {
		sb.WriteString(fmt.Sprintf("#define %s_BLOCK(b) (%s_global + blockOffset[b])\n", name, name))
	}
	sb.WriteString("\n")

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// GenerateKernelSignature lists the kernel parameters: block offsets and
// lengths first, then inputs in order, then the output
func (kb *Builder) GenerateKernelSignature() string {
	params := []string{"const int_t* blockOffset", "const int_t* blockLength"}
	for _, name := range kb.Inputs {
		params = append(params, fmt.Sprintf("const real_t* %s_global", name))
	}
	params = append(params, fmt.Sprintf("real_t* %s_global", kb.Output))
	return strings.Join(params, ",\n\t")
}

// GenerateKernel returns the full source of kernelName. expr is a C
// expression over v0, v1, ... (the staged input values) yielding the output.
func (kb *Builder) GenerateKernel(kernelName, expr string) string {
	var sb strings.Builder

	sb.WriteString(kb.GeneratePreamble())
	sb.WriteString(fmt.Sprintf("@kernel void %s(\n\t%s\n) {\n", kernelName, kb.GenerateKernelSignature()))
	sb.WriteString("\tfor (int b = 0; b < BLOCK_NUM; ++b; @outer) {\n")
	sb.WriteString("\t\tfor (int lane = 0; lane < INNER_DIM; ++lane; @inner) {\n")
	for _, name := range kb.Inputs {
		sb.WriteString(fmt.Sprintf("\t\t\tconst real_t* %s = %s_BLOCK(b);\n", name, name))
	}
	sb.WriteString(fmt.Sprintf("\t\t\treal_t* %s = %s_BLOCK(b);\n", kb.Output, kb.Output))
	sb.WriteString("\t\t\tconst int_t len = blockLength[b];\n")
	sb.WriteString("\t\t\tfor (int_t c = 0; c < len; c += LOOP_LENGTH) {\n")
	sb.WriteString("\t\t\t\tconst int_t n = (len - c < LOOP_LENGTH) ? (len - c) : LOOP_LENGTH;\n")
	sb.WriteString("\t\t\t\tfor (int_t i = lane; i < n; i += INNER_DIM) {\n")
	for i, name := range kb.Inputs {
		sb.WriteString(fmt.Sprintf("\t\t\t\t\tconst real_t v%d = %s[c + i];\n", i, name))
	}
	sb.WriteString(fmt.Sprintf("\t\t\t\t\t%s[c + i] = %s;\n", kb.Output, expr))
	sb.WriteString("\t\t\t\t}\n")
	sb.WriteString("\t\t\t}\n")
	sb.WriteString("\t\t}\n")
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")

	return sb.String()
}
