package runner

import (
	"encoding"
	"fmt"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/tiling"
)

// DeviceMemory is a flat buffer in device-global memory
type DeviceMemory[T kernels.Number] struct {
	dev   *Device
	data  []T
	freed bool
}

// Malloc allocates n zeroed elements of global memory on dev
func Malloc[T kernels.Number](dev *Device, n int) (*DeviceMemory[T], error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", tiling.ErrConfig)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative allocation of %d elements", tiling.ErrConfig, n)
	}
	return &DeviceMemory[T]{dev: dev, data: make([]T, n)}, nil
}

// Len returns the number of elements in the buffer
func (m *DeviceMemory[T]) Len() int {
	return len(m.data)
}

// Upload copies host into the buffer. host must have exactly Len elements.
func (m *DeviceMemory[T]) Upload(host []T) error {
	if err := m.checkHost(len(host)); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	copy(m.data, host)
	return nil
}

// Download copies the buffer into host. host must have exactly Len elements.
func (m *DeviceMemory[T]) Download(host []T) error {
	if err := m.checkHost(len(host)); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	copy(host, m.data)
	return nil
}

// Free releases the buffer. Later use is an error.
func (m *DeviceMemory[T]) Free() {
	m.data = nil
	m.freed = true
}

func (m *DeviceMemory[T]) checkHost(n int) error {
	if m.freed {
		return fmt.Errorf("%w: buffer already freed", tiling.ErrConfig)
	}
	if n != len(m.data) {
		return fmt.Errorf("%w: host has %d elements, device buffer %d", tiling.ErrConfig, n, len(m.data))
	}
	return nil
}

// ParamMemory holds a marshalled parameter record in global memory
type ParamMemory struct {
	data []byte
}

// UploadParams marshals rec into device memory
func UploadParams(dev *Device, rec encoding.BinaryMarshaler) (*ParamMemory, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", tiling.ErrConfig)
	}
	b, err := rec.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal parameter record: %w", err)
	}
	return &ParamMemory{data: b}, nil
}

// Bytes returns a copy of the record as a core reads it
func (p *ParamMemory) Bytes() []byte {
	return append([]byte(nil), p.data...)
}

// globalTensor is one core's window onto a global buffer
type globalTensor[T kernels.Number] struct {
	mem    *DeviceMemory[T]
	kernel string
	core   int
	base   int
	length int
}

func newGlobalTensor[T kernels.Number](mem *DeviceMemory[T], kernel string, core int, share tiling.BlockShare) globalTensor[T] {
	return globalTensor[T]{
		mem:    mem,
		kernel: kernel,
		core:   core,
		base:   share.Offset,
		length: share.Length,
	}
}

func (g globalTensor[T]) check(off, n int) error {
	if off < 0 || off+n > g.length {
		return fmt.Errorf("%w: [%d, %d) outside share of %d", tiling.ErrBounds, off, off+n, g.length)
	}
	return nil
}

// copyIn fills dst from the share starting at off
func (g globalTensor[T]) copyIn(dst []T, off int) error {
	if err := g.check(off, len(dst)); err != nil {
		return &KernelError{Kernel: g.kernel, Core: g.core, Op: CopyIn.String(), Err: err}
	}
	op := CopyOp{Kernel: g.kernel, Core: g.core, Dir: CopyIn, Offset: g.base + off, Length: len(dst)}
	if err := g.mem.dev.observe(op); err != nil {
		return &KernelError{Kernel: g.kernel, Core: g.core, Op: CopyIn.String(),
			Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	copy(dst, g.mem.data[g.base+off:g.base+off+len(dst)])
	return nil
}

// copyOut writes src into the share starting at off
func (g globalTensor[T]) copyOut(off int, src []T) error {
	if err := g.check(off, len(src)); err != nil {
		return &KernelError{Kernel: g.kernel, Core: g.core, Op: CopyOut.String(), Err: err}
	}
	op := CopyOp{Kernel: g.kernel, Core: g.core, Dir: CopyOut, Offset: g.base + off, Length: len(src)}
	if err := g.mem.dev.observe(op); err != nil {
		return &KernelError{Kernel: g.kernel, Core: g.core, Op: CopyOut.String(),
			Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	copy(g.mem.data[g.base+off:], src)
	return nil
}
