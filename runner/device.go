package runner

import (
	"sync"
	"sync/atomic"

	"github.com/notargets/TileKernel/runner/builder"
)

// Direction of a device copy
type Direction int

const (
	CopyIn  Direction = iota // global memory -> staging buffer
	CopyOut                  // staging buffer -> global memory
)

func (d Direction) String() string {
	if d == CopyIn {
		return "copy-in"
	}
	return "copy-out"
}

// CopyOp describes one device copy. Offset is the global element index.
type CopyOp struct {
	Kernel string
	Core   int
	Dir    Direction
	Offset int
	Length int
}

// CopyHook observes every device copy before it happens. A non-nil error
// fails the copy.
type CopyHook func(CopyOp) error

// ChunkState is the pipeline position of one chunk
type ChunkState int

const (
	Idle ChunkState = iota
	StagedIn
	Computed
	StagedOut
)

func (s ChunkState) String() string {
	switch s {
	case StagedIn:
		return "StagedIn"
	case Computed:
		return "Computed"
	case StagedOut:
		return "StagedOut"
	default:
		return "Idle"
	}
}

// ChunkEvent reports a chunk entering a pipeline state
type ChunkEvent struct {
	Kernel string
	Core   int
	Chunk  int
	Tail   bool
	State  ChunkState
}

// TraceHook receives chunk events. It is called concurrently from every
// core and pipeline stage.
type TraceHook func(ChunkEvent)

// DeviceStats counts work issued to a device
type DeviceStats struct {
	Launches int64
	CopyIns  int64
	CopyOuts int64
}

// Device models the accelerator: CoreCount independent cores, each with
// BufferBytes of on-chip working memory, sharing device-global memory.
type Device struct {
	Config builder.Config

	mu        sync.RWMutex
	copyHook  CopyHook
	traceHook TraceHook

	launches atomic.Int64
	copyIns  atomic.Int64
	copyOuts atomic.Int64
}

// NewDevice creates a device from cfg, filling in reference defaults
func NewDevice(cfg builder.Config) (*Device, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev := &Device{Config: cfg}
	dev.logf("Created device: %d cores, %d bytes on-chip, %d-deep staging, alignment %d",
		cfg.CoreCount, cfg.BufferBytes, cfg.BufferNum, cfg.Alignment)
	return dev, nil
}

// SetCopyHook installs h on every later copy; nil removes it
func (d *Device) SetCopyHook(h CopyHook) {
	d.mu.Lock()
	d.copyHook = h
	d.mu.Unlock()
}

// SetTraceHook installs h for chunk state events; nil removes it
func (d *Device) SetTraceHook(h TraceHook) {
	d.mu.Lock()
	d.traceHook = h
	d.mu.Unlock()
}

// Stats returns the counters accumulated since the device was created
func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		Launches: d.launches.Load(),
		CopyIns:  d.copyIns.Load(),
		CopyOuts: d.copyOuts.Load(),
	}
}

func (d *Device) observe(op CopyOp) error {
	if op.Dir == CopyIn {
		d.copyIns.Add(1)
	} else {
		d.copyOuts.Add(1)
	}
	d.mu.RLock()
	h := d.copyHook
	d.mu.RUnlock()
	if h != nil {
		return h(op)
	}
	return nil
}

func (d *Device) trace(ev ChunkEvent) {
	d.mu.RLock()
	h := d.traceHook
	d.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

func (d *Device) logf(format string, args ...interface{}) {
	if d.Config.Verbose {
		d.Config.Logger.Printf(format, args...)
	}
}
