package runner

import (
	"errors"
	"fmt"
)

// ErrTransport reports a failed copy between global and on-chip memory.
// It is fatal to the invocation; nothing is retried.
var ErrTransport = errors.New("device copy failed")

// KernelError records which core and pipeline stage failed
type KernelError struct {
	Kernel string
	Core   int
	Op     string
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel %s core %d: %s: %v", e.Kernel, e.Core, e.Op, e.Err)
}

func (e *KernelError) Unwrap() error {
	return e.Err
}
