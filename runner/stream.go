package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStreamClosed is returned when work is submitted to a closed stream
var ErrStreamClosed = errors.New("stream closed")

// Stream is an ordered queue of device work. Every call that issues device
// work takes the stream explicitly; there is no current device or current
// stream.
//
// Tasks run one at a time in submission order. After a task fails, later
// tasks are skipped until Synchronize reports the failure. Submit and
// Synchronize may be called from any goroutine.
type Stream struct {
	dev *Device

	tasks chan streamTask
	done  chan struct{}

	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	err     error
}

type streamTask struct {
	name string
	fn   func(ctx context.Context) error
}

// NewStream creates a stream on d
func (d *Device) NewStream() *Stream {
	s := &Stream{
		dev:   d,
		tasks: make(chan streamTask, 16),
		done:  make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Device returns the device the stream issues work to
func (s *Stream) Device() *Device {
	return s.dev
}

func (s *Stream) loop() {
	defer close(s.done)
	for t := range s.tasks {
		s.mu.Lock()
		failed := s.err != nil
		s.mu.Unlock()

		var err error
		if !failed {
			err = t.fn(context.Background())
		}

		s.mu.Lock()
		if err != nil {
			s.err = fmt.Errorf("%s: %w", t.name, err)
		}
		s.pending--
		if s.pending == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

// Submit enqueues fn. It returns as soon as the task is queued.
func (s *Stream) Submit(name string, fn func(ctx context.Context) error) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	s.tasks <- streamTask{name: name, fn: fn}
	return nil
}

// Synchronize blocks until every submitted task has finished and returns
// the first failure since the previous Synchronize.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
	err := s.err
	s.err = nil
	return err
}

// Close waits for queued work, stops the stream and returns any
// unreported failure. Calling Close more than once is safe.
func (s *Stream) Close() error {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
	s.closeMu.Unlock()
	<-s.done
	return s.Synchronize()
}
