package common

import (
	"io"
	"sync"
)

// A control manages the lifecycle of a component.  A control is closed
// exactly once, either cleanly (Close) or with a cause (Fail).  Every
// registered OnClose callback is invoked once the control is closed.
// Closing a parent control closes all its sub controls with the
// parent's failure.
type Control interface {
	io.Closer
	Fail(error)
	Closed() <-chan struct{}
	IsClosed() bool
	Failure() error
	OnClose(func(error))
	Sub() Control
}

type control struct {
	lock    sync.Mutex
	closes  []func(error)
	closed  chan struct{}
	closer  chan struct{}
	failure error
}

func NewControl(parent Control) Control {
	l := &control{
		closes: make([]func(error), 0, 8),
		closed: make(chan struct{}),
		closer: make(chan struct{}, 1),
	}

	if parent != nil {
		go func() {
			select {
			case <-parent.Closed():
				l.Fail(parent.Failure())
				return
			case <-l.closed:
				return
			}
		}()
	}

	return l
}

func (c *control) Fail(cause error) {
	select {
	case <-c.closed:
		return
	case c.closer <- struct{}{}:
	}

	c.lock.Lock()
	c.failure = cause
	fns := c.closes
	c.closes = nil
	close(c.closed)
	c.lock.Unlock()

	for _, fn := range fns {
		fn(cause)
	}
}

func (c *control) Close() error {
	select {
	case <-c.closed:
		return ClosedError
	default:
	}

	c.Fail(nil)
	return nil
}

func (c *control) Closed() <-chan struct{} {
	return c.closed
}

func (c *control) IsClosed() bool {
	select {
	default:
		return false
	case <-c.closed:
		return true
	}
}

func (c *control) Failure() error {
	<-c.closed
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.failure
}

// Registers a callback to run on close.  Callbacks registered after
// the control has closed are run immediately.
func (c *control) OnClose(fn func(error)) {
	c.lock.Lock()
	if !c.IsClosed() {
		c.closes = append(c.closes, fn)
		c.lock.Unlock()
		return
	}
	cause := c.failure
	c.lock.Unlock()
	fn(cause)
}

func (c *control) Sub() Control {
	return NewControl(c)
}
