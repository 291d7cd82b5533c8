package concurrent

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"
)

var QueueClosedError = errors.New("CONCURRENT:QUEUE:CLOSED")

// A serial queue is an ordered execution context: submitted tasks run one
// at a time, in submission order, on a single dedicated goroutine.
//
// Tasks may themselves submit work to the queue they are running on.  To
// avoid a task waiting on itself, a synchronous submission made from the
// queue's own goroutine runs inline.  Both paths preserve the guarantee
// that no two tasks ever run concurrently.
type SerialQueue struct {
	name   string
	tasks  *queue.Queue
	owner  atomic.Int64
	closed chan struct{}
	closer sync.Once
}

func NewSerialQueue(name string) *SerialQueue {
	q := &SerialQueue{
		name:   name,
		tasks:  queue.New(16),
		closed: make(chan struct{}),
	}

	ready := make(chan struct{})
	go q.work(ready)
	<-ready
	return q
}

func (q *SerialQueue) Name() string {
	return q.name
}

// Whether the caller is running on this queue.
func (q *SerialQueue) IsCurrent() bool {
	return q.owner.Load() == goid()
}

// Enqueues a task and returns immediately.
func (q *SerialQueue) Async(fn func()) error {
	if err := q.tasks.Put(fn); err != nil {
		return errors.Wrapf(QueueClosedError, "Queue [%v]", q.name)
	}
	return nil
}

// Runs a task on the queue and waits for it to complete.  When called from
// the queue itself, the task runs inline.
func (q *SerialQueue) Sync(fn func()) error {
	if q.IsCurrent() {
		fn()
		return nil
	}

	t := &syncTask{fn: fn, done: make(chan struct{})}
	if err := q.Async(t.run); err != nil {
		return err
	}

	select {
	case <-t.done:
		return nil
	case <-q.closed:
		if t.abandon() {
			return errors.Wrapf(QueueClosedError, "Queue [%v]", q.name)
		}
		<-t.done
		return nil
	}
}

// A synchronous task either runs to completion or is abandoned by its
// waiter once the queue closes, never both.
type syncTask struct {
	lock      sync.Mutex
	fn        func()
	done      chan struct{}
	started   bool
	abandoned bool
}

func (t *syncTask) run() {
	t.lock.Lock()
	if t.abandoned {
		t.lock.Unlock()
		return
	}
	t.started = true
	t.lock.Unlock()

	defer close(t.done)
	t.fn()
}

func (t *syncTask) abandon() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.started {
		return false
	}
	t.abandoned = true
	return true
}

// Stops the queue.  Tasks that have not yet started are dropped.
func (q *SerialQueue) Close() error {
	if q.tasks.Disposed() {
		return errors.Wrapf(QueueClosedError, "Queue [%v]", q.name)
	}
	q.tasks.Dispose()
	q.closer.Do(func() {
		close(q.closed)
	})
	return nil
}

func (q *SerialQueue) Closed() <-chan struct{} {
	return q.closed
}

func (q *SerialQueue) work(ready chan<- struct{}) {
	q.owner.Store(goid())
	close(ready)

	for {
		items, err := q.tasks.Get(1)
		if err != nil {
			return
		}

		for _, item := range items {
			item.(func())()
		}
	}
}

var goroutinePrefix = []byte("goroutine ")

// Returns the id of the calling goroutine, as reported in its stack header
// ("goroutine 42 [running]:").
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	str := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(str, ' '); i > 0 {
		str = str[:i]
	}

	id, err := strconv.ParseInt(string(str), 10, 64)
	if err != nil {
		panic(errors.Wrap(err, "Unable to determine goroutine id"))
	}
	return id
}
