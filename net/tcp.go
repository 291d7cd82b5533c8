package net

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ConnorGibbons/TCPUtils/common"
	"github.com/ConnorGibbons/TCPUtils/concurrent"
	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"
)

const (
	confDialTimeout       = "tcputils.conn.dial.timeout"
	confRecvBuffer        = "tcputils.conn.recv.buffer"
	confKeepAliveEnabled  = "tcputils.server.keepalive.enabled"
	confKeepAliveIdle     = "tcputils.server.keepalive.idle"
	confKeepAliveInterval = "tcputils.server.keepalive.interval"
	confKeepAliveCount    = "tcputils.server.keepalive.count"
)

const (
	defaultDialTimeout       = 30 * time.Second
	defaultRecvBuffer        = 64 * 1024
	defaultKeepAliveEnabled  = true
	defaultKeepAliveIdle     = 2 * time.Hour
	defaultKeepAliveInterval = 75 * time.Second
	defaultKeepAliveCount    = 9
)

type TcpOptions struct {
	DialTimeout time.Duration
	RecvBuffer  int
	KeepAlive   net.KeepAliveConfig

	// Negative disables keepalive entirely.
	KeepAlivePeriod time.Duration
}

func ReadTcpOptions(config common.Config) TcpOptions {
	opts := TcpOptions{
		DialTimeout: config.OptionalDuration(confDialTimeout, defaultDialTimeout),
		RecvBuffer:  config.OptionalInt(confRecvBuffer, defaultRecvBuffer),
		KeepAlive: net.KeepAliveConfig{
			Enable:   config.OptionalBool(confKeepAliveEnabled, defaultKeepAliveEnabled),
			Idle:     config.OptionalDuration(confKeepAliveIdle, defaultKeepAliveIdle),
			Interval: config.OptionalDuration(confKeepAliveInterval, defaultKeepAliveInterval),
			Count:    config.OptionalInt(confKeepAliveCount, defaultKeepAliveCount),
		},
	}
	if !opts.KeepAlive.Enable {
		opts.KeepAlivePeriod = -1
	}
	return opts
}

type dialer func(context.Context) (net.Conn, error)

type pendingWrite struct {
	data []byte
	fn   func(error)
}

// A handle over a net.Conn.  Outbound handles dial on start, accepted
// handles wrap an already established stream.
//
// Sends are queued and written by a single writer goroutine, so bytes reach
// the stream in the order the sends were issued.
type connHandle struct {
	lock     sync.Mutex
	state    State
	failure  error
	onState  StateHandler
	endpoint Endpoint
	dial     dialer
	conn     net.Conn
	abort    context.CancelFunc
	queue    *concurrent.SerialQueue
	bufSize  int

	ready    chan struct{}
	done     chan struct{}
	eof      chan struct{}
	eofOnce  sync.Once
	writes   *queue.Queue
	inflight sync.WaitGroup
}

func newConnHandle(endpoint Endpoint, bufSize int) *connHandle {
	if bufSize <= 0 {
		bufSize = defaultRecvBuffer
	}

	return &connHandle{
		endpoint: endpoint,
		bufSize:  bufSize,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		eof:      make(chan struct{}),
		writes:   queue.New(16),
	}
}

// Returns an unstarted handle that will dial host:port on start.
func NewTcpHandle(host string, port int, opts TcpOptions) Handle {
	h := newConnHandle(HostPort{host, port}, opts.RecvBuffer)
	h.dial = func(ctx context.Context) (net.Conn, error) {
		d := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: opts.KeepAlivePeriod, KeepAliveConfig: opts.KeepAlive}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	}
	return h
}

// Wraps an established stream.
func NewConnHandle(conn net.Conn, bufSize int) Handle {
	h := newConnHandle(EndpointOf(conn.RemoteAddr()), bufSize)
	h.conn = conn
	return h
}

func (h *connHandle) State() (State, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.state, h.failure
}

func (h *connHandle) SetStateHandler(fn StateHandler) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.onState = fn
}

func (h *connHandle) Endpoint() Endpoint {
	return h.endpoint
}

func (h *connHandle) LocalAddr() net.Addr {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

func (h *connHandle) RemoteAddr() net.Addr {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.conn == nil {
		return nil
	}
	return h.conn.RemoteAddr()
}

func (h *connHandle) Start(queue *concurrent.SerialQueue) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.state != StateIdle {
		return
	}

	h.queue = queue
	go h.writeLoop()

	h.transition(StatePreparing, nil)
	if h.conn != nil {
		h.transition(StateReady, nil)
		return
	}

	ctx, abort := context.WithCancel(context.Background())
	h.abort = abort
	go func() {
		defer abort()

		conn, err := h.dial(ctx)

		h.lock.Lock()
		defer h.lock.Unlock()
		if h.state != StatePreparing {
			if conn != nil {
				conn.Close()
			}
			return
		}

		if err != nil {
			h.transition(StateFailed, errors.Wrapf(err, "Unable to connect [%v]", h.endpoint))
			return
		}

		h.conn = conn
		h.transition(StateReady, nil)
	}()
}

func (h *connHandle) Cancel() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.state == StateCancelled {
		return
	}

	if h.abort != nil {
		h.abort()
	}
	if h.conn != nil {
		h.conn.Close()
	}

	h.transition(StateCancelled, nil)
	go h.release()
}

func (h *connHandle) Send(data []byte, fn func(error)) {
	if !h.begin() {
		h.dispatch(func() { fn(h.closedError()) })
		return
	}

	if err := h.writes.Put(&pendingWrite{data, fn}); err != nil {
		h.inflight.Done()
		h.dispatch(func() { fn(h.closedError()) })
	}
}

func (h *connHandle) Receive(min int, max int, fn func([]byte, bool, error)) {
	if !h.begin() {
		h.dispatch(func() { fn(nil, false, h.closedError()) })
		return
	}

	go func() {
		defer h.inflight.Done()
		data, complete, err := h.recv(min, max)
		h.dispatch(func() { fn(data, complete, err) })
	}()
}

// Registers an outstanding operation.  Returns false if the handle has
// been cancelled.
func (h *connHandle) begin() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.state == StateCancelled {
		return false
	}

	h.inflight.Add(1)
	return true
}

func (h *connHandle) await() (net.Conn, error) {
	select {
	case <-h.ready:
	case <-h.done:
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	if h.state != StateReady {
		return nil, h.closedErrorLocked()
	}
	return h.conn, nil
}

// Drains the write queue until the handle completes.
func (h *connHandle) writeLoop() {
	for {
		items, err := h.writes.Get(1)
		if err != nil {
			return
		}

		for _, item := range items {
			w := item.(*pendingWrite)
			err := h.send(w.data)
			h.dispatch(func() { w.fn(err) })
			h.inflight.Done()
		}
	}
}

// Fails writes that were still queued when the handle completed.
func (h *connHandle) abandon(writes []interface{}) {
	for _, item := range writes {
		w := item.(*pendingWrite)
		h.dispatch(func() { w.fn(h.closedError()) })
		h.inflight.Done()
	}
}

func (h *connHandle) send(data []byte) error {
	conn, err := h.await()
	if err != nil {
		return err
	}

	if _, err := conn.Write(data); err != nil {
		return h.fail(err)
	}
	return nil
}

func (h *connHandle) recv(min int, max int) ([]byte, bool, error) {
	conn, err := h.await()
	if err != nil {
		return nil, false, err
	}

	size := max
	if size <= 0 {
		size = h.bufSize
	}
	if min < 1 {
		min = 1
	}
	if size < min {
		size = min
	}

	buf := make([]byte, size)
	num := 0
	for num < min {
		n, err := conn.Read(buf[num:])
		num += n
		if err == io.EOF {
			h.eofOnce.Do(func() { close(h.eof) })
			return buf[:num], true, nil
		}
		if err != nil {
			return buf[:num], false, h.fail(err)
		}
	}
	return buf[:num], false, nil
}

// Moves a live handle to failed.  Errors caused by cancellation are
// reported as such and leave the state alone.
func (h *connHandle) fail(cause error) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	switch h.state {
	case StateCancelled:
		return errors.Wrapf(CancelledError, "Connection [%v]", h.endpoint)
	case StateFailed:
		return h.failure
	}

	err := errors.Wrapf(cause, "Connection [%v]", h.endpoint)
	h.conn.Close()
	h.transition(StateFailed, err)
	return err
}

func (h *connHandle) closedError() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.closedErrorLocked()
}

func (h *connHandle) closedErrorLocked() error {
	if h.state == StateFailed {
		return h.failure
	}
	return errors.Wrapf(CancelledError, "Connection [%v]", h.endpoint)
}

// Must be called with the lock held.
func (h *connHandle) transition(state State, failure error) {
	if h.state == state {
		return
	}

	h.state = state
	h.failure = failure
	switch state {
	case StateReady:
		close(h.ready)
	case StateFailed:
		close(h.done)
		h.closeWrites()
	case StateCancelled:
		select {
		case <-h.done:
		default:
			close(h.done)
		}
		h.closeWrites()
	}

	if fn := h.onState; fn != nil {
		post(h.queue, func() { fn(state, failure) })
	}
}

// Must be called with the lock held.
func (h *connHandle) closeWrites() {
	if h.writes.Disposed() {
		return
	}

	if pending := h.writes.Dispose(); len(pending) > 0 {
		go h.abandon(pending)
	}
}

func (h *connHandle) dispatch(fn func()) {
	h.lock.Lock()
	queue := h.queue
	h.lock.Unlock()
	post(queue, fn)
}

// Runs fn on the queue, or on its own goroutine once the queue is gone.
func post(queue *concurrent.SerialQueue, fn func()) {
	if queue == nil || queue.Async(fn) != nil {
		go fn()
	}
}

// Waits for all outstanding completions to be queued, then releases the
// queue once they have run.
func (h *connHandle) release() {
	h.inflight.Wait()

	h.lock.Lock()
	queue := h.queue
	h.lock.Unlock()
	if queue == nil {
		return
	}

	queue.Async(func() {
		queue.Close()
	})
}

// Listens for tcp connections on a port.  Binding happens on start, so a
// port that is in use is reported through the state handler.
type tcpListener struct {
	lock     sync.Mutex
	port     int
	opts     TcpOptions
	state    State
	failure  error
	onState  StateHandler
	onConn   func(Handle)
	limit    int
	listener net.Listener
	queue    *concurrent.SerialQueue
}

func NewTcpListener(port int, opts TcpOptions) ListenerHandle {
	return &tcpListener{port: port, opts: opts}
}

func (l *tcpListener) State() (State, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state, l.failure
}

func (l *tcpListener) SetStateHandler(fn StateHandler) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.onState = fn
}

func (l *tcpListener) SetNewConnectionHandler(fn func(Handle)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.onConn = fn
}

func (l *tcpListener) SetNewConnectionLimit(limit int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.limit = limit
}

func (l *tcpListener) Addr() net.Addr {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *tcpListener) Start(queue *concurrent.SerialQueue) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.state != StateIdle && l.state != StateCancelled {
		return
	}

	l.queue = queue
	l.transition(StatePreparing, nil)

	conf := net.ListenConfig{KeepAlive: l.opts.KeepAlivePeriod, KeepAliveConfig: l.opts.KeepAlive}
	listener, err := conf.Listen(context.Background(), "tcp", fmt.Sprintf(":%v", l.port))
	if err != nil {
		l.transition(StateFailed, errors.Wrapf(PortNotAvailableError, "Unable to listen on port [%v]: %v", l.port, err))
		return
	}

	l.listener = listener
	l.transition(StateReady, nil)
	go l.accept(listener, l.limit)
}

func (l *tcpListener) Cancel() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.state == StateCancelled {
		return
	}

	if l.listener != nil {
		l.listener.Close()
		l.listener = nil
	}
	l.transition(StateCancelled, nil)
}

// Accepted streams over the limit are closed immediately.
func (l *tcpListener) accept(listener net.Listener, limit int) {
	active := concurrent.NewAtomicCounter()
	for {
		conn, err := listener.Accept()
		if err != nil {
			l.lock.Lock()
			if l.listener == listener && l.state == StateReady {
				listener.Close()
				l.listener = nil
				l.transition(StateFailed, errors.Wrapf(err, "Listener [%v]", l.port))
			}
			l.lock.Unlock()
			return
		}

		if num := active.Inc(); limit > 0 && num > limit {
			active.Dec()
			conn.Close()
			continue
		}

		// a slot is held until the stream ends or the handle completes.
		handle := NewConnHandle(conn, l.opts.RecvBuffer).(*connHandle)
		go func() {
			select {
			case <-handle.done:
			case <-handle.eof:
			}
			active.Dec()
		}()

		l.lock.Lock()
		fn := l.onConn
		queue := l.queue
		l.lock.Unlock()
		if fn == nil {
			handle.Cancel()
			continue
		}

		if queue == nil || queue.Async(func() { fn(handle) }) != nil {
			handle.Cancel()
		}
	}
}

// Must be called with the lock held.
func (l *tcpListener) transition(state State, failure error) {
	if l.state == state {
		return
	}

	l.state = state
	l.failure = failure
	if fn := l.onState; fn != nil {
		post(l.queue, func() { fn(state, failure) })
	}
}
