package net

import (
	"fmt"
	"net"
	"sync"
	"unicode/utf8"

	"github.com/ConnorGibbons/TCPUtils/common"
	"github.com/ConnorGibbons/TCPUtils/concurrent"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Invoked once per send with the outcome of the write.
type SendHandler func(error)

// Invoked with each chunk of received bytes.  Chunks are delivered in
// order and never concurrently.
type ReceiveHandler func([]byte)

type ConnectionOptions struct {
	OnSend    SendHandler
	OnReceive ReceiveHandler
	OnState   StateHandler
}

type ConnectionOptionsFn func(*ConnectionOptions)

func ConnSend(fn SendHandler) ConnectionOptionsFn {
	return func(o *ConnectionOptions) {
		o.OnSend = fn
	}
}

func ConnReceive(fn ReceiveHandler) ConnectionOptionsFn {
	return func(o *ConnectionOptions) {
		o.OnReceive = fn
	}
}

func ConnState(fn StateHandler) ConnectionOptionsFn {
	return func(o *ConnectionOptions) {
		o.OnState = fn
	}
}

// A connection wraps a single transport handle.  It reports state changes,
// runs the receive loop and guards sends on the handle's live state.
//
// Handlers may be replaced at any time, but a replacement only applies to
// events that occur after it.  Handlers are expected to be installed before
// the connection is started.
//
// Connections should be closed by their owner once no longer needed:
//
//	conn, err := net.NewConnection(ctx, "localhost", 8080)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
type Connection struct {
	ctx      common.Context
	logger   common.Logger
	id       uuid.UUID
	identity string
	handle   Handle
	started  *concurrent.AtomicBool

	lock      sync.RWMutex
	onSend    SendHandler
	onReceive ReceiveHandler
	onState   StateHandler
}

// Returns a connection to host:port.  The connection does not dial until
// started.
func NewConnection(ctx common.Context, host string, port int, fns ...ConnectionOptionsFn) (*Connection, error) {
	if err := validatePort(port); err != nil {
		return nil, err
	}
	if err := validateHost(host); err != nil {
		return nil, err
	}

	return WrapConnection(ctx, NewTcpHandle(host, port, ReadTcpOptions(ctx.Config())), fns...), nil
}

// Returns a connection to addr (host:port).
func Dial(ctx common.Context, addr string, fns ...ConnectionOptionsFn) (*Connection, error) {
	host, port, err := SplitAddr(addr)
	if err != nil {
		return nil, err
	}
	return NewConnection(ctx, host, port, fns...)
}

// Wraps an existing handle, typically one produced by a listener.
func WrapConnection(ctx common.Context, handle Handle, fns ...ConnectionOptionsFn) *Connection {
	opts := &ConnectionOptions{}
	for _, fn := range fns {
		fn(opts)
	}

	id := uuid.NewV4()
	identity := Identity(handle.Endpoint())

	ctx = ctx.Sub("Conn(%v)", identity)
	c := &Connection{
		ctx:      ctx,
		logger:   ctx.Logger(),
		id:       id,
		identity: identity,
		handle:   handle,
		started:  concurrent.NewAtomicBool(),
	}

	c.SetSendHandler(opts.OnSend)
	c.SetReceiveHandler(opts.OnReceive)
	c.SetStateHandler(opts.OnState)

	// closing the context (e.g. the owning server shutting down) cancels the
	// stream.
	ctx.Control().OnClose(func(error) {
		c.handle.Cancel()
	})

	handle.SetStateHandler(c.handleState)
	return c
}

func (c *Connection) String() string {
	return fmt.Sprintf("Conn(%v)", c.identity)
}

// Random id of this connection instance.  Unlike the identity, ids are
// never shared.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) Identity() string {
	return c.identity
}

func (c *Connection) Endpoint() Endpoint {
	return c.handle.Endpoint()
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.handle.RemoteAddr()
}

func (c *Connection) LocalAddr() net.Addr {
	return c.handle.LocalAddr()
}

// The live state of the underlying handle.
func (c *Connection) State() State {
	state, _ := c.handle.State()
	return state
}

// The failure reason, if the connection has failed.
func (c *Connection) Failure() error {
	_, err := c.handle.State()
	return err
}

// Starts the handle on a dedicated queue and arms the receive loop.  Only
// the first call has any effect.
func (c *Connection) Start() {
	if !c.started.Swap(false, true) {
		c.logger.Debug("Already started")
		return
	}

	queue := concurrent.NewSerialQueue(fmt.Sprintf("conn-%v", c.id))
	c.handle.Start(queue)
	c.receive()
}

func (c *Connection) SendData(data []byte) error {
	if state := c.State(); state != StateReady {
		return errors.Wrapf(NotReadyError, "Connection [%v] is [%v]", c.identity, state)
	}

	c.handle.Send(data, c.sendHandler())
	return nil
}

func (c *Connection) SendString(data string) error {
	if state := c.State(); state != StateReady {
		return errors.Wrapf(NotReadyError, "Connection [%v] is [%v]", c.identity, state)
	}
	if !utf8.ValidString(data) {
		return errors.Wrapf(UnsupportedDataError, "Payload is not valid utf-8")
	}

	c.handle.Send([]byte(data), c.sendHandler())
	return nil
}

// Requests cancellation.  Calling close more than once has no effect.
func (c *Connection) Close() error {
	if c.State() == StateCancelled {
		return nil
	}

	c.handle.Cancel()
	return nil
}

func (c *Connection) SetSendHandler(fn SendHandler) {
	if fn == nil {
		fn = c.defaultSendHandler
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.onSend = fn
}

// Replaces the receive handler.  The handler is never called with an
// empty chunk.
func (c *Connection) SetReceiveHandler(fn ReceiveHandler) {
	if fn == nil {
		fn = c.defaultReceiveHandler
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.onReceive = func(data []byte) {
		if len(data) > 0 {
			fn(data)
		}
	}
}

func (c *Connection) SetStateHandler(fn StateHandler) {
	if fn == nil {
		fn = c.defaultStateHandler
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.onState = fn
}

func (c *Connection) sendHandler() SendHandler {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.onSend
}

func (c *Connection) receiveHandler() ReceiveHandler {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.onReceive
}

func (c *Connection) stateHandler() StateHandler {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.onState
}

// Each completion resubmits the next receive, until the stream ends or
// fails.  Completions therefore never overlap.
func (c *Connection) receive() {
	c.handle.Receive(1, 0, func(data []byte, complete bool, err error) {
		c.receiveHandler()(data)

		if err != nil {
			c.logger.Debug("Receive loop ended: %v", err)
			return
		}

		if complete {
			c.logger.Debug("Stream ended by remote")
			return
		}

		c.receive()
	})
}

func (c *Connection) handleState(state State, err error) {
	if state == StateCancelled {
		c.ctx.Close()
	}

	c.stateHandler()(state, err)
}

func (c *Connection) defaultSendHandler(err error) {
	if err != nil {
		c.logger.Error("Error sending data: %+v", err)
	}
}

func (c *Connection) defaultReceiveHandler(data []byte) {
	c.logger.Info("Received [%v] bytes", len(data))
}

func (c *Connection) defaultStateHandler(state State, err error) {
	switch state {
	case StateFailed:
		c.logger.Error("Connection failed: %v", err)
	default:
		c.logger.Info("State changed: %v", state)
	}
}
