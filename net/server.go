package net

import (
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/ConnorGibbons/TCPUtils/common"
	"github.com/ConnorGibbons/TCPUtils/concurrent"
	"github.com/pkg/errors"
)

const (
	confServerReapFailed = "tcputils.server.reap.failed"
)

const (
	defaultServerMaxConnections = 10
	defaultServerReapFailed     = false
)

type ServerOptions struct {
	MaxConnections int

	// Invoked with the identity of the sending peer and the received bytes.
	OnReceive func(string, []byte)

	// Invoked on listener state changes.
	OnState StateHandler

	// Invoked once an accepted connection has been registered.
	OnConnection func(*Connection)
}

type ServerOptionsFn func(*ServerOptions)

func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{MaxConnections: defaultServerMaxConnections}
}

func ServerMaxConnections(max int) ServerOptionsFn {
	return func(o *ServerOptions) {
		o.MaxConnections = max
	}
}

func ServerReceive(fn func(string, []byte)) ServerOptionsFn {
	return func(o *ServerOptions) {
		o.OnReceive = fn
	}
}

func ServerState(fn StateHandler) ServerOptionsFn {
	return func(o *ServerOptions) {
		o.OnState = fn
	}
}

func ServerConnection(fn func(*Connection)) ServerOptionsFn {
	return func(o *ServerOptions) {
		o.OnConnection = fn
	}
}

// A server accepts tcp connections and tracks them by peer identity.
//
// Every registry access, as well as starting and stopping the listener,
// happens on a single serial queue.  Operations invoked from that queue
// (e.g. from a new connection hook) run inline rather than waiting on
// themselves.
//
// Accepted connections stay registered until they are cancelled.  Failed
// connections remain registered (and addressable) unless the server is
// configured to reap them.
type Server struct {
	ctx      common.Context
	logger   common.Logger
	name     string
	port     int
	listener ListenerHandle
	queue    *concurrent.SerialQueue
	registry *registry

	onReceive    func(string, []byte)
	onConnection func(*Connection)
	reapFailed   bool
}

func NewServer(ctx common.Context, port int, fns ...ServerOptionsFn) (*Server, error) {
	if validatePort(port) != nil {
		return nil, errors.Wrapf(PortNotAvailableError, "Port [%v] out of range", port)
	}

	return NewServerWithListener(ctx, port, NewTcpListener(port, ReadTcpOptions(ctx.Config())), fns...), nil
}

// Returns a server accepting connections from an arbitrary listener.
func NewServerWithListener(ctx common.Context, port int, listener ListenerHandle, fns ...ServerOptionsFn) *Server {
	opts := DefaultServerOptions()
	for _, fn := range fns {
		fn(opts)
	}

	name := fmt.Sprintf("Server(%v)", port)
	ctx = ctx.Sub(name)

	s := &Server{
		ctx:          ctx,
		logger:       ctx.Logger(),
		name:         name,
		port:         port,
		listener:     listener,
		queue:        concurrent.NewSerialQueue(name),
		registry:     newRegistry(),
		onReceive:    opts.OnReceive,
		onConnection: opts.OnConnection,
		reapFailed:   ctx.Config().OptionalBool(confServerReapFailed, defaultServerReapFailed),
	}

	if s.onReceive == nil {
		s.onReceive = func(string, []byte) {}
	}

	onState := opts.OnState
	if onState == nil {
		onState = s.defaultStateHandler
	}

	listener.SetNewConnectionLimit(opts.MaxConnections)
	listener.SetStateHandler(onState)
	listener.SetNewConnectionHandler(s.accept)
	return s
}

func (s *Server) String() string {
	return s.name
}

func (s *Server) Name() string {
	return s.name
}

// The bound address, once listening.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) State() State {
	state, _ := s.listener.State()
	return state
}

// Begins listening, unless the listener is already running.
func (s *Server) Start() {
	s.run(func() {
		switch state, _ := s.listener.State(); state {
		case StateIdle, StateCancelled:
			s.listener.Start(s.queue)
		default:
			s.logger.Info("Already running [%v]", state)
		}
	})
}

// Closes every registered connection and cancels the listener.  Closing is
// asynchronous: connections leave the registry as their cancellation
// completes.
func (s *Server) Stop() {
	s.run(func() {
		for _, conn := range s.registry.All() {
			conn.Close()
		}
		s.listener.Cancel()
	})
}

// Stops the server and releases its queue.  A closed server cannot be
// restarted.
func (s *Server) Close() error {
	s.Stop()
	s.ctx.Close()
	return s.queue.Close()
}

func (s *Server) SendMessage(identity string, data []byte) error {
	return s.send(identity, func(conn *Connection) error {
		return conn.SendData(data)
	})
}

func (s *Server) SendMessageString(identity string, data string) error {
	return s.send(identity, func(conn *Connection) error {
		return conn.SendString(data)
	})
}

func (s *Server) send(identity string, fn func(*Connection) error) error {
	var err error
	if qErr := s.queue.Sync(func() {
		conn := s.registry.Get(identity)
		if conn == nil {
			err = errors.Wrapf(NonexistentError, "No connection [%v]", identity)
			return
		}

		err = fn(conn)
	}); qErr != nil {
		return qErr
	}
	return err
}

// Sends data to every registered connection.  A failure to send to one
// peer is logged and does not affect the others.
func (s *Server) Broadcast(data []byte) error {
	return s.queue.Sync(func() {
		for _, conn := range s.registry.All() {
			if err := conn.SendData(data); err != nil {
				s.logger.Error("Error broadcasting to [%v]: %v", conn.Identity(), err)
			}
		}
	})
}

func (s *Server) BroadcastString(data string) error {
	if !utf8.ValidString(data) {
		return errors.Wrapf(UnsupportedDataError, "Payload is not valid utf-8")
	}
	return s.Broadcast([]byte(data))
}

func (s *Server) ConnectionCount() int {
	var num int
	s.run(func() {
		num = s.registry.Size()
	})
	return num
}

// The identities of all registered connections, in sorted order.
func (s *Server) Peers() []string {
	var ret []string
	s.run(func() {
		ret = s.registry.Identities()
	})
	return ret
}

// Returns the connection registered under identity, or nil.
func (s *Server) Connection(identity string) *Connection {
	var ret *Connection
	s.run(func() {
		ret = s.registry.Get(identity)
	})
	return ret
}

func (s *Server) run(fn func()) {
	if err := s.queue.Sync(fn); err != nil {
		s.logger.Debug("Unable to run task: %v", err)
	}
}

// Runs on the server queue for every accepted handle.
func (s *Server) accept(handle Handle) {
	identity := Identity(handle.Endpoint())

	var conn *Connection
	conn = WrapConnection(s.ctx, handle,
		ConnReceive(func(data []byte) {
			s.onReceive(identity, data)
		}),
		ConnState(func(state State, err error) {
			s.connectionState(conn, state, err)
		}))

	// registered before the connection can possibly be cancelled, so the
	// removal always follows the insert.
	conn.ctx.Control().OnClose(func(error) {
		s.run(func() {
			if s.registry.RemoveIf(identity, conn) {
				s.logger.Info("Removed connection [%v]", identity)
			}
		})
	})

	conn.Start()
	if prev := s.registry.Put(identity, conn); prev != nil {
		s.logger.Info("Connection [%v] replaced an existing connection", identity)
	}

	s.logger.Info("Accepted connection [%v]", identity)
	if s.onConnection != nil {
		s.onConnection(conn)
	}
}

func (s *Server) connectionState(conn *Connection, state State, err error) {
	switch state {
	case StateFailed:
		s.logger.Error("Connection [%v] failed: %v", conn.Identity(), err)
		if s.reapFailed {
			conn.Close()
		}
	default:
		s.logger.Debug("Connection [%v] state: %v", conn.Identity(), state)
	}
}

func (s *Server) defaultStateHandler(state State, err error) {
	switch state {
	case StateFailed:
		s.logger.Error("Listener failed: %v", err)
	default:
		s.logger.Info("Listener state: %v", state)
	}
}
