package net

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ConnorGibbons/TCPUtils/common"
	"github.com/ConnorGibbons/TCPUtils/concurrent"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// A handle that records requests and lets the test drive state.
type fakeHandle struct {
	lock     sync.Mutex
	state    State
	failure  error
	onState  StateHandler
	queue    *concurrent.SerialQueue
	sends    [][]byte
	recvs    []func([]byte, bool, error)
	cancels  int
	endpoint Endpoint
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{endpoint: HostPort{"10.0.0.1", 9000}}
}

func (f *fakeHandle) State() (State, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.state, f.failure
}

func (f *fakeHandle) SetStateHandler(fn StateHandler) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.onState = fn
}

func (f *fakeHandle) Start(q *concurrent.SerialQueue) {
	f.lock.Lock()
	f.queue = q
	f.lock.Unlock()
	f.Move(StatePreparing, nil)
}

func (f *fakeHandle) Cancel() {
	f.lock.Lock()
	if f.state == StateCancelled {
		f.lock.Unlock()
		return
	}
	f.cancels++
	f.lock.Unlock()
	f.Move(StateCancelled, nil)
}

func (f *fakeHandle) Send(data []byte, fn func(error)) {
	f.lock.Lock()
	f.sends = append(f.sends, data)
	f.lock.Unlock()
	go fn(nil)
}

func (f *fakeHandle) Receive(min int, max int, fn func([]byte, bool, error)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.recvs = append(f.recvs, fn)
}

func (f *fakeHandle) Endpoint() Endpoint {
	return f.endpoint
}

func (f *fakeHandle) LocalAddr() net.Addr {
	return nil
}

func (f *fakeHandle) RemoteAddr() net.Addr {
	return nil
}

// Moves the handle and runs the state handler synchronously.
func (f *fakeHandle) Move(state State, err error) {
	f.lock.Lock()
	f.state = state
	f.failure = err
	fn := f.onState
	f.lock.Unlock()
	if fn != nil {
		fn(state, err)
	}
}

// Completes the oldest outstanding receive.
func (f *fakeHandle) Deliver(data []byte, complete bool, err error) bool {
	f.lock.Lock()
	if len(f.recvs) == 0 {
		f.lock.Unlock()
		return false
	}
	fn := f.recvs[0]
	f.recvs = f.recvs[1:]
	f.lock.Unlock()

	fn(data, complete, err)
	return true
}

func (f *fakeHandle) Pending() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.recvs)
}

func (f *fakeHandle) Sends() [][]byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([][]byte(nil), f.sends...)
}

func (f *fakeHandle) Cancels() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.cancels
}

// Collects received bytes per peer.
type recorder struct {
	lock sync.Mutex
	data map[string][]byte
}

func newRecorder() *recorder {
	return &recorder{data: make(map[string][]byte)}
}

func (r *recorder) Record(identity string, data []byte) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.data[identity] = append(r.data[identity], data...)
}

func (r *recorder) Get(identity string) string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return string(r.data[identity])
}

// Signals on a channel every time the given state is reached.
func awaitState(target State) (StateHandler, <-chan error) {
	ch := make(chan error, 16)
	return func(state State, err error) {
		if state == target {
			select {
			case ch <- err:
			default:
			}
		}
	}, ch
}

func wait(t *testing.T, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(testTimeout):
		require.FailNow(t, "Timed out waiting")
		return nil
	}
}

func NewTestContext() common.Context {
	return common.NewEmptyContext()
}

// Starts a server on an ephemeral port and waits for it to listen.
func NewTestServer(t *testing.T, fns ...ServerOptionsFn) *Server {
	onState, ready := awaitState(StateReady)

	server, err := NewServer(NewTestContext(), 0, append(fns, ServerState(onState))...)
	require.Nil(t, err)

	server.Start()
	wait(t, ready)
	return server
}

func ServerPort(s *Server) int {
	return s.Addr().(*net.TCPAddr).Port
}

// Connects a client to the server and waits for it to be ready.
func NewTestClient(t *testing.T, s *Server, fns ...ConnectionOptionsFn) *Connection {
	onState, ready := awaitState(StateReady)

	conn, err := NewConnection(NewTestContext(), "127.0.0.1", ServerPort(s), append(fns, ConnState(onState))...)
	require.Nil(t, err)

	conn.Start()
	wait(t, ready)
	return conn
}

// The identity the server assigns to a client.
func ClientIdentity(c *Connection) string {
	return Identity(EndpointOf(c.LocalAddr()))
}

// A listener driven by the test.
type fakeListener struct {
	lock    sync.Mutex
	state   State
	onState StateHandler
	onConn  func(Handle)
	limit   int
	queue   *concurrent.SerialQueue
}

func newFakeListener() *fakeListener {
	return &fakeListener{}
}

func (f *fakeListener) State() (State, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.state, nil
}

func (f *fakeListener) SetStateHandler(fn StateHandler) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.onState = fn
}

func (f *fakeListener) SetNewConnectionHandler(fn func(Handle)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.onConn = fn
}

func (f *fakeListener) SetNewConnectionLimit(limit int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.limit = limit
}

func (f *fakeListener) Start(q *concurrent.SerialQueue) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.queue = q
	f.state = StateReady
}

func (f *fakeListener) Cancel() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.state = StateCancelled
}

func (f *fakeListener) Addr() net.Addr {
	return nil
}

// Hands a handle to the server, as if it had just been accepted.
func (f *fakeListener) Accept(h Handle) {
	f.lock.Lock()
	fn, q := f.onConn, f.queue
	f.lock.Unlock()
	q.Async(func() {
		fn(h)
	})
}

// Holds a server for callbacks that are registered before the server
// exists.
type serverRef struct {
	ready  chan struct{}
	server *Server
}

func newServerRef() *serverRef {
	return &serverRef{ready: make(chan struct{})}
}

func (r *serverRef) Set(s *Server) *Server {
	r.server = s
	close(r.ready)
	return s
}

func (r *serverRef) Get() *Server {
	<-r.ready
	return r.server
}

func testTimeoutAfter() <-chan time.Time {
	return time.After(testTimeout)
}
