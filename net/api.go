package net

import (
	"net"

	"github.com/ConnorGibbons/TCPUtils/concurrent"
)

// A handle is a full-duplex byte stream whose lifecycle is reported
// asynchronously.  Handles never block the caller: every operation issues a
// request and reports its outcome through a callback.
//
// All callbacks (state changes, send and receive completions) are
// dispatched onto the queue given to Start.  Once a handle is cancelled and
// every outstanding completion has been delivered, the handle closes that
// queue.
type Handle interface {
	// Current state, and the failure reason when the state is StateFailed.
	State() (State, error)

	// Replaces the state handler.  Applies to subsequent transitions only.
	SetStateHandler(StateHandler)

	// Begins connecting (or activating an accepted stream).  Handles may only
	// be started once.
	Start(*concurrent.SerialQueue)

	// Requests cancellation.  Repeated calls are no-ops.
	Cancel()

	// Writes data.  The completion is invoked exactly once.
	Send(data []byte, fn func(error))

	// Reads at least min bytes and at most max bytes (0: unbounded).  The
	// completion reports whether the remote side ended the stream.
	Receive(min int, max int, fn func(data []byte, complete bool, err error))

	Endpoint() Endpoint
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// A listener accepts inbound handles.  Accepted handles are passed to the
// new connection handler on the listener's queue.  Accepted handles beyond
// the connection limit are cancelled immediately.
type ListenerHandle interface {
	State() (State, error)
	SetStateHandler(StateHandler)
	SetNewConnectionHandler(func(Handle))
	SetNewConnectionLimit(int)

	// Begins listening.  May be called again once cancelled.
	Start(*concurrent.SerialQueue)
	Cancel()

	// Bound address, or nil when not listening.
	Addr() net.Addr
}
