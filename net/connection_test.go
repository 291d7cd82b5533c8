package net

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_New(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "::1", "example.com", "my-host.internal."} {
		for _, port := range []int{0, 1, 80, 65535} {
			conn, err := NewConnection(NewTestContext(), host, port)
			require.Nil(t, err, "%v:%v", host, port)
			assert.Equal(t, StateIdle, conn.State())
			assert.False(t, conn.State().Terminal())
			assert.Nil(t, conn.Close())
		}
	}
}

func TestConnection_New_InvalidPort(t *testing.T) {
	for _, port := range []int{-1, 65536, 100000} {
		_, err := NewConnection(NewTestContext(), "localhost", port)
		assert.Equal(t, InvalidPortError, errors.Cause(err))
	}
}

func TestConnection_New_InvalidIP(t *testing.T) {
	for _, host := range []string{"", "999.999.1.1", "bad host", "-leading.com", "a..b"} {
		_, err := NewConnection(NewTestContext(), host, 80)
		assert.Equal(t, InvalidIPError, errors.Cause(err), host)
	}
}

func TestConnection_Dial_InvalidAddr(t *testing.T) {
	_, err := Dial(NewTestContext(), "localhost")
	assert.Equal(t, InvalidIPError, errors.Cause(err))

	_, err = Dial(NewTestContext(), "localhost:http")
	assert.Equal(t, InvalidPortError, errors.Cause(err))
}

func TestConnection_Identity(t *testing.T) {
	conn := WrapConnection(NewTestContext(), newFakeHandle())
	assert.Equal(t, "10.0.0.1:9000", conn.Identity())
	assert.NotEqual(t, WrapConnection(NewTestContext(), newFakeHandle()).ID(), conn.ID())
}

func TestConnection_SendData_NotReady(t *testing.T) {
	handle := newFakeHandle()
	conn := WrapConnection(NewTestContext(), handle)

	for _, state := range []State{StateIdle, StatePreparing, StateFailed, StateCancelled} {
		handle.Move(state, nil)
		assert.Equal(t, NotReadyError, errors.Cause(conn.SendData([]byte("x"))))
		assert.Equal(t, NotReadyError, errors.Cause(conn.SendString("x")))
	}
	assert.Empty(t, handle.Sends())
}

func TestConnection_SendData_Ready(t *testing.T) {
	handle := newFakeHandle()

	done := make(chan error, 2)
	conn := WrapConnection(NewTestContext(), handle, ConnSend(func(err error) {
		done <- err
	}))

	handle.Move(StateReady, nil)
	assert.Nil(t, conn.SendData([]byte("abc")))
	assert.Nil(t, conn.SendString("def"))
	assert.Nil(t, wait(t, done))
	assert.Nil(t, wait(t, done))
	assert.Equal(t, [][]byte{[]byte("abc"), []byte("def")}, handle.Sends())
}

func TestConnection_SendString_Unsupported(t *testing.T) {
	handle := newFakeHandle()
	conn := WrapConnection(NewTestContext(), handle)

	handle.Move(StateReady, nil)
	assert.Equal(t, UnsupportedDataError, errors.Cause(conn.SendString("\xff\xfe")))
	assert.Empty(t, handle.Sends())
}

func TestConnection_Close_Twice(t *testing.T) {
	handle := newFakeHandle()
	conn := WrapConnection(NewTestContext(), handle)
	conn.Start()

	assert.Nil(t, conn.Close())
	assert.Nil(t, conn.Close())
	assert.Equal(t, 1, handle.Cancels())
	assert.Equal(t, StateCancelled, conn.State())
}

func TestConnection_Start_Twice(t *testing.T) {
	handle := newFakeHandle()
	conn := WrapConnection(NewTestContext(), handle)
	defer conn.Close()

	conn.Start()
	conn.Start()
	assert.Equal(t, 1, handle.Pending())
}

func TestConnection_ReceiveLoop(t *testing.T) {
	handle := newFakeHandle()

	chunks := make(chan []byte, 8)
	conn := WrapConnection(NewTestContext(), handle, ConnReceive(func(data []byte) {
		chunks <- data
	}))
	conn.Start()
	require.Equal(t, 1, handle.Pending())

	assert.True(t, handle.Deliver([]byte("a"), false, nil))
	assert.Equal(t, []byte("a"), <-chunks)
	require.Equal(t, 1, handle.Pending())

	// empty chunks are not delivered, but the loop continues
	assert.True(t, handle.Deliver(nil, false, nil))
	require.Equal(t, 1, handle.Pending())

	assert.True(t, handle.Deliver([]byte("b"), true, nil))
	assert.Equal(t, []byte("b"), <-chunks)
	assert.Equal(t, 0, handle.Pending())
	assert.Empty(t, chunks)
}

func TestConnection_ReceiveLoop_Error(t *testing.T) {
	handle := newFakeHandle()

	chunks := make(chan []byte, 8)
	conn := WrapConnection(NewTestContext(), handle, ConnReceive(func(data []byte) {
		chunks <- data
	}))
	conn.Start()

	assert.True(t, handle.Deliver([]byte("last"), false, errors.New("boom")))
	assert.Equal(t, []byte("last"), <-chunks)
	assert.Equal(t, 0, handle.Pending())
}

func TestConnection_SetStateHandler(t *testing.T) {
	handle := newFakeHandle()

	first := make(chan State, 8)
	second := make(chan State, 8)
	conn := WrapConnection(NewTestContext(), handle, ConnState(func(s State, _ error) {
		first <- s
	}))

	handle.Move(StatePreparing, nil)
	conn.SetStateHandler(func(s State, _ error) {
		second <- s
	})
	handle.Move(StateReady, nil)

	assert.Equal(t, StatePreparing, <-first)
	assert.Equal(t, StateReady, <-second)
	assert.Empty(t, first)
}

func TestConnection_ContextClose(t *testing.T) {
	ctx := NewTestContext()
	handle := newFakeHandle()
	WrapConnection(ctx, handle)

	assert.Nil(t, ctx.Close())
	assert.Eventually(t, func() bool {
		state, _ := handle.State()
		return state == StateCancelled
	}, testTimeout, 10*time.Millisecond)
}

func TestConnection_Tcp_Failed(t *testing.T) {
	server := NewTestServer(t)
	port := ServerPort(server)
	assert.Nil(t, server.Close())

	onState, failed := awaitState(StateFailed)
	conn, err := NewConnection(NewTestContext(), "127.0.0.1", port, ConnState(onState))
	require.Nil(t, err)
	defer conn.Close()

	conn.Start()
	assert.NotNil(t, wait(t, failed))
	assert.Equal(t, StateFailed, conn.State())
	assert.NotNil(t, conn.Failure())
	assert.Equal(t, NotReadyError, errors.Cause(conn.SendString("x")))
}
