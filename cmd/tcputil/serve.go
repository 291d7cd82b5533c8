package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ConnorGibbons/TCPUtils/common"
	"github.com/ConnorGibbons/TCPUtils/net"
)

func serve(args []string) error {
	opts, err := parseServeFlags(args)
	if err != nil {
		return err
	}

	ctx, err := newContext(opts.ConfigPath)
	if err != nil {
		return err
	}
	defer ctx.Close()

	logger := ctx.Logger()

	failed := make(chan error, 1)
	var server *net.Server
	server, err = net.NewServer(ctx, opts.Port,
		net.ServerMaxConnections(opts.MaxConnections),
		net.ServerState(listenerState(logger, failed)),
		net.ServerConnection(func(c *net.Connection) {
			logger.Info("Peer connected [%v] (%v peers)", c.Identity(), server.ConnectionCount())
		}),
		net.ServerReceive(receiver(logger, opts.Echo, func(data []byte) error {
			return server.Broadcast(data)
		})))
	if err != nil {
		return err
	}
	defer server.Close()

	server.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("Shutting down")
		return nil
	case err := <-failed:
		return err
	}
}

func listenerState(logger common.Logger, failed chan<- error) net.StateHandler {
	return func(state net.State, err error) {
		switch state {
		case net.StateReady:
			logger.Info("Listening")
		case net.StateFailed:
			select {
			case failed <- err:
			default:
			}
		}
	}
}

// Logs every received chunk and, when echoing, broadcasts it to all peers.
func receiver(logger common.Logger, echo bool, broadcast func([]byte) error) func(string, []byte) {
	return func(identity string, data []byte) {
		logger.Info("[%v] %q", identity, data)
		if !echo {
			return
		}
		if err := broadcast(data); err != nil {
			logger.Error("Error echoing [%v]: %v", identity, err)
		}
	}
}
