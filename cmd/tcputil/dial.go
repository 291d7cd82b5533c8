package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/ConnorGibbons/TCPUtils/common"
	"github.com/ConnorGibbons/TCPUtils/net"
	"github.com/pkg/errors"
)

func dial(args []string) error {
	opts, err := parseDialFlags(args)
	if err != nil {
		return err
	}

	ctx, err := newContext(opts.ConfigPath)
	if err != nil {
		return err
	}
	defer ctx.Close()

	ready := make(chan error, 1)
	conn, err := net.Dial(ctx, opts.Addr,
		net.ConnReceive(func(data []byte) {
			os.Stdout.Write(data)
		}),
		net.ConnState(func(state net.State, err error) {
			if state != net.StateReady && state != net.StateFailed {
				return
			}
			select {
			case ready <- err:
			default:
			}
		}))
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.Start()
	select {
	case err := <-ready:
		if err != nil {
			return err
		}
	case <-time.After(opts.Wait):
		return errors.Wrapf(common.TimeoutError, "Not connected to [%v] after [%v]", opts.Addr, opts.Wait)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := conn.SendString(fmt.Sprintln(scanner.Text())); err != nil {
			return errors.Wrap(err, "Error sending")
		}
	}
	return scanner.Err()
}
