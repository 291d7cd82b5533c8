package main

import (
	"flag"
	"time"

	"github.com/ConnorGibbons/TCPUtils/common"
)

type serveOptions struct {
	ConfigPath     string
	Port           int
	MaxConnections int
	Echo           bool
}

type dialOptions struct {
	ConfigPath string
	Addr       string
	Wait       time.Duration
}

func parseServeFlags(args []string) (serveOptions, error) {
	fs := flag.NewFlagSet("tcputil serve", flag.ContinueOnError)
	var opts serveOptions
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	fs.IntVar(&opts.Port, "port", 8080, "Port to listen on")
	fs.IntVar(&opts.MaxConnections, "max", 10, "Maximum concurrent connections")
	fs.BoolVar(&opts.Echo, "echo", false, "Broadcast everything received to all peers")
	return opts, fs.Parse(args)
}

func parseDialFlags(args []string) (dialOptions, error) {
	fs := flag.NewFlagSet("tcputil dial", flag.ContinueOnError)
	var opts dialOptions
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&opts.Addr, "addr", "localhost:8080", "Address to connect to (host:port)")
	fs.DurationVar(&opts.Wait, "wait", 30*time.Second, "How long to wait for the connection to become ready")
	return opts, fs.Parse(args)
}

func newContext(path string) (common.Context, error) {
	if path == "" {
		return common.NewContext(common.NewEmptyConfig()), nil
	}

	config, err := common.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return common.NewContext(config), nil
}
