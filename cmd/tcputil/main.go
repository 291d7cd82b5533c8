package main

import (
	"fmt"
	"os"
)

const usage = `usage: tcputil <command> [flags]

commands:
  serve   accept connections, log what peers send (optionally echo to all)
  dial    connect to a server, send stdin lines, print what comes back
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = serve(os.Args[2:])
	case "dial":
		err = dial(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tcputil: %+v\n", err)
		os.Exit(1)
	}
}
