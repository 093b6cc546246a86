// fdbridged is the bridge server daemon: it owns the real kernel
// descriptors, serves the intercepted file-I/O procedures over a unix or
// TCP stream, and answers each client connection strictly in request order.
package main

import (
	"os"

	"github.com/catabozan/fdbridge/cmd/fdbridged/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
