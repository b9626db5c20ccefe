// Command jsonrpcd serves the bundled capability sets over JSON-RPC 2.0 and calls them from the
// command line.
package main

import (
	"os"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).root().Execute(); err != nil {
		os.Exit(1)
	}
}
