// Command ctxbrowser is a local-first hybrid code search server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/mcpcontext/browser/cmd/ctxbrowser/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
