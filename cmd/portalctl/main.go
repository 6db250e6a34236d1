// portalctl is a terminal client for the portal: it keeps the session in a
// local state file shared by every invocation, like tabs share a browser.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
