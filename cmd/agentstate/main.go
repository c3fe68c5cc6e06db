// agentstate is the operator CLI for the shared coordination state: raw
// key access, agent liveness, stats and a coordination smoke test.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
