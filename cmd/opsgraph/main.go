// Command opsgraph runs the operations assistant workflow engine from
// the command line: one-shot runs, streamed runs, session resumption,
// and checkpoint management.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
