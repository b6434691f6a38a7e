// Command cadenced runs the cadence notification engine as a daemon:
// periodic sweeps plus the admin HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
