// nodepulsed is the telemetry ingestion daemon and its admin CLI.
package main

import (
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
