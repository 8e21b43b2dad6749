// Command blobcache inspects and maintains blobcache disk caches.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time.
var Version = ""

func main() {
	if Version == "" {
		Version = "unknown (built from source)"
	}
	cmd := newRootCmd()
	cmd.Version = Version
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
