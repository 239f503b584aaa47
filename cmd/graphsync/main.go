// Command graphsync serves page graphs built from synced databases.
package main

import (
	"os"

	"github.com/colinxr/notion-graph-view-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
