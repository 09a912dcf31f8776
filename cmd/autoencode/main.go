// Command autoencode compiles finished render jobs into farm transcode
// graphs, and can submit them to Kafka or run them locally.
package main

import (
	"os"

	"github.com/backmassage/autoencode/internal/cli"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	cli.Version, cli.Commit = version, commit
	os.Exit(cli.Execute())
}
