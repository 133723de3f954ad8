// Portico - SSH and remote-desktop connection client
package main

import (
	"os"

	"github.com/portico-labs/portico/internal/cli"
	"github.com/portico-labs/portico/internal/version"
)

func main() {
	// Hand the build identity to the CLI before any command renders it.
	cli.Version = version.Version
	cli.BuildTime = version.BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
