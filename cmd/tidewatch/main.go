// Command tidewatch runs the vessel data core.
package main

import (
	"os"

	"github.com/tidewatch/tidewatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
