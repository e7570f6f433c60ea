// pagewatchctl - offline classification and schema tooling for pagewatch
package main

import (
	"os"

	"github.com/mbd888/pagewatch/internal/cli"
)

// Version is set by ldflags
var Version = "dev"

func main() {
	if err := cli.Execute(Version); err != nil {
		os.Exit(1)
	}
}
