package main

import (
	"os"

	"github.com/vinayprograms/resourcekit/cmd/resourced/subcmd"
)

func main() {
	if err := subcmd.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
