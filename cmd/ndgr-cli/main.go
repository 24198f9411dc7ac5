package main

import (
	"os"

	"github.com/nicolive/ndgr-client/cmd/ndgr-cli/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
