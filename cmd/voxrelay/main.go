package main

import (
	"os"

	"github.com/harunnryd/voxrelay/pkg/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.DefaultDependencies()).Execute(); err != nil {
		os.Exit(1)
	}
}
