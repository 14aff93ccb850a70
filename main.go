package main

import (
	"os"

	"github.com/rtzll/ytsubs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
