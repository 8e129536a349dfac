package main

import (
	"os"

	"citylayers/cmd/citylayers/tool/cmd"

	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
