package main

import (
	"os"

	"github.com/gridwise/tariffsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
