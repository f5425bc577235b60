package main

import (
	"os"

	"github.com/nghyane/query-gateway/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
