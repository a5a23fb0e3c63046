package main

import (
	"os"

	"github.com/lupppig/notifyflow/cmd/notifyctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
