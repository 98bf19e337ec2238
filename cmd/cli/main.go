package main

import (
	"os"

	"github.com/sitecms/sitecms/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
