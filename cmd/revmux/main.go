package main

import (
	"os"

	"github.com/dshills/revmux/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
