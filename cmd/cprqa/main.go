package main

import (
	"os"

	"cprqa/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
