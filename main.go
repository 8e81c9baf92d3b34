package main

import (
	"os"

	"github.com/bandwatch/bandwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
