// Command rsort removes case-insensitive duplicate lines from large files.
package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/MrMahile/rsort/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
