package main

import (
	"os"

	"github.com/baaaaaaaka/calltrace/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
