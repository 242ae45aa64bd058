package main

import (
	"os"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
