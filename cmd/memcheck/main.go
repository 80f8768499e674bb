package main

import (
	"os"

	"github.com/cudabase/arsenal/cmd/memcheck/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
