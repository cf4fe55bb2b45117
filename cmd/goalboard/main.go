package main

import (
	"fmt"
	"os"

	"github.com/thruflo/goalboard/internal/cli"
	"github.com/thruflo/goalboard/internal/logging"
)

func main() {
	err := cli.Execute()
	_ = logging.Default().Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
