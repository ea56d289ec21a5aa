package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/strato-labs/stratoctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if errors.Is(err, cli.ErrChangesPending) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
