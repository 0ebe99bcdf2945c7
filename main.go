package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/tokenman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tokenman: %v\n", err)
		os.Exit(1)
	}
}
