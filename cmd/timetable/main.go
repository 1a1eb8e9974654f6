package main

import (
	"context"
	"fmt"
	"os"

	"timetable/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(&cli.App{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
