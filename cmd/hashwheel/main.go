package main

import (
	"fmt"
	"os"

	"github.com/KFCxMcDonalds/hashwheel/cmd/hashwheel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
