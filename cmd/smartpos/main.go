package main

import (
	"fmt"
	"os"

	"github.com/MythicalCosmic/smart-pos/internal/cli"
	"github.com/MythicalCosmic/smart-pos/internal/version"
)

func main() {
	if err := cli.RootCmd(version.String()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
