// Package main is the entry point for satori-agent.
package main

import (
	"os"

	"github.com/satori-nvr/satori/cmd/satori-agent/cmd"
	"github.com/satori-nvr/satori/internal/version"
)

func main() {
	version.ApplicationName = "satori-agent"
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
