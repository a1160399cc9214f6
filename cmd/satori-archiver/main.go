// Package main is the entry point for satori-archiver.
package main

import (
	"os"

	"github.com/satori-nvr/satori/cmd/satori-archiver/cmd"
	"github.com/satori-nvr/satori/internal/version"
)

func main() {
	version.ApplicationName = "satori-archiver"
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
