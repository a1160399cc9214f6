// Package main is the entry point for satori-eventd.
package main

import (
	"os"

	"github.com/satori-nvr/satori/cmd/satori-eventd/cmd"
	"github.com/satori-nvr/satori/internal/version"
)

func main() {
	version.ApplicationName = "satori-eventd"
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
