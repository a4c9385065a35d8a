// Package main provides the entry point for the pspdata CLI tool.
package main

import "github.com/legislature-data/cz-psp-pipeline/cmd/pspdata/cmd"

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
