package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...";
// it stays "dev" for local builds, matching the teacher corpus's
// convention of an ldflags-injected version string with a dev fallback.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the homestar version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
