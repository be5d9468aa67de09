package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version and commitHash are set at build time via -ldflags.
var version string
var commitHash string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of audiosink",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("audiosink version: %s, %s/%s, commit: %s\n", version, runtime.GOOS, runtime.GOARCH, commitHash)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
