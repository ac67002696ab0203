package cmd

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/julienstroheker/wsrelay/relay/cmd.Version=..."
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("wsrelay %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
