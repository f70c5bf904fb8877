package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tandemkv/tandem"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tandem",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tandem version %s\n", tandem.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
