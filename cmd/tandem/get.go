package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <token>",
	Short: "Print the session stored under a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		session, err := store.Get(cmd.Context(), sessionKey(cmd, args[0]))
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("no session at that token")
		}
		return printSession(session)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
