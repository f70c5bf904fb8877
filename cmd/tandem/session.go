package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var renewCmd = &cobra.Command{
	Use:   "renew <token>",
	Short: "Reset a session's expiry to its original lifespan, starting now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.MarkSessionActive(cmd.Context(), sessionKey(cmd, args[0]))
	},
}

var setMetadataCmd = &cobra.Command{
	Use:   "set-metadata <token> <json>",
	Short: "Replace a session's metadata wholesale",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var metadata any
		if err := json.Unmarshal([]byte(args[1]), &metadata); err != nil {
			return fmt.Errorf("parse metadata argument: %w", err)
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.UpdateSessionMetadata(cmd.Context(), sessionKey(cmd, args[0]), metadata)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <token>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		deleted, err := store.DeleteSession(cmd.Context(), sessionKey(cmd, args[0]))
		if err != nil {
			return err
		}
		if deleted {
			fmt.Println("deleted")
		} else {
			fmt.Println("nothing to delete")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renewCmd)
	rootCmd.AddCommand(setMetadataCmd)
	rootCmd.AddCommand(deleteCmd)
}
