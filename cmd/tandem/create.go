package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tandemkv/tandem/pkg/domain"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and print its token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		user, _ := cmd.Flags().GetString("user")
		rawMetadata, _ := cmd.Flags().GetString("metadata")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		ip, _ := cmd.Flags().GetString("ip")
		clientID, _ := cmd.Flags().GetString("client-id")
		token, _ := cmd.Flags().GetString("token")

		session := domain.Session{
			UserID:    parseUserID(user),
			CreatedAt: time.Now().UTC(),
			IP:        ip,
			ClientID:  clientID,
		}
		if rawMetadata != "" {
			if err := json.Unmarshal([]byte(rawMetadata), &session.Metadata); err != nil {
				return fmt.Errorf("parse --metadata: %w", err)
			}
		}
		if ttl > 0 {
			expires := session.CreatedAt.Add(ttl)
			session.ExpiresAt = &expires
		}

		namespace, _ := cmd.Flags().GetString("namespace")
		token, err = store.CreateSession(cmd.Context(), session, namespace, token)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

// parseUserID keeps numeric IDs numeric and everything else a plain string,
// matching what API clients send.
func parseUserID(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err == nil {
		return n
	}
	return raw
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringP("user", "u", "", "Subject identifier the session represents")
	createCmd.Flags().StringP("metadata", "m", "", "Session metadata as a JSON document")
	createCmd.Flags().Duration("ttl", 0, "Session lifespan (0 means the session never expires)")
	createCmd.Flags().String("ip", "", "Bind the session to a client IP address")
	createCmd.Flags().String("client-id", "", "Bind the session to a client fingerprint")
	createCmd.Flags().StringP("token", "t", "", "Store under this token instead of generating one")
	_ = createCmd.MarkFlagRequired("user")
}
