package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tandemkv/tandem"
	"github.com/tandemkv/tandem/internal/config"
	"github.com/tandemkv/tandem/internal/logging"
	"github.com/tandemkv/tandem/pkg/domain"
	"github.com/tandemkv/tandem/pkg/middleware"
)

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Operate a tandem session token store",
	Long:  `Tandem stores opaque session tokens across a primary/cache Redis pair. This CLI creates, inspects, renews and deletes sessions against a configured pair.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML config file (env vars override)")
	rootCmd.PersistentFlags().StringP("namespace", "n", domain.APINamespace, "Token namespace to operate in")
}

// openStore builds the hybrid store from the configured replica pair and
// verifies both are reachable.
func openStore(cmd *cobra.Command) (*tandem.Store, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	opts := []tandem.Option{tandem.WithLogger(logging.New(level))}
	if cfg.Encryption.Key != "" {
		encryption, err := encryptionConfig(cfg.Encryption)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tandem.WithMiddleware(middleware.NewEncryption(encryption)))
	}

	store := tandem.New(tandem.Config{
		Primary: tandem.Backend(cfg.Primary),
		Cache:   tandem.Backend(cfg.Cache),
	}, opts...)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping replicas: %w", err)
	}
	return store, nil
}

// encryptionConfig decodes the base64 keys and validates lengths up front, so
// a bad key is a clean CLI error instead of a panic.
func encryptionConfig(cfg config.Encryption) (middleware.EncryptionConfig, error) {
	active, err := decodeKey(cfg.Key)
	if err != nil {
		return middleware.EncryptionConfig{}, fmt.Errorf("encryption.key: %w", err)
	}
	fallbacks := make([][]byte, 0, len(cfg.FallbackKeys))
	for i, encoded := range cfg.FallbackKeys {
		key, err := decodeKey(encoded)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("encryption.fallback_keys[%d]: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	return middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallbacks}, nil
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key is %d bytes, want 32", len(key))
	}
	return key, nil
}

func sessionKey(cmd *cobra.Command, token string) domain.SessionKey {
	namespace, _ := cmd.Flags().GetString("namespace")
	return domain.SessionKey{Token: token, Namespace: namespace}
}

// sessionView renders a session the way API consumers see it: timestamps as
// RFC 3339 strings, optional fields omitted.
type sessionView struct {
	UserID    any    `json:"userId"`
	Metadata  any    `json:"metadata,omitempty"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	IP        string `json:"ip,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
}

func printSession(session *domain.Session) error {
	view := sessionView{
		UserID:    session.UserID,
		Metadata:  session.Metadata,
		CreatedAt: session.CreatedAt.Format(time.RFC3339),
		IP:        session.IP,
		ClientID:  session.ClientID,
	}
	if session.ExpiresAt != nil {
		view.ExpiresAt = session.ExpiresAt.Format(time.RFC3339)
	}
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
