// Package main is the entry point for blobd-meta, the blobd admin tool:
// metadata export/import, record inspection and bearer token minting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bleepstore/blobd/internal/auth"
	"github.com/bleepstore/blobd/internal/config"
	"github.com/bleepstore/blobd/internal/metadata"
	"github.com/bleepstore/blobd/internal/serialization"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "blobd-meta",
		Short:             "blobd metadata and token administration",
		Version:           serialization.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}
	root.PersistentFlags().String("config", "blobd.yaml", "Config file path")

	root.AddCommand(exportCmd())
	root.AddCommand(importCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(inspectCmd())
	return root
}

// loadConfig reads --config. The default path may be absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	optional := !cmd.Flags().Changed("config")
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

func exportCmd() *cobra.Command {
	var dbPath, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export blobs_meta from a SQLite metadata database as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := dbPath
			if db == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				db = cfg.Metadata.SQLite.Path
			}

			result, err := serialization.ExportMetadata(cmd.Context(), db)
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}

			if output == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), result)
				return nil
			}
			if err := os.WriteFile(output, []byte(result+"\n"), 0o644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().StringVar(&output, "output", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an export document through the configured metadata engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var data []byte
			if input == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(input)
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			store, err := metadata.Open(cmd.Context(), &cfg.Metadata)
			if err != nil {
				return fmt.Errorf("opening metadata store: %w", err)
			}
			defer store.Close()

			result, err := serialization.ImportMetadata(cmd.Context(), store, string(data))
			if err != nil {
				return fmt.Errorf("importing: %w", err)
			}

			stderr := cmd.ErrOrStderr()
			fmt.Fprintf(stderr, "  blobs_meta: %d imported", result.Imported)
			if result.Skipped > 0 {
				fmt.Fprintf(stderr, ", %d skipped", result.Skipped)
			}
			fmt.Fprintln(stderr)
			for _, w := range result.Warnings {
				fmt.Fprintf(stderr, "  WARNING: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Input file path (- for stdin)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for a subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}

			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, expires, err := issuer.Issue(subject, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (caller identity)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: auth.token_ttl)")
	return cmd
}

type inspectOutput struct {
	ID        string `json:"id"`
	Size      int64  `json:"size"`
	Backend   string `json:"backend"`
	CreatedAt string `json:"created_at"`
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [id]",
		Short: "Print the metadata record for a blob id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := metadata.Open(ctx, &cfg.Metadata)
			if err != nil {
				return fmt.Errorf("opening metadata store: %w", err)
			}
			defer store.Close()

			rec, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inspectOutput{
				ID:        rec.ID,
				Size:      rec.Size,
				Backend:   string(rec.Backend),
				CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			})
		},
	}
}
