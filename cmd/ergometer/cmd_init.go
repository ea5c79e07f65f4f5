package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lslunis/ergometer/internal/config"
	"github.com/lslunis/ergometer/internal/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory, default config, and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if err := os.MkdirAll(dataDir, 0700); err != nil {
				return fmt.Errorf("creating %s: %w", dataDir, err)
			}

			cfg := config.Default()
			cfg.Database.Path = filepath.Join(dataDir, "ergometer.db")
			cfg.Ingest.LogPath = filepath.Join(dataDir, "events.log")

			configPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.Save(cfg, configPath); err != nil {
					return fmt.Errorf("writing %s: %w", configPath, err)
				}
			}

			st, err := store.Open(context.Background(), cfg.Database.Path, store.Defaults)
			if err != nil {
				return fmt.Errorf("opening %s: %w", cfg.Database.Path, err)
			}
			defer st.Close()

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"status":   "initialized",
					"data_dir": dataDir,
					"config":   configPath,
					"database": cfg.Database.Path,
				})
			} else {
				fmt.Printf("Initialized %s\n", dataDir)
				fmt.Printf("  config:   %s\n", configPath)
				fmt.Printf("  database: %s\n", cfg.Database.Path)
			}
			return nil
		},
	}
}
