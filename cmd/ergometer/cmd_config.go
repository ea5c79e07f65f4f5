package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lslunis/ergometer/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify ergometer configuration",
		Long: `Configuration is stored in <data-dir>/config.yaml.

Examples:
  ergometer config list
  ergometer config get targets.daily_seconds
  ergometer config set targets.daily_seconds 28800`,
	}
	cmd.AddCommand(newConfigListCmd(), newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func configPath(cmd *cobra.Command) string {
	dataDir, _ := cmd.Flags().GetString("data")
	return filepath.Join(dataDir, "config.yaml")
}

func loadOrDefaultConfig(cmd *cobra.Command) (*config.Config, string) {
	path := configPath(cmd)
	if cfg, err := config.LoadFromFile(path); err == nil {
		return cfg, path
	}
	return config.Default(), path
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, _ := loadOrDefaultConfig(cmd)

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(cfg)
			}

			fmt.Println("database.path:                ", cfg.Database.Path)
			fmt.Println("logging.level:                ", cfg.Logging.Level)
			fmt.Println("targets.daily_seconds:        ", cfg.Targets.Daily)
			fmt.Println("targets.session_seconds:      ", cfg.Targets.Session)
			fmt.Println("targets.rest_seconds:         ", cfg.Targets.Rest)
			fmt.Println("ingest.host_id:               ", cfg.Ingest.HostID)
			fmt.Println("ingest.log_path:              ", cfg.Ingest.LogPath)
			fmt.Println("ingest.poll_interval_ms:      ", cfg.Ingest.PollIntervalMS)
			fmt.Println("ingest.rate_limit_per_second: ", cfg.Ingest.RateLimitPerSecond)
			fmt.Println("ingest.rate_limit_burst:      ", cfg.Ingest.RateLimitBurst)
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, _ := loadOrDefaultConfig(cmd)

			value, ok := getConfigValue(cfg, args[0])
			if !ok {
				if jsonOut {
					return json.NewEncoder(os.Stdout).Encode(map[string]string{"error": "unknown key", "key": args[0]})
				}
				return fmt.Errorf("unknown configuration key: %s", args[0])
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{"key": args[0], "value": value})
			}
			fmt.Printf("%s = %v\n", args[0], value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, path := loadOrDefaultConfig(cmd)

			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("saving %s: %w", path, err)
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"status": "updated", "key": args[0], "value": args[1]})
			}
			fmt.Printf("set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	switch key {
	case "database.path":
		return cfg.Database.Path, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "targets.daily_seconds":
		return cfg.Targets.Daily, true
	case "targets.session_seconds":
		return cfg.Targets.Session, true
	case "targets.rest_seconds":
		return cfg.Targets.Rest, true
	case "ingest.host_id":
		return cfg.Ingest.HostID, true
	case "ingest.log_path":
		return cfg.Ingest.LogPath, true
	case "ingest.poll_interval_ms":
		return cfg.Ingest.PollIntervalMS, true
	case "ingest.rate_limit_per_second":
		return cfg.Ingest.RateLimitPerSecond, true
	case "ingest.rate_limit_burst":
		return cfg.Ingest.RateLimitBurst, true
	default:
		return nil, false
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "database.path":
		cfg.Database.Path = value
	case "logging.level":
		cfg.Logging.Level = value
	case "targets.daily_seconds":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Targets.Daily = n
	case "targets.session_seconds":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Targets.Session = n
	case "targets.rest_seconds":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Targets.Rest = n
	case "ingest.host_id":
		cfg.Ingest.HostID = value
	case "ingest.log_path":
		cfg.Ingest.LogPath = value
	case "ingest.poll_interval_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Ingest.PollIntervalMS = n
	case "ingest.rate_limit_per_second":
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %s", value)
		}
		cfg.Ingest.RateLimitPerSecond = n
	case "ingest.rate_limit_burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Ingest.RateLimitBurst = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
