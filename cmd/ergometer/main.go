package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ergometer",
		Short: "Ergonomic-break activity tracker",
		Long: `ergometer tracks active-use intervals from an OS-level input monitor
and derives daily, session, and rest metrics that drive a UI overlay.

This binary runs the engine: the edge store, the activity updater, and
the cache controller. The GUI overlay and the cross-host broker are
separate processes and not part of this tool.`,
	}

	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")
	rootCmd.PersistentFlags().String("data", defaultDataDir(), "data directory (database, logs)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newServeCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ergometer"
	}
	return home + "/.ergometer"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("ergometer version %s\n", version)
			}
		},
	}
}
