// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage portico configuration",
		Long: `Configuration management commands for portico.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for portico.

The configuration will be saved to ~/.config/portico/config

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("Portico Configuration Setup")
			fmt.Println("===========================")
			fmt.Println()

			cfg := config.New()

			fmt.Println("Terminal (press Enter for defaults)")
			fmt.Println("-----------------------------------")
			cfg.TerminalCols = promptUint16("Terminal columns", cfg.TerminalCols)
			cfg.TerminalRows = promptUint16("Terminal rows", cfg.TerminalRows)
			cfg.LogLevel = promptLine("Log level (debug, info, warn, error)", cfg.LogLevel)

			fmt.Println()
			fmt.Println("Transfers")
			fmt.Println("---------")
			cfg.Transfers.MaxBatchDepth = promptInt("Max batch depth", cfg.Transfers.MaxBatchDepth)
			cfg.Transfers.MaxBatchItems = promptInt("Max batch items", cfg.Transfers.MaxBatchItems)
			cfg.Transfers.CheckDiskSpace = confirmPromptDefaultYes("Check free disk space before downloads?")

			fmt.Println()
			fmt.Println("Notifications")
			fmt.Println("-------------")
			cfg.Notifications.Enabled = confirmPromptDefaultYes("Enable desktop notifications?")

			fmt.Println()
			fmt.Println("Remote desktop")
			fmt.Println("--------------")
			cfg.Desktop.ClientPath = promptLine("Desktop client path (empty to disable)", cfg.Desktop.ClientPath)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if err := config.Save(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			logger.Info().Str("path", configPath).Msg("Configuration saved")

			fmt.Println()
			fmt.Printf("✓ Configuration saved to: %s\n", configPath)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  portico connections add <name> --host <host> --user <user>")
			fmt.Println("  portico shell <name>")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// promptUint16 reads a numeric answer, keeping def on Enter or bad input.
func promptUint16(label string, def uint16) uint16 {
	input := promptLine(label, strconv.Itoa(int(def)))
	if v, err := strconv.Atoi(input); err == nil && v > 0 && v <= 65535 {
		return uint16(v)
	}
	return def
}

func promptInt(label string, def int) int {
	input := promptLine(label, strconv.Itoa(def))
	if v, err := strconv.Atoi(input); err == nil && v > 0 {
		return v
	}
	return def
}

// confirmPromptDefaultYes asks a yes/no question where Enter means yes.
func confirmPromptDefaultYes(message string) bool {
	switch promptLine(message+" [Y/n]", "") {
	case "n", "N", "no", "No":
		return false
	}
	return true
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

Values come from the configuration file when it exists, with built-in
defaults filling anything missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Println("Current Configuration")
			fmt.Println("=====================")
			fmt.Println()

			fmt.Println("Terminal:")
			fmt.Printf("  Columns:   %d\n", cfg.TerminalCols)
			fmt.Printf("  Rows:      %d\n", cfg.TerminalRows)
			fmt.Printf("  Log Level: %s\n", cfg.LogLevel)
			fmt.Println()

			fmt.Println("Transfers:")
			fmt.Printf("  Max Batch Depth:  %d\n", cfg.Transfers.MaxBatchDepth)
			fmt.Printf("  Max Batch Items:  %d\n", cfg.Transfers.MaxBatchItems)
			fmt.Printf("  Check Disk Space: %t\n", cfg.Transfers.CheckDiskSpace)
			fmt.Println()

			fmt.Println("Notifications:")
			fmt.Printf("  Enabled:                %t\n", cfg.Notifications.Enabled)
			fmt.Printf("  Show Transfer Complete: %t\n", cfg.Notifications.ShowTransferComplete)
			fmt.Printf("  Show Transfer Failed:   %t\n", cfg.Notifications.ShowTransferFailed)
			fmt.Printf("  Show Session Ended:     %t\n", cfg.Notifications.ShowSessionEnded)
			fmt.Println()

			fmt.Println("Remote Desktop:")
			if cfg.Desktop.ClientPath != "" {
				fmt.Printf("  Client Path: %s\n", cfg.Desktop.ClientPath)
				if cfg.Desktop.ClientArgs != "" {
					fmt.Printf("  Client Args: %s\n", cfg.Desktop.ClientArgs)
				}
			} else {
				fmt.Println("  Client Path: <not set - desktop sessions disabled>")
			}
			fmt.Println()

			fmt.Printf("Configuration file: %s\n", configPath)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Println("  (file does not exist - using defaults)")
			}

			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
				fmt.Println("Default configuration path:")
			} else {
				fmt.Println("Configuration path (from --config flag):")
			}

			fmt.Printf("  %s\n", configPath)
			fmt.Println()

			if fileInfo, err := os.Stat(configPath); err == nil {
				fmt.Println("Status: ✓ File exists")
				fmt.Printf("Size:   %d bytes\n", fileInfo.Size())
				fmt.Printf("Modified: %s\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Println("Status: File does not exist")
				fmt.Println()
				fmt.Println("Create a configuration file with: portico config init")
			}

			return nil
		},
	}

	return cmd
}
