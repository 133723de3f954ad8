// Package cli provides the command-line interface for portico.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/logging"
)

var (
	// Global flags
	cfgFile   string
	storePath string
	verbose   bool
	debug     bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Version information - set by main package at startup
// The actual version is defined in:
// 1. Makefile (source of truth for releases, injected via LDFLAGS)
// 2. cmd/portico/main.go (fallback for non-Makefile builds)
var (
	Version   = "v0.9.0-dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command for CLI mode.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portico",
		Short: "Portico - SSH and remote-desktop connection client",
		Long: `Portico ` + Version + ` - Built: ` + BuildTime + `
Client for interactive SSH shells, SFTP file transfers, and remote
desktop sessions against saved connections.

Connections are stored per user and addressed by name or id:
  portico connections add devbox --host devbox.example.com --user alice
  portico shell devbox
  portico transfer put devbox ./results.tar.gz /srv/data

Host keys are pinned on first contact; a changed key blocks the session
until it is explicitly accepted.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(-1) // Debug level (zerolog.DebugLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Connection store path (overrides default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	// Customize completion command description
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Enable tab-completion for portico commands",
		Long: `Generate shell completion scripts to enable tab-completion for portico.

Tab-completion lets you press Tab to:
  - Auto-complete command names (e.g., "portico con<Tab>" -> "connections")
  - Auto-complete flag names (e.g., "portico transfer put --<Tab>" shows all flags)
  - See available subcommands

For setup instructions, use: portico completion [shell] --help`,
	}
	rootCmd.AddCommand(completionCmd)

	// Add subcommands for each shell
	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		Long: `Generate the autocompletion script for bash.

SETUP INSTRUCTIONS:

Linux:
  portico completion bash | sudo tee /etc/bash_completion.d/portico
  # Restart your terminal

macOS (with bash-completion installed via brew):
  portico completion bash > $(brew --prefix)/etc/bash_completion.d/portico
  # Restart your terminal

QUICK TEST (temporary, current session only):
  source <(portico completion bash)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		Long: `Generate the autocompletion script for zsh.

SETUP INSTRUCTIONS:

  1. Create a completions directory:
       mkdir -p ~/.zsh/completions

  2. Generate the completion script:
       portico completion zsh > ~/.zsh/completions/_portico

  3. Add to ~/.zshrc (if not already there):
       fpath=(~/.zsh/completions $fpath)
       autoload -Uz compinit && compinit

  4. Restart your terminal

QUICK TEST (temporary, current session only):
  source <(portico completion zsh)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		Long: `Generate the autocompletion script for fish.

SETUP INSTRUCTIONS:

  1. Generate the completion script:
       portico completion fish > ~/.config/fish/completions/portico.fish

  2. Restart your terminal

QUICK TEST (temporary, current session only):
  portico completion fish | source`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		Long: `Generate the autocompletion script for PowerShell.

SETUP INSTRUCTIONS (Windows):

  1. Find your PowerShell profile location:
       $PROFILE

  2. Generate the completion script:
       portico completion powershell >> $PROFILE

  3. Restart PowerShell

QUICK TEST (temporary, current session only):
  portico completion powershell | Out-String | Invoke-Expression`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})

	// Disable default completion command (we're adding our own above)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())

	// Set up signal handling for graceful cancellation
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so repeated signals while teardown runs don't pile up unhandled.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	// Clean up signal handler
	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newConnectionsCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newTransferCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newHostkeysCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		// Fallback to background context if called before Execute()
		return context.Background()
	}
	return rootContext
}
