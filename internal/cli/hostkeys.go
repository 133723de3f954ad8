package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/store"
)

// newHostkeysCmd creates the 'hostkeys' command group.
func newHostkeysCmd() *cobra.Command {
	hostkeysCmd := &cobra.Command{
		Use:   "hostkeys",
		Short: "Manage pinned SSH host keys",
		Long: `Manage the SSH host keys pinned on first contact.

A pinned key that no longer matches what the server presents blocks the
session until the new key is accepted. Forgetting a key re-enables
first-contact pinning for that endpoint.

Commands:
  list   - List pinned host keys
  forget - Remove a pinned host key`,
	}

	hostkeysCmd.AddCommand(newHostkeysListCmd())
	hostkeysCmd.AddCommand(newHostkeysForgetCmd())

	return hostkeysCmd
}

// newHostkeysListCmd creates the 'hostkeys list' command.
func newHostkeysListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pinned host keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			keys, err := st.HostKeys.List(ctx)
			if err != nil {
				return err
			}

			if len(keys) == 0 {
				fmt.Println("No host keys pinned.")
				return nil
			}

			fmt.Printf("%-28s %5s  %-20s %-47s %s\n", "HOST", "PORT", "TYPE", "FINGERPRINT", "FIRST SEEN")
			for _, hk := range keys {
				fmt.Printf("%-28s %5d  %-20s %-47s %s\n",
					hk.Host, hk.Port, hk.KeyType, hk.Fingerprint,
					hk.FirstSeenAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	return cmd
}

// newHostkeysForgetCmd creates the 'hostkeys forget' command.
func newHostkeysForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <host> [port]",
		Short: "Remove a pinned host key",
		Long: `Remove the pinned host key for an endpoint. The port defaults to 22.

The next session to that endpoint pins whatever key the server
presents, so only forget keys for endpoints you expect to have
changed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			host := args[0]
			port := store.DefaultSSHPort
			if len(args) == 2 {
				p, err := strconv.Atoi(args[1])
				if err != nil || p < 1 || p > 65535 {
					return fmt.Errorf("invalid port %q", args[1])
				}
				port = p
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			existing, err := st.HostKeys.Get(ctx, host, port)
			if err != nil {
				return err
			}
			if existing == nil {
				fmt.Printf("No host key pinned for %s:%d\n", host, port)
				return nil
			}

			if err := st.HostKeys.Forget(ctx, host, port); err != nil {
				return err
			}
			fmt.Printf("Forgot host key for %s:%d (%s %s)\n", host, port, existing.KeyType, existing.Fingerprint)
			return nil
		},
	}

	return cmd
}
