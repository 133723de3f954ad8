package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/store"
)

// newConnectionsCmd creates the 'connections' command group.
func newConnectionsCmd() *cobra.Command {
	connectionsCmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage saved connections",
		Long: `Manage the saved connections that sessions are opened against.

Commands:
  list - List saved connections
  add  - Save a new connection
  rm   - Delete a saved connection`,
	}

	connectionsCmd.AddCommand(newConnectionsListCmd())
	connectionsCmd.AddCommand(newConnectionsAddCmd())
	connectionsCmd.AddCommand(newConnectionsRmCmd())

	return connectionsCmd
}

// newConnectionsListCmd creates the 'connections list' command.
func newConnectionsListCmd() *cobra.Command {
	var protocolFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		Long: `List saved connections, optionally filtered by protocol.

Example:
  portico connections list
  portico connections list --protocol ssh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if protocolFilter != "" {
				connections, err := st.Connections.List(ctx, store.ConnectionFilter{Protocol: protocolFilter})
				if err != nil {
					return err
				}
				return printConnections(connections)
			}

			nodes, err := st.ListTree(ctx)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Println("No connections saved.")
				fmt.Println("Add one with: portico connections add <name> --host <host>")
				return nil
			}

			fmt.Printf("%-24s %-5s %-32s %s\n", "NAME", "PROTO", "TARGET", "ID")
			for _, node := range nodes {
				indent := strings.Repeat("  ", node.Depth)
				if node.Folder != nil {
					fmt.Printf("%s%s/\n", indent, node.Folder.Name)
					continue
				}
				conn := node.Connection
				fmt.Printf("%-24s %-5s %-32s %s\n", indent+conn.Name, conn.Protocol, connectionTarget(conn), conn.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&protocolFilter, "protocol", "", "Only list connections with this protocol (ssh or rdp)")

	return cmd
}

func printConnections(connections []*store.Connection) error {
	if len(connections) == 0 {
		fmt.Println("No connections saved.")
		fmt.Println("Add one with: portico connections add <name> --host <host>")
		return nil
	}
	fmt.Printf("%-24s %-5s %-32s %s\n", "NAME", "PROTO", "TARGET", "ID")
	for _, conn := range connections {
		fmt.Printf("%-24s %-5s %-32s %s\n", conn.Name, conn.Protocol, connectionTarget(conn), conn.ID)
	}
	return nil
}

// connectionTarget formats the endpoint the way it is dialed.
func connectionTarget(conn *store.Connection) string {
	target := net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	if conn.Username != "" {
		target = conn.Username + "@" + target
	}
	return target
}

// newConnectionsAddCmd creates the 'connections add' command.
func newConnectionsAddCmd() *cobra.Command {
	var (
		protocolFlag  string
		host          string
		port          int
		username      string
		identityFile  string
		domain        string
		folderName    string
		acceptNewKey  bool
		desktopWidth  uint16
		desktopHeight uint16
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a new connection",
		Long: `Save a connection under a name so sessions can be opened against it.

The port defaults to the protocol's standard port (22 for ssh, 3389 for
rdp). For SSH connections, --identity selects a private key file; without
it the agent and the default key locations are tried, then a password
prompt. --folder groups the connection under a top-level folder, creating
the folder when it does not exist yet.

Example:
  portico connections add devbox --host devbox.example.com --user alice
  portico connections add lab-rdp --protocol rdp --host lab.example.com --domain LAB
  portico connections add staging --host stage.example.com --folder work`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			ctx := GetContext()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			name := args[0]
			existing, err := st.Connections.GetByName(ctx, name)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("connection %q already exists", name)
			}

			if port == 0 {
				switch protocolFlag {
				case store.ProtocolRDP:
					port = store.DefaultRDPPort
				default:
					port = store.DefaultSSHPort
				}
			}

			folderID := ""
			if folderName != "" {
				folder, err := st.Folders.GetByName(ctx, "", folderName)
				if err != nil {
					return err
				}
				if folder == nil {
					folder = &store.Folder{Name: folderName}
					if err := st.Folders.Create(ctx, folder); err != nil {
						return err
					}
				}
				folderID = folder.ID
			}

			conn := &store.Connection{
				FolderID:         folderID,
				Name:             name,
				Protocol:         protocolFlag,
				Host:             host,
				Port:             port,
				Username:         username,
				IdentityFile:     identityFile,
				AcceptNewHostKey: acceptNewKey,
				Domain:           domain,
				DesktopWidth:     desktopWidth,
				DesktopHeight:    desktopHeight,
			}
			if err := st.Connections.Create(ctx, conn); err != nil {
				return err
			}

			logger.Info().Str("id", conn.ID).Str("name", conn.Name).Msg("Connection saved")
			fmt.Printf("Saved %q (%s %s)\n", conn.Name, conn.Protocol, connectionTarget(conn))
			return nil
		},
	}

	cmd.Flags().StringVar(&protocolFlag, "protocol", store.ProtocolSSH, "Connection protocol (ssh or rdp)")
	cmd.Flags().StringVar(&host, "host", "", "Remote host name or address (required)")
	cmd.Flags().IntVar(&port, "port", 0, "Remote port (0 = protocol default)")
	cmd.Flags().StringVar(&username, "user", "", "Login user name")
	cmd.Flags().StringVar(&identityFile, "identity", "", "SSH private key path")
	cmd.Flags().StringVar(&folderName, "folder", "", "Top-level folder to group the connection under (created if missing)")
	cmd.Flags().BoolVar(&acceptNewKey, "accept-new-hostkey", false, "Always re-pin a changed host key for this connection")
	cmd.Flags().StringVar(&domain, "domain", "", "Windows logon domain (rdp only)")
	cmd.Flags().Uint16Var(&desktopWidth, "width", 0, "Remote desktop width (rdp only, 0 = session viewport)")
	cmd.Flags().Uint16Var(&desktopHeight, "height", 0, "Remote desktop height (rdp only, 0 = session viewport)")
	_ = cmd.MarkFlagRequired("host")

	return cmd
}

// newConnectionsRmCmd creates the 'connections rm' command.
func newConnectionsRmCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <name-or-id>",
		Short: "Delete a saved connection",
		Long: `Delete a saved connection by name or id.

Pinned host keys are kept; use 'portico hostkeys forget' to drop those
too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			conn, err := st.Connections.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if conn == nil {
				return fmt.Errorf("connection %q not found", args[0])
			}

			if !force && !confirmPrompt(fmt.Sprintf("Delete connection %q (%s)?", conn.Name, connectionTarget(conn))) {
				fmt.Println("Aborted.")
				return nil
			}

			if err := st.Connections.Delete(ctx, conn.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted %q\n", conn.Name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without confirmation")

	return cmd
}
