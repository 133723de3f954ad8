package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/store"
)

// newProbeCmd creates the 'probe' command.
func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <connection|host[:port]>",
		Short: "Check whether an endpoint accepts TCP connections",
		Long: `Probe an endpoint with a short TCP connect per resolved address.

The argument is a saved connection name or id; anything that does not
resolve is treated as host[:port] with port defaulting to 22.

Example:
  portico probe devbox
  portico probe bastion.example.com:2222`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			host, port, err := resolveEndpoint(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Probing %s:%d...\n", host, port)
			if protocol.Probe(ctx, host, port) {
				fmt.Printf("✓ %s:%d is reachable\n", host, port)
				return nil
			}

			fmt.Printf("✗ %s:%d is not reachable\n", host, port)
			return fmt.Errorf("probe failed")
		},
	}

	return cmd
}

// resolveEndpoint maps the argument to a host and port: saved connections by
// name or id first, then a literal host[:port].
func resolveEndpoint(ref string) (string, int, error) {
	ctx := GetContext()

	st, err := openStore(ctx)
	if err != nil {
		return "", 0, err
	}
	defer st.Close()

	conn, err := st.Connections.Resolve(ctx, ref)
	if err != nil {
		return "", 0, err
	}
	if conn != nil {
		return conn.Host, conn.Port, nil
	}

	host := ref
	port := store.DefaultSSHPort
	if h, p, err := net.SplitHostPort(ref); err == nil {
		parsed, perr := strconv.Atoi(p)
		if perr != nil || parsed < 1 || parsed > 65535 {
			return "", 0, fmt.Errorf("invalid port in %q", ref)
		}
		host, port = h, parsed
	}
	return host, port, nil
}
